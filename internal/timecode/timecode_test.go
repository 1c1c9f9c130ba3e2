package timecode

import "testing"

func TestFormat(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{12.7, "0:12"},
		{75, "1:15"},
		{3599.9, "59:59"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
		{-4, "0:00"},
	}
	for _, tc := range cases {
		if got := Format(tc.in); got != tc.want {
			t.Fatalf("Format(%v) = %q want %q", tc.in, got, tc.want)
		}
	}
}
