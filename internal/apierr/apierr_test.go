package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/vidfriends/watchparty/internal/access"
	"github.com/vidfriends/watchparty/internal/auth"
	"github.com/vidfriends/watchparty/internal/chat"
	"github.com/vidfriends/watchparty/internal/repositories"
	"github.com/vidfriends/watchparty/internal/social"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("send: %w", chat.ErrEmptyMessage), http.StatusBadRequest},
		{social.ErrSelfFollow, http.StatusBadRequest},
		{access.ErrUnauthenticated, http.StatusUnauthorized},
		{auth.ErrTokenExpired, http.StatusUnauthorized},
		{fmt.Errorf("delete: %w", access.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("load video: %w", repositories.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("username taken: %w", repositories.ErrConflict), http.StatusConflict},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrUnavailable, http.StatusServiceUnavailable},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := Status(tc.err); got != tc.want {
			t.Fatalf("Status(%v) = %d want %d", tc.err, got, tc.want)
		}
	}
}

func TestMessageHidesInternalDetail(t *testing.T) {
	if got := Message(errors.New("dial tcp 10.0.0.1: refused")); got != "internal server error" {
		t.Fatalf("expected generic message got %q", got)
	}
	if got := Message(fmt.Errorf("send: %w", chat.ErrEmptyMessage)); got != chat.ErrEmptyMessage.Error() {
		t.Fatalf("expected validation message got %q", got)
	}
	if got := Message(fmt.Errorf("x: %w", access.ErrForbidden)); got != access.ErrForbidden.Error() {
		t.Fatalf("expected forbidden message got %q", got)
	}
}
