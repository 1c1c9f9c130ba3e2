// Package timecode renders video-relative positions for chat announcements and markers.
package timecode

import (
	"fmt"
	"math"
)

// Format renders seconds as m:ss, or h:mm:ss once the position reaches an hour.
// Fractions are floored and negative inputs render as 0:00.
func Format(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
