package player

import (
	"math/rand/v2"
	"time"
)

// DefaultOverlayDuration is how long a reaction overlay stays on screen.
const DefaultOverlayDuration = 3 * time.Second

// DecorationCount is how many decorations an overlay is seeded with.
const DecorationCount = 20

// Glyphs are the decorations an overlay picks from.
var Glyphs = []string{"🔥", "🎉", "😂", "😮", "❤️"}

// Decoration is one randomly placed glyph on the overlay.
type Decoration struct {
	ID    int     `json:"id"`
	Glyph string  `json:"glyph"`
	Top   float64 `json:"top"`
	Left  float64 `json:"left"`
	Delay float64 `json:"delay"`
}

// NewDecorations builds DecorationCount decorations. Positions are percentages
// of the player and delays are at most half a second. rnd returns values in
// [0, 1); nil uses the global source.
func NewDecorations(rnd func() float64) []Decoration {
	if rnd == nil {
		rnd = rand.Float64
	}
	out := make([]Decoration, DecorationCount)
	for i := range out {
		out[i] = Decoration{
			ID:    i,
			Glyph: Glyphs[int(rnd()*float64(len(Glyphs)))%len(Glyphs)],
			Top:   rnd() * 100,
			Left:  rnd() * 100,
			Delay: rnd() * 0.5,
		}
	}
	return out
}
