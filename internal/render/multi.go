package render

import (
	"github.com/normanking/signavatar/internal/playback"
	"github.com/normanking/signavatar/internal/sign"
)

// Multi renders to every member in order.
type Multi []playback.Renderer

func (m Multi) Render(frame *sign.Frame, uncertain bool) {
	for _, r := range m {
		if r != nil {
			r.Render(frame, uncertain)
		}
	}
}
