package effects

import (
	"fmt"

	"github.com/ivlev/swimprogress/internal/config"
)

// Effect builds the -vf filter graph an ffmpeg backend applies to the raw
// RGBA frame stream.
type Effect interface {
	GenerateFilter(p config.EncodeParams) string
}

// VideoEffect pads odd frame sizes to even ones, which yuv420p encoders
// require. Padding is filled with the matte background.
type VideoEffect struct{}

func (e *VideoEffect) GenerateFilter(p config.EncodeParams) string {
	w, h := even(p.Width), even(p.Height)
	filter := "format=rgba"
	if w != p.Width || h != p.Height {
		filter = fmt.Sprintf("pad=%d:%d:0:0:color=%s,%s", w, h, hex(p), filter)
	}
	return filter + ",format=yuv420p"
}

// GIFEffect quantizes every frame against one palette generated from the
// whole clip.
type GIFEffect struct{}

func (e *GIFEffect) GenerateFilter(p config.EncodeParams) string {
	dither := "none"
	if p.Quality >= 10 {
		dither = "sierra2_4a"
	}
	return "split[a][b];[a]palettegen=max_colors=256:reserve_transparent=0:stats_mode=full[p];[b][p]paletteuse=dither=" + dither
}

// ForKind returns the filter builder for an ffmpeg backend.
func ForKind(video bool) Effect {
	if video {
		return &VideoEffect{}
	}
	return &GIFEffect{}
}

func even(n int) int {
	if n%2 != 0 {
		return n + 1
	}
	return n
}

func hex(p config.EncodeParams) string {
	c := p.Background
	return fmt.Sprintf("0x%02X%02X%02X", c.R, c.G, c.B)
}
