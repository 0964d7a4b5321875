package director

import (
	"fmt"
	"math"
)

// Director lays out circular tracks for new medal artwork.
type Director struct {
	CenterX, CenterY float64
	Radius           float64
	Segments         int
}

// NewDirector creates a Director for a canvas of the given size, using the
// same radius factor the medal artwork was designed around.
func NewDirector(width, height int) *Director {
	return &Director{
		CenterX:  float64(width) / 2,
		CenterY:  float64(height) / 2,
		Radius:   math.Min(float64(width), float64(height)) * 0.38,
		Segments: 8,
	}
}

// GenerateTrack creates a closed clockwise loop starting at 12 o'clock.
func (d *Director) GenerateTrack(offset Offset) (*Track, error) {
	if d.Segments < 1 {
		return nil, fmt.Errorf("%w: segments must be positive, got %d", ErrInvalidTrack, d.Segments)
	}
	if d.Radius <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive, got %g", ErrInvalidTrack, d.Radius)
	}

	keyframes := make([]Keyframe, 0, d.Segments+1)
	for i := 0; i <= d.Segments; i++ {
		t := float64(i) / float64(d.Segments)
		angle := (t*360 - 90) * math.Pi / 180
		keyframes = append(keyframes, Keyframe{
			T: t,
			X: round1(d.CenterX + d.Radius*math.Cos(angle)),
			Y: round1(d.CenterY + d.Radius*math.Sin(angle)),
		})
	}

	return &Track{
		Version:      "1.0",
		Keyframes:    keyframes,
		CenterOffset: offset,
	}, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
