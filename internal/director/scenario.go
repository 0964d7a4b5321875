package director

import (
	"errors"
	"fmt"
)

var ErrInvalidTrack = errors.New("invalid track")

// Track is the fixed path the swimmer follows across the medal, in the
// background image's natural pixel space.
type Track struct {
	Version      string     `yaml:"version"`
	Keyframes    []Keyframe `yaml:"keyframes"`
	CenterOffset Offset     `yaml:"center_offset"`
}

// Keyframe is a control point at normalized progress T.
type Keyframe struct {
	T float64 `yaml:"t"`
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Offset translates the subject's top-left draw origin to its visual center.
type Offset struct {
	DX float64 `yaml:"dx"`
	DY float64 `yaml:"dy"`
}

// Validate checks the keyframe table: first T is 0, last T is 1 and T is
// strictly increasing in between.
func (t *Track) Validate() error {
	if len(t.Keyframes) < 2 {
		return fmt.Errorf("%w: need at least 2 keyframes, got %d", ErrInvalidTrack, len(t.Keyframes))
	}
	if t.Keyframes[0].T != 0 {
		return fmt.Errorf("%w: first keyframe must have t=0, got %g", ErrInvalidTrack, t.Keyframes[0].T)
	}
	if last := t.Keyframes[len(t.Keyframes)-1].T; last != 1 {
		return fmt.Errorf("%w: last keyframe must have t=1, got %g", ErrInvalidTrack, last)
	}
	for i := 1; i < len(t.Keyframes); i++ {
		if t.Keyframes[i].T <= t.Keyframes[i-1].T {
			return fmt.Errorf("%w: t not strictly increasing at keyframe %d", ErrInvalidTrack, i)
		}
	}
	return nil
}

// DefaultArtworkSize is the medal size DefaultTrack was laid out for.
const DefaultArtworkSize = 600

// DefaultTrack is a 9-point loop around a 600x600 medal, starting at the top
// and going clockwise.
func DefaultTrack() *Track {
	return &Track{
		Version: "1.0",
		Keyframes: []Keyframe{
			{T: 0.000, X: 300.0, Y: 72.0},
			{T: 0.125, X: 461.2, Y: 138.8},
			{T: 0.250, X: 528.0, Y: 300.0},
			{T: 0.375, X: 461.2, Y: 461.2},
			{T: 0.500, X: 300.0, Y: 528.0},
			{T: 0.625, X: 138.8, Y: 461.2},
			{T: 0.750, X: 72.0, Y: 300.0},
			{T: 0.875, X: 138.8, Y: 138.8},
			{T: 1.000, X: 300.0, Y: 72.0},
		},
		CenterOffset: Offset{DX: 30, DY: 20},
	}
}
