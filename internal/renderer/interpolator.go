package renderer

import (
	"math"

	"github.com/ivlev/swimprogress/internal/director"
)

// Point is a position in the background image's natural pixel space.
type Point struct {
	X float64
	Y float64
}

// PositionAt maps normalized progress t to a point on the track by piecewise
// linear interpolation. t is clamped to [0, 1]. Safe for concurrent use.
func PositionAt(track *director.Track, t float64) Point {
	if track == nil || len(track.Keyframes) == 0 {
		return Point{}
	}
	keyframes := track.Keyframes

	t = clamp01(t)

	for i := 0; i < len(keyframes)-1; i++ {
		a, b := keyframes[i], keyframes[i+1]
		if t < a.T || t > b.T {
			continue
		}

		// Degenerate segment: stay on a
		span := b.T - a.T
		if span == 0 {
			span = 1
		}
		local := (t - a.T) / span

		return Point{
			X: lerp(a.X, b.X, local),
			Y: lerp(a.Y, b.Y, local),
		}
	}

	// Only reachable with a malformed table
	last := keyframes[len(keyframes)-1]
	return Point{X: last.X, Y: last.Y}
}

// lerp performs linear interpolation between a and b. Exact at both ends.
func lerp(a, b, t float64) float64 {
	return a*(1-t) + b*t
}

func clamp01(t float64) float64 {
	if t < 0 || math.IsNaN(t) {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
