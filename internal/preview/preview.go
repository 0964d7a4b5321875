package preview

import (
	"bytes"
	"image"
	"image/png"
	"math"

	"github.com/ivlev/swimprogress/internal/config"
	"github.com/ivlev/swimprogress/internal/director"
	"github.com/ivlev/swimprogress/internal/renderer"
)

// DisplayState is what an on-screen preview needs after an input change.
type DisplayState struct {
	Value       int     `yaml:"value" json:"value"`
	Goal        int     `yaml:"goal" json:"goal"`
	Normalized  float64 `yaml:"normalized" json:"normalized"`
	X           float64 `yaml:"x" json:"x"`
	Y           float64 `yaml:"y" json:"y"`
	Percent     int     `yaml:"percent" json:"percent"`
	PercentText string  `yaml:"percent_text" json:"percent_text"`
	Label       string  `yaml:"label" json:"label"`
	// BarWidth is the progress bar fill in percent, two decimals.
	BarWidth float64 `yaml:"bar_width" json:"bar_width"`
}

// Update recomputes the preview for a new value. It never touches an export
// surface and has no side effects.
func Update(track *director.Track, value, goal int, unit string) DisplayState {
	if goal <= 0 {
		goal = config.DefaultGoal
	}
	value = config.Clamp(value, goal)
	t := renderer.Normalize(value, goal)
	pos := renderer.PositionAt(track, t)
	percent, percentText, label := renderer.OverlayText(value, goal, unit)

	return DisplayState{
		Value:       value,
		Goal:        goal,
		Normalized:  t,
		X:           pos.X,
		Y:           pos.Y,
		Percent:     percent,
		PercentText: percentText,
		Label:       label,
		BarWidth:    math.Round(t*10000) / 100,
	}
}

// Snapshot renders the preview as PNG. It uses its own compositor with the
// text shadow enabled, so it must never feed an export.
func Snapshot(track *director.Track, background, subject image.Image, value int, opts renderer.Options) ([]byte, error) {
	opts.TextShadow = true
	c, err := renderer.NewCompositor(track, background, subject, opts)
	if err != nil {
		return nil, err
	}

	frame := c.Render(0, value)
	defer frame.Release()

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame.Image); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
