package preview

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/swimprogress/internal/director"
	"github.com/ivlev/swimprogress/internal/renderer"
	"github.com/ivlev/swimprogress/internal/source"
	"github.com/ivlev/swimprogress/internal/system"
)

func TestUpdateQuarter(t *testing.T) {
	state := Update(director.DefaultTrack(), 2200, 8800, "units")

	assert.Equal(t, 2200, state.Value)
	assert.Equal(t, 0.25, state.Normalized)
	assert.Equal(t, 528.0, state.X)
	assert.Equal(t, 300.0, state.Y)
	assert.Equal(t, 25, state.Percent)
	assert.Equal(t, "25%", state.PercentText)
	assert.Equal(t, "2200 / 8800 units", state.Label)
	assert.Equal(t, 25.0, state.BarWidth)
}

func TestUpdateEdges(t *testing.T) {
	track := director.DefaultTrack()
	first := track.Keyframes[0]
	last := track.Keyframes[len(track.Keyframes)-1]

	tests := []struct {
		name    string
		value   int
		want    director.Keyframe
		label   string
		percent string
	}{
		{"zero", 0, first, "0 / 8800 units", "0%"},
		{"negative", -50, first, "0 / 8800 units", "0%"},
		{"goal", 8800, last, "8800 / 8800 units", "100%"},
		{"beyond goal", 10000, last, "8800 / 8800 units", "100%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Update(track, tt.value, 8800, "units")
			assert.Equal(t, tt.want.X, s.X)
			assert.Equal(t, tt.want.Y, s.Y)
			assert.Equal(t, tt.label, s.Label)
			assert.Equal(t, tt.percent, s.PercentText)
		})
	}
}

func TestUpdateBarWidth(t *testing.T) {
	s := Update(director.DefaultTrack(), 1, 3, "laps")
	assert.Equal(t, 33.33, s.BarWidth)
	assert.Equal(t, "1 / 3 laps", s.Label)

	s = Update(director.DefaultTrack(), 10, 0, "units")
	assert.Equal(t, 8800, s.Goal)
}

func TestSnapshot(t *testing.T) {
	data, err := Snapshot(director.DefaultTrack(), source.DefaultMedal(600), source.DefaultSwimmer(600), 4400, renderer.Options{Goal: 8800, Unit: "units", Inset: 16})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 600, img.Bounds().Dx())
	assert.Zero(t, system.Outstanding())

	_, err = Snapshot(director.DefaultTrack(), nil, nil, 0, renderer.Options{})
	assert.Error(t, err)
}
