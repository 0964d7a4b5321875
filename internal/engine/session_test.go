package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/swimprogress/internal/director"
	"github.com/ivlev/swimprogress/internal/renderer"
)

func TestNewSessionUsesDefaultTrackForStandardArtwork(t *testing.T) {
	cfg := testConfig()
	cfg.FallbackSize = director.DefaultArtworkSize

	sess, err := NewSession(context.Background(), cfg, renderer.Options{Goal: cfg.Goal, Unit: cfg.Unit})
	require.NoError(t, err)

	assert.Equal(t, director.DefaultTrack(), sess.Track)
	assert.NotEmpty(t, sess.ID)
}

func TestNewSessionFitsTrackToSmallArtwork(t *testing.T) {
	cfg := testConfig()

	sess, err := NewSession(context.Background(), cfg, renderer.Options{Goal: cfg.Goal, Unit: cfg.Unit})
	require.NoError(t, err)

	require.NoError(t, sess.Track.Validate())
	assert.NotEqual(t, director.DefaultTrack().Keyframes, sess.Track.Keyframes)
	assert.Equal(t, 60, sess.Background.Bounds().Dx())
}

func TestNewSessionReadsTrackFile(t *testing.T) {
	cfg := testConfig()
	want := director.DefaultTrack()
	want.Keyframes[4].X = 310
	cfg.TrackPath = filepath.Join(t.TempDir(), "track.yaml")
	require.NoError(t, director.WriteTrack(want, cfg.TrackPath))

	sess, err := NewSession(context.Background(), cfg, renderer.Options{Goal: cfg.Goal, Unit: cfg.Unit})
	require.NoError(t, err)
	assert.Equal(t, want.Keyframes, sess.Track.Keyframes)
}
