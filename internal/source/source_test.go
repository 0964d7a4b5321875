package source

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.SetRGBA(0, 0, color.RGBA{1, 2, 3, 255})

	path := filepath.Join(t.TempDir(), "bg.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestLoadPNG(t *testing.T) {
	img, err := Load(writePNG(t, 40, 30), 150, 0)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 30, img.Bounds().Dy())
}

func TestLoadDownscales(t *testing.T) {
	img, err := Load(writePNG(t, 400, 200), 150, 100)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 50), img.Bounds())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.png"), 150, 0)
	assert.ErrorIs(t, err, ErrAssetLoad)

	garbage := filepath.Join(t.TempDir(), "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))
	_, err = Load(garbage, 150, 0)
	assert.ErrorIs(t, err, ErrAssetLoad)

	_, err = Load(t.TempDir(), 150, 0)
	assert.ErrorIs(t, err, ErrAssetLoad)
}

func TestLoadOrFallsBack(t *testing.T) {
	called := 0
	fallback := func() image.Image {
		called++
		return DefaultMedal(50)
	}

	img := LoadOr("", 150, 0, fallback)
	assert.Equal(t, 50, img.Bounds().Dx())

	img = LoadOr(filepath.Join(t.TempDir(), "nope.jpg"), 150, 0, fallback)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 2, called)

	img = LoadOr(writePNG(t, 12, 12), 150, 0, fallback)
	assert.Equal(t, 12, img.Bounds().Dx())
	assert.Equal(t, 2, called)
}

func TestDefaultArtwork(t *testing.T) {
	medal := DefaultMedal(600)
	assert.Equal(t, image.Rect(0, 0, 600, 600), medal.Bounds())
	_, _, _, a := medal.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), a, "medal background must be opaque")

	swimmer := DefaultSwimmer(600)
	assert.Equal(t, image.Rect(0, 0, 60, 40), swimmer.Bounds())
	_, _, _, a = swimmer.At(0, 0).RGBA()
	assert.Zero(t, a, "swimmer corners are transparent")

	assert.Equal(t, 600, DefaultMedal(0).Bounds().Dx())
	assert.Equal(t, image.Rect(0, 0, 6, 4), DefaultSwimmer(20).Bounds())
}
