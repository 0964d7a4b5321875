package renderer

import (
	"fmt"
	"math"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"

	"github.com/ivlev/swimprogress/internal/config"
)

// OverlayText computes the two overlay strings for a progress value. The
// value is clamped to [0, goal] first.
func OverlayText(value, goal int, unit string) (percent int, percentText, label string) {
	value = config.Clamp(value, goal)
	percent = int(math.Round(Normalize(value, goal) * 100))
	percentText = fmt.Sprintf("%d%%", percent)
	label = fmt.Sprintf("%d / %d %s", value, goal, unit)
	return percent, percentText, label
}

// Normalize returns min(value/goal, 1), never negative.
func Normalize(value, goal int) float64 {
	if goal <= 0 {
		return 0
	}
	return clamp01(float64(value) / float64(goal))
}

// LoadFace parses a TrueType/OpenType font file. An empty path selects the
// embedded Go Bold face.
func LoadFace(path string, size float64) (font.Face, error) {
	data := gobold.TTF
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read font file: %w", err)
		}
		data = b
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

// FaceOrDefault is LoadFace that degrades to the built-in bitmap face.
func FaceOrDefault(path string, size float64) font.Face {
	face, err := LoadFace(path, size)
	if err != nil {
		logrus.Warnf("[!] font %q unavailable, using bitmap face: %v", path, err)
		return basicfont.Face7x13
	}
	return face
}
