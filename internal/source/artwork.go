package source

import (
	"image"
	"image/color"
	"math"
)

var (
	water     = color.RGBA{214, 236, 247, 255}
	lane      = color.RGBA{164, 205, 228, 255}
	gold      = color.RGBA{226, 180, 60, 255}
	goldDark  = color.RGBA{170, 124, 28, 255}
	ribbon    = color.RGBA{38, 84, 160, 255}
	swimCap   = color.RGBA{232, 64, 52, 255}
	swimSkin  = color.RGBA{241, 196, 160, 255}
	swimTrunk = color.RGBA{22, 40, 92, 255}
)

// DefaultMedal draws a size×size medal on a pool background. The ring lies
// under the built-in track for that size.
func DefaultMedal(size int) image.Image {
	if size <= 0 {
		size = 600
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))

	c := float64(size) / 2
	outer := float64(size) * 0.44
	inner := float64(size) * 0.32

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)+0.5-c, float64(y)+0.5-c
			d := math.Hypot(dx, dy)

			switch {
			case d <= inner:
				img.SetRGBA(x, y, gold)
			case d <= inner+float64(size)*0.02:
				img.SetRGBA(x, y, goldDark)
			case d <= outer:
				img.SetRGBA(x, y, ribbon)
			case (y/(size/12+1))%2 == 0:
				img.SetRGBA(x, y, water)
			default:
				img.SetRGBA(x, y, lane)
			}
		}
	}
	return img
}

// DefaultSwimmer draws a small swimmer on a transparent background, sized
// relative to a medal of medalSize.
func DefaultSwimmer(medalSize int) image.Image {
	if medalSize <= 0 {
		medalSize = 600
	}
	w := medalSize / 10
	h := w * 2 / 3
	if w < 6 || h < 4 {
		w, h = 6, 4
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	fw, fh := float64(w), float64(h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5

			// head
			if math.Hypot(px-fw*0.8, py-fh*0.4) <= fh*0.22 {
				if py < fh*0.36 {
					img.SetRGBA(x, y, swimCap)
				} else {
					img.SetRGBA(x, y, swimSkin)
				}
				continue
			}
			// body
			ex, ey := (px-fw*0.42)/(fw*0.34), (py-fh*0.55)/(fh*0.18)
			if ex*ex+ey*ey <= 1 {
				if px < fw*0.3 {
					img.SetRGBA(x, y, swimTrunk)
				} else {
					img.SetRGBA(x, y, swimSkin)
				}
			}
		}
	}
	return img
}
