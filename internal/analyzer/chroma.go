package analyzer

import (
	"crypto/sha1"
	"encoding/binary"
	"image"
	"image/color"

	"github.com/coocood/freecache"
	"github.com/sirupsen/logrus"
)

// Candidates are saturated colors unlikely to appear in medal artwork, in
// order of preference.
var Candidates = []color.RGBA{
	{R: 255, G: 0, B: 255, A: 255}, // magenta
	{R: 0, G: 255, B: 0, A: 255},   // green
	{R: 0, G: 255, B: 255, A: 255}, // cyan
	{R: 255, G: 128, B: 0, A: 255}, // orange
}

const defaultCacheBytes = 512 * 1024

// ChromaNegotiator picks a key color absent from the source images. Scan
// results are cached per image content, so repeated exports of the same
// artwork skip the pixel walk.
type ChromaNegotiator struct {
	candidates []color.RGBA
	cache      *freecache.Cache
}

func NewChromaNegotiator() *ChromaNegotiator {
	return &ChromaNegotiator{
		candidates: Candidates,
		cache:      freecache.NewCache(defaultCacheBytes),
	}
}

// Pick returns the first candidate present in neither image. An image that
// cannot be read (nil) is assumed not to contain any candidate, which can be
// wrong but never blocks an export. If every candidate collides the first
// one is returned.
func (n *ChromaNegotiator) Pick(background, subject image.Image) color.RGBA {
	var used uint32
	for _, img := range []image.Image{background, subject} {
		if img == nil {
			logrus.Warn("[!] chroma scan skipped: image not readable")
			continue
		}
		used |= n.presence(img)
	}

	for i, c := range n.candidates {
		if used&(1<<i) == 0 {
			return c
		}
	}

	logrus.Warn("[!] every chroma candidate occurs in the artwork, falling back to the first")
	return n.candidates[0]
}

// presence returns a bitmask with bit i set when candidate i occurs in img.
func (n *ChromaNegotiator) presence(img image.Image) uint32 {
	key := fingerprint(img)
	if key != nil {
		if v, err := n.cache.Get(key); err == nil && len(v) == 4 {
			return binary.LittleEndian.Uint32(v)
		}
	}

	mask := n.scan(img)

	if key != nil {
		var v [4]byte
		binary.LittleEndian.PutUint32(v[:], mask)
		_ = n.cache.Set(key, v[:], 0)
	}
	return mask
}

// scan compares un-premultiplied RGB of every pixel, ignoring alpha.
func (n *ChromaNegotiator) scan(img image.Image) uint32 {
	var mask uint32
	all := uint32(1)<<len(n.candidates) - 1

	match := func(r, g, b uint8) {
		for i, c := range n.candidates {
			if c.R == r && c.G == g && c.B == b {
				mask |= 1 << i
			}
		}
	}

	b := img.Bounds()
	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := b.Min.Y; y < b.Max.Y && mask != all; y++ {
			row := nrgba.Pix[nrgba.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				match(row[4*x], row[4*x+1], row[4*x+2])
			}
		}
		return mask
	}

	for y := b.Min.Y; y < b.Max.Y && mask != all; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			match(c.R, c.G, c.B)
		}
	}
	return mask
}

// fingerprint hashes the pixel buffer of common in-memory image types. Other
// image types are not cached.
func fingerprint(img image.Image) []byte {
	h := sha1.New()
	b := img.Bounds()
	var hdr [16]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(b.Min.X))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(b.Min.Y))
	binary.LittleEndian.PutUint32(hdr[8:], uint32(b.Max.X))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(b.Max.Y))
	h.Write(hdr[:])

	switch m := img.(type) {
	case *image.RGBA:
		h.Write([]byte("rgba"))
		h.Write(m.Pix)
	case *image.NRGBA:
		h.Write([]byte("nrgba"))
		h.Write(m.Pix)
	case *image.Paletted:
		h.Write([]byte("pal"))
		h.Write(m.Pix)
		for _, c := range m.Palette {
			r, g, bl, a := c.RGBA()
			var v [8]byte
			binary.LittleEndian.PutUint16(v[0:], uint16(r))
			binary.LittleEndian.PutUint16(v[2:], uint16(g))
			binary.LittleEndian.PutUint16(v[4:], uint16(bl))
			binary.LittleEndian.PutUint16(v[6:], uint16(a))
			h.Write(v[:])
		}
	case *image.YCbCr:
		h.Write([]byte("ycbcr"))
		h.Write(m.Y)
		h.Write(m.Cb)
		h.Write(m.Cr)
	default:
		return nil
	}
	return h.Sum(nil)
}
