package source

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrAssetLoad marks a background or subject image that could not be read.
var ErrAssetLoad = errors.New("asset load failure")

// Source yields the still used for one layer of the composition.
type Source interface {
	Render(dpi int) (image.Image, error)
	Close() error
}

// Open picks a Source by file extension. PDFs are rasterized from their
// first page; everything else goes through the registered image decoders.
func Open(path string) (Source, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return NewFitzPDFSource(path)
	}
	return NewImageSource(path)
}

type ImageSource struct {
	path string
}

func NewImageSource(path string) (*ImageSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &ImageSource{path: path}, nil
}

func (s *ImageSource) Render(int) (image.Image, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (s *ImageSource) Close() error {
	return nil
}

type FitzPDFSource struct {
	doc *fitz.Document
}

func NewFitzPDFSource(path string) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	if doc.NumPage() == 0 {
		doc.Close()
		return nil, fmt.Errorf("%s has no pages", path)
	}
	return &FitzPDFSource{doc: doc}, nil
}

func (f *FitzPDFSource) Render(dpi int) (image.Image, error) {
	return f.doc.ImageDPI(0, float64(dpi))
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}

// Load reads a layer image. When maxWidth is positive, wider images are
// downscaled to it with their aspect ratio kept. Errors wrap ErrAssetLoad.
func Load(path string, dpi, maxWidth int) (image.Image, error) {
	src, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetLoad, path, err)
	}
	defer src.Close()

	img, err := src.Render(dpi)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetLoad, path, err)
	}
	return fit(img, maxWidth), nil
}

// LoadOr is Load that falls back to generated artwork. An empty path goes
// straight to the fallback without a warning.
func LoadOr(path string, dpi, maxWidth int, fallback func() image.Image) image.Image {
	if path == "" {
		return fallback()
	}
	img, err := Load(path, dpi, maxWidth)
	if err != nil {
		logrus.Warnf("[!] %v, using built-in artwork", err)
		return fallback()
	}
	return img
}

func fit(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}

	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
