package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"time"

	"golang.org/x/image/draw"
)

// GIFEncoder encodes in-process with image/gif. The chroma key is palette
// index 0 and the background index, the rest is the Plan 9 palette.
type GIFEncoder struct {
	settings Settings
	palette  color.Palette
	anim     *gif.GIF
}

func (e *GIFEncoder) Begin(_ context.Context, s Settings) error {
	if err := s.validate(); err != nil {
		return err
	}
	e.settings = s

	e.palette = make(color.Palette, 0, 256)
	e.palette = append(e.palette, s.Background)
	e.palette = append(e.palette, palette.Plan9[:255]...)

	e.anim = &gif.GIF{
		LoopCount:       s.LoopCount,
		BackgroundIndex: 0,
		Config: image.Config{
			ColorModel: e.palette,
			Width:      s.Width,
			Height:     s.Height,
		},
	}
	return nil
}

func (e *GIFEncoder) AddFrame(img image.Image, delay time.Duration, disposal byte) error {
	if e.anim == nil {
		return fmt.Errorf("%w: frame added before Begin", ErrEncodingFailure)
	}

	rect := image.Rect(0, 0, e.settings.Width, e.settings.Height)
	frame := image.NewPaletted(rect, e.palette)
	if e.settings.Quality >= 10 {
		draw.FloydSteinberg.Draw(frame, rect, img, img.Bounds().Min)
	} else {
		draw.Draw(frame, rect, img, img.Bounds().Min, draw.Src)
	}

	e.anim.Image = append(e.anim.Image, frame)
	e.anim.Delay = append(e.anim.Delay, centiseconds(delay))
	e.anim.Disposal = append(e.anim.Disposal, disposal)
	return nil
}

func (e *GIFEncoder) Finish(context.Context) ([]byte, error) {
	if e.anim == nil || len(e.anim.Image) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrEncodingFailure)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, e.anim); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailure, err)
	}
	e.anim = nil
	return buf.Bytes(), nil
}

func (e *GIFEncoder) Abort() {
	e.anim = nil
}

func centiseconds(d time.Duration) int {
	cs := int((d + 5*time.Millisecond) / (10 * time.Millisecond))
	if cs < 1 {
		cs = 1
	}
	return cs
}
