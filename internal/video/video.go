package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"time"

	"github.com/ivlev/swimprogress/internal/config"
	"github.com/ivlev/swimprogress/internal/effects"
	"github.com/ivlev/swimprogress/internal/system"
)

var ErrEncodingFailure = errors.New("encoding failure")

// DisposalNone leaves a frame in place for the next one to draw over.
const DisposalNone = gif.DisposalNone

// Settings are fixed for the lifetime of one encode.
type Settings struct {
	Width      int
	Height     int
	FrameDelay time.Duration
	Background color.RGBA
	// LoopCount 0 loops forever, -1 plays once.
	LoopCount int
	Quality   int
}

// Encoder is the contract every export backend follows. Begin starts an
// encode, AddFrame appends in presentation order, Finish is the single point
// where the result becomes available. Abort discards everything.
type Encoder interface {
	Begin(ctx context.Context, s Settings) error
	AddFrame(img image.Image, delay time.Duration, disposal byte) error
	Finish(ctx context.Context) ([]byte, error)
	Abort()
}

// New returns the encoder that implements a negotiated capability.
func New(c system.Capability) (Encoder, error) {
	switch {
	case c.Kind == system.KindGIF && c.Backend == "native":
		return &GIFEncoder{}, nil
	case c.Kind == system.KindGIF && c.Backend == "ffmpeg":
		return &FFmpegGIFEncoder{pipe: ffmpegPipe{path: c.FFmpegPath, format: c.Format, effect: effects.ForKind(false)}}, nil
	case c.Kind == system.KindVideo:
		return &FFmpegVideoEncoder{pipe: ffmpegPipe{path: c.FFmpegPath, format: c.Format, effect: effects.ForKind(true)}}, nil
	}
	return nil, fmt.Errorf("%w: no encoder for %s/%s", ErrEncodingFailure, c.Kind, c.Backend)
}

func (s Settings) params(f system.Format) config.EncodeParams {
	return config.EncodeParams{
		Width:      s.Width,
		Height:     s.Height,
		FrameRate:  config.FrameRate(s.FrameDelay),
		Codec:      f.Codec,
		Container:  f.Container,
		Quality:    s.Quality,
		Background: s.Background,
	}
}

func (s Settings) validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: invalid frame size %dx%d", ErrEncodingFailure, s.Width, s.Height)
	}
	return nil
}
