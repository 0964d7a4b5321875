package engine

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/swimprogress/internal/config"
	"github.com/ivlev/swimprogress/internal/director"
	"github.com/ivlev/swimprogress/internal/renderer"
	"github.com/ivlev/swimprogress/internal/source"
)

// Session is everything one export invocation needs: loaded artwork, the
// track, the negotiated chroma key and a compositor that owns the drawing
// surface. Sessions are never shared between exports.
type Session struct {
	ID         string
	Track      *director.Track
	Background image.Image
	Subject    image.Image
	Chroma     color.RGBA
	Compositor *renderer.Compositor
}

// NewSession loads both layers concurrently. A layer that fails to load is
// replaced by built-in artwork of cfg.FallbackSize.
func NewSession(ctx context.Context, cfg *config.Config, opts renderer.Options) (*Session, error) {
	s := &Session{ID: uuid.NewString(), Chroma: renderer.Matte}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Background = source.LoadOr(cfg.Background, cfg.DPI, cfg.BackgroundWidth, func() image.Image {
			return source.DefaultMedal(cfg.FallbackSize)
		})
		return nil
	})
	g.Go(func() error {
		s.Subject = source.LoadOr(cfg.Subject, cfg.DPI, 0, func() image.Image {
			return source.DefaultSwimmer(cfg.FallbackSize)
		})
		return nil
	})
	g.Go(func() error {
		if cfg.TrackPath == "" {
			return nil
		}
		track, err := director.LoadTrack(cfg.TrackPath)
		if err != nil {
			return fmt.Errorf("load track: %w", err)
		}
		s.Track = track
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.Track == nil {
		track, err := fitTrack(s.Background, s.Subject)
		if err != nil {
			return nil, err
		}
		s.Track = track
	}

	c, err := renderer.NewCompositor(s.Track, s.Background, s.Subject, opts)
	if err != nil {
		return nil, err
	}
	s.Compositor = c
	return s, nil
}

// fitTrack picks the built-in track for standard medal artwork and otherwise
// lays a circular track over the background, centering the subject on the
// path.
func fitTrack(background, subject image.Image) (*director.Track, error) {
	b := background.Bounds()
	var offset director.Offset
	if subject != nil {
		sb := subject.Bounds()
		offset = director.Offset{DX: float64(sb.Dx()) / 2, DY: float64(sb.Dy()) / 2}
	}

	if b.Dx() == director.DefaultArtworkSize && b.Dy() == director.DefaultArtworkSize {
		if def, err := director.LoadTrack(""); err == nil && def.CenterOffset == offset {
			return def, nil
		}
	}
	return director.NewDirector(b.Dx(), b.Dy()).GenerateTrack(offset)
}
