package renderer

import (
	"errors"
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/ivlev/swimprogress/internal/config"
	"github.com/ivlev/swimprogress/internal/director"
	"github.com/ivlev/swimprogress/internal/system"
)

var (
	Matte     = color.RGBA{255, 255, 255, 255}
	TextColor = color.RGBA{20, 33, 61, 255}
	shadow    = color.RGBA{0, 0, 0, 110}
)

// Options controls the overlay layer of a Compositor.
type Options struct {
	Goal  int
	Unit  string
	Inset int
	Face  font.Face
	// TextShadow is for on-screen preview only. Shadows bleed into the
	// palette of compressed formats, so exported frames never use it.
	TextShadow bool
}

// Frame is one rendered still. Image is owned by the frame until Release.
type Frame struct {
	Index       int
	Value       int
	Percent     int
	PercentText string
	Label       string
	Image       *image.RGBA
}

// Release hands the pixel buffer back to the frame pool.
func (f *Frame) Release() {
	if f == nil || f.Image == nil {
		return
	}
	system.PutImage(f.Image)
	f.Image = nil
}

// Compositor draws frames onto a single off-screen canvas sized to the
// background's natural resolution. Render calls are serialized.
type Compositor struct {
	mu         sync.Mutex
	track      *director.Track
	background image.Image
	subject    image.Image
	canvas     *image.RGBA
	opts       Options
}

func NewCompositor(track *director.Track, background, subject image.Image, opts Options) (*Compositor, error) {
	if track == nil {
		return nil, errors.New("compositor: nil track")
	}
	if background == nil {
		return nil, errors.New("compositor: nil background")
	}
	if opts.Goal <= 0 {
		opts.Goal = config.DefaultGoal
	}
	if opts.Face == nil {
		opts.Face = FaceOrDefault("", 22)
	}

	b := background.Bounds()
	return &Compositor{
		track:      track,
		background: background,
		subject:    subject,
		canvas:     image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy())),
		opts:       opts,
	}, nil
}

// Bounds of every frame this compositor produces.
func (c *Compositor) Bounds() image.Rectangle {
	return c.canvas.Rect
}

// Render draws the frame for a progress value and returns a snapshot of it.
func (c *Compositor) Render(index, value int) *Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	value = config.Clamp(value, c.opts.Goal)
	progress := Normalize(value, c.opts.Goal)

	bounds := c.canvas.Bounds()
	draw.Draw(c.canvas, bounds, image.NewUniform(Matte), image.Point{}, draw.Src)

	bg := c.background.Bounds()
	draw.Draw(c.canvas, image.Rect(0, 0, bg.Dx(), bg.Dy()), c.background, bg.Min, draw.Over)

	if c.subject != nil {
		pos := PositionAt(c.track, progress)
		origin := image.Pt(
			int(math.Round(pos.X-c.track.CenterOffset.DX)),
			int(math.Round(pos.Y-c.track.CenterOffset.DY)),
		)
		sb := c.subject.Bounds()
		draw.Draw(c.canvas, image.Rectangle{Min: origin, Max: origin.Add(sb.Size())}, c.subject, sb.Min, draw.Over)
	}

	percent, percentText, label := OverlayText(value, c.opts.Goal, c.opts.Unit)

	baseline := bounds.Dy() - c.opts.Inset
	c.drawText(label, c.opts.Inset, baseline)

	width := font.MeasureString(c.opts.Face, percentText).Ceil()
	c.drawText(percentText, bounds.Dx()-c.opts.Inset-width, baseline)

	snap := system.GetImage(c.canvas.Rect)
	copy(snap.Pix, c.canvas.Pix)

	return &Frame{
		Index:       index,
		Value:       value,
		Percent:     percent,
		PercentText: percentText,
		Label:       label,
		Image:       snap,
	}
}

func (c *Compositor) drawText(s string, x, y int) {
	d := &font.Drawer{
		Dst:  c.canvas,
		Face: c.opts.Face,
	}
	if c.opts.TextShadow {
		d.Src = image.NewUniform(shadow)
		d.Dot = fixed.P(x+2, y+2)
		d.DrawString(s)
	}
	d.Src = image.NewUniform(TextColor)
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}
