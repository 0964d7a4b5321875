package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"

	"github.com/ivlev/swimprogress/internal/analyzer"
	"github.com/ivlev/swimprogress/internal/config"
	"github.com/ivlev/swimprogress/internal/renderer"
	"github.com/ivlev/swimprogress/internal/system"
	"github.com/ivlev/swimprogress/internal/video"
)

var ErrBusy = errors.New("export already in progress")

type State int32

const (
	StateIdle State = iota
	StatePreparing
	StateRendering
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateRendering:
		return "rendering"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Artifact is a finished export. It is not modified after Export returns,
// except for Path which Save fills in.
type Artifact struct {
	ID       string
	Kind     system.Kind
	Data     []byte
	Filename string
	MIMEType string
	Value    int
	Goal     int
	Frames   int
	Path     string
}

// Save writes the artifact into dir under its suggested filename.
func (a *Artifact) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, a.Filename)
	if err := os.WriteFile(path, a.Data, 0644); err != nil {
		return "", err
	}
	a.Path = path
	return path, nil
}

// Filename builds the suggested artifact name, e.g.
// swim-progress-2200-of-8800units.gif.
func Filename(value, goal int, unitSuffix, ext string) string {
	return fmt.Sprintf("swim-progress-%d-of-%d%s.%s", value, goal, unitSuffix, ext)
}

// ProgressFunc receives the integer percentage of frames rendered.
type ProgressFunc func(percent int)

// Exporter runs one export at a time. A second Export while one is running
// fails with ErrBusy instead of queueing.
type Exporter struct {
	cfg        *config.Config
	negotiator *system.Negotiator
	chroma     *analyzer.ChromaNegotiator
	face       font.Face

	newEncoder func(system.Capability) (video.Encoder, error)

	busy  atomic.Bool
	state atomic.Int32
}

func NewExporter(cfg *config.Config, negotiator *system.Negotiator) *Exporter {
	return &Exporter{
		cfg:        cfg,
		negotiator: negotiator,
		chroma:     analyzer.NewChromaNegotiator(),
		face:       renderer.FaceOrDefault(cfg.FontPath, cfg.FontSize),
		newEncoder: video.New,
	}
}

// State reports the phase of the current or most recent export.
func (e *Exporter) State() State {
	return State(e.state.Load())
}

func (e *Exporter) setState(s State) {
	e.state.Store(int32(s))
}

// Export renders value as an animation of the given kind.
func (e *Exporter) Export(ctx context.Context, kind system.Kind, value int, progress ProgressFunc) (*Artifact, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.busy.Store(false)

	if progress == nil {
		progress = func(int) {}
	}
	value = config.Clamp(value, e.cfg.Goal)

	var timings phaseTimings
	start := time.Now()

	e.setState(StatePreparing)
	sess, capability, err := e.prepare(ctx, kind)
	if err != nil {
		return nil, e.fail(kind, "", err)
	}
	log := logrus.WithFields(logrus.Fields{
		"export":  sess.ID,
		"kind":    kind,
		"backend": capability.Backend,
		"value":   value,
	})
	timings.prepare = time.Since(start)

	enc, err := e.newEncoder(capability)
	if err != nil {
		return nil, e.fail(kind, sess.ID, err)
	}

	b := sess.Compositor.Bounds()
	settings := video.Settings{
		Width:      b.Dx(),
		Height:     b.Dy(),
		FrameDelay: e.cfg.FrameDelay,
		Background: sess.Chroma,
		LoopCount:  e.cfg.LoopCount,
		Quality:    e.cfg.Quality,
	}
	if err := enc.Begin(ctx, settings); err != nil {
		return nil, e.fail(kind, sess.ID, err)
	}
	log.Infof("[*] Rendering %dx%d @ %s fps, %d frames", b.Dx(), b.Dy(), config.FrameRate(e.cfg.FrameDelay), e.cfg.TotalFrames+1)

	e.setState(StateRendering)
	renderStart := time.Now()
	frames, err := e.render(ctx, sess, enc, kind, value, progress)
	if err != nil {
		enc.Abort()
		return nil, e.fail(kind, sess.ID, err)
	}
	timings.render = time.Since(renderStart)

	e.setState(StateFinalizing)
	finishStart := time.Now()
	data, err := enc.Finish(ctx)
	if err != nil {
		return nil, e.fail(kind, sess.ID, err)
	}
	timings.finish = time.Since(finishStart)

	artifact := &Artifact{
		ID:       sess.ID,
		Kind:     kind,
		Data:     data,
		Filename: Filename(value, e.cfg.Goal, e.cfg.UnitSuffix, capability.Format.Ext),
		MIMEType: capability.Format.MIME,
		Value:    value,
		Goal:     e.cfg.Goal,
		Frames:   frames,
	}

	e.setState(StateDone)
	log.Infof("[+] %s ready: %d frames, %d bytes", artifact.Filename, frames, len(data))
	if e.cfg.ShowStats {
		timings.total = time.Since(start)
		timings.report(log, frames)
	}
	return artifact, nil
}

func (e *Exporter) prepare(ctx context.Context, kind system.Kind) (*Session, system.Capability, error) {
	capability, err := e.negotiator.Ensure(ctx, kind)
	if err != nil {
		return nil, system.Capability{}, err
	}

	opts := renderer.Options{
		Goal:  e.cfg.Goal,
		Unit:  e.cfg.Unit,
		Inset: e.cfg.TextInset,
		Face:  e.face,
	}
	sess, err := NewSession(ctx, e.cfg, opts)
	if err != nil {
		return nil, system.Capability{}, err
	}

	if kind == system.KindGIF {
		sess.Chroma = e.chroma.Pick(sess.Background, sess.Subject)
	}
	return sess, capability, nil
}

// render feeds frames 0..TotalFrames to enc, plus PauseFrames copies of the
// last frame for video. It returns the number of frames handed to enc.
func (e *Exporter) render(ctx context.Context, sess *Session, enc video.Encoder, kind system.Kind, value int, progress ProgressFunc) (int, error) {
	total := e.cfg.TotalFrames
	added := 0

	for i := 0; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		at := int(math.Round(float64(i) / float64(total) * float64(value)))
		frame := sess.Compositor.Render(i, at)

		delay := e.cfg.FrameDelay
		repeats := 1
		if i == total {
			switch kind {
			case system.KindGIF:
				delay = e.cfg.FinalHold
			case system.KindVideo:
				repeats += e.cfg.PauseFrames
			}
		}

		for r := 0; r < repeats; r++ {
			if err := enc.AddFrame(frame.Image, delay, video.DisposalNone); err != nil {
				frame.Release()
				return added, err
			}
			added++
		}
		frame.Release()

		progress(int(math.Round(float64(i) / float64(total) * 100)))

		if err := e.pace(ctx); err != nil {
			return added, err
		}
	}
	return added, nil
}

// pace yields between frames so progress reporting keeps up.
func (e *Exporter) pace(ctx context.Context) error {
	if e.cfg.FramePacing <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(e.cfg.FramePacing)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Exporter) fail(kind system.Kind, id string, err error) error {
	e.setState(StateFailed)
	logrus.WithFields(logrus.Fields{
		"export": id,
		"kind":   kind,
	}).Errorf("[!] export failed: %v", err)
	return fmt.Errorf("%s export: %w", kind, err)
}

// UserMessage turns an export error into a short message for display.
func UserMessage(err error) string {
	var unavailable *system.UnavailableError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBusy):
		return "An export is already running. Please wait for it to finish."
	case errors.As(err, &unavailable):
		if unavailable.Kind == system.KindVideo {
			return "Video export is not supported here (no usable ffmpeg video encoder)."
		}
		return "The GIF encoder could not be loaded. Please try again later."
	case errors.Is(err, video.ErrEncodingFailure):
		return "Encoding failed. No file was saved, please try again."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Export was canceled."
	}
	return "Export failed: " + err.Error()
}

type phaseTimings struct {
	prepare time.Duration
	render  time.Duration
	finish  time.Duration
	total   time.Duration
}

func (t phaseTimings) report(log *logrus.Entry, frames int) {
	fields := logrus.Fields{
		"prepare_s": t.prepare.Seconds(),
		"render_s":  t.render.Seconds(),
		"finish_s":  t.finish.Seconds(),
		"total_s":   t.total.Seconds(),
	}
	if t.render > 0 {
		fields["fps"] = float64(frames) / t.render.Seconds()
	}
	if used, pct, err := system.HostMemory(); err == nil {
		fields["mem_used_mib"] = used
		fields["mem_used_pct"] = pct
	}
	log.WithFields(fields).Info("--- [PERFORMANCE REPORT] ---")
}
