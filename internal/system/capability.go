package system

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var ErrEncoderUnavailable = errors.New("encoder unavailable")

type Kind string

const (
	KindGIF   Kind = "gif"
	KindVideo Kind = "video"
)

// Format is an output container/codec pair.
type Format struct {
	Container string
	Codec     string
	Ext       string
	MIME      string
}

var GIFFormat = Format{Container: "gif", Codec: "gif", Ext: "gif", MIME: "image/gif"}

// VideoCandidates in order of preference.
var VideoCandidates = []Format{
	{Container: "webm", Codec: "libvpx-vp9", Ext: "webm", MIME: "video/webm"},
	{Container: "webm", Codec: "libvpx", Ext: "webm", MIME: "video/webm"},
	{Container: "mp4", Codec: "libx264", Ext: "mp4", MIME: "video/mp4"},
	{Container: "mp4", Codec: "h264_videotoolbox", Ext: "mp4", MIME: "video/mp4"},
	{Container: "mp4", Codec: "h264_nvenc", Ext: "mp4", MIME: "video/mp4"},
}

// FormatForExt finds the output format for a file extension, with or
// without the leading dot.
func FormatForExt(ext string) (Format, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == GIFFormat.Ext {
		return GIFFormat, true
	}
	for _, f := range VideoCandidates {
		if f.Ext == ext {
			return f, true
		}
	}
	return Format{}, false
}

// Capability is a confirmed encoder backend.
type Capability struct {
	Kind       Kind
	Backend    string
	Format     Format
	FFmpegPath string
}

// UnavailableError explains why no encoder could be confirmed for a kind.
type UnavailableError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s encoder unavailable: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s encoder unavailable: %s", e.Kind, e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrEncoderUnavailable }

// Negotiator confirms encoder availability once per process and kind.
// Concurrent callers share one probe; failures are not remembered.
type Negotiator struct {
	locator    *Locator
	gifBackend string

	group singleflight.Group
	mu    sync.Mutex
	ready map[Kind]Capability
}

func NewNegotiator(locator *Locator, gifBackend string) *Negotiator {
	return &Negotiator{
		locator:    locator,
		gifBackend: strings.ToLower(gifBackend),
		ready:      make(map[Kind]Capability),
	}
}

// Ensure returns a ready capability for kind or an *UnavailableError.
func (n *Negotiator) Ensure(ctx context.Context, kind Kind) (Capability, error) {
	n.mu.Lock()
	capability, ok := n.ready[kind]
	n.mu.Unlock()
	if ok {
		return capability, nil
	}

	v, err, _ := n.group.Do(string(kind), func() (any, error) {
		return n.probe(ctx, kind)
	})
	if err != nil {
		return Capability{}, err
	}

	capability = v.(Capability)
	n.mu.Lock()
	n.ready[kind] = capability
	n.mu.Unlock()
	return capability, nil
}

func (n *Negotiator) probe(ctx context.Context, kind Kind) (Capability, error) {
	switch kind {
	case KindGIF:
		if n.gifBackend != "ffmpeg" {
			return Capability{Kind: kind, Backend: "native", Format: GIFFormat}, nil
		}
		path, ts, err := n.toolset(ctx, kind)
		if err != nil {
			return Capability{}, err
		}
		for _, need := range []string{"palettegen", "paletteuse"} {
			if !ts.Filters[need] {
				return Capability{}, &UnavailableError{Kind: kind, Reason: "ffmpeg lacks filter " + need}
			}
		}
		if !ts.Encoders["gif"] || !ts.Muxers["gif"] {
			return Capability{}, &UnavailableError{Kind: kind, Reason: "ffmpeg lacks gif encoder"}
		}
		return Capability{Kind: kind, Backend: "ffmpeg", Format: GIFFormat, FFmpegPath: path}, nil

	case KindVideo:
		path, ts, err := n.toolset(ctx, kind)
		if err != nil {
			return Capability{}, err
		}
		for _, f := range VideoCandidates {
			if ts.Encoders[f.Codec] && ts.Muxers[f.Container] {
				logrus.Infof("[*] Video format: %s/%s", f.Container, f.Codec)
				return Capability{Kind: kind, Backend: "ffmpeg", Format: f, FFmpegPath: path}, nil
			}
		}
		return Capability{}, &UnavailableError{Kind: kind, Reason: "no supported container/codec combination"}

	default:
		return Capability{}, &UnavailableError{Kind: kind, Reason: "unknown export kind"}
	}
}

func (n *Negotiator) toolset(ctx context.Context, kind Kind) (string, *Toolset, error) {
	if n.locator == nil {
		return "", nil, &UnavailableError{Kind: kind, Reason: "no ffmpeg locator"}
	}
	path, err := n.locator.Locate(ctx)
	if err != nil {
		return "", nil, &UnavailableError{Kind: kind, Reason: "ffmpeg not available", Err: err}
	}
	ts, err := Probe(ctx, path)
	if err != nil {
		return "", nil, &UnavailableError{Kind: kind, Reason: "ffmpeg probe failed", Err: err}
	}
	return path, ts, nil
}
