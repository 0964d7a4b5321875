package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/image/draw"

	"github.com/ivlev/swimprogress/internal/config"
	"github.com/ivlev/swimprogress/internal/effects"
	"github.com/ivlev/swimprogress/internal/system"
)

// FFmpegVideoEncoder streams frames into ffmpeg and reads the finished file
// back on Finish.
type FFmpegVideoEncoder struct {
	pipe ffmpegPipe
}

func (e *FFmpegVideoEncoder) Begin(ctx context.Context, s Settings) error {
	return e.pipe.start(ctx, s)
}

// AddFrame writes the frame once. Video timing comes from the constant input
// rate, so delay only matters for GIF backends.
func (e *FFmpegVideoEncoder) AddFrame(img image.Image, _ time.Duration, _ byte) error {
	return e.pipe.write(img)
}

func (e *FFmpegVideoEncoder) Finish(ctx context.Context) ([]byte, error) {
	return e.pipe.finish(ctx)
}

func (e *FFmpegVideoEncoder) Abort() {
	e.pipe.abort()
}

// FFmpegGIFEncoder quantizes through palettegen/paletteuse. ffmpeg sees a
// constant rate stream with one input frame per AddFrame; the per-frame
// delays are written into the finished GIF afterwards.
type FFmpegGIFEncoder struct {
	pipe   ffmpegPipe
	delays []int
}

func (e *FFmpegGIFEncoder) Begin(ctx context.Context, s Settings) error {
	e.delays = nil
	return e.pipe.start(ctx, s)
}

// AddFrame writes the frame once and records its delay. Disposal is left to
// ffmpeg, whose frame differencing depends on its own disposal choice.
func (e *FFmpegGIFEncoder) AddFrame(img image.Image, delay time.Duration, _ byte) error {
	if err := e.pipe.write(img); err != nil {
		return err
	}
	e.delays = append(e.delays, centiseconds(delay))
	return nil
}

func (e *FFmpegGIFEncoder) Finish(ctx context.Context) ([]byte, error) {
	data, err := e.pipe.finish(ctx)
	if err != nil {
		return nil, err
	}
	delays := e.delays
	e.delays = nil
	return retime(data, delays)
}

func (e *FFmpegGIFEncoder) Abort() {
	e.delays = nil
	e.pipe.abort()
}

// retime rewrites the frame delays of an encoded GIF. The frame count must
// match what was fed in.
func retime(data []byte, delays []int) ([]byte, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode ffmpeg gif: %v", ErrEncodingFailure, err)
	}
	if len(g.Image) != len(delays) {
		return nil, fmt.Errorf("%w: ffmpeg wrote %d frames, want %d", ErrEncodingFailure, len(g.Image), len(delays))
	}
	copy(g.Delay, delays)

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailure, err)
	}
	return buf.Bytes(), nil
}

// ffmpegPipe owns one ffmpeg process reading raw RGBA from stdin.
type ffmpegPipe struct {
	path   string
	format system.Format
	effect effects.Effect

	params config.EncodeParams
	loop   int
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	output string
	frame  *image.RGBA
}

func (p *ffmpegPipe) start(ctx context.Context, s Settings) error {
	if err := s.validate(); err != nil {
		return err
	}
	if p.path == "" {
		return fmt.Errorf("%w: no ffmpeg binary", ErrEncodingFailure)
	}
	p.params = s.params(p.format)
	p.loop = s.LoopCount

	out, err := os.CreateTemp("", "swimprogress-*."+p.format.Ext)
	if err != nil {
		return fmt.Errorf("%w: temp output: %v", ErrEncodingFailure, err)
	}
	p.output = out.Name()
	out.Close()

	args := p.buildFFmpegArgs()
	logrus.Debugf("[*] ffmpeg %v", args)

	p.stderr.Reset()
	p.cmd = exec.CommandContext(ctx, p.path, args...)
	p.cmd.Stderr = &p.stderr

	p.stdin, err = p.cmd.StdinPipe()
	if err != nil {
		os.Remove(p.output)
		return fmt.Errorf("%w: stdin pipe: %v", ErrEncodingFailure, err)
	}
	if err := p.cmd.Start(); err != nil {
		os.Remove(p.output)
		p.cmd = nil
		return fmt.Errorf("%w: ffmpeg start: %v", ErrEncodingFailure, err)
	}
	return nil
}

func (p *ffmpegPipe) buildFFmpegArgs() []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.params.Width, p.params.Height),
		"-framerate", p.params.FrameRate,
		"-i", "-",
		"-vf", p.effect.GenerateFilter(p.params),
	}

	q := strconv.Itoa(p.params.Quality)
	switch p.params.Codec {
	case "gif":
		args = append(args, "-c:v", "gif", "-loop", strconv.Itoa(p.loop))
	case "libvpx-vp9", "libvpx":
		args = append(args, "-c:v", p.params.Codec, "-crf", q, "-b:v", "0")
	case "h264_videotoolbox":
		args = append(args, "-c:v", p.params.Codec, "-b:v", strconv.Itoa(p.params.Quality*100)+"k")
	case "h264_nvenc":
		args = append(args, "-c:v", p.params.Codec, "-cq", q)
	default: // libx264
		args = append(args, "-c:v", p.params.Codec, "-crf", q, "-preset", "medium")
	}
	if p.params.Container == "mp4" {
		args = append(args, "-movflags", "+faststart")
	}

	args = append(args, "-f", p.params.Container, p.output)
	return args
}

func (p *ffmpegPipe) write(img image.Image) error {
	if p.cmd == nil {
		return fmt.Errorf("%w: frame added before Begin", ErrEncodingFailure)
	}
	if err := p.writeRawRGBA(p.stdin, img); err != nil {
		return fmt.Errorf("%w: write frame: %v", ErrEncodingFailure, err)
	}
	return nil
}

// writeRawRGBA writes exactly width*height*4 bytes, converting or cropping
// frames that do not match the configured size.
func (p *ffmpegPipe) writeRawRGBA(w io.Writer, img image.Image) error {
	want := image.Rect(0, 0, p.params.Width, p.params.Height)
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect != want || rgba.Stride != want.Dx()*4 {
		if p.frame == nil {
			p.frame = image.NewRGBA(want)
		}
		draw.Draw(p.frame, want, img, img.Bounds().Min, draw.Src)
		rgba = p.frame
	}
	_, err := w.Write(rgba.Pix)
	return err
}

func (p *ffmpegPipe) finish(ctx context.Context) ([]byte, error) {
	if p.cmd == nil {
		return nil, fmt.Errorf("%w: Finish before Begin", ErrEncodingFailure)
	}
	defer p.cleanup()

	closeErr := p.stdin.Close()
	if err := multierr.Append(closeErr, p.cmd.Wait()); err != nil {
		if ctx.Err() != nil {
			err = multierr.Append(err, ctx.Err())
		}
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", ErrEncodingFailure, err, bytes.TrimSpace(p.stderr.Bytes()))
	}

	data, err := os.ReadFile(p.output)
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", ErrEncodingFailure, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no output", ErrEncodingFailure)
	}
	return data, nil
}

func (p *ffmpegPipe) abort() {
	if p.cmd == nil {
		return
	}
	defer p.cleanup()

	err := p.stdin.Close()
	if p.cmd.Process != nil {
		err = multierr.Append(err, p.cmd.Process.Kill())
	}
	// Wait reports the kill; only the pipe and kill errors are interesting.
	_ = p.cmd.Wait()
	if err != nil {
		logrus.Debugf("[!] ffmpeg abort: %v", err)
	}
}

func (p *ffmpegPipe) cleanup() {
	if p.output != "" {
		if err := os.Remove(p.output); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("[!] failed to remove %s: %v", p.output, err)
		}
	}
	p.cmd = nil
	p.stdin = nil
	p.output = ""
	p.frame = nil
}
