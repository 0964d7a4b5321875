package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ivlev/swimprogress/internal/config"
	"github.com/ivlev/swimprogress/internal/effects"
	"github.com/ivlev/swimprogress/internal/system"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var magenta = color.RGBA{255, 0, 255, 255}

func testFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func settings(w, h int) Settings {
	return Settings{
		Width:      w,
		Height:     h,
		FrameDelay: 50 * time.Millisecond,
		Background: magenta,
		LoopCount:  0,
		Quality:    10,
	}
}

func TestGIFEncoder(t *testing.T) {
	ctx := context.Background()
	enc := &GIFEncoder{}
	require.NoError(t, enc.Begin(ctx, settings(16, 8)))

	require.NoError(t, enc.AddFrame(testFrame(16, 8, color.RGBA{255, 255, 255, 255}), 50*time.Millisecond, DisposalNone))
	require.NoError(t, enc.AddFrame(testFrame(16, 8, color.RGBA{0, 0, 0, 255}), 50*time.Millisecond, DisposalNone))
	require.NoError(t, enc.AddFrame(testFrame(16, 8, color.RGBA{0, 0, 0, 255}), 1500*time.Millisecond, gif.DisposalBackground))

	data, err := enc.Finish(ctx)
	require.NoError(t, err)

	g, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Len(t, g.Image, 3)
	assert.Equal(t, []int{5, 5, 150}, g.Delay)
	assert.Equal(t, []byte{DisposalNone, DisposalNone, gif.DisposalBackground}, g.Disposal)
	assert.Equal(t, 0, g.LoopCount)
	assert.Equal(t, byte(0), g.BackgroundIndex)
	assert.Equal(t, 16, g.Config.Width)
	assert.Equal(t, 8, g.Config.Height)

	r, gr, b, _ := g.Image[0].Palette[0].RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0, 0xffff}, [3]uint32{r, gr, b}, "chroma key must be palette index 0")
}

func TestGIFEncoderNearestQuality(t *testing.T) {
	ctx := context.Background()
	s := settings(4, 4)
	s.Quality = 1
	s.LoopCount = -1

	enc := &GIFEncoder{}
	require.NoError(t, enc.Begin(ctx, s))
	require.NoError(t, enc.AddFrame(testFrame(4, 4, color.RGBA{0, 0, 0, 255}), 50*time.Millisecond, DisposalNone))

	data, err := enc.Finish(ctx)
	require.NoError(t, err)

	g, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, -1, g.LoopCount)
}

func TestGIFEncoderMisuse(t *testing.T) {
	ctx := context.Background()
	enc := &GIFEncoder{}

	err := enc.AddFrame(testFrame(2, 2, magenta), time.Millisecond, DisposalNone)
	assert.ErrorIs(t, err, ErrEncodingFailure)

	require.NoError(t, enc.Begin(ctx, settings(2, 2)))
	_, err = enc.Finish(ctx)
	assert.ErrorIs(t, err, ErrEncodingFailure)

	assert.ErrorIs(t, enc.Begin(ctx, settings(0, 2)), ErrEncodingFailure)

	require.NoError(t, enc.Begin(ctx, settings(2, 2)))
	require.NoError(t, enc.AddFrame(testFrame(2, 2, magenta), time.Millisecond, DisposalNone))
	enc.Abort()
	_, err = enc.Finish(ctx)
	assert.ErrorIs(t, err, ErrEncodingFailure)
}

func TestCentiseconds(t *testing.T) {
	assert.Equal(t, 5, centiseconds(50*time.Millisecond))
	assert.Equal(t, 150, centiseconds(1500*time.Millisecond))
	assert.Equal(t, 1, centiseconds(time.Millisecond))
	assert.Equal(t, 2, centiseconds(16*time.Millisecond))
}

// catScript writes stdin to the last argument, standing in for an encode.
const catScript = `#!/bin/sh
for a; do out=$a; done
cat > "$out"
`

const failScript = `#!/bin/sh
cat > /dev/null
echo "encoder exploded" >&2
exit 1
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(body), 0755))
	return path
}

func videoCapability(path string) system.Capability {
	return system.Capability{
		Kind:       system.KindVideo,
		Backend:    "ffmpeg",
		Format:     system.VideoCandidates[0],
		FFmpegPath: path,
	}
}

func TestFFmpegVideoEncoderStreamsFrames(t *testing.T) {
	ctx := context.Background()
	enc, err := New(videoCapability(writeScript(t, catScript)))
	require.NoError(t, err)

	require.NoError(t, enc.Begin(ctx, settings(4, 2)))
	for i := 0; i < 3; i++ {
		require.NoError(t, enc.AddFrame(testFrame(4, 2, magenta), 50*time.Millisecond, DisposalNone))
	}
	// mismatched frames are cropped to the configured size
	require.NoError(t, enc.AddFrame(testFrame(8, 8, magenta), 50*time.Millisecond, DisposalNone))

	data, err := enc.Finish(ctx)
	require.NoError(t, err)
	assert.Len(t, data, 4*4*2*4)
}

// constantGIF is what ffmpeg's gif muxer hands back: every frame with the
// same delay.
func constantGIF(t *testing.T, frames, w, h int) []byte {
	t.Helper()
	pal := color.Palette{magenta, color.RGBA{0, 0, 0, 255}}
	g := &gif.GIF{}
	for i := 0; i < frames; i++ {
		g.Image = append(g.Image, image.NewPaletted(image.Rect(0, 0, w, h), pal))
		g.Delay = append(g.Delay, 5)
		g.Disposal = append(g.Disposal, DisposalNone)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))
	return buf.Bytes()
}

// gifScript stores stdin in raw and answers with a fixed GIF of the given
// frame count.
func gifScript(t *testing.T, frames, w, h int) (path, raw string) {
	t.Helper()
	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.gif")
	require.NoError(t, os.WriteFile(fixture, constantGIF(t, frames, w, h), 0644))
	raw = filepath.Join(dir, "stdin.raw")

	body := fmt.Sprintf("#!/bin/sh\nfor a; do out=$a; done\ncat > '%s'\ncp '%s' \"$out\"\n", raw, fixture)
	return writeScript(t, body), raw
}

func gifCapability(path string) system.Capability {
	return system.Capability{
		Kind:       system.KindGIF,
		Backend:    "ffmpeg",
		Format:     system.GIFFormat,
		FFmpegPath: path,
	}
}

func TestFFmpegGIFEncoderKeepsOneFramePerHold(t *testing.T) {
	ctx := context.Background()
	script, raw := gifScript(t, 3, 2, 2)
	enc, err := New(gifCapability(script))
	require.NoError(t, err)
	require.IsType(t, &FFmpegGIFEncoder{}, enc)

	require.NoError(t, enc.Begin(ctx, settings(2, 2)))
	require.NoError(t, enc.AddFrame(testFrame(2, 2, magenta), 50*time.Millisecond, DisposalNone))
	require.NoError(t, enc.AddFrame(testFrame(2, 2, magenta), 50*time.Millisecond, DisposalNone))
	require.NoError(t, enc.AddFrame(testFrame(2, 2, magenta), 1500*time.Millisecond, DisposalNone))

	data, err := enc.Finish(ctx)
	require.NoError(t, err)

	fed, err := os.ReadFile(raw)
	require.NoError(t, err)
	assert.Len(t, fed, 3*2*2*4, "each frame is written exactly once")

	g, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, g.Image, 3)
	assert.Equal(t, []int{5, 5, 150}, g.Delay)
}

func TestFFmpegGIFEncoderFrameCountMismatch(t *testing.T) {
	ctx := context.Background()
	script, _ := gifScript(t, 2, 2, 2)
	enc, err := New(gifCapability(script))
	require.NoError(t, err)

	require.NoError(t, enc.Begin(ctx, settings(2, 2)))
	require.NoError(t, enc.AddFrame(testFrame(2, 2, magenta), 50*time.Millisecond, DisposalNone))

	_, err = enc.Finish(ctx)
	assert.ErrorIs(t, err, ErrEncodingFailure)
	assert.Contains(t, err.Error(), "wrote 2 frames, want 1")
}

func TestFFmpegGIFEncoderRejectsNonGIFOutput(t *testing.T) {
	ctx := context.Background()
	enc, err := New(gifCapability(writeScript(t, catScript)))
	require.NoError(t, err)

	require.NoError(t, enc.Begin(ctx, settings(2, 2)))
	require.NoError(t, enc.AddFrame(testFrame(2, 2, magenta), 50*time.Millisecond, DisposalNone))

	_, err = enc.Finish(ctx)
	assert.ErrorIs(t, err, ErrEncodingFailure)
}

func TestFFmpegEncoderFailure(t *testing.T) {
	ctx := context.Background()
	enc := &FFmpegVideoEncoder{pipe: ffmpegPipe{
		path:   writeScript(t, failScript),
		format: system.VideoCandidates[0],
		effect: fakeEffect{},
	}}

	require.NoError(t, enc.Begin(ctx, settings(2, 2)))
	output := enc.pipe.output
	_ = enc.AddFrame(testFrame(2, 2, magenta), 50*time.Millisecond, DisposalNone)

	_, err := enc.Finish(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncodingFailure)
	assert.Contains(t, err.Error(), "encoder exploded")

	_, statErr := os.Stat(output)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "temp output must be removed")
}

func TestFFmpegEncoderAbort(t *testing.T) {
	ctx := context.Background()
	enc, err := New(videoCapability(writeScript(t, catScript)))
	require.NoError(t, err)

	require.NoError(t, enc.Begin(ctx, settings(2, 2)))
	output := enc.(*FFmpegVideoEncoder).pipe.output
	require.NoError(t, enc.AddFrame(testFrame(2, 2, magenta), 50*time.Millisecond, DisposalNone))

	enc.Abort()
	enc.Abort()

	_, statErr := os.Stat(output)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))

	_, err = enc.Finish(ctx)
	assert.ErrorIs(t, err, ErrEncodingFailure)
}

func TestBuildFFmpegArgs(t *testing.T) {
	tests := []struct {
		format system.Format
		want   []string
	}{
		{system.VideoCandidates[0], []string{"-c:v", "libvpx-vp9", "-crf", "10", "-b:v", "0"}},
		{system.VideoCandidates[2], []string{"-c:v", "libx264", "-crf", "10", "-preset", "medium", "-movflags", "+faststart"}},
		{system.VideoCandidates[3], []string{"-c:v", "h264_videotoolbox", "-b:v", "1000k"}},
		{system.VideoCandidates[4], []string{"-c:v", "h264_nvenc", "-cq", "10"}},
		{system.GIFFormat, []string{"-c:v", "gif", "-loop", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.format.Codec, func(t *testing.T) {
			p := &ffmpegPipe{format: tt.format, effect: fakeEffect{}, output: "out." + tt.format.Ext}
			p.params = settings(6, 4).params(tt.format)

			args := p.buildFFmpegArgs()
			assert.Subset(t, args, tt.want)
			assert.Contains(t, args, "6x4")
			assert.Contains(t, args, "20/1")
			assert.Equal(t, "out."+tt.format.Ext, args[len(args)-1])
			assert.Equal(t, tt.format.Container, args[len(args)-2])
		})
	}
}

func TestNewUsesFilterForKind(t *testing.T) {
	enc, err := New(gifCapability("ffmpeg"))
	require.NoError(t, err)
	assert.IsType(t, effects.ForKind(false), enc.(*FFmpegGIFEncoder).pipe.effect)

	enc, err = New(videoCapability("ffmpeg"))
	require.NoError(t, err)
	assert.IsType(t, effects.ForKind(true), enc.(*FFmpegVideoEncoder).pipe.effect)
}

func TestNewRejectsUnknownCapability(t *testing.T) {
	_, err := New(system.Capability{Kind: system.KindGIF, Backend: "magic"})
	assert.ErrorIs(t, err, ErrEncodingFailure)
}

type fakeEffect struct{}

func (fakeEffect) GenerateFilter(config.EncodeParams) string { return "null" }
