package system

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ivlev/swimprogress/internal/config"
)

const cachedBinaryName = "swimprogress-ffmpeg"

// Locator finds a usable ffmpeg binary. Lookup order: configured path, $PATH,
// next to the executable, previously downloaded copy, then a single download
// attempt from DownloadURL.
type Locator struct {
	Configured  string
	DownloadURL string
	CacheDir    string
	Timeout     time.Duration
	Client      *http.Client
}

func NewLocator(cfg config.FFmpegConfig) *Locator {
	return &Locator{
		Configured:  cfg.Path,
		DownloadURL: cfg.DownloadURL,
		CacheDir:    cfg.CacheDir,
		Timeout:     cfg.DownloadTimeout,
		Client:      http.DefaultClient,
	}
}

// Locate returns the path of a verified ffmpeg binary.
func (l *Locator) Locate(ctx context.Context) (string, error) {
	if l.Configured != "" {
		if err := Verify(ctx, l.Configured); err != nil {
			return "", fmt.Errorf("configured ffmpeg %s: %w", l.Configured, err)
		}
		return l.Configured, nil
	}

	candidates := []string{}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		candidates = append(candidates, path)
	}
	candidates = append(candidates, bundledPaths()...)
	if l.CacheDir != "" {
		candidates = append(candidates, filepath.Join(l.CacheDir, cachedBinaryName))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := Verify(ctx, path); err != nil {
			logrus.Debugf("[!] skipping ffmpeg candidate %s: %v", path, err)
			continue
		}
		return path, nil
	}

	if l.DownloadURL == "" {
		return "", fmt.Errorf("ffmpeg not found in PATH and no download_url configured")
	}
	return l.download(ctx)
}

// download makes exactly one attempt to fetch the binary into CacheDir.
func (l *Locator) download(ctx context.Context) (string, error) {
	if l.CacheDir == "" {
		return "", fmt.Errorf("ffmpeg download: no cache_dir configured")
	}
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	logrus.Infof("[*] Downloading ffmpeg from %s", l.DownloadURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.DownloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("ffmpeg download: %w", err)
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ffmpeg download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ffmpeg download: unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(l.CacheDir, 0755); err != nil {
		return "", fmt.Errorf("ffmpeg download: %w", err)
	}
	tmp, err := os.CreateTemp(l.CacheDir, cachedBinaryName+"-*")
	if err != nil {
		return "", fmt.Errorf("ffmpeg download: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("ffmpeg download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("ffmpeg download: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0755); err != nil {
		return "", fmt.Errorf("ffmpeg download: %w", err)
	}

	// A successful fetch still has to behave like ffmpeg
	if err := Verify(ctx, tmp.Name()); err != nil {
		return "", fmt.Errorf("downloaded ffmpeg is not usable: %w", err)
	}

	final := filepath.Join(l.CacheDir, cachedBinaryName)
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("ffmpeg download: %w", err)
	}
	return final, nil
}

// Verify checks that path runs and identifies itself as ffmpeg.
func Verify(ctx context.Context, path string) error {
	out, err := run(ctx, path, "-hide_banner", "-version")
	if err != nil {
		return err
	}
	if !strings.Contains(string(out), "ffmpeg version") {
		return fmt.Errorf("%s does not look like ffmpeg", path)
	}
	return nil
}

// Toolset is what an ffmpeg binary reports it can do.
type Toolset struct {
	Encoders map[string]bool
	Muxers   map[string]bool
	Filters  map[string]bool
}

// Probe lists encoders, muxers and filters of an ffmpeg binary.
func Probe(ctx context.Context, path string) (*Toolset, error) {
	ts := &Toolset{}
	for _, q := range []struct {
		flag string
		dst  *map[string]bool
	}{
		{"-encoders", &ts.Encoders},
		{"-muxers", &ts.Muxers},
		{"-filters", &ts.Filters},
	} {
		out, err := run(ctx, path, "-hide_banner", q.flag)
		if err != nil {
			return nil, fmt.Errorf("ffmpeg %s: %w", q.flag, err)
		}
		*q.dst = parseNames(out)
	}
	return ts, nil
}

// parseNames collects the second column of ffmpeg's listing output. Muxer
// rows may carry several comma separated names.
func parseNames(out []byte) map[string]bool {
	names := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		for _, name := range strings.Split(fields[1], ",") {
			names[name] = true
		}
	}
	return names
}

func run(ctx context.Context, path string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w", filepath.Base(path), strings.Join(args, " "), err)
	}
	return out.Bytes(), nil
}

// bundledPaths lists where a packaged build ships ffmpeg next to the executable.
func bundledPaths() []string {
	execPath, err := os.Executable()
	if err != nil {
		return nil
	}
	execDir := filepath.Dir(execPath)

	name := "ffmpeg"
	if runtime.GOOS == "windows" {
		name = "ffmpeg.exe"
	}
	return []string{
		filepath.Join(execDir, name),
		filepath.Join(execDir, "lib", name),
		filepath.Join(execDir, "..", "Resources", name),
	}
}
