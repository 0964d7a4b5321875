package config

import (
	"fmt"
	"image/color"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultGoal        = 8800
	DefaultTotalFrames = 40
	DefaultPauseFrames = 12
)

type Config struct {
	Goal       int    `yaml:"goal"`
	Unit       string `yaml:"unit"`
	UnitSuffix string `yaml:"unit_suffix"`

	Background      string  `yaml:"background"`
	Subject         string  `yaml:"subject"`
	TrackPath       string  `yaml:"track"`
	FallbackSize    int     `yaml:"fallback_size"`
	DPI             int     `yaml:"dpi"`
	BackgroundWidth int     `yaml:"background_width"`
	FontPath        string  `yaml:"font"`
	FontSize        float64 `yaml:"font_size"`
	TextInset       int     `yaml:"text_inset"`

	TotalFrames int           `yaml:"total_frames"`
	PauseFrames int           `yaml:"pause_frames"`
	FrameDelay  time.Duration `yaml:"frame_delay"`
	FinalHold   time.Duration `yaml:"final_hold"`
	FramePacing time.Duration `yaml:"frame_pacing"`
	Quality     int           `yaml:"quality"`
	LoopCount   int           `yaml:"loop_count"`
	GIFBackend  string        `yaml:"gif_backend"`
	OutputDir   string        `yaml:"output_dir"`
	ShowStats   bool          `yaml:"show_stats"`

	FFmpeg FFmpegConfig `yaml:"ffmpeg"`
	Log    LogConfig    `yaml:"log"`
	Share  ShareConfig  `yaml:"share"`
}

type FFmpegConfig struct {
	Path            string        `yaml:"path"`
	DownloadURL     string        `yaml:"download_url"`
	CacheDir        string        `yaml:"cache_dir"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

type LogConfig struct {
	Level     string `yaml:"level"`
	JSON      bool   `yaml:"json"`
	File      string `yaml:"file"`
	ToConsole bool   `yaml:"to_console"`
}

// ShareConfig is filled from the environment, never from the YAML file.
type ShareConfig struct {
	ConsumerKey       string   `yaml:"-"`
	ConsumerSecret    string   `yaml:"-"`
	AccessToken       string   `yaml:"-"`
	AccessTokenSecret string   `yaml:"-"`
	Hashtags          []string `yaml:"hashtags"`
}

// EncodeParams describes the stream an encoder backend produces.
type EncodeParams struct {
	Width, Height int
	FrameRate     string
	Codec         string
	Container     string
	Quality       int
	Background    color.RGBA
}

func Default() *Config {
	return &Config{
		Goal:         DefaultGoal,
		Unit:         "units",
		UnitSuffix:   "units",
		FallbackSize: 600,
		DPI:          150,
		FontSize:     22,
		TextInset:    16,
		TotalFrames:  DefaultTotalFrames,
		PauseFrames:  DefaultPauseFrames,
		FrameDelay:   50 * time.Millisecond,
		FinalHold:    1500 * time.Millisecond,
		FramePacing:  10 * time.Millisecond,
		Quality:      10,
		LoopCount:    0,
		GIFBackend:   "native",
		OutputDir:    "output",
		FFmpeg: FFmpegConfig{
			CacheDir:        os.TempDir(),
			DownloadTimeout: 2 * time.Minute,
		},
		Log: LogConfig{
			Level:     "info",
			ToConsole: true,
		},
		Share: ShareConfig{
			Hashtags: []string{"swimming"},
		},
	}
}

// Load reads an optional YAML file on top of Default and then picks up share
// credentials from the environment (and a .env file, if present).
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if os.Getenv("GO_ENVIRONMENT") != "test" {
		// .env is optional
		_ = godotenv.Load()
	}
	cfg.Share.ConsumerKey = getEnv("X_CONSUMER_KEY", cfg.Share.ConsumerKey)
	cfg.Share.ConsumerSecret = getEnv("X_CONSUMER_SECRET", cfg.Share.ConsumerSecret)
	cfg.Share.AccessToken = getEnv("X_ACCESS_TOKEN", cfg.Share.AccessToken)
	cfg.Share.AccessTokenSecret = getEnv("X_ACCESS_TOKEN_SECRET", cfg.Share.AccessTokenSecret)
	cfg.FFmpeg.Path = getEnv("SWIMPROGRESS_FFMPEG", cfg.FFmpeg.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Goal <= 0 {
		return fmt.Errorf("goal must be positive, got %d", c.Goal)
	}
	if c.TotalFrames <= 0 {
		return fmt.Errorf("total_frames must be positive, got %d", c.TotalFrames)
	}
	if c.PauseFrames < 0 {
		return fmt.Errorf("pause_frames must not be negative, got %d", c.PauseFrames)
	}
	if c.FrameDelay < 10*time.Millisecond {
		return fmt.Errorf("frame_delay must be at least 10ms, got %s", c.FrameDelay)
	}
	switch strings.ToLower(c.GIFBackend) {
	case "native", "ffmpeg":
	default:
		return fmt.Errorf("unknown gif_backend %q (expected native|ffmpeg)", c.GIFBackend)
	}
	return nil
}

// Complete reports whether all four OAuth1 values are set.
func (s ShareConfig) Complete() bool {
	return s.ConsumerKey != "" && s.ConsumerSecret != "" && s.AccessToken != "" && s.AccessTokenSecret != ""
}

// FrameRate is the constant rate implied by a frame delay as an exact
// ffmpeg rational: "20/1" for 50ms, "100/3" for 30ms.
func FrameRate(delay time.Duration) string {
	if delay <= 0 {
		return "1/1"
	}
	num, den := int64(time.Second), int64(delay)
	a, b := num, den
	for b != 0 {
		a, b = b, a%b
	}
	return fmt.Sprintf("%d/%d", num/a, den/a)
}

// Clamp keeps a progress value inside [0, goal].
func Clamp(v, goal int) int {
	if v < 0 {
		return 0
	}
	if v > goal {
		return goal
	}
	return v
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
