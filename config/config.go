package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gruntwork-io/go-commons/errors"
	"github.com/joho/godotenv"
	"github.com/robmorgan/clicktrack/logger"
	"github.com/robmorgan/clicktrack/playlist"
	"github.com/robmorgan/clicktrack/speed"
	"github.com/robmorgan/clicktrack/taptempo"
	"gopkg.in/yaml.v3"
)

// DefaultPlaylist is an accented four-beat bar.
const DefaultPlaylist = "0 1.0 1 0.6 1 0.6 1 0.6"

// Config represents options that configure the global behavior of the program
type Config struct {
	Speed SpeedConfig `yaml:"speed"`
	Tap   TapConfig   `yaml:"tap"`

	// Playlist is the beat sequence in stored form, see playlist.Parse.
	Playlist string `yaml:"playlist"`

	// Sounds maps sound ids to wav samples. Without samples ticks are only logged.
	Sounds map[int]string `yaml:"sounds"`

	Log logger.Options `yaml:"log"`

	// OSCAddr is the UDP address of the OSC control server. Empty disables it.
	OSCAddr string `yaml:"osc_addr"`

	// FeedAddr is the HTTP address of the tick feed. Empty disables it.
	FeedAddr string `yaml:"feed_addr"`
}

type SpeedConfig struct {
	Initial float64 `yaml:"initial"`
	Minimum float64 `yaml:"minimum"`
	Maximum float64 `yaml:"maximum"`
}

type TapConfig struct {
	History int           `yaml:"history"`
	Shift   time.Duration `yaml:"shift"`
}

// NewConfig creates a Config with reasonable defaults for real usage
func NewConfig() Config {
	return Config{
		Speed: SpeedConfig{
			Initial: 120,
			Minimum: speed.DefaultMinimum,
			Maximum: speed.DefaultMaximum,
		},
		Tap: TapConfig{
			History: taptempo.DefaultHistory,
			Shift:   taptempo.DefaultShift,
		},
		Playlist: DefaultPlaylist,
		Sounds:   map[int]string{},
		Log: logger.Options{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load builds a Config from the defaults, an optional YAML file at path and CLICKTRACK_* environment variables,
// in that order. A .env file in the working directory is loaded into the environment first if present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.GetProjectLogger().Debug("No .env file loaded, relying on the existing environment")
	}

	cfg := NewConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.WithStackTrace(err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.WithStackTrace(fmt.Errorf("parsing %s: %w", path, err))
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Speed.Initial = envFloat("CLICKTRACK_SPEED", cfg.Speed.Initial)
	cfg.Speed.Minimum = envFloat("CLICKTRACK_MIN_SPEED", cfg.Speed.Minimum)
	cfg.Speed.Maximum = envFloat("CLICKTRACK_MAX_SPEED", cfg.Speed.Maximum)
	cfg.Tap.History = envInt("CLICKTRACK_TAP_HISTORY", cfg.Tap.History)
	cfg.Tap.Shift = envDuration("CLICKTRACK_TAP_SHIFT", cfg.Tap.Shift)
	cfg.Playlist = envStr("CLICKTRACK_PLAYLIST", cfg.Playlist)
	cfg.Log.Level = envStr("CLICKTRACK_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = envStr("CLICKTRACK_LOG_FILE", cfg.Log.File)
	cfg.OSCAddr = envStr("CLICKTRACK_OSC_ADDR", cfg.OSCAddr)
	cfg.FeedAddr = envStr("CLICKTRACK_FEED_ADDR", cfg.FeedAddr)
}

// Validate checks the speed bounds, tap history and playlist.
func (c Config) Validate() error {
	bounds := c.Bounds()
	if err := bounds.Validate(); err != nil {
		return err
	}
	if !bounds.Contains(c.Speed.Initial) {
		return fmt.Errorf("initial speed %v is outside [%v, %v]", c.Speed.Initial, bounds.Minimum, bounds.Maximum)
	}
	if c.Tap.History < 2 {
		return fmt.Errorf("tap history must hold at least 2 taps, got %d", c.Tap.History)
	}
	if _, err := playlist.Parse(c.Playlist); err != nil {
		return err
	}
	return nil
}

// Bounds returns the configured speed range.
func (c Config) Bounds() speed.Bounds {
	return speed.Bounds{Minimum: c.Speed.Minimum, Maximum: c.Speed.Maximum}
}

// Beats returns the parsed playlist. Call Validate first.
func (c Config) Beats() []playlist.BeatSpec {
	beats, _ := playlist.Parse(c.Playlist)
	return beats
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
