package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file probed in the working directory when
// no explicit path is supplied.
const DefaultFileName = "sessiontrace.yaml"

// EnvPrefix namespaces environment variable overrides.
const EnvPrefix = "SESSIONTRACE_"

// Config captures the user-adjustable knobs for the recording engine.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Recorders RecordersConfig `yaml:"recorders"`
	Screen    ScreenConfig    `yaml:"screen"`
	Events    EventsConfig    `yaml:"events"`
	Log       LogConfig       `yaml:"log"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Source indicates where the configuration originated (defaults or a
	// file path).
	Source string `yaml:"-"`
}

// StorageConfig controls where sessions live and the disk budget around
// them.
type StorageConfig struct {
	Path         string `yaml:"path"`
	MinFreeGB    int    `yaml:"min_free_gb"`
	MaxStorageGB int    `yaml:"max_storage_gb"`
}

// RecordersConfig toggles capture modalities for new sessions. The hook
// fields name the external producer commands that emit input samples as
// JSON lines on stdout; an enabled input recorder with no hook command is
// skipped with a warning rather than failing the session.
type RecordersConfig struct {
	Keyboard     bool   `yaml:"keyboard"`
	Mouse        bool   `yaml:"mouse"`
	Screen       bool   `yaml:"screen"`
	Audio        bool   `yaml:"audio"`
	KeyboardHook string `yaml:"keyboard_hook"`
	MouseHook    string `yaml:"mouse_hook"`
}

// ScreenConfig holds the frozen capture settings for the screen pipeline.
type ScreenConfig struct {
	Quality   string `yaml:"quality"`
	FPS       int    `yaml:"fps"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	BatchSize int    `yaml:"batch_size"`
}

// EventsConfig tunes the input capture queues.
type EventsConfig struct {
	QueueCapacity         int `yaml:"queue_capacity"`
	PollTimeoutMillis     int `yaml:"poll_timeout_ms"`
	HealthIntervalSeconds int `yaml:"health_interval_seconds"`
}

// LogConfig tunes the event log flush policy.
type LogConfig struct {
	FlushCount           int `yaml:"flush_count"`
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`
}

// LoggingConfig defines log verbosity and formatting.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the baseline configuration used when no overrides are
// supplied.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Path:         "~/.sessiontrace/sessions",
			MinFreeGB:    1,
			MaxStorageGB: 10,
		},
		Recorders: RecordersConfig{
			Keyboard: true,
			Mouse:    true,
			Screen:   true,
			Audio:    false,
		},
		Screen: ScreenConfig{
			Quality:   "high",
			FPS:       30,
			BatchSize: 500,
		},
		Events: EventsConfig{
			QueueCapacity:         10000,
			PollTimeoutMillis:     100,
			HealthIntervalSeconds: 5,
		},
		Log: LogConfig{
			FlushCount:           100,
			FlushIntervalSeconds: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Source: "<defaults>",
	}
}

// Load reads configuration from disk if present, applies environment
// overrides, and validates the result. When path is empty the loader
// attempts ./sessiontrace.yaml but tolerates a missing file.
func Load(path string) (Config, error) {
	cfg := Default()

	candidate := strings.TrimSpace(path)
	explicit := candidate != ""
	if !explicit {
		candidate = DefaultFileName
	}

	data, err := os.ReadFile(candidate)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(strings.NewReader(string(data)))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %q: %w", candidate, err)
		}
		cfg.Source = candidate
	case errors.Is(err, os.ErrNotExist):
		if explicit {
			return cfg, fmt.Errorf("config file %q not found", candidate)
		}
	default:
		return cfg, fmt.Errorf("read config file %q: %w", candidate, err)
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays SESSIONTRACE_* environment variables onto the config.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvPrefix + "STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if v := getenv(EnvPrefix + "KEYBOARD_HOOK"); v != "" {
		c.Recorders.KeyboardHook = v
	}
	if v := getenv(EnvPrefix + "MOUSE_HOOK"); v != "" {
		c.Recorders.MouseHook = v
	}
	if v := getenv(EnvPrefix + "SCREEN_QUALITY"); v != "" {
		c.Screen.Quality = strings.ToLower(v)
	}
	if v := getenv(EnvPrefix + "SCREEN_FPS"); v != "" {
		if fps, err := strconv.Atoi(v); err == nil {
			c.Screen.FPS = fps
		}
	}
}

// Validate ensures essential configuration values are present and sensible.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path must not be empty")
	}
	if c.Storage.MinFreeGB < 0 {
		return errors.New("storage.min_free_gb must not be negative")
	}
	if c.Storage.MaxStorageGB <= 0 {
		return errors.New("storage.max_storage_gb must be positive")
	}

	if _, err := NormalizeLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := NormalizeFormat(c.Logging.Format); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(c.Screen.Quality)) {
	case "high", "low":
	default:
		return fmt.Errorf("screen.quality must be \"high\" or \"low\", got %q", c.Screen.Quality)
	}
	if c.Screen.FPS <= 0 {
		return errors.New("screen.fps must be positive")
	}
	if c.Screen.Width < 0 || c.Screen.Height < 0 {
		return errors.New("screen resolution must not be negative")
	}
	if c.Screen.BatchSize <= 0 {
		return errors.New("screen.batch_size must be positive")
	}

	if c.Events.QueueCapacity <= 0 {
		return errors.New("events.queue_capacity must be positive")
	}
	if c.Events.PollTimeoutMillis <= 0 {
		return errors.New("events.poll_timeout_ms must be positive")
	}
	if c.Events.HealthIntervalSeconds <= 0 {
		return errors.New("events.health_interval_seconds must be positive")
	}

	if c.Log.FlushCount <= 0 {
		return errors.New("log.flush_count must be positive")
	}
	if c.Log.FlushIntervalSeconds <= 0 {
		return errors.New("log.flush_interval_seconds must be positive")
	}

	return nil
}

// StoragePath expands a leading ~ in the configured storage path.
func (c Config) StoragePath() (string, error) {
	path := strings.TrimSpace(c.Storage.Path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/")), nil
	}
	return path, nil
}

// MinFreeBytes reports the free-disk preflight threshold in bytes.
func (c Config) MinFreeBytes() uint64 {
	return uint64(c.Storage.MinFreeGB) * 1024 * 1024 * 1024
}

// NormalizeLogLevel lower-cases and validates a log level string.
func NormalizeLogLevel(level string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "debug", "info", "warn", "error":
		return normalized, nil
	default:
		return "", fmt.Errorf("unsupported log level %q", level)
	}
}

// NormalizeFormat lower-cases and validates a log format string.
func NormalizeFormat(format string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(format))
	switch normalized {
	case "json", "console", "text":
		return normalized, nil
	default:
		return "", fmt.Errorf("unsupported log format %q", format)
	}
}
