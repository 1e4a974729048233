package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Separation models accepted by the analysis backend.
const (
	ModelSixStem      = "htdemucs_6s"
	ModelHighFidelity = "htdemucs_ft"
)

// Environment variables that override values from the config file.
const (
	EnvBackendURL   = "STEMDECK_BACKEND_URL"
	EnvBackendToken = "STEMDECK_BACKEND_TOKEN"
	EnvModel        = "STEMDECK_MODEL"
	EnvDBPath       = "STEMDECK_DB_PATH"
	EnvLogLevel     = "STEMDECK_LOG_LEVEL"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Backend  BackendConfig  `toml:"backend"`
	Database DatabaseConfig `toml:"database"`
	Mixer    MixerConfig    `toml:"mixer"`
	Watch    WatchConfig    `toml:"watch"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// BackendConfig locates the analysis service.
type BackendConfig struct {
	URL            string `toml:"url"`
	Token          string `toml:"token"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the request timeout for non-streaming calls.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// MixerConfig controls the stem player.
type MixerConfig struct {
	Player              string `toml:"player"`
	MpvPath             string `toml:"mpv_path"`
	SocketDir           string `toml:"socket_dir"`
	DriftToleranceMS    int    `toml:"drift_tolerance_ms"`
	ReconcileIntervalMS int    `toml:"reconcile_interval_ms"`
}

// DriftTolerance is the largest allowed stem offset from main before a hard seek.
func (m MixerConfig) DriftTolerance() time.Duration {
	if m.DriftToleranceMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(m.DriftToleranceMS) * time.Millisecond
}

// ReconcileInterval is the cadence of drift checks while playing.
func (m MixerConfig) ReconcileInterval() time.Duration {
	if m.ReconcileIntervalMS <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(m.ReconcileIntervalMS) * time.Millisecond
}

// WatchConfig controls drop-folder and batch analysis.
type WatchConfig struct {
	Extensions []string `toml:"extensions"`
	Workers    int      `toml:"workers"`
	RateLimit  float64  `toml:"rate_limit"`
}

// Accepts reports whether name has one of the configured audio extensions.
func (w WatchConfig) Accepts(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range w.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// ServerConfig contains HTTP server settings for the fixture replay backend.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig sets the log level and the file used while the TUI owns the terminal.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv loads variables from the given dotenv files (default ".env") into the
// process environment. Missing files are ignored and existing variables win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values from STEMDECK_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvBackendURL); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv(EnvBackendToken); v != "" {
		c.Backend.Token = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Backend.Model = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: backend url %q", ErrInvalidConfig, c.Backend.URL)
	}
	if err := ValidateModel(c.Backend.Model); err != nil {
		return err
	}
	switch c.Mixer.Player {
	case "mpv", "null":
	default:
		return fmt.Errorf("%w: mixer player %q", ErrInvalidConfig, c.Mixer.Player)
	}
	if c.Watch.Workers < 0 || c.Watch.RateLimit < 0 {
		return fmt.Errorf("%w: watch workers and rate_limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ValidateModel reports [ErrInvalidModel] for anything but the supported separation models.
func ValidateModel(model string) error {
	switch model {
	case ModelSixStem, ModelHighFidelity:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidModel, model)
	}
}
