package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override empty config values.
const (
	EnvSaveFolder    = "FLIGHTREC_SAVE_FOLDER"
	EnvServerAddress = "FLIGHTREC_SERVER_ADDRESS"
	EnvSimProvider   = "FLIGHTREC_SIM_PROVIDER"
)

// Config holds the application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	DB      DBConfig      `yaml:"db"`
	Server  ServerConfig  `yaml:"server"`
	Sim     SimConfig     `yaml:"sim"`
	Replay  ReplayConfig  `yaml:"replay"`
	Storage StorageConfig `yaml:"storage"`
	Dialog  DialogConfig  `yaml:"dialog"`
}

// SimConfig holds settings for the simulation connection.
type SimConfig struct {
	Provider   string          `yaml:"provider"` // "mock"
	Mock       MockSimConfig   `yaml:"mock"`
	Thresholds ThresholdConfig `yaml:"thresholds"`
}

// MockSimConfig holds settings for the mock simulation.
type MockSimConfig struct {
	StartLat       float64  `yaml:"start_lat"`
	StartLon       float64  `yaml:"start_lon"`
	StartAlt       float64  `yaml:"start_alt"`
	StartHeading   *float64 `yaml:"start_heading"`
	TickRate       Duration `yaml:"tick_rate"`
	ConnectDelay   Duration `yaml:"connect_delay"`
	DurationParked Duration `yaml:"duration_parked"`
	DurationTaxi   Duration `yaml:"duration_taxi"`
}

// ThresholdConfig holds the live-versus-replay deviation limits.
type ThresholdConfig struct {
	Distance Distance `yaml:"distance"`
	Altitude float64  `yaml:"altitude_ft"`
	Heading  float64  `yaml:"heading_deg"`
}

// ReplayConfig holds playback settings.
type ReplayConfig struct {
	Rate             float64  `yaml:"rate"`
	ThrottleInterval Duration `yaml:"throttle_interval"`
	StopTimeout      Duration `yaml:"stop_timeout"`
}

// StorageConfig holds settings for saved recordings.
type StorageConfig struct {
	SaveFolder string   `yaml:"save_folder"`
	Retention  Duration `yaml:"retention"`
}

// DialogConfig holds settings for the headless dialog.
type DialogConfig struct {
	AutoConfirm bool `yaml:"auto_confirm"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path       string `yaml:"path"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	heading := 250.0
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:       "./logs/server.log",
				Level:      "INFO",
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
			Requests: LogSettings{
				Path:       "./logs/requests.log",
				Level:      "INFO",
				MaxSizeMB:  5,
				MaxBackups: 1,
				MaxAgeDays: 7,
			},
		},
		DB: DBConfig{
			Path: "./data/flightrec.db",
		},
		Server: ServerConfig{
			Address: "localhost:1921",
		},
		Sim: SimConfig{
			Provider: "mock",
			Mock: MockSimConfig{
				StartLat:       47.4647,
				StartLon:       8.5492,
				StartAlt:       1416.0,
				StartHeading:   &heading,
				TickRate:       Duration(50 * time.Millisecond),
				ConnectDelay:   Duration(2 * time.Second),
				DurationParked: Duration(30 * time.Second),
				DurationTaxi:   Duration(60 * time.Second),
			},
			Thresholds: ThresholdConfig{
				Distance: Distance(100),
				Altitude: 50,
				Heading:  10,
			},
		},
		Replay: ReplayConfig{
			Rate:             1.0,
			ThrottleInterval: Duration(500 * time.Millisecond),
			StopTimeout:      Duration(5 * time.Second),
		},
		Storage: StorageConfig{
			SaveFolder: "./recordings",
			Retention:  Duration(0),
		},
		Dialog: DialogConfig{
			AutoConfirm: true,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// A .env file next to the config is read first; its variables fill values
// the yaml leaves empty but are never written back to disk.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DB.Path = expandPath(cfg.DB.Path)
	cfg.Storage.SaveFolder = expandPath(cfg.Storage.SaveFolder)
	cfg.Log.Server.Path = expandPath(cfg.Log.Server.Path)
	cfg.Log.Requests.Path = expandPath(cfg.Log.Requests.Path)

	if cfg.Storage.SaveFolder == "" {
		cfg.Storage.SaveFolder = os.Getenv(EnvSaveFolder)
	}
	if cfg.Server.Address == "" {
		if addr := os.Getenv(EnvServerAddress); addr != "" {
			cfg.Server.Address = addr
		}
	}
	if cfg.Sim.Provider == "" {
		cfg.Sim.Provider = os.Getenv(EnvSimProvider)
	}
}

var windowsEnvVar = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_]*)%`)

// expandPath resolves $VAR, ${VAR} and %VAR% references.
func expandPath(p string) string {
	p = windowsEnvVar.ReplaceAllStringFunc(p, func(m string) string {
		return os.Getenv(strings.Trim(m, "%"))
	})
	return os.ExpandEnv(p)
}

// Validate checks values that would break the replay engine.
func (c *Config) Validate() error {
	if c.Replay.Rate <= 0 {
		return fmt.Errorf("invalid replay rate %v: must be positive", c.Replay.Rate)
	}
	if c.Replay.ThrottleInterval < 0 {
		return fmt.Errorf("invalid throttle_interval %v: must not be negative", time.Duration(c.Replay.ThrottleInterval))
	}
	switch c.Sim.Provider {
	case "mock", "":
	default:
		return fmt.Errorf("unsupported sim provider '%s'", c.Sim.Provider)
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# flightrec Configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles), ft (feet)

`)
	data = append(header, data...)

	// Inject comments for fields with non-obvious values
	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: mock\n${1}provider:"))

	reRetention := regexp.MustCompile(`(?m)^(\s+)retention:`)
	data = reRetention.ReplaceAll(data, []byte("${1}# Index entries older than this are pruned at startup (0s keeps all)\n${1}retention:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, do nothing
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write default config
	return Save(path, DefaultConfig())
}
