package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "flightrec.yaml")
	envPath := filepath.Join(tempDir, ".env")

	tests := []struct {
		name          string
		setup         func()
		validate      func(*testing.T, *Config)
		checkFile     func(*testing.T)
		expectedError bool
	}{
		{
			name:  "NewFile_Defaults",
			setup: func() {},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Replay.Rate != 1.0 {
					t.Errorf("expected default rate 1.0, got %v", cfg.Replay.Rate)
				}
				if time.Duration(cfg.Replay.ThrottleInterval) != 500*time.Millisecond {
					t.Errorf("expected default throttle 500ms, got %v", time.Duration(cfg.Replay.ThrottleInterval))
				}
				if cfg.Sim.Provider != "mock" {
					t.Errorf("expected mock provider, got '%s'", cfg.Sim.Provider)
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if !strings.HasPrefix(string(content), "# flightrec Configuration") {
					t.Error("config file missing header")
				}
				if !strings.Contains(string(content), "# Options: mock") {
					t.Error("config file missing provider comment")
				}
				if !strings.Contains(string(content), "throttle_interval: 500ms") {
					t.Error("config file missing throttle_interval default")
				}
			},
		},
		{
			name: "ExistingFile_Override",
			setup: func() {
				err := os.WriteFile(configPath, []byte("replay:\n  rate: 2.5\n  throttle_interval: 1s\nsim:\n  thresholds:\n    distance: 1nm\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Replay.Rate != 2.5 {
					t.Errorf("expected rate 2.5, got %v", cfg.Replay.Rate)
				}
				if time.Duration(cfg.Replay.ThrottleInterval) != time.Second {
					t.Errorf("expected 1s, got %v", time.Duration(cfg.Replay.ThrottleInterval))
				}
				if cfg.Sim.Thresholds.Distance != 1852 {
					t.Errorf("expected 1852m, got %v", cfg.Sim.Thresholds.Distance)
				}
				// Untouched sections keep defaults
				if cfg.Sim.Thresholds.Heading != 10 {
					t.Errorf("expected default heading threshold 10, got %v", cfg.Sim.Thresholds.Heading)
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if !strings.Contains(string(content), "rate: 2.5") {
					t.Error("existing file should not be rewritten")
				}
			},
		},
		{
			name: "DotEnv_Fills_Empty_Values",
			setup: func() {
				t.Setenv(EnvSaveFolder, "")
				os.Unsetenv(EnvSaveFolder)
				if err := os.WriteFile(envPath, []byte(EnvSaveFolder+"=/srv/flights\n"), 0o644); err != nil {
					t.Fatalf("failed to write .env: %v", err)
				}
				if err := os.WriteFile(configPath, []byte("storage:\n  save_folder: \"\"\n"), 0o644); err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Storage.SaveFolder != "/srv/flights" {
					t.Errorf("expected save folder from .env, got '%s'", cfg.Storage.SaveFolder)
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if strings.Contains(string(content), "/srv/flights") {
					t.Error("environment value should NOT be persisted to config file")
				}
				os.Remove(envPath)
			},
		},
		{
			name: "Path_Env_Expansion",
			setup: func() {
				t.Setenv("FLIGHTREC_HOME", "/home/pilot")
				t.Setenv("APP_DATA", "/app/data")
				err := os.WriteFile(configPath, []byte("db:\n  path: \"$FLIGHTREC_HOME/db.sqlite\"\nstorage:\n  save_folder: \"%APP_DATA%/recordings\"\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.DB.Path != "/home/pilot/db.sqlite" {
					t.Errorf("expected expanded DB path, got '%s'", cfg.DB.Path)
				}
				if cfg.Storage.SaveFolder != "/app/data/recordings" {
					t.Errorf("expected expanded save folder, got '%s'", cfg.Storage.SaveFolder)
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if !strings.Contains(string(content), "$FLIGHTREC_HOME") {
					t.Error("config file should persist raw $VAR path")
				}
			},
		},
		{
			name: "Invalid_YAML",
			setup: func() {
				if err := os.WriteFile(configPath, []byte("replay: [not a map]"), 0o644); err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
		{
			name: "Invalid_Rate",
			setup: func() {
				if err := os.WriteFile(configPath, []byte("replay:\n  rate: 0\n"), 0o644); err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
		{
			name: "Unknown_Provider",
			setup: func() {
				if err := os.WriteFile(configPath, []byte("sim:\n  provider: xplane\n"), 0o644); err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Remove(configPath)
			tt.setup()

			cfg, err := Load(configPath)
			if (err != nil) != tt.expectedError {
				t.Fatalf("Load() error = %v, expectedError %v", err, tt.expectedError)
			}
			if err == nil {
				tt.validate(t, cfg)
				tt.checkFile(t)
			}
		})
	}
}

func TestGenerateDefault(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "nested", "default_config.yaml")

	if err := GenerateDefault(configPath); err != nil {
		t.Fatalf("GenerateDefault() error = %v", err)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("GenerateDefault() did not create file")
	}

	// A second run must leave user edits alone
	if err := os.WriteFile(configPath, []byte("replay:\n  rate: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := GenerateDefault(configPath); err != nil {
		t.Errorf("GenerateDefault() error on second run = %v", err)
	}
	content, _ := os.ReadFile(configPath)
	if string(content) != "replay:\n  rate: 3\n" {
		t.Error("GenerateDefault() overwrote an existing file")
	}
}
