package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// ErrInvalidConfig is returned by Config.Validate for settings that would
// make a capture session meaningless. Validation runs before Start; invalid
// settings never reach the concurrent paths.
var ErrInvalidConfig = errors.New("invalid capture settings")

// Config holds persistent capture preferences.
// Stored as JSON at ~/.keycapture/config.json.
type Config struct {
	SampleRate     int     `json:"sample_rate"`     // Hz
	BufferSeconds  float64 `json:"buffer_seconds"`  // rolling window length
	SegmentSeconds float64 `json:"segment_seconds"` // clip length per keystroke
	OutputDir      string  `json:"output_dir"`      // clips + metadata.csv
	SessionSeconds int     `json:"session_seconds"` // capture duration
	ToggleHotkey   string  `json:"toggle_hotkey"`   // e.g. "ctrl+shift+space"
}

// defaultConfig returns factory defaults.
func defaultConfig() Config {
	return Config{
		SampleRate:     44100,
		BufferSeconds:  2.0,
		SegmentSeconds: 0.2,
		OutputDir:      "recordings",
		SessionSeconds: 60,
		ToggleHotkey:   "ctrl+shift+space",
	}
}

// BufferSamples is the ring buffer capacity implied by the config.
func (c Config) BufferSamples() int {
	return int(float64(c.SampleRate) * c.BufferSeconds)
}

// SegmentSamples is the per-keystroke clip length implied by the config.
func (c Config) SegmentSamples() int {
	return int(float64(c.SampleRate) * c.SegmentSeconds)
}

// Validate rejects settings a session cannot run with. All failures wrap
// ErrInvalidConfig.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfig, c.SampleRate)
	}
	if c.SessionSeconds <= 0 {
		return fmt.Errorf("%w: session duration must be positive, got %ds", ErrInvalidConfig, c.SessionSeconds)
	}
	if c.SegmentSeconds <= 0 {
		return fmt.Errorf("%w: segment duration must be positive, got %gs", ErrInvalidConfig, c.SegmentSeconds)
	}
	if c.BufferSeconds < c.SegmentSeconds {
		return fmt.Errorf("%w: segment duration %gs exceeds buffer duration %gs",
			ErrInvalidConfig, c.SegmentSeconds, c.BufferSeconds)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output directory must not be empty", ErrInvalidConfig)
	}
	return nil
}

// ConfigService loads and saves capture configuration.
type ConfigService struct {
	path string
}

// NewConfigService creates a ConfigService pointing to the standard config path.
func NewConfigService() *ConfigService {
	home, _ := os.UserHomeDir()
	return &ConfigService{
		path: filepath.Join(home, ".keycapture", "config.json"),
	}
}

// newConfigServiceAt creates a ConfigService with a custom path (tests only).
func newConfigServiceAt(path string) *ConfigService {
	return &ConfigService{path: path}
}

// Load reads config from disk. Returns defaults if the file doesn't exist.
// If the file is corrupt it logs the error and writes fresh defaults.
func (c *ConfigService) Load() Config {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return defaultConfig()
	}
	if err != nil {
		log.Printf("config: read error: %v — using defaults", err)
		return defaultConfig()
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("config: parse error: %v — resetting to defaults", err)
		defaults := defaultConfig()
		_ = c.Save(defaults) // overwrite corrupt file
		return defaults
	}
	// Fill any zero-value fields with defaults.
	d := defaultConfig()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = d.SampleRate
	}
	if cfg.BufferSeconds == 0 {
		cfg.BufferSeconds = d.BufferSeconds
	}
	if cfg.SegmentSeconds == 0 {
		cfg.SegmentSeconds = d.SegmentSeconds
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = d.OutputDir
	}
	if cfg.SessionSeconds == 0 {
		cfg.SessionSeconds = d.SessionSeconds
	}
	if cfg.ToggleHotkey == "" {
		cfg.ToggleHotkey = d.ToggleHotkey
	}
	return cfg
}

// Save writes the config to disk atomically (write to temp, then rename).
func (c *ConfigService) Save(cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
