package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfigServiceDefaults(t *testing.T) {
	dir := t.TempDir()
	svc := newConfigServiceAt(filepath.Join(dir, "config.json"))

	cfg := svc.Load()
	if cfg.SampleRate != 44100 {
		t.Errorf("default sample rate = %d; want 44100", cfg.SampleRate)
	}
	if cfg.BufferSeconds != 2.0 {
		t.Errorf("default buffer = %g; want 2.0", cfg.BufferSeconds)
	}
	if cfg.SegmentSeconds != 0.2 {
		t.Errorf("default segment = %g; want 0.2", cfg.SegmentSeconds)
	}
	if cfg.OutputDir != "recordings" {
		t.Errorf("default output dir = %q; want %q", cfg.OutputDir, "recordings")
	}
	if cfg.SessionSeconds != 60 {
		t.Errorf("default session = %d; want 60", cfg.SessionSeconds)
	}
}

func TestConfigServiceSaveLoad(t *testing.T) {
	dir := t.TempDir()
	svc := newConfigServiceAt(filepath.Join(dir, "config.json"))

	want := Config{
		SampleRate:     48000,
		BufferSeconds:  3.0,
		SegmentSeconds: 0.25,
		OutputDir:      "clips",
		SessionSeconds: 300,
		ToggleHotkey:   "ctrl+k",
	}
	if err := svc.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := svc.Load()
	if got != want {
		t.Errorf("Load() = %+v; want %+v", got, want)
	}
}

func TestConfigServiceCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := os.WriteFile(path, []byte("{bad json"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := newConfigServiceAt(path)
	cfg := svc.Load()

	if cfg != defaultConfig() {
		t.Errorf("Load() after corrupt file = %+v; want defaults", cfg)
	}
}

func TestConfigServiceBackfillsZeroFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := os.WriteFile(path, []byte(`{"sample_rate": 22050}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := newConfigServiceAt(path).Load()
	if cfg.SampleRate != 22050 {
		t.Errorf("sample rate = %d; want 22050", cfg.SampleRate)
	}
	if cfg.BufferSeconds != 2.0 || cfg.OutputDir != "recordings" {
		t.Errorf("zero fields not backfilled: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	base := defaultConfig()

	if err := base.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	bad := []Config{
		func() Config { c := base; c.SessionSeconds = 0; return c }(),
		func() Config { c := base; c.SessionSeconds = -5; return c }(),
		func() Config { c := base; c.SampleRate = 0; return c }(),
		func() Config { c := base; c.SegmentSeconds = 0; return c }(),
		func() Config { c := base; c.SegmentSeconds = 3.0; return c }(), // exceeds buffer
		func() Config { c := base; c.OutputDir = ""; return c }(),
	}
	for i, c := range bad {
		if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("case %d: Validate() = %v; want ErrInvalidConfig", i, err)
		}
	}
}

func TestConfigDerivedSampleCounts(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.BufferSamples(); got != 88200 {
		t.Errorf("BufferSamples() = %d; want 88200", got)
	}
	if got := cfg.SegmentSamples(); got != 8820 {
		t.Errorf("SegmentSamples() = %d; want 8820", got)
	}
}
