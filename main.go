package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// shell owns the session currently on screen (at most one) and fans status
// reports out to the log and, in tray mode, the tray status line.
type shell struct {
	mu      sync.Mutex
	cfg     Config
	session *Session
	notify  func(string)
}

func newShell(cfg Config) *shell {
	return &shell{cfg: cfg}
}

// setNotify installs an extra status sink (the tray). May be called once the
// surface is ready; reports before that go to the log only.
func (sh *shell) setNotify(f func(string)) {
	sh.mu.Lock()
	sh.notify = f
	sh.mu.Unlock()
}

// Status is the session's status callback: free-text reports for device, hook
// and save errors plus lifecycle changes.
func (sh *shell) Status(msg string) {
	log.Printf("status: %s", msg)
	sh.mu.Lock()
	notify := sh.notify
	sh.mu.Unlock()
	if notify != nil {
		notify(msg)
	}
}

// StartSession begins a fresh capture session. No-op if one is running.
func (sh *shell) StartSession() error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.session != nil && sh.session.IsRunning() {
		return nil
	}
	s := NewSession(sh.cfg, sh.Status)
	if err := s.Start(); err != nil {
		return err
	}
	sh.session = s
	return nil
}

// StopSession stops the running session, if any. Idempotent.
func (sh *shell) StopSession() {
	sh.mu.Lock()
	s := sh.session
	sh.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// Toggle flips between capturing and idle; bound to the global hotkey and
// the tray menu item.
func (sh *shell) Toggle() {
	if sh.IsRunning() {
		sh.StopSession()
		return
	}
	if err := sh.StartSession(); err != nil {
		sh.Status("Start failed: " + err.Error())
	}
}

// IsRunning reports whether a session is currently capturing.
func (sh *shell) IsRunning() bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.session != nil && sh.session.IsRunning()
}

// Done returns the running session's done channel, or a closed channel when idle.
func (sh *shell) Done() <-chan struct{} {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.session == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return sh.session.Done()
}

func main() {
	var (
		durationFlag = flag.Int("duration", 0, "session duration in seconds (overrides config)")
		outFlag      = flag.String("out", "", "output directory for clips and metadata (overrides config)")
		rateFlag     = flag.Int("rate", 0, "sample rate in Hz (overrides config)")
		bufferFlag   = flag.Float64("buffer", 0, "rolling buffer length in seconds (overrides config)")
		segmentFlag  = flag.Float64("segment", 0, "clip length per keystroke in seconds (overrides config)")
		hotkeyFlag   = flag.String("hotkey", "", "global start/stop toggle, e.g. ctrl+shift+space (overrides config)")
		trayFlag     = flag.Bool("tray", false, "run with a system tray control instead of a single fixed-duration session")
		saveFlag     = flag.Bool("save-config", false, "persist the effective settings as the new defaults")
	)
	flag.Parse()

	cfgSvc := NewConfigService()
	cfg := cfgSvc.Load()
	if *durationFlag != 0 {
		cfg.SessionSeconds = *durationFlag
	}
	if *outFlag != "" {
		cfg.OutputDir = *outFlag
	}
	if *rateFlag != 0 {
		cfg.SampleRate = *rateFlag
	}
	if *bufferFlag != 0 {
		cfg.BufferSeconds = *bufferFlag
	}
	if *segmentFlag != 0 {
		cfg.SegmentSeconds = *segmentFlag
	}
	if *hotkeyFlag != "" {
		cfg.ToggleHotkey = *hotkeyFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if *saveFlag {
		if err := cfgSvc.Save(cfg); err != nil {
			log.Printf("config: save failed: %v", err)
		}
	}

	sh := newShell(cfg)

	// Global toggle hotkey — best effort; the tray/headless controls still
	// work when registration fails.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if hk, err := NewHotkeyService(cfg.ToggleHotkey); err != nil {
		log.Printf("hotkey: %v — toggle disabled", err)
	} else if err := hk.Start(ctx, sh.Toggle); err != nil {
		if errors.Is(err, ErrHotkeyConflict) {
			log.Printf("hotkey: %s is taken by another app — toggle disabled", cfg.ToggleHotkey)
		} else {
			log.Printf("hotkey: %v — toggle disabled", err)
		}
	} else {
		defer hk.Stop()
	}

	if *trayFlag {
		RunSystray(sh) // blocks until Quit
		return
	}

	// Headless: one session for the configured duration, SIGINT stops early.
	if err := sh.StartSession(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	deadline := time.Now().Add(time.Duration(cfg.SessionSeconds) * time.Second)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sh.Done():
			return
		case <-sigCh:
			log.Printf("interrupted — stopping")
			sh.StopSession()
			return
		case <-ticker.C:
			if left := time.Until(deadline); left > 0 {
				log.Printf("time left: %ds", int(left.Seconds()))
			}
		}
	}
}
