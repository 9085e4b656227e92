package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.design/x/hotkey"
)

// ErrHotkeyConflict is returned when the hotkey is already registered by another app.
var ErrHotkeyConflict = errors.New("hotkey: key combination already registered by another application")

// ErrHotkeyInvalid is returned when the hotkey string cannot be parsed.
var ErrHotkeyInvalid = errors.New("hotkey: invalid key combination")

// hotkeyBackend abstracts the real hotkey implementation so tests can use a mock.
type hotkeyBackend interface {
	Register() error
	Unregister() error
	Keydown() <-chan struct{}
}

// realHotkeyBackend wraps golang.design/x/hotkey for production use.
// The hotkey.Hotkey is created lazily in Register() so no OS-level state
// exists until the shell actually wants the toggle.
type realHotkeyBackend struct {
	hk    *hotkey.Hotkey
	mods  []hotkey.Modifier
	key   hotkey.Key
	keyCh chan struct{}
}

func newRealHotkeyBackend(combo string) (*realHotkeyBackend, error) {
	mods, key, err := parseHotkey(combo)
	if err != nil {
		return nil, err
	}
	return &realHotkeyBackend{mods: mods, key: key}, nil
}

func (r *realHotkeyBackend) Register() error {
	r.hk = hotkey.New(r.mods, r.key)
	if err := r.hk.Register(); err != nil {
		_ = r.hk.Unregister()
		r.hk = nil
		return ErrHotkeyConflict
	}
	// Buffered relay, scoped to this registration so a later Register gets
	// a fresh channel with its own closer. The pump goroutine is the only
	// closer and exits when the hk channel closes.
	keyCh := make(chan struct{}, 4)
	r.keyCh = keyCh
	src := r.hk.Keydown()
	go func() {
		for range src {
			select {
			case keyCh <- struct{}{}:
			default: // drop if buffer full (rapid presses)
			}
		}
		close(keyCh)
	}()
	return nil
}

func (r *realHotkeyBackend) Unregister() error {
	if r.hk == nil {
		return nil
	}
	return r.hk.Unregister()
}

func (r *realHotkeyBackend) Keydown() <-chan struct{} {
	return r.keyCh
}

// HotkeyService registers the global start/stop toggle for the shell.
type HotkeyService struct {
	mu         sync.Mutex
	backend    hotkeyBackend
	combo      string
	registered atomic.Bool
	cancel     context.CancelFunc
	doneCh     chan struct{}
}

// NewHotkeyService creates a HotkeyService for the given combo string,
// e.g. "ctrl+shift+space". Returns ErrHotkeyInvalid if it cannot be parsed.
func NewHotkeyService(combo string) (*HotkeyService, error) {
	b, err := newRealHotkeyBackend(combo)
	if err != nil {
		return nil, err
	}
	return &HotkeyService{backend: b, combo: combo}, nil
}

// newHotkeyServiceWithBackend creates a HotkeyService with a custom backend (for tests).
func newHotkeyServiceWithBackend(b hotkeyBackend, combo string) *HotkeyService {
	return &HotkeyService{backend: b, combo: combo}
}

// Start registers the hotkey and launches a listener goroutine that calls
// onTrigger each time the combo is pressed. The goroutine exits when ctx is
// cancelled or Stop is called. Returns ErrHotkeyConflict if the combo is
// taken by another app.
func (s *HotkeyService) Start(ctx context.Context, onTrigger func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registered.Load() {
		return nil
	}
	if err := s.backend.Register(); err != nil {
		return err
	}
	s.registered.Store(true)
	log.Printf("hotkey: %s registered", s.combo)

	listenCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.doneCh = make(chan struct{})
	keydown := s.backend.Keydown()
	doneCh := s.doneCh

	go func() {
		defer func() {
			s.backend.Unregister() //nolint:errcheck
			s.registered.Store(false)
			log.Printf("hotkey: %s unregistered", s.combo)
			close(doneCh)
		}()
		for {
			select {
			case <-listenCtx.Done():
				return
			case _, ok := <-keydown:
				if !ok {
					return
				}
				log.Printf("hotkey: %s triggered", s.combo)
				if onTrigger != nil {
					onTrigger()
				}
			}
		}
	}()
	return nil
}

// Stop unregisters the hotkey and waits briefly for the listener goroutine
// to exit so no trigger is in-flight when teardown continues.
func (s *HotkeyService) Stop() {
	s.mu.Lock()
	doneCh := s.doneCh
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if doneCh != nil {
		select {
		case <-doneCh:
		case <-time.After(200 * time.Millisecond):
			log.Printf("hotkey: Stop() timed out waiting for listener to exit")
		}
	}
}

// IsRegistered reports whether the hotkey is currently registered.
func (s *HotkeyService) IsRegistered() bool {
	return s.registered.Load()
}

// ── parseHotkey ──────────────────────────────────────────────────────────────
// Parses a combo string like "ctrl+shift+space" or "ctrl+k" into
// golang.design/x/hotkey modifiers + key. Only modifiers available on every
// supported platform are accepted.

var modMap = map[string]hotkey.Modifier{
	"ctrl":    hotkey.ModCtrl,
	"control": hotkey.ModCtrl,
	"shift":   hotkey.ModShift,
}

var keyMap = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"tab":    hotkey.KeyTab,
	"return": hotkey.KeyReturn,
	"enter":  hotkey.KeyReturn,
	"a":      hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}

// parseHotkey parses a combo string into hotkey modifiers and key.
func parseHotkey(combo string) ([]hotkey.Modifier, hotkey.Key, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(combo)), "+")
	if len(parts) < 2 {
		return nil, 0, fmt.Errorf("%w: %q (need at least one modifier)", ErrHotkeyInvalid, combo)
	}
	keyPart := parts[len(parts)-1]
	modParts := parts[:len(parts)-1]

	key, ok := keyMap[keyPart]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown key %q", ErrHotkeyInvalid, keyPart)
	}

	var mods []hotkey.Modifier
	seen := map[string]bool{}
	for _, m := range modParts {
		if seen[m] {
			continue
		}
		seen[m] = true
		mod, ok := modMap[m]
		if !ok {
			return nil, 0, fmt.Errorf("%w: unknown modifier %q", ErrHotkeyInvalid, m)
		}
		mods = append(mods, mod)
	}
	if len(mods) == 0 {
		return nil, 0, fmt.Errorf("%w: no valid modifier in %q", ErrHotkeyInvalid, combo)
	}
	return mods, key, nil
}
