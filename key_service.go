package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"
	"unicode"

	hook "github.com/robotn/gohook"
)

// ErrHookFailed is returned when the global keyboard hook cannot be installed.
var ErrHookFailed = errors.New("keyboard hook could not be installed")

// KeyEvent is one accepted keystroke: a normalized label plus the time the
// key went down. Immutable once created.
type KeyEvent struct {
	Label string
	At    time.Time
}

// keyTap is a raw key-down as delivered by the hook, before filtering.
type keyTap struct {
	Char rune
	When time.Time
}

// keyboardBackend abstracts the real global-hook implementation.
// Allows unit tests to inject synthetic key-downs without OS permissions.
type keyboardBackend interface {
	Install() (<-chan keyTap, error)
	Uninstall()
}

// realKeyboardBackend wraps robotn/gohook for production use. gohook owns a
// process-wide event loop, so only one backend may be installed at a time.
type realKeyboardBackend struct {
	taps chan keyTap
}

func newRealKeyboardBackend() *realKeyboardBackend {
	return &realKeyboardBackend{taps: make(chan keyTap, 16)}
}

// Install starts the global hook and relays key-down events. The relay
// goroutine exits when gohook closes its event channel (on Uninstall).
func (r *realKeyboardBackend) Install() (<-chan keyTap, error) {
	events := hook.Start()
	if events == nil {
		return nil, ErrHookFailed
	}
	go func() {
		defer close(r.taps)
		for ev := range events {
			if ev.Kind != hook.KeyDown {
				continue
			}
			select {
			case r.taps <- keyTap{Char: ev.Keychar, When: ev.When}:
			default:
				// Relay full — drop rather than back up the hook thread.
			}
		}
	}()
	return r.taps, nil
}

func (r *realKeyboardBackend) Uninstall() {
	hook.End()
}

// normalizeLabel maps a raw key character onto the dataset's label alphabet:
// any single printable character, plus the named controls space, enter and
// backspace. Everything else (modifiers, function keys, arrows) is rejected.
func normalizeLabel(ch rune) (string, bool) {
	switch ch {
	case ' ':
		return "space", true
	case '\r', '\n':
		return "enter", true
	case '\b', 0x7f:
		return "backspace", true
	}
	if unicode.IsPrint(ch) {
		return string(ch), true
	}
	return "", false
}

// KeyService observes global keyboard input while a session is active and
// invokes onKey for each accepted keystroke. onKey runs on the hook-reader
// goroutine and must stay fast; anything slow (disk writes) belongs behind
// the clip queue.
type KeyService struct {
	backend keyboardBackend
	onKey   func(KeyEvent)
	active  atomic.Bool
	doneCh  chan struct{}
}

// NewKeyService creates a KeyService backed by the real global hook.
func NewKeyService(onKey func(KeyEvent)) *KeyService {
	return &KeyService{backend: newRealKeyboardBackend(), onKey: onKey}
}

// newKeyServiceWithBackend creates a KeyService with injectable backend (for tests).
func newKeyServiceWithBackend(b keyboardBackend, onKey func(KeyEvent)) *KeyService {
	return &KeyService{backend: b, onKey: onKey}
}

// Start installs the hook and launches the reader goroutine. The goroutine
// exits when ctx is cancelled or the backend's channel closes after Stop.
func (s *KeyService) Start(ctx context.Context) error {
	if s.active.Load() {
		return nil // already listening — idempotent
	}

	taps, err := s.backend.Install()
	if err != nil {
		return fmt.Errorf("keyboard: %w", err)
	}
	s.active.Store(true)
	s.doneCh = make(chan struct{})
	log.Printf("keyboard: global hook installed")

	go func() {
		defer close(s.doneCh)
		for {
			select {
			case <-ctx.Done():
				return
			case tap, ok := <-taps:
				if !ok {
					return
				}
				label, ok := normalizeLabel(tap.Char)
				if !ok {
					continue
				}
				s.onKey(KeyEvent{Label: label, At: tap.When})
			}
		}
	}()

	return nil
}

// Stop uninstalls the hook. Key events already handed to onKey are unaffected;
// taps still sitting in the relay when the channel closes are discarded.
// Idempotent. Waits briefly for the reader goroutine so no callback is
// in-flight when teardown continues.
func (s *KeyService) Stop() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	s.backend.Uninstall()
	if s.doneCh != nil {
		select {
		case <-s.doneCh:
		case <-time.After(200 * time.Millisecond):
			log.Printf("keyboard: Stop() timed out waiting for reader to exit")
		}
	}
	log.Printf("keyboard: global hook removed")
}

// IsActive reports whether the hook is currently installed.
func (s *KeyService) IsActive() bool {
	return s.active.Load()
}
