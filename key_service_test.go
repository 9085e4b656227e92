package main

import (
	"context"
	"sync"
	"testing"
	"time"
)

// mockKeyboardBackend feeds synthetic key-downs without a real OS hook.
type mockKeyboardBackend struct {
	taps        chan keyTap
	installErr  error
	installed   bool
	uninstalled bool
}

func newMockKeyboardBackend() *mockKeyboardBackend {
	return &mockKeyboardBackend{taps: make(chan keyTap, 32)}
}

func (m *mockKeyboardBackend) Install() (<-chan keyTap, error) {
	if m.installErr != nil {
		return nil, m.installErr
	}
	m.installed = true
	return m.taps, nil
}

func (m *mockKeyboardBackend) Uninstall() {
	m.uninstalled = true
	close(m.taps)
}

// press sends one synthetic key-down.
func (m *mockKeyboardBackend) press(ch rune) {
	m.taps <- keyTap{Char: ch, When: time.Now()}
}

// ── Tests ────────────────────────────────────────────────

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in     rune
		want   string
		accept bool
	}{
		{'a', "a", true},
		{'Z', "Z", true},
		{'7', "7", true},
		{'!', "!", true},
		{'é', "é", true},
		{' ', "space", true},
		{'\r', "enter", true},
		{'\n', "enter", true},
		{'\b', "backspace", true},
		{0x7f, "backspace", true},
		{'\t', "", false},   // tab is not printable
		{0x1b, "", false},   // escape
		{0xffff, "", false}, // hook's "no character" marker
		{0, "", false},
	}
	for _, tc := range tests {
		got, ok := normalizeLabel(tc.in)
		if ok != tc.accept || got != tc.want {
			t.Errorf("normalizeLabel(%U) = (%q, %v); want (%q, %v)", tc.in, got, ok, tc.want, tc.accept)
		}
	}
}

func TestKeyServiceEmitsAcceptedEvents(t *testing.T) {
	mock := newMockKeyboardBackend()

	var mu sync.Mutex
	var events []KeyEvent
	svc := newKeyServiceWithBackend(mock, func(ev KeyEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	mock.press('a')
	mock.press(0x1b) // escape — must be dropped
	mock.press(' ')
	mock.press('\r')

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(events)
		mu.Unlock()
		if n >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "space", "enter"}
	if len(events) != len(want) {
		t.Fatalf("got %d events; want %d", len(events), len(want))
	}
	for i, w := range want {
		if events[i].Label != w {
			t.Errorf("events[%d].Label = %q; want %q", i, events[i].Label, w)
		}
		if events[i].At.IsZero() {
			t.Errorf("events[%d].At is zero", i)
		}
	}
}

func TestKeyServiceInstallFailure(t *testing.T) {
	mock := newMockKeyboardBackend()
	mock.installErr = ErrHookFailed
	svc := newKeyServiceWithBackend(mock, func(KeyEvent) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err == nil {
		t.Fatal("Start() = nil; want hook error")
	}
	if svc.IsActive() {
		t.Error("IsActive() = true after failed Start()")
	}
}

func TestKeyServiceStopIdempotent(t *testing.T) {
	mock := newMockKeyboardBackend()
	svc := newKeyServiceWithBackend(mock, func(KeyEvent) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start(): %v", err)
	}

	svc.Stop()
	if !mock.uninstalled {
		t.Error("backend not uninstalled after Stop()")
	}

	// Second Stop must not close the backend channel again.
	svc.Stop()
}
