package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Session is one bounded-duration capture run. It owns the ring buffer, the
// three services and the duration timer, and is the only thing that wires
// them together: audio fills the ring, accepted keystrokes snapshot it, the
// clip worker persists the snapshots.
//
// A Session is single-use: Start once, Stop once (Stop is idempotent). The
// shell creates a fresh Session for each run.
type Session struct {
	cfg    Config
	status func(string)

	// nil outside tests; replaces the real device/hook backends.
	audioBackend    audioBackend
	keyboardBackend keyboardBackend

	mu      sync.Mutex
	running bool
	started bool
	ring    *RingBuffer
	audio   *AudioService
	keys    *KeyService
	clips   *ClipService
	cancel  context.CancelFunc
	timer   *time.Timer
	doneCh  chan struct{}
}

// NewSession creates a session over the real microphone and keyboard hook.
// status receives human-readable lifecycle and error reports; it may be nil.
func NewSession(cfg Config, status func(string)) *Session {
	if status == nil {
		status = func(string) {}
	}
	return &Session{cfg: cfg, status: status, doneCh: make(chan struct{})}
}

// newSessionWithBackends injects mock device/hook backends (tests only).
func newSessionWithBackends(cfg Config, status func(string), ab audioBackend, kb keyboardBackend) *Session {
	s := NewSession(cfg, status)
	s.audioBackend = ab
	s.keyboardBackend = kb
	return s
}

// Start validates the configuration, then brings up the encoder worker, the
// audio stream and the keyboard hook, in that order. A device failure is
// reported once and leaves the keyboard path running (keystrokes then label
// silent segments); a hook failure is reported once and leaves audio running.
// Only invalid configuration or an unusable output directory block the start.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("session: already started")
	}

	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	clips, err := NewClipService(s.cfg.OutputDir, s.cfg.SampleRate, s.status)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	s.started = true
	s.running = true
	s.ring = NewRingBuffer(s.cfg.BufferSamples())
	s.clips = clips
	s.clips.Start()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if s.audioBackend != nil {
		s.audio = newAudioServiceWithBackend(s.audioBackend, s.ring, s.cfg.SampleRate)
	} else {
		s.audio = NewAudioService(s.ring, s.cfg.SampleRate)
	}
	if err := s.audio.Start(ctx); err != nil {
		log.Printf("session: %v", err)
		s.status(fmt.Sprintf("Audio error: %v — keystrokes will label silent segments", err))
	}

	// Snapshot at event time, on the hook-reader goroutine. The ring copy is
	// bounded by the segment length; the disk write happens on the clip worker.
	segmentSamples := s.cfg.SegmentSamples()
	onKey := func(ev KeyEvent) {
		s.clips.Enqueue(ev.Label, ev.At, s.ring.SnapshotLast(segmentSamples))
	}
	if s.keyboardBackend != nil {
		s.keys = newKeyServiceWithBackend(s.keyboardBackend, onKey)
	} else {
		s.keys = NewKeyService(onKey)
	}
	if err := s.keys.Start(ctx); err != nil {
		log.Printf("session: %v", err)
		s.status(fmt.Sprintf("Keyboard error: %v", err))
	}

	s.timer = time.AfterFunc(time.Duration(s.cfg.SessionSeconds)*time.Second, func() {
		s.status("Session complete")
		s.Stop()
	})

	log.Printf("session: capturing for %ds into %s", s.cfg.SessionSeconds, s.cfg.OutputDir)
	s.status("Recording...")
	return nil
}

// Stop tears the session down deterministically: the stream is closed so no
// further samples land in the ring, the hook is removed so no further events
// are produced, and the clip queue is drained so every accepted keystroke is
// flushed to disk. Safe to call any number of times, from any goroutine.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.audio.Stop()
	s.keys.Stop()
	s.cancel()
	s.clips.Stop()
	close(s.doneCh)
	s.status("Idle")
	log.Printf("session: stopped")
}

// Done is closed once the session has fully stopped (by timer, error, or an
// explicit Stop).
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}

// IsRunning reports whether the session is currently capturing.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
