package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// ErrNoInputDevice is returned when PortAudio reports no input-capable device.
var ErrNoInputDevice = errors.New("no input-capable audio device found")

const (
	audioChannels     = 1   // mono
	audioFramesPerBuf = 512 // samples per callback frame
)

// audioBackend abstracts the real PortAudio implementation.
// Allows unit tests to inject a mock without a real microphone.
type audioBackend interface {
	Open(sampleRate int) error
	Start() error
	Stop() error
	Close() error
	Frames() <-chan []float32
}

// realAudioBackend wraps gordonklaus/portaudio for production use.
type realAudioBackend struct {
	stream   *portaudio.Stream
	framesCh chan []float32
}

func newRealAudioBackend() *realAudioBackend {
	return &realAudioBackend{
		framesCh: make(chan []float32, 64), // relay; callback never blocks on it
	}
}

// Open initialises PortAudio and opens a mono input stream on the first
// input-capable device. The stream callback runs on PortAudio's real-time
// thread: it copies the frame and hands it off through the relay channel,
// nothing else. If the consumer falls behind, the frame is dropped rather
// than stalling the callback.
func (r *realAudioBackend) Open(sampleRate int) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}

	dev, err := firstInputDevice()
	if err != nil {
		portaudio.Terminate() //nolint:errcheck
		return err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: audioChannels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: audioFramesPerBuf,
	}
	stream, err := portaudio.OpenStream(params, func(in []float32) {
		// Copy the frame — portaudio reuses the buffer.
		frame := make([]float32, len(in))
		copy(frame, in)
		select {
		case r.framesCh <- frame:
		default:
			// Drop frame if the pump is too slow; blocking here would
			// cause an underrun for every later frame.
		}
	})
	if err != nil {
		portaudio.Terminate() //nolint:errcheck
		return fmt.Errorf("portaudio open stream (%s @ %dHz): %w", dev.Name, sampleRate, err)
	}
	r.stream = stream
	return nil
}

// firstInputDevice scans the device list and returns the first one that can
// record, mirroring the "pick any working microphone" behavior users expect
// from a capture tool.
func firstInputDevice() (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio device query: %w", err)
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, ErrNoInputDevice
}

func (r *realAudioBackend) Start() error {
	if err := r.stream.Start(); err != nil {
		return fmt.Errorf("portaudio start stream: %w", err)
	}
	return nil
}

func (r *realAudioBackend) Stop() error {
	// Close the relay even when the stream refuses to stop, so the pump
	// goroutine always winds down with the backend.
	defer close(r.framesCh)
	if err := r.stream.Stop(); err != nil {
		return fmt.Errorf("portaudio stop stream: %w", err)
	}
	return nil
}

func (r *realAudioBackend) Close() error {
	err := r.stream.Close()
	portaudio.Terminate() //nolint:errcheck
	return err
}

func (r *realAudioBackend) Frames() <-chan []float32 {
	return r.framesCh
}

// AudioService bridges the microphone to the rolling sample window.
// Captured float32 PCM lands in the RingBuffer and nowhere else; persisting
// segments is the clip service's job.
type AudioService struct {
	backend    audioBackend
	ring       *RingBuffer
	sampleRate int
	capturing  atomic.Bool
}

// NewAudioService creates an AudioService backed by the real PortAudio API,
// writing into the given ring buffer.
func NewAudioService(ring *RingBuffer, sampleRate int) *AudioService {
	return &AudioService{
		backend:    newRealAudioBackend(),
		ring:       ring,
		sampleRate: sampleRate,
	}
}

// newAudioServiceWithBackend creates an AudioService with injectable backend (for tests).
func newAudioServiceWithBackend(b audioBackend, ring *RingBuffer, sampleRate int) *AudioService {
	return &AudioService{backend: b, ring: ring, sampleRate: sampleRate}
}

// Start opens the microphone and begins filling the ring buffer. The pump
// goroutine exits when ctx is cancelled or the backend closes its frame
// channel (on Stop). Returns ErrNoInputDevice (wrapped) when no microphone
// exists; the caller decides whether the session continues without audio.
func (s *AudioService) Start(ctx context.Context) error {
	if s.capturing.Load() {
		return nil // already capturing — idempotent
	}

	if err := s.backend.Open(s.sampleRate); err != nil {
		return fmt.Errorf("audio: open: %w", err)
	}
	if err := s.backend.Start(); err != nil {
		s.backend.Close() //nolint:errcheck
		return fmt.Errorf("audio: start: %w", err)
	}

	s.capturing.Store(true)
	log.Printf("audio: capture started @ %dHz", s.sampleRate)

	frames := s.backend.Frames()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					return
				}
				s.ring.Write(frame)
			}
		}
	}()

	return nil
}

// Stop halts capture and releases the stream. Idempotent; audio captured
// before the call stays valid in the ring buffer.
func (s *AudioService) Stop() {
	if !s.capturing.CompareAndSwap(true, false) {
		return
	}
	if err := s.backend.Stop(); err != nil {
		log.Printf("audio: stop warning: %v", err)
	}
	if err := s.backend.Close(); err != nil {
		log.Printf("audio: close warning: %v", err)
	}
	log.Printf("audio: capture stopped")
}

// IsCapturing reports whether audio capture is currently active.
func (s *AudioService) IsCapturing() bool {
	return s.capturing.Load()
}
