package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// clipJob carries one accepted keystroke through the save queue. The segment
// is snapshotted at event time, so a slow disk never skews the alignment
// between the keystroke and the audio it labels.
type clipJob struct {
	label   string
	at      time.Time
	samples []float32
}

// clipQueueDepth bounds the save queue. Even frantic typing is tens of events
// per second, so a backlog this deep only forms when the disk has stalled;
// past that we shed events instead of blocking the keyboard path.
const clipQueueDepth = 256

// ClipService turns key events into persisted artifacts: one mono 16-bit PCM
// WAV clip per keystroke plus one row in the metadata log. All disk I/O runs
// on a single worker goroutine fed by Enqueue.
type ClipService struct {
	dir        string
	sampleRate int
	meta       *metadataLog
	status     func(string)

	jobs     chan clipJob
	wg       sync.WaitGroup
	started  bool
	stopOnce sync.Once
	mu       sync.Mutex

	// qmu orders Enqueue sends against Stop's close of the queue, so a key
	// event racing a teardown is dropped instead of hitting a closed channel.
	qmu    sync.RWMutex
	closed bool
}

// NewClipService creates the output directory and metadata log if needed.
// status receives human-readable reports for per-event save failures.
func NewClipService(dir string, sampleRate int, status func(string)) (*ClipService, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("clips: create output dir: %w", err)
	}
	meta, err := newMetadataLog(filepath.Join(dir, "metadata.csv"))
	if err != nil {
		return nil, err
	}
	if status == nil {
		status = func(string) {}
	}
	return &ClipService{
		dir:        dir,
		sampleRate: sampleRate,
		meta:       meta,
		status:     status,
		jobs:       make(chan clipJob, clipQueueDepth),
	}, nil
}

// Start launches the writer worker. Idempotent.
func (c *ClipService) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for job := range c.jobs {
			if err := c.write(job); err != nil {
				log.Printf("clips: %v", err)
				c.status(fmt.Sprintf("Save error: %v", err))
			}
		}
	}()
}

// Enqueue hands a snapshotted segment to the writer without blocking the
// caller. If the queue is full the event is dropped and reported.
func (c *ClipService) Enqueue(label string, at time.Time, samples []float32) {
	c.qmu.RLock()
	defer c.qmu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.jobs <- clipJob{label: label, at: at, samples: samples}:
	default:
		c.status(fmt.Sprintf("Save queue full — dropped keystroke %q", label))
	}
}

// Stop closes the queue and waits for the worker to drain every job already
// accepted, so stopping a session never loses keystrokes that were enqueued
// before the stop. Idempotent.
func (c *ClipService) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		started := c.started
		c.mu.Unlock()
		c.qmu.Lock()
		c.closed = true
		close(c.jobs)
		c.qmu.Unlock()
		if started {
			c.wg.Wait()
		}
	})
}

// write persists one clip and its metadata row. Failures are per-event: the
// clip is abandoned, earlier records are untouched.
func (c *ClipService) write(job clipJob) error {
	pcm := normalizeSegment(job.samples)

	ts := clipTimestamp(job.at)
	path, name := uniqueClipPath(c.dir, fmt.Sprintf("%s_%s", sanitizeLabel(job.label), ts))

	if err := writeWAV(path, pcm, c.sampleRate); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := c.meta.Append(ts, job.label, name); err != nil {
		return fmt.Errorf("metadata for %s: %w", name, err)
	}
	return nil
}

// normalizeSegment peak-normalizes a float32 segment into 16-bit signed PCM:
// the peak maps to 32767, silence stays silence.
func normalizeSegment(samples []float32) []int16 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	out := make([]int16, len(samples))
	if peak == 0 {
		return out
	}
	scale := 32767 / peak
	for i, s := range samples {
		out[i] = int16(s * scale)
	}
	return out
}

// clipTimestamp formats a time with microsecond resolution, matching the
// metadata log's timestamp column.
func clipTimestamp(t time.Time) string {
	return fmt.Sprintf("%s_%06d", t.Format("20060102_150405"), t.Nanosecond()/1000)
}

// filenameSanitizer strips characters that are unsafe in file names. Only the
// file name is sanitized; the metadata log keeps the literal label.
var filenameSanitizer = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "*", "-",
	"?", "-", "\"", "-", "<", "-", ">", "-", "|", "-", ".", "-",
)

func sanitizeLabel(label string) string {
	return filenameSanitizer.Replace(label)
}

// uniqueClipPath returns a path under dir that does not exist yet. Two keys
// accepted within the same microsecond would collide on timestamp alone, so
// a numeric suffix disambiguates.
func uniqueClipPath(dir, base string) (path, name string) {
	name = base + ".wav"
	path = filepath.Join(dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, name
		}
		name = fmt.Sprintf("%s_%d.wav", base, i)
		path = filepath.Join(dir, name)
	}
}

// writeWAV encodes samples as a single-channel 16-bit PCM WAV file.
func writeWAV(path string, pcm []int16, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(pcm)),
		SourceBitDepth: 16,
	}
	for i, s := range pcm {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		enc.Close() //nolint:errcheck
		return err
	}
	return enc.Close()
}
