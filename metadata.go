package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
)

// metadataColumns is the header row of the metadata log. Column order matters:
// downstream tooling reads the file positionally.
var metadataColumns = []string{"timestamp", "key", "wav_file"}

// metadataLog is the append-only CSV next to the clips, one row per persisted
// clip in write order. A mutex serializes appends so rows stay intact even if
// more than one writer is ever wired in.
type metadataLog struct {
	mu   sync.Mutex
	path string
}

// newMetadataLog opens (or creates) the log at path. A fresh file gets the
// header row; an existing file is appended to as-is.
func newMetadataLog(path string) (*metadataLog, error) {
	m := &metadataLog{path: path}
	if _, err := os.Stat(path); err == nil {
		return m, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("metadata: stat %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("metadata: create %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(metadataColumns); err != nil {
		return nil, fmt.Errorf("metadata: write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("metadata: write header: %w", err)
	}
	return m, nil
}

// Append writes one row. Each call opens, appends and closes so a crash never
// leaves a dangling half-row beyond the one in flight.
func (m *metadataLog) Append(timestamp, key, wavFile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("metadata: open: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{timestamp, key, wavFile}); err != nil {
		return fmt.Errorf("metadata: append: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("metadata: append: %w", err)
	}
	return nil
}
