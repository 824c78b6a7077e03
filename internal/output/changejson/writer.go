package changejson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"netwatch/internal/logger"
	"netwatch/pkg/models"
)

// Writer appends change events to a JSON lines file.
type Writer struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewWriter opens path for appending, creating parent directories.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	logger.Infof("Change JSON writer initialized: %s", path)
	return &Writer{
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

// WriteChanges writes a batch of events, one per line.
func (w *Writer) WriteChanges(events []models.ChangeEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range events {
		if err := w.encoder.Encode(&events[i]); err != nil {
			return fmt.Errorf("failed to encode change event: %w", err)
		}
	}
	return nil
}

// Close closes the output file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}
