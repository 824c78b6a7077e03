package rawjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"netwatch/internal/logger"
	"netwatch/pkg/models"
)

// Writer appends capture frames as JSON lines. The file is readable by the
// replay source.
type Writer struct {
	file    *os.File
	buf     *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewWriter opens path for appending.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create capture directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	buf := bufio.NewWriterSize(f, 64*1024)
	logger.Infof("Raw capture writer initialized: %s", path)
	return &Writer{file: f, buf: buf, encoder: json.NewEncoder(buf)}, nil
}

// WriteFrames appends frames and flushes them to the file.
func (w *Writer) WriteFrames(frames []models.CaptureFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range frames {
		if err := w.encoder.Encode(&frames[i]); err != nil {
			return fmt.Errorf("failed to encode capture frame: %w", err)
		}
	}
	return w.buf.Flush()
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	w.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
