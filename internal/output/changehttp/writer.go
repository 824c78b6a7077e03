package changehttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"netwatch/pkg/models"
)

// Config configures the HTTP writer.
type Config struct {
	URL      string
	Timeout  time.Duration
	Headers  map[string]string
	MaxBatch int
}

// Writer posts change events to a collector as JSON envelopes, splitting
// large batches into MaxBatch-sized requests.
type Writer struct {
	url      string
	headers  map[string]string
	host     string
	maxBatch int
	client   *http.Client
	now      func() time.Time
}

// envelope is one request body.
type envelope struct {
	Host   string               `json:"host"`
	SentAt time.Time            `json:"sent_at"`
	Count  int                  `json:"count"`
	Events []models.ChangeEvent `json:"events"`
}

// NewWriter creates an HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http change URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 500
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	headers := map[string]string{}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &Writer{
		url:      cfg.URL,
		headers:  headers,
		host:     host,
		maxBatch: cfg.MaxBatch,
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
	}, nil
}

// WriteChanges posts events in order. It stops at the first failed request;
// the caller retries the whole batch.
func (w *Writer) WriteChanges(events []models.ChangeEvent) error {
	for start := 0; start < len(events); start += w.maxBatch {
		end := min(start+w.maxBatch, len(events))
		if err := w.post(events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) post(events []models.ChangeEvent) error {
	body, err := json.Marshal(envelope{
		Host:   w.host,
		SentAt: w.now().UTC(),
		Count:  len(events),
		Events: events,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal change events: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http request failed with status %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// Close releases idle connections.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
