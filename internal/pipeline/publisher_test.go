package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"netwatch/pkg/models"
)

type memWriter struct {
	mu       sync.Mutex
	events   []models.ChangeEvent
	frames   []models.CaptureFrame
	failures int
	closed   bool
}

func (w *memWriter) WriteChanges(events []models.ChangeEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return errors.New("sink unavailable")
	}
	w.events = append(w.events, events...)
	return nil
}

func (w *memWriter) WriteFrames(frames []models.CaptureFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, frames...)
	return nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memWriter) counts() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events), len(w.frames)
}

func TestPublisherFlushesOnShutdown(t *testing.T) {
	w := &memWriter{}
	p := NewPublisher(w, w, nil, 100, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Submit(models.CaptureFrame{Timestamp: time.Now()}, []models.ChangeEvent{{ID: "1"}, {ID: "2"}})
	p.Submit(models.CaptureFrame{Timestamp: time.Now()}, nil)
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}

	events, frames := w.counts()
	if events != 2 || frames != 2 {
		t.Fatalf("expected 2 events and 2 frames, got %d and %d", events, frames)
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("expected writers closed, err=%v", err)
	}
}

func TestPublisherRetriesFailedBatch(t *testing.T) {
	w := &memWriter{failures: 2}
	p := NewPublisher(w, nil, nil, 1, time.Hour)
	p.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Submit(models.CaptureFrame{}, []models.ChangeEvent{{ID: "a"}})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := w.counts(); n == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected batch to be written after retries")
}

func TestSubmitWithoutWritersIsNoop(t *testing.T) {
	p := NewPublisher(nil, nil, nil, 0, 0)
	p.Submit(models.CaptureFrame{}, []models.ChangeEvent{{ID: "x"}})
	if len(p.in) != 0 {
		t.Fatalf("expected nothing queued without writers")
	}
}
