package pipeline

import (
	"context"
	"time"

	"netwatch/internal/logger"
	"netwatch/internal/metrics"
	"netwatch/pkg/models"
)

// Publisher moves change events and capture frames off the poll loop and
// writes them in batches. A sink that keeps failing is retried until the
// context ends; the poll loop is never blocked by it.
type Publisher struct {
	writer        ChangeWriter
	raw           RawWriter
	metrics       *metrics.Metrics
	batchSize     int
	flushInterval time.Duration
	retryDelay    time.Duration
	in            chan publishItem
}

type publishItem struct {
	events []models.ChangeEvent
	frame  *models.CaptureFrame
}

// NewPublisher creates a publisher. Either writer may be nil.
func NewPublisher(writer ChangeWriter, raw RawWriter, m *metrics.Metrics, batchSize int, flushInterval time.Duration) *Publisher {
	if batchSize <= 0 {
		batchSize = 500
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	return &Publisher{
		writer:        writer,
		raw:           raw,
		metrics:       m,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		retryDelay:    time.Second,
		in:            make(chan publishItem, 64),
	}
}

// Submit queues one poll's output. When the queue is full the item is dropped
// and logged rather than stalling the caller.
func (p *Publisher) Submit(frame models.CaptureFrame, events []models.ChangeEvent) {
	item := publishItem{}
	if p.writer != nil && len(events) > 0 {
		item.events = events
	}
	if p.raw != nil {
		item.frame = &frame
	}
	if item.events == nil && item.frame == nil {
		return
	}
	select {
	case p.in <- item:
	default:
		logger.Warnf("Publisher queue full; dropped %d change events", len(events))
	}
}

// Run drains the queue until ctx is done, flushing on size and on interval.
func (p *Publisher) Run(ctx context.Context) error {
	logger.Infof("Change publisher started")
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	var batchEvents []models.ChangeEvent
	var batchFrames []models.CaptureFrame

	flush := func() {
		if p.writer != nil && len(batchEvents) > 0 {
			if p.retry(ctx, "change events", func() error { return p.writer.WriteChanges(batchEvents) }) {
				batchEvents = nil
			}
		}
		if p.raw != nil && len(batchFrames) > 0 {
			if p.retry(ctx, "capture frames", func() error { return p.raw.WriteFrames(batchFrames) }) {
				batchFrames = nil
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			p.drain(&batchEvents, &batchFrames)
			flush()
			return ctx.Err()
		case <-ticker.C:
			flush()
		case item := <-p.in:
			batchEvents = append(batchEvents, item.events...)
			if item.frame != nil {
				batchFrames = append(batchFrames, *item.frame)
			}
			if len(batchEvents) >= p.batchSize || len(batchFrames) >= p.batchSize {
				flush()
			}
		}
	}
}

func (p *Publisher) drain(events *[]models.ChangeEvent, frames *[]models.CaptureFrame) {
	for {
		select {
		case item := <-p.in:
			*events = append(*events, item.events...)
			if item.frame != nil {
				*frames = append(*frames, *item.frame)
			}
		default:
			return
		}
	}
}

// retry calls write until it succeeds or ctx ends. After ctx ends it makes
// one final attempt so a clean shutdown still flushes.
func (p *Publisher) retry(ctx context.Context, what string, write func() error) bool {
	for {
		err := write()
		if err == nil {
			return true
		}
		p.metrics.SinkFailure()
		logger.Errorf("Failed to write %s: %v", what, err)
		if ctx.Err() != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return write() == nil
		case <-time.After(p.retryDelay):
		}
	}
}

// Close releases the writers.
func (p *Publisher) Close() error {
	if p.raw != nil {
		if err := p.raw.Close(); err != nil {
			logger.Errorf("Failed to close capture writer: %v", err)
		}
	}
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
