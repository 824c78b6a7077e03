package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"netwatch/internal/aggregate"
	"netwatch/internal/changes"
	"netwatch/internal/logger"
	"netwatch/internal/metrics"
	"netwatch/internal/risk"
	"netwatch/internal/snapshot"
	"netwatch/internal/source"
	"netwatch/pkg/models"
)

// State is the poll loop state.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateBackoff:
		return "backoff"
	default:
		return "idle"
	}
}

var stateNames = []string{StateIdle.String(), StatePolling.String(), StateBackoff.String()}

// ErrPollInProgress is returned when a poll is requested while one is running.
// The request is discarded, not queued.
var ErrPollInProgress = errors.New("poll already in progress")

// Config controls poll timing.
type Config struct {
	Interval       time.Duration
	Timeout        time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Sink receives each successful poll's raw frame and change events.
type Sink interface {
	Submit(frame models.CaptureFrame, events []models.ChangeEvent)
}

// Scheduler drives poll cycles and is the only writer of the snapshot store
// and the change log.
type Scheduler struct {
	cfg        Config
	source     source.Source
	classifier *risk.Classifier
	store      *snapshot.Store
	detector   *changes.Detector
	log        *changes.Log
	sink       Sink
	metrics    *metrics.Metrics
	clock      Clock

	state    atomic.Int32
	inFlight atomic.Bool
	refresh  chan struct{}

	mu        sync.Mutex
	seq       uint64
	failures  int
	lastErr   error
	nextRetry time.Duration
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithSink forwards poll output to an external sink.
func WithSink(sink Sink) Option { return func(s *Scheduler) { s.sink = sink } }

// WithMetrics records poll metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

// New creates a scheduler.
func New(cfg Config, src source.Source, classifier *risk.Classifier, store *snapshot.Store, detector *changes.Detector, log *changes.Log, opts ...Option) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = 30 * time.Second
		if cfg.BackoffMax < cfg.BackoffInitial {
			cfg.BackoffMax = cfg.BackoffInitial
		}
	}
	s := &Scheduler{
		cfg:        cfg,
		source:     src,
		classifier: classifier,
		store:      store,
		detector:   detector,
		log:        log,
		clock:      RealClock,
		refresh:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setState(StateIdle)
	return s
}

// State returns the current state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// LastError returns the error of the most recent failed poll, cleared on success.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
	s.metrics.SetState(st.String(), stateNames)
}

// Refresh asks the loop for an immediate poll. It returns false when the
// request was discarded because a poll is running, one is already pending,
// or the loop is backing off.
func (s *Scheduler) Refresh() bool {
	if s.inFlight.Load() || s.State() == StateBackoff {
		s.metrics.DroppedTick()
		return false
	}
	select {
	case s.refresh <- struct{}{}:
		return true
	default:
		s.metrics.DroppedTick()
		return false
	}
}

// Run polls immediately, then on every interval, backing off after failures,
// until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Infof("Poll scheduler started: interval=%s timeout=%s", s.cfg.Interval, s.cfg.Timeout)
	s.Poll(ctx)

	timer := s.clock.After(s.nextDelay())
	for {
		select {
		case <-ctx.Done():
			logger.Infof("Poll scheduler stopped")
			return ctx.Err()
		case <-s.refresh:
			if s.State() == StateBackoff {
				continue
			}
		case <-timer:
		}
		s.Poll(ctx)
		timer = s.clock.After(s.nextDelay())
	}
}

func (s *Scheduler) nextDelay() time.Duration {
	if s.State() == StateBackoff {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.nextRetry
	}
	return s.cfg.Interval
}

// backoffFor returns initial * 2^(failures-1), capped at BackoffMax.
func (s *Scheduler) backoffFor(failures int) time.Duration {
	d := s.cfg.BackoffInitial
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= s.cfg.BackoffMax {
			return s.cfg.BackoffMax
		}
	}
	if d > s.cfg.BackoffMax {
		d = s.cfg.BackoffMax
	}
	return d
}

// Poll runs one cycle: fetch, classify, publish, diff, aggregate. A failed
// fetch keeps the previous snapshot and moves to backoff. If ctx ends while
// the source is still answering, the cycle is abandoned and nothing is published.
func (s *Scheduler) Poll(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.DroppedTick()
		return ErrPollInProgress
	}
	defer s.inFlight.Store(false)

	prevState := s.State()
	s.setState(StatePolling)
	started := time.Now()

	raws, err := s.fetch(ctx)
	if ctx.Err() != nil {
		s.setState(prevState)
		s.metrics.ObservePoll("abandoned", time.Since(started))
		logger.Debugf("Poll abandoned: %v", ctx.Err())
		return ctx.Err()
	}
	if err != nil {
		s.fail(err)
		s.metrics.ObservePoll("failure", time.Since(started))
		return err
	}

	snap := s.build(raws)
	prev := s.store.Publish(snap)
	events := s.detector.Diff(prev, snap)
	s.log.Append(events...)

	processes := aggregate.ByProcess(snap)
	ports := aggregate.ByPort(snap)
	s.metrics.ObserveSnapshot(snap, len(processes), len(ports))
	s.metrics.ObserveEvents(events)
	if s.sink != nil {
		s.sink.Submit(models.CaptureFrame{Timestamp: snap.CapturedAt, Connections: raws}, events)
	}

	s.mu.Lock()
	if s.failures > 0 {
		logger.Infof("Connection source recovered after %d failures", s.failures)
	}
	s.failures = 0
	s.lastErr = nil
	s.nextRetry = 0
	s.mu.Unlock()
	s.metrics.SetBackoff(0)
	s.setState(StateIdle)
	s.metrics.ObservePoll("success", time.Since(started))

	logger.Debugf("Published snapshot %d: connections=%d events=%d processes=%d ports=%d",
		snap.Seq, snap.Len(), len(events), len(processes), len(ports))
	return nil
}

// fetch calls the source under the poll deadline. The source runs in its own
// goroutine so a source that ignores its context still cannot hold the loop
// past the deadline; a late answer is discarded.
func (s *Scheduler) fetch(ctx context.Context) ([]models.RawConnection, error) {
	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	type result struct {
		raws []models.RawConnection
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		raws, err := s.source.Connections(pollCtx)
		ch <- result{raws: raws, err: err}
	}()

	select {
	case <-pollCtx.Done():
		return nil, source.Wrap("poll", pollCtx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, source.Wrap("poll", r.err)
		}
		return r.raws, nil
	}
}

func (s *Scheduler) fail(err error) {
	s.mu.Lock()
	s.failures++
	s.lastErr = err
	s.nextRetry = s.backoffFor(s.failures)
	failures, delay := s.failures, s.nextRetry
	s.mu.Unlock()

	s.metrics.SetBackoff(delay)
	s.setState(StateBackoff)
	logger.Warnf("Poll failed (attempt %d), retrying in %s: %v", failures, delay, err)
}

// build classifies raws into the next snapshot. Duplicate identities keep
// the first tuple.
func (s *Scheduler) build(raws []models.RawConnection) *models.Snapshot {
	now := s.clock.Now()
	seen := make(map[models.Identity]struct{}, len(raws))
	conns := make([]models.Connection, 0, len(raws))
	for _, raw := range raws {
		raw.Protocol = models.NormalizeProtocol(raw.Protocol)
		raw.State = models.NormalizeState(raw.State)
		id := raw.Identity()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		conns = append(conns, s.classifier.Connection(raw, now))
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	return models.NewSnapshot(seq, now, conns)
}
