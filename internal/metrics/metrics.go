package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"netwatch/pkg/models"
)

const namespace = "netwatch"

// Metrics holds the poll loop collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	polls          *prometheus.CounterVec
	pollDuration   prometheus.Histogram
	droppedTicks   prometheus.Counter
	schedulerState *prometheus.GaugeVec
	backoffSeconds prometheus.Gauge
	connections    *prometheus.GaugeVec
	processes      prometheus.Gauge
	remotePorts    prometheus.Gauge
	snapshotSeq    prometheus.Gauge
	changeEvents   *prometheus.CounterVec
	sinkFailures   prometheus.Counter
}

// New registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll cycles by result (success, failure, abandoned).",
		}, []string{"result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Wall time of poll cycles, including classification.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		droppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_ticks_total",
			Help:      "Refresh requests discarded because a poll was already running.",
		}),
		schedulerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_state",
			Help:      "1 for the scheduler's current state, 0 otherwise.",
		}, []string{"state"}),
		backoffSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backoff_seconds",
			Help:      "Delay before the next retry while in backoff.",
		}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Connections in the current snapshot by risk level.",
		}, []string{"risk"}),
		processes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processes",
			Help:      "Distinct owning processes in the current snapshot.",
		}),
		remotePorts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remote_ports",
			Help:      "Distinct remote ports in the current snapshot.",
		}),
		snapshotSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_sequence",
			Help:      "Sequence number of the current snapshot.",
		}),
		changeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_events_total",
			Help:      "Change events emitted by kind.",
		}, []string{"kind"}),
		sinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_write_failures_total",
			Help:      "Failed attempts to write change events to the configured sink.",
		}),
	}
	m.registry.MustRegister(
		m.polls, m.pollDuration, m.droppedTicks, m.schedulerState, m.backoffSeconds,
		m.connections, m.processes, m.remotePorts, m.snapshotSeq, m.changeEvents, m.sinkFailures,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePoll records one finished poll.
func (m *Metrics) ObservePoll(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
	m.pollDuration.Observe(took.Seconds())
}

// DroppedTick counts a discarded refresh request.
func (m *Metrics) DroppedTick() {
	if m == nil {
		return
	}
	m.droppedTicks.Inc()
}

// SetState marks state as the current scheduler state among all.
func (m *Metrics) SetState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.schedulerState.WithLabelValues(s).Set(v)
	}
}

// SetBackoff records the pending retry delay; zero when not backing off.
func (m *Metrics) SetBackoff(d time.Duration) {
	if m == nil {
		return
	}
	m.backoffSeconds.Set(d.Seconds())
}

// ObserveSnapshot records the shape of a freshly published snapshot.
func (m *Metrics) ObserveSnapshot(snap *models.Snapshot, processes, ports int) {
	if m == nil || snap == nil {
		return
	}
	counts := map[models.RiskLevel]int{}
	for _, c := range snap.Connections {
		counts[c.Risk]++
	}
	for _, lvl := range []models.RiskLevel{models.RiskLow, models.RiskMedium, models.RiskHigh} {
		m.connections.WithLabelValues(lvl.String()).Set(float64(counts[lvl]))
	}
	m.processes.Set(float64(processes))
	m.remotePorts.Set(float64(ports))
	m.snapshotSeq.Set(float64(snap.Seq))
}

// ObserveEvents counts emitted change events by kind.
func (m *Metrics) ObserveEvents(events []models.ChangeEvent) {
	if m == nil {
		return
	}
	for _, ev := range events {
		m.changeEvents.WithLabelValues(string(ev.Kind)).Inc()
	}
}

// SinkFailure counts a failed sink write.
func (m *Metrics) SinkFailure() {
	if m == nil {
		return
	}
	m.sinkFailures.Inc()
}
