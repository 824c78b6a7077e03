package monitor

import (
	"errors"
	"time"

	"netwatch/internal/aggregate"
	"netwatch/internal/changes"
	"netwatch/internal/export"
	"netwatch/internal/snapshot"
	"netwatch/pkg/models"
)

// ErrSourceUnavailable means no snapshot has been published yet. It is
// distinct from an empty snapshot, which is a valid result.
var ErrSourceUnavailable = errors.New("connection source unavailable: no snapshot published yet")

// DefaultChangeLimit is the number of change events returned when the caller
// passes a non-positive limit.
const DefaultChangeLimit = 6

// Refresher triggers an out-of-band poll.
type Refresher interface {
	Refresh() bool
}

// Monitor is the read side exposed to presentation layers. It never blocks
// on a poll in progress.
type Monitor struct {
	store        *snapshot.Store
	log          *changes.Log
	refresher    Refresher
	defaultLimit int
	now          func() time.Time
}

// New creates a Monitor. refresher may be nil.
func New(store *snapshot.Store, log *changes.Log, refresher Refresher, defaultLimit int) *Monitor {
	if defaultLimit <= 0 {
		defaultLimit = DefaultChangeLimit
	}
	return &Monitor{
		store:        store,
		log:          log,
		refresher:    refresher,
		defaultLimit: defaultLimit,
		now:          time.Now,
	}
}

// Snapshot returns the current snapshot.
func (m *Monitor) Snapshot() (*models.Snapshot, error) {
	snap, ok := m.store.Current()
	if !ok {
		return nil, ErrSourceUnavailable
	}
	return snap, nil
}

// Connections returns the current snapshot's connections in identity order.
func (m *Monitor) Connections() ([]models.Connection, error) {
	snap, err := m.Snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]models.Connection, len(snap.Connections))
	copy(out, snap.Connections)
	return out, nil
}

// RecentChanges returns up to limit events, newest first.
func (m *Monitor) RecentChanges(limit int) []models.ChangeEvent {
	if limit <= 0 {
		limit = m.defaultLimit
	}
	return m.log.Recent(limit)
}

// LogStats describes the change log's fill level.
type LogStats struct {
	Size     int   `json:"size"`
	Total    int64 `json:"total"`
	Capacity int   `json:"capacity"`
}

// ChangeLogStats reports the change log fill level against its capacity.
func (m *Monitor) ChangeLogStats() LogStats {
	return LogStats{Size: m.log.Len(), Total: m.log.Total(), Capacity: m.log.Capacity()}
}

// ProcessSummaries summarizes the current snapshot by owning process.
func (m *Monitor) ProcessSummaries() ([]models.ProcessSummary, error) {
	snap, err := m.Snapshot()
	if err != nil {
		return nil, err
	}
	return aggregate.ByProcess(snap), nil
}

// PortSummaries summarizes the current snapshot by remote port.
func (m *Monitor) PortSummaries() ([]models.PortSummary, error) {
	snap, err := m.Snapshot()
	if err != nil {
		return nil, err
	}
	return aggregate.ByPort(snap), nil
}

// ExportView returns the serializable view of the current snapshot.
func (m *Monitor) ExportView() (export.Document, error) {
	conns, err := m.Connections()
	if err != nil {
		return export.Document{}, err
	}
	return export.Document{Connections: conns, ExportedAt: m.now().UTC()}, nil
}

// ExportSnapshot writes the current snapshot to dir and returns the file path.
func (m *Monitor) ExportSnapshot(dir string, format export.Format) (string, error) {
	view, err := m.ExportView()
	if err != nil {
		return "", err
	}
	return export.WriteFile(dir, format, view.Connections, view.ExportedAt)
}

// Refresh requests an immediate poll. It reports false when there is no
// scheduler or the request was discarded.
func (m *Monitor) Refresh() bool {
	if m.refresher == nil {
		return false
	}
	return m.refresher.Refresh()
}
