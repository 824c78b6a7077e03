package monitor

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"netwatch/internal/changes"
	"netwatch/internal/export"
	"netwatch/internal/snapshot"
	"netwatch/pkg/models"
)

type countingRefresher struct{ calls int }

func (c *countingRefresher) Refresh() bool {
	c.calls++
	return true
}

func conn(pid int32, name string, rport uint16, risk models.RiskLevel) models.Connection {
	return models.NewConnection(models.RawConnection{
		Protocol: "TCP", LocalAddr: "10.0.0.5", LocalPort: uint16(30000 + pid),
		RemoteAddr: "198.51.100.7", RemotePort: rport, State: "ESTABLISHED",
		PID: pid, ProcessName: name,
	}, risk, nil, time.Unix(100, 0))
}

func TestConnectionsBeforeFirstPublish(t *testing.T) {
	m := New(snapshot.NewStore(), changes.NewLog(10), nil, 0)
	if _, err := m.Connections(); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if _, err := m.ProcessSummaries(); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if _, err := m.ExportSnapshot(t.TempDir(), export.FormatJSON); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestEmptySnapshotIsNotUnavailable(t *testing.T) {
	store := snapshot.NewStore()
	store.Publish(models.NewSnapshot(1, time.Unix(100, 0), nil))
	m := New(store, changes.NewLog(10), nil, 0)

	conns, err := m.Connections()
	if err != nil {
		t.Fatalf("expected empty snapshot to be valid, got %v", err)
	}
	if len(conns) != 0 {
		t.Fatalf("expected no connections, got %d", len(conns))
	}
}

func TestConnectionsReturnsCopy(t *testing.T) {
	store := snapshot.NewStore()
	store.Publish(models.NewSnapshot(1, time.Unix(100, 0), []models.Connection{conn(1, "a", 443, models.RiskLow)}))
	m := New(store, changes.NewLog(10), nil, 0)

	conns, _ := m.Connections()
	conns[0].ProcessName = "mutated"
	again, _ := m.Connections()
	if again[0].ProcessName != "a" {
		t.Fatalf("expected snapshot to be unaffected by caller mutation")
	}
}

func TestRecentChangesDefaultLimit(t *testing.T) {
	log := changes.NewLog(50)
	for i := 0; i < 10; i++ {
		log.Append(models.ChangeEvent{ID: fmt.Sprintf("e%d", i), Kind: models.ChangeNew})
	}
	m := New(snapshot.NewStore(), log, nil, 0)

	got := m.RecentChanges(0)
	if len(got) != DefaultChangeLimit {
		t.Fatalf("expected %d events, got %d", DefaultChangeLimit, len(got))
	}
	if got[0].ID != "e9" {
		t.Fatalf("expected newest first, got %s", got[0].ID)
	}
	if got := m.RecentChanges(3); len(got) != 3 || got[2].ID != "e7" {
		t.Fatalf("unexpected limited result: %+v", got)
	}
	if stats := m.ChangeLogStats(); stats != (LogStats{Size: 10, Total: 10, Capacity: 50}) {
		t.Fatalf("unexpected log stats: %+v", stats)
	}
}

func TestSummariesAndExport(t *testing.T) {
	store := snapshot.NewStore()
	store.Publish(models.NewSnapshot(3, time.Unix(100, 0), []models.Connection{
		conn(1, "curl", 443, models.RiskLow),
		conn(2, "nc", 4444, models.RiskHigh),
		conn(3, "curl", 443, models.RiskMedium),
	}))
	ref := &countingRefresher{}
	m := New(store, changes.NewLog(10), ref, 0)
	m.now = func() time.Time { return time.Unix(1_760_000_000, 0) }

	ports, err := m.PortSummaries()
	if err != nil {
		t.Fatalf("ports: %v", err)
	}
	if len(ports) != 2 || ports[0].Port != 443 || ports[0].ConnectionCount != 2 || ports[0].MaxRisk != models.RiskMedium {
		t.Fatalf("unexpected port summaries: %+v", ports)
	}
	procs, _ := m.ProcessSummaries()
	if len(procs) != 3 {
		t.Fatalf("expected one summary per pid, got %+v", procs)
	}

	path, err := m.ExportSnapshot(t.TempDir(), export.FormatJSON)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filepath.Base(path) != "netwatch_connections_1760000000.json" {
		t.Fatalf("unexpected export path %s", path)
	}

	if !m.Refresh() || ref.calls != 1 {
		t.Fatalf("expected refresh to reach the scheduler")
	}
	if New(store, changes.NewLog(1), nil, 0).Refresh() {
		t.Fatalf("expected refresh without scheduler to report false")
	}
}
