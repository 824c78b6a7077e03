package aggregate

import (
	"math/rand"
	"testing"
	"time"

	"netwatch/pkg/models"
)

var at = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func c(pid int32, name string, rport uint16, risk models.RiskLevel) models.Connection {
	raw := models.RawConnection{
		Protocol:    models.ProtocolTCP,
		LocalAddr:   "10.0.0.2",
		LocalPort:   uint16(50000 + int(pid) + int(rport)),
		RemoteAddr:  "198.51.100.1",
		RemotePort:  rport,
		State:       models.StateEstablished,
		PID:         pid,
		ProcessName: name,
	}
	return models.NewConnection(raw, risk, nil, at)
}

func TestByProcessCountsAndMaxRisk(t *testing.T) {
	snap := models.NewSnapshot(1, at, []models.Connection{
		c(12456, "chrome.exe", 443, models.RiskLow),
		c(12456, "chrome.exe", 80, models.RiskMedium),
		c(12456, "chrome.exe", 8443, models.RiskLow),
		c(6677, "suspicious.exe", 4444, models.RiskHigh),
		c(8842, "discord.exe", 443, models.RiskLow),
	})

	got := ByProcess(snap)
	if len(got) != 3 {
		t.Fatalf("expected 3 processes, got %d", len(got))
	}
	if got[0].PID != 12456 || got[0].ConnectionCount != 3 || got[0].MaxRisk != models.RiskMedium || got[0].Name != "chrome.exe" {
		t.Fatalf("unexpected first summary: %+v", got[0])
	}
	// Ties on count break by pid ascending.
	if got[1].PID != 6677 || got[2].PID != 8842 {
		t.Fatalf("unexpected tie order: %+v", got)
	}
	if got[1].MaxRisk != models.RiskHigh {
		t.Fatalf("expected high max risk, got %s", got[1].MaxRisk)
	}
}

func TestByPortSkipsZeroAndOrders(t *testing.T) {
	listener := models.NewConnection(models.RawConnection{Protocol: "TCP", LocalAddr: "127.0.0.1", LocalPort: 3000, RemoteAddr: "0.0.0.0", State: models.StateListening, PID: 15200, ProcessName: "node.exe"}, models.RiskLow, nil, at)
	snap := models.NewSnapshot(1, at, []models.Connection{
		listener,
		c(1, "a", 443, models.RiskLow),
		c(2, "b", 443, models.RiskMedium),
		c(3, "c", 4444, models.RiskHigh),
		c(4, "d", 22, models.RiskMedium),
	})

	got := ByPort(snap)
	if len(got) != 3 {
		t.Fatalf("expected 3 ports, got %+v", got)
	}
	if got[0].Port != 443 || got[0].ConnectionCount != 2 || got[0].MaxRisk != models.RiskMedium {
		t.Fatalf("unexpected first port: %+v", got[0])
	}
	if got[1].Port != 22 || got[2].Port != 4444 {
		t.Fatalf("expected ties ordered by port, got %+v", got)
	}
}

func TestProcessCountsSumToSnapshotSize(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		n := r.Intn(60)
		conns := make([]models.Connection, n)
		for i := range conns {
			conns[i] = c(int32(r.Intn(10)), "p", uint16(r.Intn(4)), models.RiskLevel(r.Intn(3)))
		}
		snap := models.NewSnapshot(uint64(round), at, conns)

		total := 0
		for _, s := range ByProcess(snap) {
			total += s.ConnectionCount
		}
		if total != snap.Len() {
			t.Fatalf("round %d: process counts sum to %d, snapshot has %d", round, total, snap.Len())
		}
	}
}

func TestNilSnapshot(t *testing.T) {
	if ByProcess(nil) != nil || ByPort(nil) != nil {
		t.Fatalf("expected nil summaries for nil snapshot")
	}
}
