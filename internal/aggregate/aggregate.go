package aggregate

import (
	"cmp"
	"slices"

	"netwatch/pkg/models"
)

// ByProcess groups the snapshot's connections by pid. The display name is the
// first non-empty process name seen in snapshot order.
func ByProcess(snap *models.Snapshot) []models.ProcessSummary {
	if snap == nil {
		return nil
	}
	groups := make(map[int32]*models.ProcessSummary)
	for _, c := range snap.Connections {
		g := groups[c.PID]
		if g == nil {
			g = &models.ProcessSummary{PID: c.PID, MaxRisk: c.Risk}
			groups[c.PID] = g
		}
		if g.Name == "" {
			g.Name = c.ProcessName
		}
		g.ConnectionCount++
		g.MaxRisk = g.MaxRisk.Max(c.Risk)
	}

	out := make([]models.ProcessSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b models.ProcessSummary) int {
		if c := cmp.Compare(b.ConnectionCount, a.ConnectionCount); c != 0 {
			return c
		}
		return cmp.Compare(a.PID, b.PID)
	})
	return out
}

// ByPort groups the snapshot's connections by remote port, skipping port 0
// (listeners and unconnected sockets). The protocol shown is the first seen.
func ByPort(snap *models.Snapshot) []models.PortSummary {
	if snap == nil {
		return nil
	}
	groups := make(map[uint16]*models.PortSummary)
	for _, c := range snap.Connections {
		if c.RemotePort == 0 {
			continue
		}
		g := groups[c.RemotePort]
		if g == nil {
			g = &models.PortSummary{Port: c.RemotePort, Protocol: c.Protocol, MaxRisk: c.Risk}
			groups[c.RemotePort] = g
		}
		g.ConnectionCount++
		g.MaxRisk = g.MaxRisk.Max(c.Risk)
	}

	out := make([]models.PortSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b models.PortSummary) int {
		if c := cmp.Compare(b.ConnectionCount, a.ConnectionCount); c != 0 {
			return c
		}
		return cmp.Compare(a.Port, b.Port)
	})
	return out
}
