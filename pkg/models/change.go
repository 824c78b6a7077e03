package models

import "time"

// ChangeKind classifies a change event.
type ChangeKind string

const (
	ChangeNew     ChangeKind = "new"
	ChangeChanged ChangeKind = "changed"
	ChangeClosed  ChangeKind = "closed"
)

// ChangeEvent records one difference between two successive snapshots.
type ChangeEvent struct {
	ID          string     `json:"id"`
	Kind        ChangeKind `json:"kind"`
	Identity    Identity   `json:"connectionIdentity"`
	Message     string     `json:"message"`
	Timestamp   time.Time  `json:"timestamp"`
	ProcessName string     `json:"processName"`
	Seq         uint64     `json:"seq"`
}

// ProcessSummary aggregates the connections owned by one pid.
type ProcessSummary struct {
	PID             int32     `json:"pid"`
	Name            string    `json:"name"`
	ConnectionCount int       `json:"connectionCount"`
	MaxRisk         RiskLevel `json:"maxRisk"`
}

// PortSummary aggregates the connections targeting one remote port.
type PortSummary struct {
	Port            uint16    `json:"port"`
	Protocol        string    `json:"protocol"`
	ConnectionCount int       `json:"connectionCount"`
	MaxRisk         RiskLevel `json:"maxRisk"`
}
