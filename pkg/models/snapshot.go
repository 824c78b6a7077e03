package models

import (
	"slices"
	"time"
)

// Snapshot is an immutable, ordered set of connections captured at one poll tick.
type Snapshot struct {
	Seq         uint64       `json:"seq"`
	CapturedAt  time.Time    `json:"capturedAt"`
	Connections []Connection `json:"connections"`
}

// NewSnapshot sorts the connections by identity and wraps them.
func NewSnapshot(seq uint64, capturedAt time.Time, conns []Connection) *Snapshot {
	sorted := slices.Clone(conns)
	slices.SortStableFunc(sorted, func(a, b Connection) int {
		return a.Identity().Compare(b.Identity())
	})
	return &Snapshot{Seq: seq, CapturedAt: capturedAt, Connections: sorted}
}

// Len returns the number of connections, tolerating a nil snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Connections)
}

// CaptureFrame is one poll's raw tuples as recorded for replay.
type CaptureFrame struct {
	Timestamp   time.Time       `json:"ts"`
	Connections []RawConnection `json:"connections"`
}
