package changes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"netwatch/pkg/models"
)

// Detector diffs successive snapshots keyed by connection identity.
type Detector struct {
	newID func() string
}

// NewDetector creates a detector that stamps events with random UUIDs.
func NewDetector() *Detector {
	return &Detector{newID: uuid.NewString}
}

// Initial reports every connection of the first snapshot as new. There is no
// earlier observation, so nothing can be closed or changed.
func (d *Detector) Initial(cur *models.Snapshot) []models.ChangeEvent {
	if cur == nil || len(cur.Connections) == 0 {
		return nil
	}
	events := make([]models.ChangeEvent, 0, len(cur.Connections))
	for _, c := range sortedByCapture(index(cur)) {
		events = append(events, d.event(models.ChangeNew, c, newMessage(c), cur))
	}
	return events
}

// Diff returns the events that turn prev into cur: new, then changed, then
// closed, each group ordered by capture time and identity. A nil prev means
// this is the first poll and delegates to Initial.
func (d *Detector) Diff(prev, cur *models.Snapshot) []models.ChangeEvent {
	if prev == nil {
		return d.Initial(cur)
	}
	if cur == nil {
		cur = &models.Snapshot{Seq: prev.Seq, CapturedAt: prev.CapturedAt}
	}

	before := index(prev)
	after := index(cur)

	var added, changed, closed []models.Connection
	for id, c := range after {
		old, ok := before[id]
		if !ok {
			added = append(added, c)
			continue
		}
		if old.State != c.State || old.Risk != c.Risk {
			changed = append(changed, c)
		}
	}
	for id, c := range before {
		if _, ok := after[id]; !ok {
			closed = append(closed, c)
		}
	}
	sortConnections(added)
	sortConnections(changed)
	sortConnections(closed)

	events := make([]models.ChangeEvent, 0, len(added)+len(changed)+len(closed))
	for _, c := range added {
		events = append(events, d.event(models.ChangeNew, c, newMessage(c), cur))
	}
	for _, c := range changed {
		events = append(events, d.event(models.ChangeChanged, c, changedMessage(before[c.Identity()], c), cur))
	}
	for _, c := range closed {
		events = append(events, d.event(models.ChangeClosed, c, closedMessage(c), cur))
	}
	return events
}

func (d *Detector) event(kind models.ChangeKind, c models.Connection, msg string, cur *models.Snapshot) models.ChangeEvent {
	return models.ChangeEvent{
		ID:          d.newID(),
		Kind:        kind,
		Identity:    c.Identity(),
		Message:     msg,
		Timestamp:   cur.CapturedAt,
		ProcessName: c.ProcessName,
		Seq:         cur.Seq,
	}
}

// index maps identity to connection. If a source reported the same identity
// twice, the first record wins.
func index(snap *models.Snapshot) map[models.Identity]models.Connection {
	m := make(map[models.Identity]models.Connection, len(snap.Connections))
	for _, c := range snap.Connections {
		id := c.Identity()
		if _, dup := m[id]; dup {
			continue
		}
		m[id] = c
	}
	return m
}

func sortedByCapture(m map[models.Identity]models.Connection) []models.Connection {
	out := make([]models.Connection, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sortConnections(out)
	return out
}

func sortConnections(conns []models.Connection) {
	slices.SortFunc(conns, func(a, b models.Connection) int {
		if c := a.CapturedAt.Compare(b.CapturedAt); c != 0 {
			return c
		}
		return a.Identity().Compare(b.Identity())
	})
}

func displayName(c models.Connection) string {
	name := strings.TrimSpace(c.ProcessName)
	if name == "" {
		return fmt.Sprintf("pid %d", c.PID)
	}
	return name
}

func peer(c models.Connection) string {
	s := fmt.Sprintf("%s:%d", c.RemoteAddr, c.RemotePort)
	if c.Protocol == models.ProtocolUDP {
		s += " (UDP)"
	}
	return s
}

func newMessage(c models.Connection) string {
	if c.Raw().IsListener() {
		return fmt.Sprintf("New listener: %s on port %d", displayName(c), c.LocalPort)
	}
	return fmt.Sprintf("New connection: %s → %s", displayName(c), peer(c))
}

func closedMessage(c models.Connection) string {
	if c.Raw().IsListener() {
		return fmt.Sprintf("Listener closed: %s on port %d", displayName(c), c.LocalPort)
	}
	return fmt.Sprintf("Connection closed: %s → %s", displayName(c), peer(c))
}

func changedMessage(old, cur models.Connection) string {
	var parts []string
	if old.State != cur.State {
		parts = append(parts, fmt.Sprintf("State change: %s %s → %s", displayName(cur), old.State, cur.State))
	}
	if old.Risk != cur.Risk {
		parts = append(parts, fmt.Sprintf("Risk change: %s %s → %s", displayName(cur), old.Risk, cur.Risk))
	}
	return strings.Join(parts, "; ")
}
