package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RawConnection is one socket tuple as reported by a connection source.
type RawConnection struct {
	Protocol    string `json:"protocol"`
	LocalAddr   string `json:"localAddr"`
	LocalPort   uint16 `json:"localPort"`
	RemoteAddr  string `json:"remoteAddr"`
	RemotePort  uint16 `json:"remotePort"`
	State       string `json:"state"`
	PID         int32  `json:"pid"`
	ProcessName string `json:"processName"`
}

// Identity returns the diff key of the raw tuple.
func (r RawConnection) Identity() Identity {
	return Identity{
		Protocol:   r.Protocol,
		LocalAddr:  r.LocalAddr,
		LocalPort:  r.LocalPort,
		RemoteAddr: r.RemoteAddr,
		RemotePort: r.RemotePort,
		PID:        r.PID,
	}
}

// Identity is the composite key used to match connections across snapshots.
type Identity struct {
	Protocol   string `json:"protocol"`
	LocalAddr  string `json:"localAddr"`
	LocalPort  uint16 `json:"localPort"`
	RemoteAddr string `json:"remoteAddr"`
	RemotePort uint16 `json:"remotePort"`
	PID        int32  `json:"pid"`
}

// String renders the identity as proto|laddr|lport|raddr|rport|pid.
func (id Identity) String() string {
	var b strings.Builder
	b.WriteString(id.Protocol)
	b.WriteByte('|')
	b.WriteString(id.LocalAddr)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(int(id.LocalPort)))
	b.WriteByte('|')
	b.WriteString(id.RemoteAddr)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(int(id.RemotePort)))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(int(id.PID)))
	return b.String()
}

// Compare orders identities field by field.
func (id Identity) Compare(other Identity) int {
	if c := strings.Compare(id.Protocol, other.Protocol); c != 0 {
		return c
	}
	if c := strings.Compare(id.LocalAddr, other.LocalAddr); c != 0 {
		return c
	}
	if c := compareInt(int(id.LocalPort), int(other.LocalPort)); c != 0 {
		return c
	}
	if c := strings.Compare(id.RemoteAddr, other.RemoteAddr); c != 0 {
		return c
	}
	if c := compareInt(int(id.RemotePort), int(other.RemotePort)); c != 0 {
		return c
	}
	return compareInt(int(id.PID), int(other.PID))
}

// ParseIdentity is the inverse of Identity.String.
func ParseIdentity(raw string) (Identity, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != 6 {
		return Identity{}, fmt.Errorf("identity %q: expected 6 fields, got %d", raw, len(parts))
	}
	lport, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return Identity{}, fmt.Errorf("identity %q: local port: %w", raw, err)
	}
	rport, err := strconv.ParseUint(parts[4], 10, 16)
	if err != nil {
		return Identity{}, fmt.Errorf("identity %q: remote port: %w", raw, err)
	}
	pid, err := strconv.ParseInt(parts[5], 10, 32)
	if err != nil {
		return Identity{}, fmt.Errorf("identity %q: pid: %w", raw, err)
	}
	return Identity{
		Protocol:   parts[0],
		LocalAddr:  parts[1],
		LocalPort:  uint16(lport),
		RemoteAddr: parts[3],
		RemotePort: uint16(rport),
		PID:        int32(pid),
	}, nil
}

// Connection is one classified socket observed at one poll tick.
// Values are never mutated after construction.
type Connection struct {
	ID          string    `json:"id"`
	ProcessName string    `json:"processName"`
	PID         int32     `json:"pid"`
	Protocol    string    `json:"protocol"`
	LocalAddr   string    `json:"localAddr"`
	LocalPort   uint16    `json:"localPort"`
	RemoteAddr  string    `json:"remoteAddr"`
	RemotePort  uint16    `json:"remotePort"`
	State       string    `json:"state"`
	Risk        RiskLevel `json:"risk"`
	RiskReasons []string  `json:"riskReasons"`
	CapturedAt  time.Time `json:"capturedAt"`
}

// NewConnection builds a classified connection from a raw tuple.
func NewConnection(raw RawConnection, risk RiskLevel, reasons []string, capturedAt time.Time) Connection {
	r := make([]string, len(reasons))
	copy(r, reasons)
	return Connection{
		ID:          raw.Identity().String(),
		ProcessName: raw.ProcessName,
		PID:         raw.PID,
		Protocol:    raw.Protocol,
		LocalAddr:   raw.LocalAddr,
		LocalPort:   raw.LocalPort,
		RemoteAddr:  raw.RemoteAddr,
		RemotePort:  raw.RemotePort,
		State:       raw.State,
		Risk:        risk,
		RiskReasons: r,
		CapturedAt:  capturedAt,
	}
}

// Identity returns the diff key of the connection.
func (c Connection) Identity() Identity {
	return c.Raw().Identity()
}

// Raw strips the derived fields.
func (c Connection) Raw() RawConnection {
	return RawConnection{
		Protocol:    c.Protocol,
		LocalAddr:   c.LocalAddr,
		LocalPort:   c.LocalPort,
		RemoteAddr:  c.RemoteAddr,
		RemotePort:  c.RemotePort,
		State:       c.State,
		PID:         c.PID,
		ProcessName: c.ProcessName,
	}
}

// IsListener reports whether the socket is a listener rather than a peer connection.
func (r RawConnection) IsListener() bool {
	state := strings.ToUpper(r.State)
	return state == StateListen || state == StateListening
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
