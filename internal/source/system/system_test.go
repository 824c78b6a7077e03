package system

import (
	"context"
	"errors"
	"syscall"
	"testing"

	psnet "github.com/shirou/gopsutil/v4/net"

	"netwatch/internal/source"
	"netwatch/pkg/models"
)

func TestNewRejectsUnknownKind(t *testing.T) {
	if _, err := New(Config{Kind: "sctp"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	s, err := New(Config{})
	if err != nil || s.kind != "inet" {
		t.Fatalf("expected inet default, got %+v %v", s, err)
	}
}

func TestConnectionsConvertsAndCachesNames(t *testing.T) {
	lookups := 0
	s := &Source{
		kind: "inet",
		connections: func(ctx context.Context, kind string) ([]psnet.ConnectionStat, error) {
			return []psnet.ConnectionStat{
				{Family: syscall.AF_INET, Type: syscall.SOCK_STREAM, Laddr: psnet.Addr{IP: "10.0.0.5", Port: 55100}, Raddr: psnet.Addr{IP: "203.0.113.9", Port: 4444}, Status: "ESTABLISHED", Pid: 200},
				{Family: syscall.AF_INET, Type: syscall.SOCK_STREAM, Laddr: psnet.Addr{IP: "0.0.0.0", Port: 22}, Status: "LISTEN", Pid: 200},
				{Family: syscall.AF_INET6, Type: syscall.SOCK_DGRAM, Laddr: psnet.Addr{IP: "::", Port: 5353}, Status: "NONE", Pid: 0},
			}, nil
		},
		processName: func(ctx context.Context, pid int32) (string, error) {
			lookups++
			return "sshd", nil
		},
	}

	got, err := s.Connections(context.Background())
	if err != nil {
		t.Fatalf("connections: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 tuples, got %d", len(got))
	}
	if lookups != 1 {
		t.Fatalf("expected one name lookup per pid, got %d", lookups)
	}
	want := models.RawConnection{Protocol: "TCP", LocalAddr: "10.0.0.5", LocalPort: 55100, RemoteAddr: "203.0.113.9", RemotePort: 4444, State: "ESTABLISHED", PID: 200, ProcessName: "sshd"}
	if got[0] != want {
		t.Fatalf("unexpected tuple:\n got %+v\nwant %+v", got[0], want)
	}
	if got[1].State != models.StateListening || got[1].RemoteAddr != "0.0.0.0" {
		t.Fatalf("unexpected listener tuple: %+v", got[1])
	}
	if got[2].Protocol != "UDP" || got[2].RemoteAddr != "::" || got[2].ProcessName != "" {
		t.Fatalf("unexpected udp tuple: %+v", got[2])
	}
}

func TestConnectionsWrapsFailures(t *testing.T) {
	s := &Source{
		kind: "inet",
		connections: func(ctx context.Context, kind string) ([]psnet.ConnectionStat, error) {
			return nil, errors.New("netlink: operation not permitted")
		},
		processName: lookupProcessName,
	}
	_, err := s.Connections(context.Background())
	if !errors.Is(err, source.ErrSource) {
		t.Fatalf("expected source error, got %v", err)
	}
}
