package system

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"syscall"

	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"netwatch/internal/logger"
	"netwatch/internal/source"
	"netwatch/pkg/models"
)

// Config configures the OS-backed source.
type Config struct {
	// Kind is passed to gopsutil: inet, inet4, inet6, tcp, tcp4, tcp6, udp, udp4, udp6 or all.
	Kind string
}

// Source lists sockets through gopsutil and resolves owning process names.
type Source struct {
	kind        string
	connections func(ctx context.Context, kind string) ([]psnet.ConnectionStat, error)
	processName func(ctx context.Context, pid int32) (string, error)
}

var validKinds = map[string]struct{}{
	"inet": {}, "inet4": {}, "inet6": {},
	"tcp": {}, "tcp4": {}, "tcp6": {},
	"udp": {}, "udp4": {}, "udp6": {},
	"all": {},
}

// New creates a system source.
func New(cfg Config) (*Source, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	if kind == "" {
		kind = "inet"
	}
	if _, ok := validKinds[kind]; !ok {
		return nil, fmt.Errorf("unknown connection kind %q", cfg.Kind)
	}
	return &Source{
		kind:        kind,
		connections: psnet.ConnectionsWithContext,
		processName: lookupProcessName,
	}, nil
}

// Connections returns the current socket table.
func (s *Source) Connections(ctx context.Context) ([]models.RawConnection, error) {
	stats, err := s.connections(ctx, s.kind)
	if err != nil {
		return nil, source.Wrap("list connections", err)
	}

	names := make(map[int32]string)
	out := make([]models.RawConnection, 0, len(stats))
	for _, st := range stats {
		if err := ctx.Err(); err != nil {
			return nil, source.Wrap("resolve processes", err)
		}
		name, ok := names[st.Pid]
		if !ok && st.Pid > 0 {
			n, err := s.processName(ctx, st.Pid)
			if err != nil {
				logger.Debugf("Process name lookup failed for pid %d: %v", st.Pid, err)
			}
			name = n
			names[st.Pid] = name
		}
		out = append(out, fromStat(st, name))
	}
	return out, nil
}

func lookupProcessName(ctx context.Context, pid int32) (string, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", err
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Base(name), nil
}

func fromStat(st psnet.ConnectionStat, processName string) models.RawConnection {
	proto := "TCP"
	switch st.Type {
	case syscall.SOCK_STREAM:
		proto = models.ProtocolTCP
	case syscall.SOCK_DGRAM:
		proto = models.ProtocolUDP
	}
	raddr := st.Raddr.IP
	if raddr == "" {
		if st.Family == syscall.AF_INET6 {
			raddr = "::"
		} else {
			raddr = "0.0.0.0"
		}
	}
	return models.RawConnection{
		Protocol:    proto,
		LocalAddr:   st.Laddr.IP,
		LocalPort:   uint16(st.Laddr.Port),
		RemoteAddr:  raddr,
		RemotePort:  uint16(st.Raddr.Port),
		State:       models.NormalizeState(st.Status),
		PID:         st.Pid,
		ProcessName: processName,
	}
}
