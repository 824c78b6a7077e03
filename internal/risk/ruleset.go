package risk

import (
	"fmt"
	"net/netip"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"netwatch/pkg/models"
)

// Network is a labelled address range.
type Network struct {
	CIDR  string `yaml:"cidr"`
	Label string `yaml:"label"`
}

// RuleSet is the tunable data behind the built-in heuristics. A YAML rules
// file overrides any list it sets and leaves the others at their defaults.
type RuleSet struct {
	MalwarePorts             []uint16  `yaml:"malware_ports"`
	HighRiskPorts            []uint16  `yaml:"high_risk_ports"`
	AdminPorts               []uint16  `yaml:"admin_ports"`
	NonStandardPortThreshold uint16    `yaml:"non_standard_port_threshold"`
	SuspiciousNetworks       []Network `yaml:"suspicious_networks"`
	KnownNetworks            []Network `yaml:"known_networks"`
	KnownProcesses           []string  `yaml:"known_processes"`
	SuspiciousProcesses      []string  `yaml:"suspicious_processes"`
}

// DefaultRuleSet returns the built-in heuristics data.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		MalwarePorts:             []uint16{1337, 4444, 6667, 31337},
		HighRiskPorts:            []uint16{23, 445, 3306, 3389, 5900, 27017},
		AdminPorts:               []uint16{21, 22, 25, 110, 143, 993, 995},
		NonStandardPortThreshold: 10000,
		SuspiciousNetworks: []Network{
			{CIDR: "185.220.100.0/22", Label: "Tor exit node"},
			{CIDR: "91.134.125.0/24", Label: "Suspicious IP geolocation"},
		},
		KnownNetworks: []Network{
			{CIDR: "142.250.0.0/15", Label: "Google services"},
			{CIDR: "172.217.0.0/16", Label: "Google services"},
			{CIDR: "151.101.0.0/16", Label: "Fastly CDN"},
			{CIDR: "104.16.0.0/13", Label: "Cloudflare CDN"},
			{CIDR: "162.159.0.0/16", Label: "Cloudflare CDN"},
			{CIDR: "13.107.0.0/16", Label: "Microsoft services"},
			{CIDR: "20.190.128.0/18", Label: "Microsoft services"},
			{CIDR: "162.125.0.0/16", Label: "Dropbox"},
		},
	}
}

// LoadRuleSet reads a YAML rules file over the defaults.
func LoadRuleSet(path string) (RuleSet, error) {
	rs := DefaultRuleSet()
	data, err := os.ReadFile(path)
	if err != nil {
		return rs, fmt.Errorf("read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return rs, fmt.Errorf("parse rules file: %w", err)
	}
	if _, err := rs.Rules(); err != nil {
		return rs, err
	}
	return rs, nil
}

type prefixLabel struct {
	prefix netip.Prefix
	label  string
}

// compileNetworks parses nets. An unlabelled network is labelled by
// unlabelled(prefix) so a firing rule always has reason text.
func compileNetworks(nets []Network, unlabelled func(netip.Prefix) string) ([]prefixLabel, error) {
	out := make([]prefixLabel, 0, len(nets))
	for _, n := range nets {
		p, err := netip.ParsePrefix(strings.TrimSpace(n.CIDR))
		if err != nil {
			return nil, fmt.Errorf("network %q: %w", n.CIDR, err)
		}
		p = p.Masked()
		label := strings.TrimSpace(n.Label)
		if label == "" {
			label = unlabelled(p)
		}
		out = append(out, prefixLabel{prefix: p, label: label})
	}
	return out, nil
}

func lookupNetwork(nets []prefixLabel, addr string) (string, bool) {
	ip, ok := parseAddr(addr)
	if !ok {
		return "", false
	}
	for _, n := range nets {
		if n.prefix.Contains(ip) {
			return n.label, true
		}
	}
	return "", false
}

func parseAddr(addr string) (netip.Addr, bool) {
	ip, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

func isLoopback(addr string) bool {
	ip, ok := parseAddr(addr)
	return ok && ip.IsLoopback()
}

// hasPeer reports whether the tuple is an outbound or accepted connection
// with a real remote endpoint, excluding listeners and loopback traffic.
func hasPeer(c models.RawConnection) bool {
	if c.IsListener() || c.RemotePort == 0 {
		return false
	}
	if ip, ok := parseAddr(c.RemoteAddr); ok && ip.IsUnspecified() {
		return false
	}
	return !isLoopback(c.RemoteAddr)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), ".exe"))
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if v := normalizeName(n); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// Rules builds the ordered built-in rule list from the rule set data.
func (rs RuleSet) Rules() ([]Rule, error) {
	suspicious, err := compileNetworks(rs.SuspiciousNetworks, func(p netip.Prefix) string {
		return "Suspicious network " + p.String()
	})
	if err != nil {
		return nil, fmt.Errorf("suspicious_networks: %w", err)
	}
	known, err := compileNetworks(rs.KnownNetworks, netip.Prefix.String)
	if err != nil {
		return nil, fmt.Errorf("known_networks: %w", err)
	}
	malware := slices.Clone(rs.MalwarePorts)
	highRisk := slices.Clone(rs.HighRiskPorts)
	admin := slices.Clone(rs.AdminPorts)
	knownProcs := nameSet(rs.KnownProcesses)
	badProcs := nameSet(rs.SuspiciousProcesses)
	threshold := rs.NonStandardPortThreshold

	return []Rule{
		{
			Name:  "malware-port",
			Floor: models.RiskHigh,
			Match: func(c models.RawConnection) bool {
				return hasPeer(c) && slices.Contains(malware, c.RemotePort)
			},
			Reason: func(c models.RawConnection) string {
				return fmt.Sprintf("Connection to flagged malware port %d", c.RemotePort)
			},
		},
		{
			Name:  "high-risk-port",
			Floor: models.RiskHigh,
			Match: func(c models.RawConnection) bool {
				return hasPeer(c) && slices.Contains(highRisk, c.RemotePort)
			},
			Reason: func(c models.RawConnection) string {
				return fmt.Sprintf("Connection to known high-risk port %d", c.RemotePort)
			},
		},
		{
			Name:  "suspicious-network",
			Floor: models.RiskHigh,
			Match: func(c models.RawConnection) bool {
				_, ok := lookupNetwork(suspicious, c.RemoteAddr)
				return ok
			},
			Reason: func(c models.RawConnection) string {
				label, _ := lookupNetwork(suspicious, c.RemoteAddr)
				return label
			},
		},
		{
			Name:  "suspicious-process",
			Floor: models.RiskHigh,
			Match: func(c models.RawConnection) bool {
				_, ok := badProcs[normalizeName(c.ProcessName)]
				return ok
			},
			Reason: func(c models.RawConnection) string {
				return fmt.Sprintf("Flagged process %s", c.ProcessName)
			},
		},
		{
			Name:  "admin-port",
			Floor: models.RiskMedium,
			Match: func(c models.RawConnection) bool {
				return hasPeer(c) && slices.Contains(admin, c.RemotePort)
			},
			Reason: func(c models.RawConnection) string {
				return fmt.Sprintf("Connection to administrative port %d", c.RemotePort)
			},
		},
		{
			Name:  "unowned-socket",
			Floor: models.RiskMedium,
			Match: func(c models.RawConnection) bool {
				return c.PID <= 0
			},
			Reason: func(models.RawConnection) string {
				return "Unable to identify owning process"
			},
		},
		{
			Name:  "unknown-process",
			Floor: models.RiskMedium,
			Match: func(c models.RawConnection) bool {
				if c.PID <= 0 {
					return false
				}
				name := normalizeName(c.ProcessName)
				if name == "" || name == "unknown" || name == "?" {
					return true
				}
				if len(knownProcs) == 0 {
					return false
				}
				_, ok := knownProcs[name]
				return !ok
			},
			Reason: func(models.RawConnection) string {
				return "Unknown process"
			},
		},
		{
			Name:  "non-standard-port",
			Floor: models.RiskMedium,
			Match: func(c models.RawConnection) bool {
				return threshold > 0 && hasPeer(c) && c.RemotePort > threshold &&
					models.NormalizeState(c.State) == models.StateEstablished
			},
			Reason: func(models.RawConnection) string {
				return "Non-standard port"
			},
		},
		{
			Name:  "known-network",
			Floor: models.RiskLow,
			Match: func(c models.RawConnection) bool {
				_, ok := lookupNetwork(known, c.RemoteAddr)
				return ok
			},
			Reason: func(c models.RawConnection) string {
				label, _ := lookupNetwork(known, c.RemoteAddr)
				return "Known service: " + label
			},
		},
		{
			Name:  "loopback",
			Floor: models.RiskLow,
			Match: func(c models.RawConnection) bool {
				return !c.IsListener() && isLoopback(c.RemoteAddr)
			},
			Reason: func(models.RawConnection) string {
				return "Localhost connection"
			},
		},
		{
			Name:  "listener",
			Floor: models.RiskLow,
			Match: func(c models.RawConnection) bool {
				return c.IsListener()
			},
			Reason: func(c models.RawConnection) string {
				if isLoopback(c.LocalAddr) {
					return fmt.Sprintf("Local listener on port %d", c.LocalPort)
				}
				return fmt.Sprintf("Listening on port %d", c.LocalPort)
			},
		},
	}, nil
}
