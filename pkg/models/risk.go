package models

import (
	"fmt"
	"strings"
)

// RiskLevel is the classifier verdict. Levels are totally ordered low < medium < high.
type RiskLevel uint8

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
)

// String returns the lowercase level name.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return fmt.Sprintf("risk(%d)", uint8(r))
	}
}

// Max returns the higher of two levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other > r {
		return other
	}
	return r
}

// ParseRiskLevel accepts low, medium and high in any case. Sigma levels are
// folded in: informational maps to low, critical to high.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "informational", "info":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high", "critical":
		return RiskHigh, nil
	}
	return RiskLow, fmt.Errorf("unknown risk level %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r RiskLevel) MarshalText() ([]byte, error) {
	if r > RiskHigh {
		return nil, fmt.Errorf("invalid risk level %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RiskLevel) UnmarshalText(text []byte) error {
	lvl, err := ParseRiskLevel(string(text))
	if err != nil {
		return err
	}
	*r = lvl
	return nil
}
