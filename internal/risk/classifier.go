package risk

import (
	"strings"
	"time"

	"netwatch/pkg/models"
)

// Rule is one heuristic. A rule that fires contributes its reason and raises
// the verdict to at least Floor. Rules with Floor low only explain.
type Rule struct {
	Name   string
	Floor  models.RiskLevel
	Match  func(models.RawConnection) bool
	Reason func(models.RawConnection) string
}

// Classifier evaluates an ordered rule list. It is safe for concurrent use
// because rules are never modified after construction.
type Classifier struct {
	rules []Rule
}

// New creates a classifier over rules, evaluated in the given order.
func New(rules ...Rule) *Classifier {
	cp := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Match == nil || r.Reason == nil {
			continue
		}
		cp = append(cp, r)
	}
	return &Classifier{rules: cp}
}

// Default returns a classifier over DefaultRuleSet.
func Default() *Classifier {
	rules, err := DefaultRuleSet().Rules()
	if err != nil {
		// The built-in networks are constants; a parse failure is a bug.
		panic(err)
	}
	return New(rules...)
}

// With returns a new classifier with extra rules appended after the current ones.
func (c *Classifier) With(extra ...Rule) *Classifier {
	all := make([]Rule, 0, len(c.rules)+len(extra))
	all = append(all, c.rules...)
	all = append(all, extra...)
	return New(all...)
}

// Rules returns the rule names in evaluation order.
func (c *Classifier) Rules() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name
	}
	return names
}

// Classify returns the highest floor requested by any firing rule and the
// reasons of every firing rule in declaration order. A firing rule with no
// reason text is reported by name.
func (c *Classifier) Classify(raw models.RawConnection) (models.RiskLevel, []string) {
	level := models.RiskLow
	var reasons []string
	for _, r := range c.rules {
		if !r.Match(raw) {
			continue
		}
		level = level.Max(r.Floor)
		reason := strings.TrimSpace(r.Reason(raw))
		if reason == "" {
			reason = "Matched rule " + r.Name
		}
		reasons = append(reasons, reason)
	}
	return level, reasons
}

// Connection classifies raw and builds the immutable record for it.
func (c *Classifier) Connection(raw models.RawConnection, capturedAt time.Time) models.Connection {
	level, reasons := c.Classify(raw)
	return models.NewConnection(raw, level, reasons, capturedAt)
}
