package risk

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"netwatch/pkg/models"
)

// SigmaProduct is the logsource product a Sigma rule must declare (or leave empty).
const SigmaProduct = "netwatch"

// SigmaLoadStats tracks the number of loaded and skipped Sigma rules.
type SigmaLoadStats struct {
	TotalFiles     int
	Loaded         int
	SkippedComplex int
	SkippedProduct int
	SkippedInvalid int
}

// LoadSigmaRules compiles Sigma rules from a file or directory into classifier
// rules. Each Sigma rule requests a floor equal to its level and explains
// itself with its title. Rules with aggregations, timeframes or keyword
// searches are skipped and counted in stats.
func LoadSigmaRules(path string) ([]Rule, SigmaLoadStats, error) {
	var stats SigmaLoadStats

	files, err := sigmaFiles(path)
	if err != nil {
		return nil, stats, err
	}
	stats.TotalFiles = len(files)

	out := make([]Rule, 0, len(files))
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		rule, err := sigma.ParseRule(raw)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		if !isNetwatchProduct(rule) {
			stats.SkippedProduct++
			continue
		}
		if !isSingleEventRule(rule) {
			stats.SkippedComplex++
			continue
		}
		out = append(out, sigmaRule(rule))
		stats.Loaded++
	}
	return out, stats, nil
}

func sigmaFiles(path string) ([]string, error) {
	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve rule path: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat rule path: %w", err)
	}
	if !info.IsDir() {
		if !isYAMLFile(resolved) {
			return nil, fmt.Errorf("rule file must end with .yml or .yaml: %s", resolved)
		}
		return []string{resolved}, nil
	}

	var files []string
	err = filepath.WalkDir(resolved, func(p string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !entry.IsDir() && isYAMLFile(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk rule directory: %w", err)
	}
	return files, nil
}

func sigmaRule(rule sigma.Rule) Rule {
	eval := sigmaevaluator.ForRule(rule)
	floor, err := models.ParseRiskLevel(rule.Level)
	if err != nil {
		floor = models.RiskMedium
	}
	title := strings.TrimSpace(rule.Title)
	name := strings.TrimSpace(rule.ID)
	if name == "" {
		name = title
	}
	if title == "" {
		title = "Sigma rule " + name
	}
	ctx := context.Background()

	return Rule{
		Name:  "sigma:" + name,
		Floor: floor,
		Match: func(c models.RawConnection) bool {
			res, err := eval.Matches(ctx, sigmaEvent(c))
			if err != nil {
				return false
			}
			return res.Match
		},
		Reason: func(models.RawConnection) string {
			return title
		},
	}
}

// sigmaEvent flattens a tuple into string fields so rule values compare as text.
func sigmaEvent(c models.RawConnection) map[string]interface{} {
	return map[string]interface{}{
		"Protocol":    c.Protocol,
		"LocalAddr":   c.LocalAddr,
		"LocalPort":   strconv.Itoa(int(c.LocalPort)),
		"RemoteAddr":  c.RemoteAddr,
		"RemotePort":  strconv.Itoa(int(c.RemotePort)),
		"State":       models.NormalizeState(c.State),
		"PID":         strconv.Itoa(int(c.PID)),
		"ProcessName": c.ProcessName,
	}
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

func isNetwatchProduct(rule sigma.Rule) bool {
	product := strings.ToLower(strings.TrimSpace(rule.Logsource.Product))
	return product == "" || product == SigmaProduct
}

func isSingleEventRule(rule sigma.Rule) bool {
	if rule.Detection.Timeframe > 0 {
		return false
	}
	for _, cond := range rule.Detection.Conditions {
		if cond.Aggregation != nil || !isSimpleSearch(cond.Search) {
			return false
		}
	}
	for _, search := range rule.Detection.Searches {
		if len(search.Keywords) > 0 || len(search.EventMatchers) == 0 {
			return false
		}
	}
	return true
}

func isSimpleSearch(expr sigma.SearchExpr) bool {
	switch e := expr.(type) {
	case sigma.SearchIdentifier:
		return true
	case sigma.And:
		for _, child := range e {
			if !isSimpleSearch(child) {
				return false
			}
		}
		return true
	case sigma.Or:
		for _, child := range e {
			if !isSimpleSearch(child) {
				return false
			}
		}
		return true
	case sigma.Not:
		return isSimpleSearch(e.Expr)
	default:
		return false
	}
}
