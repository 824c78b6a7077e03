package main

import (
	"fmt"
	"strings"

	"netwatch/config"
	"netwatch/internal/logger"
	"netwatch/internal/output/changeclickhouse"
	"netwatch/internal/output/changehttp"
	"netwatch/internal/output/changejson"
	"netwatch/internal/output/changeredis"
	"netwatch/internal/output/rawjson"
	"netwatch/internal/pipeline"
	"netwatch/internal/risk"
	"netwatch/internal/source"
	"netwatch/internal/source/replay"
	"netwatch/internal/source/system"
)

func buildSource(cfg config.SourceConfig) (source.Source, error) {
	switch strings.ToLower(cfg.Mode) {
	case "system":
		src, err := system.New(system.Config{Kind: cfg.Kind})
		if err != nil {
			return nil, err
		}
		logger.Infof("Connection source: system (%s)", cfg.Kind)
		return src, nil
	case "replay":
		src, err := replay.Open(replay.Config{Path: cfg.Replay.Path, Loop: cfg.Replay.Loop})
		if err != nil {
			return nil, err
		}
		logger.Infof("Connection source: replay (%s, frames=%d, loop=%t)", cfg.Replay.Path, src.Remaining(), cfg.Replay.Loop)
		return src, nil
	default:
		return nil, fmt.Errorf("unknown source mode: %s", cfg.Mode)
	}
}

func buildClassifier(cfg config.RiskConfig) (*risk.Classifier, error) {
	rs := risk.DefaultRuleSet()
	if strings.TrimSpace(cfg.RulesFile) != "" {
		loaded, err := risk.LoadRuleSet(cfg.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("load rules file %s: %w", cfg.RulesFile, err)
		}
		rs = loaded
		logger.Infof("Risk rules loaded from %s", cfg.RulesFile)
	}
	rules, err := rs.Rules()
	if err != nil {
		return nil, err
	}
	classifier := risk.New(rules...)

	if cfg.Sigma.Enabled {
		if strings.TrimSpace(cfg.Sigma.Path) == "" {
			logger.Warnf("Sigma rules enabled but risk.sigma.path is empty; skipping")
			return classifier, nil
		}
		extra, stats, err := risk.LoadSigmaRules(cfg.Sigma.Path)
		if err != nil {
			return nil, fmt.Errorf("load sigma rules from %s: %w", cfg.Sigma.Path, err)
		}
		logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_product=%d skipped_invalid=%d files=%d",
			stats.Loaded,
			stats.SkippedComplex,
			stats.SkippedProduct,
			stats.SkippedInvalid,
			stats.TotalFiles,
		)
		if stats.Loaded == 0 {
			logger.Warnf("No compatible Sigma rules loaded")
		}
		classifier = classifier.With(extra...)
	}
	return classifier, nil
}

// buildChangeWriter returns nil when output is disabled.
func buildChangeWriter(cfg config.OutputConfig) (pipeline.ChangeWriter, error) {
	switch strings.ToLower(cfg.Mode) {
	case "none", "":
		return nil, nil
	case "file":
		w, err := changejson.NewWriter(cfg.File.Path)
		if err != nil {
			return nil, err
		}
		logger.Infof("Change output mode: file (%s)", cfg.File.Path)
		return w, nil
	case "http":
		w, err := changehttp.NewWriter(changehttp.Config{
			URL:      cfg.HTTP.URL,
			Timeout:  cfg.HTTP.Timeout,
			Headers:  cfg.HTTP.Headers,
			MaxBatch: cfg.HTTP.MaxBatch,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("Change output mode: http (%s)", cfg.HTTP.URL)
		return w, nil
	case "redis":
		w, err := changeredis.NewWriter(changeredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
			MaxLen:   cfg.Redis.MaxLen,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("Change output mode: redis (%s key=%s)", cfg.Redis.Addr, cfg.Redis.Key)
		return w, nil
	case "clickhouse":
		w, err := changeclickhouse.NewWriter(changeclickhouse.Config{
			URL:      cfg.ClickHouse.URL,
			Database: cfg.ClickHouse.Database,
			Table:    cfg.ClickHouse.Table,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
			Timeout:  cfg.ClickHouse.Timeout,
			Headers:  cfg.ClickHouse.Headers,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("Change output mode: clickhouse (%s/%s.%s)", cfg.ClickHouse.URL, cfg.ClickHouse.Database, cfg.ClickHouse.Table)
		return w, nil
	default:
		return nil, fmt.Errorf("unknown output mode: %s", cfg.Mode)
	}
}

// buildRawWriter returns nil when capture is disabled.
func buildRawWriter(cfg config.CaptureConfig) (pipeline.RawWriter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	w, err := rawjson.NewWriter(cfg.File.Path)
	if err != nil {
		return nil, err
	}
	return w, nil
}
