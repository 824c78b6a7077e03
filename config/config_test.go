package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netwatch.yml")
	data := `
netwatch:
  poll:
    interval: 3s
    timeout: 1500ms
    backoff_initial: 500ms
    backoff_max: 1m
  source:
    mode: replay
    replay:
      path: captures/frames.jsonl
      loop: true
  changes:
    capacity: 50
    default_limit: 10
  risk:
    rules_file: rules.yml
    sigma:
      enabled: true
      path: sigma/
  output:
    mode: redis
    redis:
      addr: 10.0.0.2:6379
      key: nw:changes
      max_len: 500
    http:
      headers:
        Authorization: Bearer x
  api:
    enabled: true
    addr: 127.0.0.1:9000
  logging:
    level: debug
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	nw := cfg.NetWatch
	if nw.Poll.Interval != 3*time.Second || nw.Poll.Timeout != 1500*time.Millisecond || nw.Poll.BackoffMax != time.Minute {
		t.Fatalf("unexpected poll config: %+v", nw.Poll)
	}
	if nw.Source.Mode != "replay" || !nw.Source.Replay.Loop || nw.Source.Replay.Path != "captures/frames.jsonl" {
		t.Fatalf("unexpected source config: %+v", nw.Source)
	}
	if nw.Changes.Capacity != 50 || nw.Changes.DefaultLimit != 10 {
		t.Fatalf("unexpected changes config: %+v", nw.Changes)
	}
	if !nw.Risk.Sigma.Enabled || nw.Risk.RulesFile != "rules.yml" {
		t.Fatalf("unexpected risk config: %+v", nw.Risk)
	}
	if nw.Output.Redis.MaxLen != 500 || nw.Output.HTTP.Headers["Authorization"] != "Bearer x" {
		t.Fatalf("unexpected output config: %+v", nw.Output)
	}
	if !nw.API.IsEnabled() || nw.API.Addr != "127.0.0.1:9000" || nw.Logging.Level != "debug" {
		t.Fatalf("unexpected api/logging config")
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	os.WriteFile(path, []byte("netwatch:\n  poll:\n    interval: soon\n"), 0644)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestAPIEnabledDefaultsOn(t *testing.T) {
	var unset APIConfig
	if !unset.IsEnabled() {
		t.Fatalf("expected omitted api.enabled to mean enabled")
	}

	path := filepath.Join(t.TempDir(), "off.yml")
	os.WriteFile(path, []byte("netwatch:\n  api:\n    enabled: false\n"), 0644)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NetWatch.API.IsEnabled() {
		t.Fatalf("expected explicit false to disable the api")
	}
}
