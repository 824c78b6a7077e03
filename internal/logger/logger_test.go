package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetOutputFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, Warn)
	defer Close()

	Infof("poll %d ok", 1)
	Warnf("source failed: %s", "timeout")

	out := buf.String()
	if strings.Contains(out, "poll 1 ok") {
		t.Fatalf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "[WARN] source failed: timeout") {
		t.Fatalf("expected warn line, got %q", out)
	}
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "netwatch.log")
	if err := Init(true, "debug", path, false); err != nil {
		t.Fatalf("init: %v", err)
	}
	Debugf("hello %s", "file")
	if err := Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "[DEBUG] hello file") {
		t.Fatalf("unexpected log content: %q", data)
	}
}

func TestDisabledLoggerDropsEverything(t *testing.T) {
	if err := Init(false, "debug", "", true); err != nil {
		t.Fatalf("init: %v", err)
	}
	Errorf("nobody hears this")
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("WARNING") != Warn {
		t.Fatalf("expected warn")
	}
	if ParseLevel("bogus") != Info {
		t.Fatalf("expected info default")
	}
}
