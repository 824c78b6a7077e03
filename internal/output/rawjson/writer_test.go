package rawjson

import (
	"path/filepath"
	"testing"
	"time"

	"netwatch/internal/source/replay"
	"netwatch/pkg/models"
)

func TestCaptureIsReplayable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture", "frames.jsonl")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	frames := []models.CaptureFrame{
		{Timestamp: time.Unix(10, 0).UTC(), Connections: []models.RawConnection{{Protocol: "TCP", LocalAddr: "10.0.0.1", LocalPort: 5000, RemoteAddr: "1.1.1.1", RemotePort: 443, State: "ESTABLISHED", PID: 9, ProcessName: "curl"}}},
		{Timestamp: time.Unix(12, 0).UTC(), Connections: nil},
	}
	if err := w.WriteFrames(frames); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	src, err := replay.Open(replay.Config{Path: path})
	if err != nil {
		t.Fatalf("open replay: %v", err)
	}
	if src.Remaining() != 2 {
		t.Fatalf("expected 2 frames, got %d", src.Remaining())
	}
	conns, err := src.Connections(t.Context())
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if len(conns) != 1 || conns[0].ProcessName != "curl" {
		t.Fatalf("unexpected first frame: %+v", conns)
	}
}
