package changeredis

import (
	"os"
	"testing"
	"time"

	"netwatch/pkg/models"
)

func TestEncodeDecodeOrdersNewestFirst(t *testing.T) {
	events := []models.ChangeEvent{
		{ID: "old", Kind: models.ChangeNew, Seq: 1},
		{ID: "new", Kind: models.ChangeClosed, Seq: 2},
	}
	values, err := encode(events)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw := make([]string, len(values))
	for i, v := range values {
		raw[i] = string(v.([]byte))
	}
	got, err := decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "old" {
		t.Fatalf("expected newest first, got %+v", got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := decode([]string{"{not json"}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNewWriterFailsWhenUnreachable(t *testing.T) {
	_, err := NewWriter(Config{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected ping failure")
	}
}

// Set NETWATCH_TEST_REDIS to a reachable address to exercise a live server.
func TestWriterAgainstLiveRedis(t *testing.T) {
	addr := os.Getenv("NETWATCH_TEST_REDIS")
	if addr == "" {
		t.Skip("NETWATCH_TEST_REDIS not set")
	}
	key := "netwatch:test:" + time.Now().Format("150405.000000")
	w, err := NewWriter(Config{Addr: addr, Key: key, MaxLen: 2})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer func() {
		w.client.Del(t.Context(), key)
		w.Close()
	}()

	events := []models.ChangeEvent{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	if err := w.WriteChanges(events); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := w.Recent(t.Context(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "3" || got[1].ID != "2" {
		t.Fatalf("expected trimmed list [3 2], got %+v", got)
	}
}
