package snapshot

import (
	"sync"
	"testing"
	"time"

	"netwatch/pkg/models"
)

func TestStoreStartsEmpty(t *testing.T) {
	s := NewStore()
	if snap, ok := s.Current(); ok || snap != nil {
		t.Fatalf("expected no snapshot, got %+v", snap)
	}
}

func TestPublishReturnsPrevious(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := models.NewSnapshot(1, now, nil)
	b := models.NewSnapshot(2, now.Add(time.Second), nil)

	if prev := s.Publish(a); prev != nil {
		t.Fatalf("expected nil previous, got %+v", prev)
	}
	if prev := s.Publish(b); prev != a {
		t.Fatalf("expected previous to be snapshot 1, got %+v", prev)
	}
	cur, ok := s.Current()
	if !ok || cur.Seq != 2 {
		t.Fatalf("expected current seq 2, got %+v", cur)
	}

	s.Reset()
	if _, ok := s.Current(); ok {
		t.Fatalf("expected reset store to be empty")
	}
}

func TestEmptySnapshotIsStillPublished(t *testing.T) {
	s := NewStore()
	s.Publish(models.NewSnapshot(1, time.Now(), []models.Connection{}))
	cur, ok := s.Current()
	if !ok || cur.Len() != 0 {
		t.Fatalf("expected published empty snapshot, got %+v ok=%v", cur, ok)
	}
}

func TestReadersNeverSeeTornSnapshots(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, ok := s.Current()
				if !ok {
					continue
				}
				for _, c := range snap.Connections {
					if !c.CapturedAt.Equal(snap.CapturedAt) {
						t.Errorf("connection from another tick in snapshot %d", snap.Seq)
						return
					}
				}
			}
		}()
	}

	for seq := uint64(1); seq <= 200; seq++ {
		ts := base.Add(time.Duration(seq) * time.Second)
		conns := make([]models.Connection, int(seq%7))
		for i := range conns {
			conns[i] = models.Connection{PID: int32(i), CapturedAt: ts}
		}
		s.Publish(models.NewSnapshot(seq, ts, conns))
	}
	close(stop)
	wg.Wait()
}
