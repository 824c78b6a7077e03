package changes

import (
	"fmt"
	"sync"
	"testing"

	"netwatch/pkg/models"
)

func numbered(n int) []models.ChangeEvent {
	out := make([]models.ChangeEvent, n)
	for i := range out {
		out[i] = models.ChangeEvent{ID: fmt.Sprintf("%d", i+1), Kind: models.ChangeNew}
	}
	return out
}

func ids(events []models.ChangeEvent) string {
	s := ""
	for i, ev := range events {
		if i > 0 {
			s += ","
		}
		s += ev.ID
	}
	return s
}

func TestLogEvictsOldestFirst(t *testing.T) {
	l := NewLog(3)
	l.Append(numbered(4)...)

	if l.Len() != 3 {
		t.Fatalf("expected 3 retained, got %d", l.Len())
	}
	if got := ids(l.Recent(0)); got != "4,3,2" {
		t.Fatalf("expected newest first 4,3,2, got %s", got)
	}
	if l.Total() != 4 {
		t.Fatalf("expected total 4, got %d", l.Total())
	}
}

func TestLogRecentBeforeWrap(t *testing.T) {
	l := NewLog(5)
	l.Append(numbered(3)...)
	if got := ids(l.Recent(2)); got != "3,2" {
		t.Fatalf("expected 3,2, got %s", got)
	}
	if got := ids(l.Recent(10)); got != "3,2,1" {
		t.Fatalf("expected 3,2,1, got %s", got)
	}
}

func TestLogRecentAcrossManyWraps(t *testing.T) {
	l := NewLog(4)
	for i := 0; i < 5; i++ {
		l.Append(numbered(3)...)
	}
	// 15 appends of ids 1,2,3 repeating: last four are 3,1,2,3.
	if got := ids(l.Recent(0)); got != "3,2,1,3" {
		t.Fatalf("unexpected order %s", got)
	}
}

func TestLogDefaultCapacity(t *testing.T) {
	if NewLog(0).Capacity() != DefaultCapacity {
		t.Fatalf("expected default capacity %d", DefaultCapacity)
	}
}

func TestLogConcurrentReaders(t *testing.T) {
	l := NewLog(50)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if got := l.Recent(10); len(got) > 10 {
					t.Errorf("recent returned %d events", len(got))
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		l.Append(numbered(3)...)
	}
	wg.Wait()
}
