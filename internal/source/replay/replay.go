package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"netwatch/internal/source"
	"netwatch/pkg/models"
)

// ErrExhausted is returned once every frame was played and looping is off.
var ErrExhausted = errors.New("replay exhausted")

// Config configures a replay source.
type Config struct {
	Path string
	Loop bool
}

// Source plays back captured frames, one frame per poll.
type Source struct {
	mu     sync.Mutex
	frames []models.CaptureFrame
	next   int
	loop   bool
}

// Open loads a JSONL capture file written by the raw capture sink.
func Open(cfg Config) (*Source, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("replay path is empty")
	}
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	var frames []models.CaptureFrame
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var frame models.CaptureFrame
		if err := json.Unmarshal([]byte(text), &frame); err != nil {
			return nil, fmt.Errorf("decode replay line %d: %w", line, err)
		}
		frames = append(frames, frame)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan replay file: %w", err)
	}
	return New(frames, cfg.Loop), nil
}

// New creates a replay source over in-memory frames.
func New(frames []models.CaptureFrame, loop bool) *Source {
	return &Source{frames: frames, loop: loop}
}

// Connections returns the next frame's tuples.
func (s *Source) Connections(ctx context.Context) ([]models.RawConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, source.Wrap("replay", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.frames) {
		if !s.loop || len(s.frames) == 0 {
			return nil, source.Wrap("replay", ErrExhausted)
		}
		s.next = 0
	}
	frame := s.frames[s.next]
	s.next++

	out := make([]models.RawConnection, len(frame.Connections))
	copy(out, frame.Connections)
	return out, nil
}

// Remaining returns how many frames are left before the source wraps or runs dry.
func (s *Source) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames) - s.next
}
