package changeredis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"netwatch/pkg/models"
)

// Config configures the Redis list writer.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
	MaxLen   int64
	Timeout  time.Duration
}

// Writer appends change events to a Redis list, newest at the tail, and trims
// the list to MaxLen entries.
type Writer struct {
	client  *redis.Client
	key     string
	maxLen  int64
	timeout time.Duration
}

// NewWriter connects to Redis and verifies the connection.
func NewWriter(cfg Config) (*Writer, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.Key) == "" {
		cfg.Key = "netwatch:changes"
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 10000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis change sink: %w", err)
	}

	return &Writer{client: client, key: cfg.Key, maxLen: cfg.MaxLen, timeout: cfg.Timeout}, nil
}

// WriteChanges pushes a batch in one pipeline.
func (w *Writer) WriteChanges(events []models.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	values, err := encode(events)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	pipe := w.client.Pipeline()
	pipe.RPush(ctx, w.key, values...)
	pipe.LTrim(ctx, w.key, -w.maxLen, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis push change events: %w", err)
	}
	return nil
}

// Recent reads up to n events from the tail of the list, newest first.
func (w *Writer) Recent(ctx context.Context, n int64) ([]models.ChangeEvent, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := w.client.LRange(ctx, w.key, -n, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

// Close closes the client.
func (w *Writer) Close() error {
	return w.client.Close()
}

func encode(events []models.ChangeEvent) ([]any, error) {
	values := make([]any, 0, len(events))
	for i := range events {
		b, err := json.Marshal(&events[i])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal change event: %w", err)
		}
		values = append(values, b)
	}
	return values, nil
}

// decode parses list entries stored oldest first and returns them newest first.
func decode(raw []string) ([]models.ChangeEvent, error) {
	out := make([]models.ChangeEvent, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var ev models.ChangeEvent
		if err := json.Unmarshal([]byte(raw[i]), &ev); err != nil {
			return nil, fmt.Errorf("decode change event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}
