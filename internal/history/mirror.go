package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quickedit/internal/models"
)

// Mirror persists the history outside the process.
type Mirror interface {
	Push(ctx context.Context, s models.RunSummary) error
	Replace(ctx context.Context, entries []models.RunSummary) error
	Load(ctx context.Context, limit int) ([]models.RunSummary, error)
}

type nopMirror struct{}

func (nopMirror) Push(context.Context, models.RunSummary) error     { return nil }
func (nopMirror) Replace(context.Context, []models.RunSummary) error { return nil }
func (nopMirror) Load(context.Context, int) ([]models.RunSummary, error) {
	return nil, nil
}

type redisMirror struct {
	client *redis.Client
	key    string
	cap    int
}

func (m *redisMirror) Push(ctx context.Context, s models.RunSummary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	pipe := m.client.TxPipeline()
	pipe.LPush(ctx, m.key, raw)
	pipe.LTrim(ctx, m.key, 0, int64(m.cap-1))
	_, err = pipe.Exec(ctx)
	return err
}

func (m *redisMirror) Replace(ctx context.Context, entries []models.RunSummary) error {
	values := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal run summary: %w", err)
		}
		values = append(values, raw)
	}

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, m.key)
	if len(values) > 0 {
		// RPUSH keeps the most-recent-first order of entries.
		pipe.RPush(ctx, m.key, values...)
		pipe.LTrim(ctx, m.key, 0, int64(m.cap-1))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (m *redisMirror) Load(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 || limit > m.cap {
		limit = m.cap
	}
	raws, err := m.client.LRange(ctx, m.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	return decodeEntries(raws), nil
}

// decodeEntries skips entries that no longer decode.
func decodeEntries(raws []string) []models.RunSummary {
	out := make([]models.RunSummary, 0, len(raws))
	for _, raw := range raws {
		var s models.RunSummary
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// NewMirror builds a Redis mirror and falls back to no mirroring on failure.
func NewMirror(addr, pass string, db int, key string, capacity int) (Mirror, error) {
	if addr == "" {
		return nopMirror{}, nil
	}
	if key == "" {
		key = "quickedit:history"
	}
	if capacity <= 0 {
		capacity = DefaultCap
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nopMirror{}, err
	}

	return &redisMirror{
		client: client,
		key:    key,
		cap:    capacity,
	}, nil
}
