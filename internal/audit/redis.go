// Package audit records session events to Redis or Elasticsearch.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"store-sessions/internal/common/logger"
	"store-sessions/internal/sessions"
)

const (
	DefaultRetention  = 30 * 24 * time.Hour
	DefaultMaxEntries = 500
)

// Entry is the stored form of a session event.
type Entry struct {
	ID string `json:"id"`
	sessions.Event
}

func newEntry(e sessions.Event) Entry {
	return Entry{ID: uuid.NewString(), Event: e}
}

// RedisRecorder keeps the most recent events of each principal in a capped
// list under audit:sessions:<principalId>.
type RedisRecorder struct {
	client     *redis.Client
	retention  time.Duration
	maxEntries int64
	logger     logger.Logger
}

func NewRedisRecorder(client *redis.Client, retention time.Duration, maxEntries int, log logger.Logger) *RedisRecorder {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &RedisRecorder{
		client:     client,
		retention:  retention,
		maxEntries: int64(maxEntries),
		logger:     logger.OrNop(log),
	}
}

func redisKey(principalID string) string {
	return fmt.Sprintf("audit:sessions:%s", principalID)
}

func (r *RedisRecorder) Record(ctx context.Context, e sessions.Event) {
	entry := newEntry(e)
	data, err := json.Marshal(entry)
	if err != nil {
		r.logger.Error("Failed to encode audit entry", map[string]interface{}{"error": err.Error()})
		return
	}

	key := redisKey(e.PrincipalID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, r.maxEntries-1)
		pipe.Expire(ctx, key, r.retention)
		return nil
	})
	if err != nil {
		r.logger.Warn("Failed to record session event", map[string]interface{}{
			"userId":    e.PrincipalID,
			"sessionId": e.SessionID,
			"type":      string(e.Type),
			"error":     err.Error(),
		})
	}
}

// Recent returns up to limit entries for principalID, newest first.
func (r *RedisRecorder) Recent(ctx context.Context, principalID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = int(r.maxEntries)
	}
	raw, err := r.client.LRange(ctx, redisKey(principalID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read audit entries: %w", err)
	}

	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			r.logger.Warn("Skipping unreadable audit entry", map[string]interface{}{
				"userId": principalID,
				"error":  err.Error(),
			})
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}
