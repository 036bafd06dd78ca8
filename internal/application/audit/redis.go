package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cashcached/auth-api/internal/domain"
)

const (
	keyPrefix = "audit:login:"

	// retention keeps an inactive user's trail from living in Redis forever.
	retention = 90 * 24 * time.Hour
)

// RedisLog is the production audit trail. LPUSH and LTRIM run in a single
// pipeline so the capacity bound holds under concurrent logins without any
// process-local locking.
type RedisLog struct {
	client *redis.Client
}

func NewRedisLog(client *redis.Client) *RedisLog {
	return &RedisLog{client: client}
}

func (l *RedisLog) Record(ctx context.Context, username string, event domain.LoginEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal login event: %w", err)
	}
	key := keyPrefix + username
	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, Capacity-1)
	pipe.Expire(ctx, key, retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record login event: %w", err)
	}
	return nil
}

func (l *RedisLog) Recent(ctx context.Context, username string, limit int) ([]domain.LoginEvent, error) {
	if limit <= 0 {
		return []domain.LoginEvent{}, nil
	}
	if limit > Capacity {
		limit = Capacity
	}
	raws, err := l.client.LRange(ctx, keyPrefix+username, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read login events: %w", err)
	}
	events := make([]domain.LoginEvent, 0, len(raws))
	for _, raw := range raws {
		var e domain.LoginEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			slog.Warn("skipping undecodable login event", "username", username, "err", err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
