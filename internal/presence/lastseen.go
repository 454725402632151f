package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// lastSeenKey is the redis hash holding identity -> unix milliseconds.
const lastSeenKey = "chat:last_seen"

// RedisLastSeen stores last-seen timestamps in a single redis hash.
type RedisLastSeen struct {
	client redis.UniversalClient
}

func NewRedisLastSeen(client redis.UniversalClient) *RedisLastSeen {
	return &RedisLastSeen{client: client}
}

func (s *RedisLastSeen) RecordLastSeen(ctx context.Context, identity string, at time.Time) error {
	if err := s.client.HSet(ctx, lastSeenKey, identity, at.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// LastSeen returns the recorded timestamps for the given identities. Identities
// never seen offline are absent from the result.
func (s *RedisLastSeen) LastSeen(ctx context.Context, identities ...string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(identities))
	if len(identities) == 0 {
		return out, nil
	}
	vals, err := s.client.HMGet(ctx, lastSeenKey, identities...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		ms, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			continue
		}
		out[identities[i]] = time.UnixMilli(ms)
	}
	return out, nil
}
