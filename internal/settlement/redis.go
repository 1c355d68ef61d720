package settlement

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisInitiator publishes approvals on a pub/sub channel.
type RedisInitiator struct {
	rdb     redis.Cmdable
	channel string
}

func NewRedisInitiator(rdb redis.Cmdable, channel string) *RedisInitiator {
	return &RedisInitiator{rdb: rdb, channel: channel}
}

func (r *RedisInitiator) Name() string { return "redis" }

func (r *RedisInitiator) Notify(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal settlement event: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish settlement event: %w", err)
	}
	return nil
}
