package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAnnouncer records announced conversations in Redis so the record outlives a
// restart and is shared by every server instance.
type RedisAnnouncer struct {
	client *redis.Client
	prefix string
	ttl    time.Duration // zero keeps keys forever
}

func NewRedisAnnouncer(client *redis.Client, prefix string, ttl time.Duration) *RedisAnnouncer {
	if prefix == "" {
		prefix = "fft:announced:"
	}
	return &RedisAnnouncer{client: client, prefix: prefix, ttl: ttl}
}

// MarkAnnounced reports whether this call was the first to claim conversationID.
func (a *RedisAnnouncer) MarkAnnounced(ctx context.Context, conversationID string) (bool, error) {
	ok, err := a.client.SetNX(ctx, a.prefix+conversationID, time.Now().Unix(), a.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("announce set error: %w", err)
	}
	return ok, nil
}
