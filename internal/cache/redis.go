// Package cache keeps rendered notification messages in Redis so occurrence
// updates can skip a round trip to the channel, and tracks the highest
// occurrence count shown on each message.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"faultline/internal/channel"
)

const (
	defaultPrefix = "faultline:msg:"
	defaultTTL    = 7 * 24 * time.Hour
)

// advanceShown raises the shown counter only when the new count is higher,
// so an edit carrying an older count can be skipped.
var advanceShown = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'shown') or '0')
local proposed = tonumber(ARGV[1])
if current >= proposed then
	return 0
end
redis.call('HSET', KEYS[1], 'shown', proposed)
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// RedisCache stores one hash per notification message with the rendered
// body and the shown occurrence count.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client), nil
}

func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: defaultPrefix,
		ttl:    defaultTTL,
	}
}

// WithTTL sets how long an untouched entry lives.
func (c *RedisCache) WithTTL(ttl time.Duration) *RedisCache {
	if ttl > 0 {
		c.ttl = ttl
	}
	return c
}

func (c *RedisCache) key(id channel.MessageID) string {
	return c.prefix + id.String()
}

func (c *RedisCache) Save(ctx context.Context, id channel.MessageID, msg channel.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := c.key(id)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "body", body)
		pipe.PExpire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save message %s: %w", id, err)
	}
	return nil
}

func (c *RedisCache) Lookup(ctx context.Context, id channel.MessageID) (channel.Message, bool, error) {
	body, err := c.client.HGet(ctx, c.key(id), "body").Bytes()
	if errors.Is(err, redis.Nil) {
		return channel.Message{}, false, nil
	}
	if err != nil {
		return channel.Message{}, false, fmt.Errorf("lookup message %s: %w", id, err)
	}
	var msg channel.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return channel.Message{}, false, fmt.Errorf("unmarshal message %s: %w", id, err)
	}
	return msg, true, nil
}

// AdvanceShown records n as the count displayed on the message. It reports
// false, without writing, when an equal or higher count was already recorded.
func (c *RedisCache) AdvanceShown(ctx context.Context, id channel.MessageID, n int64) (bool, error) {
	advanced, err := advanceShown.Run(ctx, c.client, []string{c.key(id)}, n, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("advance shown count %s: %w", id, err)
	}
	return advanced == 1, nil
}

// Shown returns the highest count recorded by AdvanceShown, or zero.
func (c *RedisCache) Shown(ctx context.Context, id channel.MessageID) (int64, error) {
	n, err := c.client.HGet(ctx, c.key(id), "shown").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read shown count %s: %w", id, err)
	}
	return n, nil
}

func (c *RedisCache) Forget(ctx context.Context, id channel.MessageID) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("forget message %s: %w", id, err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
