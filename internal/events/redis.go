package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// RedisPublisher PUBLISHes msgpack encoded events on the topic channel and keeps the
// latest state of every job in the hash {topic}:job:{id}.
type RedisPublisher struct {
	rdb   redisClient
	topic string
	ttl   time.Duration
}

// NewRedisPublisher connects to the Redis server at url and verifies the connection.
func NewRedisPublisher(ctx context.Context, url, topic string, ttl time.Duration) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return newRedisPublisher(rdb, topic, ttl), nil
}

func newRedisPublisher(rdb redisClient, topic string, ttl time.Duration) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, topic: topic, ttl: ttl}
}

// JobKey is the hash holding the latest state of a job.
func (p *RedisPublisher) JobKey(jobID string) string {
	return fmt.Sprintf("%s:job:%s", p.topic, jobID)
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	key := p.JobKey(e.JobID)
	err = p.rdb.HSet(ctx, key,
		"type", string(e.Type),
		"status", e.Status,
		"progress", e.Progress,
		"updated_at", e.At.UTC().Format(time.RFC3339Nano),
		"payload", payload,
	).Err()
	if err != nil {
		return fmt.Errorf("store job state %s: %w", key, err)
	}
	if p.ttl > 0 {
		if err := p.rdb.Expire(ctx, key, p.ttl).Err(); err != nil {
			return fmt.Errorf("expire job state %s: %w", key, err)
		}
	}

	if err := p.rdb.Publish(ctx, p.topic, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// DecodeEvent decodes a payload published by RedisPublisher.
func DecodeEvent(payload []byte) (Event, error) {
	var e Event
	if err := msgpack.Unmarshal(payload, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}
