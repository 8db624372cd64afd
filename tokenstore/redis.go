package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps go-redis failures. It matches ErrBackendUnavailable
// under errors.Is.
var ErrRedisUnavailable = fmt.Errorf("%w: redis", ErrBackendUnavailable)

const (
	eventSet = "set:"
	eventDel = "del:"
)

// RedisBackend stores every key under a common prefix and announces each
// mutation on "<prefix>events" in the same transaction.
type RedisBackend struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisBackend returns a RedisBackend. An empty prefix defaults to
// "authclient:".
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "authclient:"
	}
	return &RedisBackend{redis: client, prefix: prefix}
}

func (r *RedisBackend) key(k string) string { return r.prefix + k }

func (r *RedisBackend) channel() string { return r.prefix + "events" }

func (r *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.redis.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return v, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(key), value, ttl)
		pipe.Publish(ctx, r.channel(), eventSet+key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		full := make([]string, len(keys))
		for i, k := range keys {
			full[i] = r.key(k)
		}
		pipe.Del(ctx, full...)
		for _, k := range keys {
			pipe.Publish(ctx, r.channel(), eventDel+k)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Watch subscribes to the namespace's event channel. Changes made by this
// process are delivered too.
func (r *RedisBackend) Watch(ctx context.Context) (<-chan Change, error) {
	sub := r.redis.Subscribe(ctx, r.channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make(chan Change, watchBuffer)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				c, ok := parseEvent(msg.Payload)
				if !ok {
					continue
				}
				select {
				case out <- c:
				default:
				}
			}
		}
	}()
	return out, nil
}

func parseEvent(payload string) (Change, bool) {
	switch {
	case strings.HasPrefix(payload, eventSet):
		return Change{Key: strings.TrimPrefix(payload, eventSet)}, true
	case strings.HasPrefix(payload, eventDel):
		return Change{Key: strings.TrimPrefix(payload, eventDel), Deleted: true}, true
	default:
		return Change{}, false
	}
}
