package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisRetries = 4

// Redis stores every (lifetime, bucket) pair as one hash whose fields are
// metric identifiers. Transforms use WATCH/MULTI so that concurrent processes
// sharing the same server never lose an update.
type Redis struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
}

var _ Store = (*Redis)(nil)

// NewRedis creates a store on top of client. Keys are namespaced with prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "usage"
	}
	return &Redis{
		client:     client,
		prefix:     prefix,
		maxRetries: defaultRedisRetries,
	}
}

func (s *Redis) key(lifetime Lifetime, bucket string) string {
	return s.prefix + ":" + string(lifetime) + ":" + bucket
}

// Transform implements Store.
func (s *Redis) Transform(ctx context.Context, m Metric, fn TransformFunc) error {
	for _, bucket := range m.Buckets() {
		if err := s.transformField(ctx, s.key(m.Lifetime(), bucket), m.Identifier(), fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *Redis) transformField(ctx context.Context, key, field string, fn TransformFunc) error {
	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			existing, err := tx.HGet(ctx, key, field).Bytes()
			ok := true
			if errors.Is(err, redis.Nil) {
				existing, ok = nil, false
			} else if err != nil {
				return err
			}

			next := fn(existing, ok)

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if next == nil {
					pipe.HDel(ctx, key, field)
				} else {
					pipe.HSet(ctx, key, field, next)
				}
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("transform %s in %s: %w", field, key, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s in %s after %d attempts", ErrTransformConflict, field, key, s.maxRetries)
}

// Get implements Store.
func (s *Redis) Get(ctx context.Context, bucket string, m Metric) ([]byte, bool, error) {
	raw, err := s.client.HGet(ctx, s.key(m.Lifetime(), bucket), m.Identifier()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", m.Identifier(), err)
	}
	return raw, true, nil
}

// Snapshot implements Store.
func (s *Redis) Snapshot(ctx context.Context, lifetime Lifetime, bucket string) (map[string][]byte, error) {
	fields, err := s.client.HGetAll(ctx, s.key(lifetime, bucket)).Result()
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", bucket, err)
	}
	out := make(map[string][]byte, len(fields))
	for id, raw := range fields {
		out[id] = []byte(raw)
	}
	return out, nil
}

// Clear implements Store.
func (s *Redis) Clear(ctx context.Context, lifetime Lifetime, bucket string) error {
	if err := s.client.Del(ctx, s.key(lifetime, bucket)).Err(); err != nil {
		return fmt.Errorf("clear %s: %w", bucket, err)
	}
	return nil
}

// Set overwrites the raw value of identifier in bucket, bypassing any codec.
func (s *Redis) Set(ctx context.Context, lifetime Lifetime, bucket, identifier string, raw []byte) error {
	if err := s.client.HSet(ctx, s.key(lifetime, bucket), identifier, raw).Err(); err != nil {
		return fmt.Errorf("set %s: %w", identifier, err)
	}
	return nil
}
