package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adamdasovich/goldventure-sub001/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each cart as one JSON document with a sliding TTL.
// Save is a WATCH/MULTI transaction on the cart key.
type RedisStore struct {
	Redis *redis.Client
	TTL   time.Duration
}

func (s *RedisStore) key(id string) string { return fmt.Sprintf(redisx.KeyCart, id) }

func (s *RedisStore) Load(ctx context.Context, id string) (*Cart, error) {
	b, err := s.Redis.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &Cart{ID: id}, nil
	}
	if err != nil {
		return nil, err
	}
	var c Cart
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", id, err)
	}
	return &c, nil
}

func (s *RedisStore) Save(ctx context.Context, c *Cart) error {
	key := s.key(c.ID)
	next := *c
	next.Version++
	b, err := json.Marshal(next)
	if err != nil {
		return err
	}

	err = s.Redis.Watch(ctx, func(tx *redis.Tx) error {
		var stored int64
		cur, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var prev Cart
			if err := json.Unmarshal(cur, &prev); err != nil {
				return fmt.Errorf("decode cart %s: %w", c.ID, err)
			}
			stored = prev.Version
		}
		if stored != c.Version {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, s.TTL)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStale
	}
	if err != nil {
		return err
	}
	c.Version = next.Version
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.Redis.Del(ctx, s.key(id)).Err()
}

var _ Store = (*RedisStore)(nil)
