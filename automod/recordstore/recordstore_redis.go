package recordstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	Client *redis.Client
	// Optional namespace for all keys. Left empty, keys are stored verbatim (eg, "warnings:someone"), which keeps existing data readable.
	Prefix string
}

var _ RecordStore = (*RedisStore)(nil)

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisStore{
		Client: rdb,
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.Client.Get(ctx, s.Prefix+key).Result()
	if err == redis.Nil {
		return "", nil
	} else if err != nil {
		return "", unavailable("get", key, err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	if err := s.Client.Set(ctx, s.Prefix+key, val, ttl).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.Client.Del(ctx, s.Prefix+key).Err(); err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

// Implemented with WATCH/MULTI: the transaction is aborted by redis if any other client writes the key between our read and our write.
func (s *RedisStore) CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	k := s.Prefix + key
	swapped := false
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Result()
		if err == redis.Nil {
			cur = ""
		} else if err != nil {
			return err
		}
		if cur != old {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if new == "" {
				pipe.Del(ctx, k)
			} else {
				pipe.Set(ctx, k, new, ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}
	err := s.Client.Watch(ctx, txf, k)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("cas", key, err)
	}
	return swapped, nil
}

func (s *RedisStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	out := []string{}
	iter := s.Client.Scan(ctx, 0, s.Prefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), s.Prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("list", prefix, err)
	}
	return out, nil
}
