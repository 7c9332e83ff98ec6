package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

// Embedded LSM store, for deployments with heavy marker churn. Values are stored in the same envelope as BoltStore; expired entries read as absent until Sweep removes them.
type PebbleStore struct {
	Now func() time.Time

	db *pebble.DB
	// serializes read-modify-write in CompareAndSwap
	writeLk sync.Mutex
}

var _ RecordStore = (*PebbleStore)(nil)
var _ KeyLister = (*PebbleStore)(nil)
var _ Sweeper = (*PebbleStore)(nil)

func NewPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble database: %w", err)
	}
	return &PebbleStore{
		Now: time.Now,
		db:  db,
	}, nil
}

func (s *PebbleStore) Close() error {
	if err := s.db.Flush(); err != nil {
		return err
	}
	return s.db.Close()
}

func (s *PebbleStore) decode(raw []byte) (string, error) {
	var env boltEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", err
	}
	if env.ExpiresAt != 0 && s.Now().UnixMilli() >= env.ExpiresAt {
		return "", nil
	}
	return env.Value, nil
}

func (s *PebbleStore) read(key string) (string, error) {
	value, closer, err := s.db.Get([]byte(key))
	if closer != nil {
		defer closer.Close()
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.decode(value)
}

func (s *PebbleStore) write(key, val string, ttl time.Duration) error {
	if val == "" {
		return s.db.Delete([]byte(key), pebble.Sync)
	}
	env := boltEnvelope{Value: val}
	if exp := expiresAt(s.Now(), ttl); !exp.IsZero() {
		env.ExpiresAt = exp.UnixMilli()
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.db.Set([]byte(key), raw, pebble.Sync)
}

func (s *PebbleStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.read(key)
	if err != nil {
		return "", unavailable("get", key, err)
	}
	return val, nil
}

func (s *PebbleStore) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	s.writeLk.Lock()
	defer s.writeLk.Unlock()
	if err := s.write(key, val, ttl); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *PebbleStore) Delete(ctx context.Context, key string) error {
	s.writeLk.Lock()
	defer s.writeLk.Unlock()
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

func (s *PebbleStore) CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	s.writeLk.Lock()
	defer s.writeLk.Unlock()
	cur, err := s.read(key)
	if err != nil {
		return false, unavailable("cas", key, err)
	}
	if cur != old {
		return false, nil
	}
	if err := s.write(key, new, ttl); err != nil {
		return false, unavailable("cas", key, err)
	}
	return true, nil
}

// smallest key greater than every key with the given prefix; nil if there is none
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *PebbleStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	opts := &pebble.IterOptions{}
	if prefix != "" {
		opts.LowerBound = []byte(prefix)
		opts.UpperBound = prefixUpperBound([]byte(prefix))
	}
	iter, err := s.db.NewIterWithContext(ctx, opts)
	if err != nil {
		return nil, unavailable("list", prefix, err)
	}
	defer iter.Close()

	out := []string{}
	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, unavailable("list", prefix, err)
		}
		val, err := s.decode(value)
		if err != nil || val == "" {
			continue
		}
		out = append(out, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, unavailable("list", prefix, err)
	}
	return out, nil
}

func (s *PebbleStore) Sweep(ctx context.Context) (int, error) {
	now := s.Now().UnixMilli()
	iter, err := s.db.NewIterWithContext(ctx, &pebble.IterOptions{})
	if err != nil {
		return 0, unavailable("sweep", "*", err)
	}
	defer iter.Close()

	batch := s.db.NewBatch()
	defer batch.Close()
	removed := 0
	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return 0, unavailable("sweep", "*", err)
		}
		var env boltEnvelope
		if err := json.Unmarshal(value, &env); err != nil {
			continue
		}
		if env.ExpiresAt != 0 && now >= env.ExpiresAt {
			if err := batch.Delete(iter.Key(), nil); err != nil {
				return 0, unavailable("sweep", "*", err)
			}
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	s.writeLk.Lock()
	defer s.writeLk.Unlock()
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, unavailable("sweep", "*", err)
	}
	return removed, nil
}
