package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRecords = []byte("records")

// Embedded single-file store. Expiry is checked on read; expired entries are only physically removed by Sweep.
type BoltStore struct {
	Now func() time.Time

	db *bolt.DB
}

var _ RecordStore = (*BoltStore)(nil)
var _ Sweeper = (*BoltStore)(nil)

// on-disk value, with expiry as unix milliseconds (zero for none)
type boltEnvelope struct {
	Value     string `json:"v"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating bolt directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bolt bucket: %w", err)
	}
	return &BoltStore{
		Now: time.Now,
		db:  db,
	}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) read(b *bolt.Bucket, key string) (string, error) {
	raw := b.Get([]byte(key))
	if raw == nil {
		return "", nil
	}
	var env boltEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", err
	}
	if env.ExpiresAt != 0 && s.Now().UnixMilli() >= env.ExpiresAt {
		return "", nil
	}
	return env.Value, nil
}

func (s *BoltStore) write(b *bolt.Bucket, key, val string, ttl time.Duration) error {
	if val == "" {
		return b.Delete([]byte(key))
	}
	env := boltEnvelope{Value: val}
	if exp := expiresAt(s.Now(), ttl); !exp.IsZero() {
		env.ExpiresAt = exp.UnixMilli()
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), raw)
}

func (s *BoltStore) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := s.db.View(func(tx *bolt.Tx) error {
		v, err := s.read(tx.Bucket(bucketRecords), key)
		val = v
		return err
	})
	if err != nil {
		return "", unavailable("get", key, err)
	}
	return val, nil
}

func (s *BoltStore) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return s.write(tx.Bucket(bucketRecords), key, val, ttl)
	})
	if err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).Delete([]byte(key))
	})
	if err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

// bolt serializes all write transactions, so the read and write below are atomic.
func (s *BoltStore) CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	swapped := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		cur, err := s.read(b, key)
		if err != nil {
			return err
		}
		if cur != old {
			return nil
		}
		if err := s.write(b, key, new, ttl); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, unavailable("cas", key, err)
	}
	return swapped, nil
}

func (s *BoltStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	now := s.Now().UnixMilli()
	out := []string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			var env boltEnvelope
			if err := json.Unmarshal(v, &env); err != nil {
				continue
			}
			if env.ExpiresAt != 0 && now >= env.ExpiresAt {
				continue
			}
			out = append(out, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("list", prefix, err)
	}
	return out, nil
}

func (s *BoltStore) Sweep(ctx context.Context) (int, error) {
	now := s.Now().UnixMilli()
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		// deleting while iterating with ForEach is not allowed, so collect first
		expired := [][]byte{}
		err := b.ForEach(func(k, v []byte) error {
			var env boltEnvelope
			if err := json.Unmarshal(v, &env); err != nil {
				return nil
			}
			if env.ExpiresAt != 0 && now >= env.ExpiresAt {
				expired = append(expired, append([]byte{}, k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	if err != nil {
		return 0, unavailable("sweep", "*", err)
	}
	return removed, nil
}
