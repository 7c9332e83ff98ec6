package recordstore

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	val     string
	expires time.Time
}

// In-process store, mostly for tests and single-instance deployments. Safe for concurrent use.
type MemStore struct {
	Now func() time.Time

	mu   sync.Mutex
	data map[string]memEntry
}

var _ RecordStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		Now:  time.Now,
		data: make(map[string]memEntry),
	}
}

// must be called with lock held
func (s *MemStore) lookup(key string) (string, bool) {
	e, ok := s.data[key]
	if !ok {
		return "", false
	}
	if !e.expires.IsZero() && !s.Now().Before(e.expires) {
		delete(s.data, key)
		return "", false
	}
	return e.val, true
}

func (s *MemStore) put(key, val string, ttl time.Duration) {
	if val == "" {
		delete(s.data, key)
		return
	}
	s.data[key] = memEntry{val: val, expires: expiresAt(s.Now(), ttl)}
}

func (s *MemStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.lookup(key)
	return v, nil
}

func (s *MemStore) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, val, ttl)
	return nil
}

func (s *MemStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemStore) CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, _ := s.lookup(key)
	if cur != old {
		return false, nil
	}
	s.put(key, new, ttl)
	return true, nil
}

// Returns the live keys with the given prefix. Same as ListKeys, for callers without a context.
func (s *MemStore) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for k := range s.data {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if _, ok := s.lookup(k); ok {
			out = append(out, k)
		}
	}
	return out
}

func (s *MemStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	return s.Keys(prefix), nil
}
