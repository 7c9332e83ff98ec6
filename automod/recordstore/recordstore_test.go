package recordstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/modshield/modshield/util/cliutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// shared behavior checks, run against every backend
func testRecordStoreBasics(t *testing.T, s RecordStore, clock *fakeClock) {
	assert := assert.New(t)
	ctx := context.Background()

	v, err := s.Get(ctx, "warnings:alice")
	assert.NoError(err)
	assert.Empty(v)

	assert.NoError(s.Set(ctx, "warnings:alice", "one", 0))
	v, err = s.Get(ctx, "warnings:alice")
	assert.NoError(err)
	assert.Equal("one", v)

	assert.NoError(s.Set(ctx, "warnings:alice", "two", 0))
	v, err = s.Get(ctx, "warnings:alice")
	assert.NoError(err)
	assert.Equal("two", v)

	assert.NoError(s.Delete(ctx, "warnings:alice"))
	v, err = s.Get(ctx, "warnings:alice")
	assert.NoError(err)
	assert.Empty(v)

	// deleting a missing key is fine
	assert.NoError(s.Delete(ctx, "warnings:nobody"))

	// expiry
	assert.NoError(s.Set(ctx, "processed:t3_abc", "1", time.Hour))
	v, err = s.Get(ctx, "processed:t3_abc")
	assert.NoError(err)
	assert.Equal("1", v)
	clock.Advance(59 * time.Minute)
	v, err = s.Get(ctx, "processed:t3_abc")
	assert.NoError(err)
	assert.Equal("1", v)
	clock.Advance(2 * time.Minute)
	v, err = s.Get(ctx, "processed:t3_abc")
	assert.NoError(err)
	assert.Empty(v)
}

func testRecordStoreCAS(t *testing.T, s RecordStore, clock *fakeClock) {
	assert := assert.New(t)
	ctx := context.Background()

	// insert-if-absent
	ok, err := s.CompareAndSwap(ctx, "k", "", "v1", 0)
	assert.NoError(err)
	assert.True(ok)
	ok, err = s.CompareAndSwap(ctx, "k", "", "v1-again", 0)
	assert.NoError(err)
	assert.False(ok)

	// stale old value loses
	ok, err = s.CompareAndSwap(ctx, "k", "stale", "v2", 0)
	assert.NoError(err)
	assert.False(ok)
	v, _ := s.Get(ctx, "k")
	assert.Equal("v1", v)

	ok, err = s.CompareAndSwap(ctx, "k", "v1", "v2", 0)
	assert.NoError(err)
	assert.True(ok)
	v, _ = s.Get(ctx, "k")
	assert.Equal("v2", v)

	// swap to empty deletes
	ok, err = s.CompareAndSwap(ctx, "k", "v2", "", 0)
	assert.NoError(err)
	assert.True(ok)
	v, _ = s.Get(ctx, "k")
	assert.Empty(v)

	// an expired value counts as absent
	assert.NoError(s.Set(ctx, "exp", "old", time.Minute))
	clock.Advance(2 * time.Minute)
	ok, err = s.CompareAndSwap(ctx, "exp", "", "fresh", 0)
	assert.NoError(err)
	assert.True(ok)
	v, _ = s.Get(ctx, "exp")
	assert.Equal("fresh", v)
}

func testRecordStoreListKeys(t *testing.T, s RecordStore, clock *fakeClock) {
	assert := assert.New(t)
	ctx := context.Background()

	lister, ok := s.(KeyLister)
	if !assert.True(ok) {
		return
	}
	assert.NoError(s.Set(ctx, "list:warnings:a", "x", 0))
	assert.NoError(s.Set(ctx, "list:warnings:b", "x", time.Second))
	assert.NoError(s.Set(ctx, "list:warnings_c", "x", 0))
	assert.NoError(s.Set(ctx, "list:last_notif:a", "x", 0))
	clock.Advance(time.Minute)

	keys, err := lister.ListKeys(ctx, "list:warnings:")
	assert.NoError(err)
	assert.Equal([]string{"list:warnings:a"}, keys)

	keys, err = lister.ListKeys(ctx, "list:")
	assert.NoError(err)
	assert.ElementsMatch([]string{"list:warnings:a", "list:warnings_c", "list:last_notif:a"}, keys)
}

func TestMemStore(t *testing.T) {
	clock := newClock()
	s := NewMemStore()
	s.Now = clock.Now
	testRecordStoreBasics(t, s, clock)
	testRecordStoreCAS(t, s, clock)
	testRecordStoreListKeys(t, s, clock)

	assert := assert.New(t)
	ctx := context.Background()
	assert.NoError(s.Set(ctx, "warnings:a", "x", 0))
	assert.NoError(s.Set(ctx, "warnings:b", "x", time.Second))
	assert.NoError(s.Set(ctx, "last_notif:a", "x", 0))
	clock.Advance(time.Minute)
	assert.Equal([]string{"warnings:a"}, s.Keys("warnings:"))
}

func TestMemStoreConcurrentCAS(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemStore()

	// many goroutines racing to claim the same key; exactly one should win
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.CompareAndSwap(ctx, "claim", "", "mine", 0)
			assert.NoError(err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(1, wins)
}

func TestBoltStore(t *testing.T) {
	clock := newClock()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	defer s.Close()
	s.Now = clock.Now

	testRecordStoreBasics(t, s, clock)
	testRecordStoreCAS(t, s, clock)
	testRecordStoreListKeys(t, s, clock)
}

func TestBoltStoreSweep(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	clock := newClock()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	defer s.Close()
	s.Now = clock.Now

	assert.NoError(s.Set(ctx, "processed:1", "1", time.Hour))
	assert.NoError(s.Set(ctx, "processed:2", "1", 3*time.Hour))
	assert.NoError(s.Set(ctx, "warnings:x", "{}", 0))
	clock.Advance(2 * time.Hour)

	n, err := s.Sweep(ctx)
	assert.NoError(err)
	assert.Equal(1, n)

	v, _ := s.Get(ctx, "processed:2")
	assert.Equal("1", v)
	v, _ = s.Get(ctx, "warnings:x")
	assert.Equal("{}", v)
}

func TestPebbleStore(t *testing.T) {
	clock := newClock()
	s, err := NewPebbleStore(filepath.Join(t.TempDir(), "records"))
	require.NoError(t, err)
	defer s.Close()
	s.Now = clock.Now

	testRecordStoreBasics(t, s, clock)
	testRecordStoreCAS(t, s, clock)
	testRecordStoreListKeys(t, s, clock)
}

func TestPebbleStoreSweep(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	clock := newClock()
	s, err := NewPebbleStore(filepath.Join(t.TempDir(), "records"))
	require.NoError(t, err)
	defer s.Close()
	s.Now = clock.Now

	assert.NoError(s.Set(ctx, "processed:1", "1", time.Hour))
	assert.NoError(s.Set(ctx, "processed:2", "1", 3*time.Hour))
	assert.NoError(s.Set(ctx, "warnings:x", "{}", 0))
	clock.Advance(2 * time.Hour)

	n, err := s.Sweep(ctx)
	assert.NoError(err)
	assert.Equal(1, n)

	v, _ := s.Get(ctx, "processed:2")
	assert.Equal("1", v)
	v, _ = s.Get(ctx, "warnings:x")
	assert.Equal("{}", v)
}

func TestKeyListerBackends(t *testing.T) {
	assert := assert.New(t)

	for _, s := range []RecordStore{&MemStore{}, &RedisStore{}, &BoltStore{}, &PebbleStore{}, &SQLStore{}} {
		_, ok := s.(KeyLister)
		assert.True(ok, "%T should list keys", s)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	assert := assert.New(t)

	assert.Equal([]byte("warnings;"), prefixUpperBound([]byte("warnings:")))
	assert.Equal([]byte{'b'}, prefixUpperBound([]byte{'a', 0xff}))
	assert.Nil(prefixUpperBound([]byte{0xff, 0xff}))
}

func TestSQLStore(t *testing.T) {
	clock := newClock()
	db, err := cliutil.SetupDatabase("sqlite://:memory:", 1)
	require.NoError(t, err)
	s, err := NewSQLStore(db)
	require.NoError(t, err)
	s.Now = clock.Now

	testRecordStoreBasics(t, s, clock)
	testRecordStoreCAS(t, s, clock)
	testRecordStoreListKeys(t, s, clock)
}

func TestOpenMemory(t *testing.T) {
	assert := assert.New(t)

	s, err := Open("memory://", 1)
	assert.NoError(err)
	_, ok := s.(*MemStore)
	assert.True(ok)

	s, err = Open("bolt://"+filepath.Join(t.TempDir(), "x.db"), 1)
	assert.NoError(err)
	bs, ok := s.(*BoltStore)
	assert.True(ok)
	assert.NoError(bs.Close())

	s, err = Open("pebble://"+filepath.Join(t.TempDir(), "records"), 1)
	assert.NoError(err)
	ps, ok := s.(*PebbleStore)
	assert.True(ok)
	assert.NoError(ps.Close())
}
