package recordstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Returned (wrapped) by all implementations when the backing store could not be read or written.
var ErrStoreUnavailable = errors.New("record store unavailable")

type RecordStore interface {
	// Returns the empty string if the key is absent or has expired.
	Get(ctx context.Context, key string) (string, error)
	// A zero ttl means the record never expires.
	Set(ctx context.Context, key, val string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Replaces the value at key with new, but only if the current value is old. An empty old means the key must be absent (or expired); an empty new deletes the key. Returns false, without error, if the current value did not match.
	CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error)
}

// Optionally implemented by stores which can enumerate their keys. Used by administrative operations only; never on the event path.
type KeyLister interface {
	// Returns live keys starting with prefix, in no particular order.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Implemented by embedded stores which check expiry on read but don't reclaim space on their own.
type Sweeper interface {
	// Physically removes expired entries. Returns the number removed.
	Sweep(ctx context.Context) (int, error)
}

// Runs Sweep periodically until the context is cancelled. Expects to be run in a goroutine.
func RunSweeper(ctx context.Context, s Sweeper, logger *slog.Logger, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				// don't return an error, just log, and attempt again on the next tick
				logger.Error("failed to sweep expired records", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("swept expired records", "count", n)
			}
		}
	}
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", ErrStoreUnavailable, op, key, err)
}

func expiresAt(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
