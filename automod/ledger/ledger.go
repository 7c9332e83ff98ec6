package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modshield/modshield/automod/recordstore"

	"github.com/puzpuzpuz/xsync/v4"
)

var (
	ErrEmptyUsername = errors.New("empty username")
	// Returned when an update lost every compare-and-swap race (eg, another process kept rewriting the same record).
	ErrConflict = errors.New("warning record update conflict")
)

const defaultMaxRetries = 8

func WarningsKey(username string) string {
	return "warnings:" + username
}

// Owns per-user warning history in a RecordStore.
//
// Read-modify-write operations on one user's record are serialized within the process by a per-username lock, and use compare-and-swap against the store so that concurrent writers in other processes can't silently drop an update.
type Ledger struct {
	Store  recordstore.RecordStore
	Logger *slog.Logger
	// age after which a warning stops counting as active
	Retention time.Duration
	// compare-and-swap attempts before giving up with ErrConflict
	MaxRetries int
	Now        func() time.Time

	locks *xsync.Map[string, *sync.Mutex]
}

func NewLedger(store recordstore.RecordStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		Store:      store,
		Logger:     logger,
		Retention:  DefaultRetention,
		MaxRetries: defaultMaxRetries,
		Now:        time.Now,
		locks:      xsync.NewMap[string, *sync.Mutex](),
	}
}

func (l *Ledger) cutoff() time.Time {
	return l.Now().Add(-l.Retention)
}

func (l *Ledger) lock(username string) func() {
	mu, _ := l.locks.LoadOrCompute(username, func() (*sync.Mutex, bool) {
		return &sync.Mutex{}, false
	})
	mu.Lock()
	return mu.Unlock
}

// Reads a record, returning the raw stored value alongside for compare-and-swap. Malformed records are logged and treated as absent.
func (l *Ledger) load(ctx context.Context, username string) (*UserWarningRecord, string, error) {
	if username == "" {
		return nil, "", ErrEmptyUsername
	}
	raw, err := l.Store.Get(ctx, WarningsKey(username))
	if err != nil {
		return nil, "", err
	}
	rec, err := DecodeRecord(raw)
	if err != nil {
		l.Logger.Warn("ignoring malformed warning record", "user", username, "err", err)
		return NewRecord(), raw, nil
	}
	return rec, raw, nil
}

// Applies fn to the current record and writes it back if fn reports a change, retrying from a fresh read if another writer got there first.
func (l *Ledger) update(ctx context.Context, username string, fn func(rec *UserWarningRecord) bool) (*UserWarningRecord, error) {
	if username == "" {
		return nil, ErrEmptyUsername
	}
	unlock := l.lock(username)
	defer unlock()

	retries := l.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	for attempt := 0; attempt < retries; attempt++ {
		rec, raw, err := l.load(ctx, username)
		if err != nil {
			return nil, err
		}
		if !fn(rec) {
			return rec, nil
		}
		enc, err := EncodeRecord(rec)
		if err != nil {
			return nil, err
		}
		ok, err := l.Store.CompareAndSwap(ctx, WarningsKey(username), raw, enc, 0)
		if err != nil {
			return nil, err
		}
		if ok {
			return rec, nil
		}
		l.Logger.Debug("warning record changed underneath us, retrying", "user", username, "attempt", attempt)
	}
	return nil, fmt.Errorf("%w: user %s", ErrConflict, username)
}

// Appends a warning, bumps the lifetime counter, and prunes warnings older than the retention window.
func (l *Ledger) AddWarning(ctx context.Context, username string, w Warning) (*UserWarningRecord, error) {
	if w.Timestamp.IsZero() {
		w.Timestamp = l.Now()
	}
	return l.update(ctx, username, func(rec *UserWarningRecord) bool {
		rec.Warnings = append(rec.Warnings, w)
		rec.TotalWarnings++
		rec.prune(l.cutoff())
		return true
	})
}

// Returns the record with expired warnings filtered out (nothing is written back). Absent users get a zero record.
func (l *Ledger) GetUserWarnings(ctx context.Context, username string) (*UserWarningRecord, error) {
	rec, _, err := l.load(ctx, username)
	if err != nil {
		return nil, err
	}
	rec.prune(l.cutoff())
	return rec, nil
}

func (l *Ledger) GetWarningCounts(ctx context.Context, username string) (WarningCounts, error) {
	rec, _, err := l.load(ctx, username)
	if err != nil {
		return WarningCounts{}, err
	}
	return countsFor(rec, l.cutoff()), nil
}

func countsFor(rec *UserWarningRecord, cutoff time.Time) WarningCounts {
	active := rec.activeCount(cutoff)
	// floored at zero in case a record was written inconsistently
	return WarningCounts{
		Active:  active,
		Expired: max(rec.TotalWarnings-active, 0),
		Total:   rec.TotalWarnings,
	}
}

// Same as GetWarningCounts, computed from an already-loaded record.
func (l *Ledger) Counts(rec *UserWarningRecord) WarningCounts {
	return countsFor(rec, l.cutoff())
}

// Deletes any warning tied to the given post or comment ID (used when a moderator reinstates content). The lifetime counter is not decremented. Returns the number of warnings removed; absent users are a no-op.
func (l *Ledger) RemoveWarning(ctx context.Context, username, contentID string) (int, error) {
	removed := 0
	_, err := l.update(ctx, username, func(rec *UserWarningRecord) bool {
		kept := make([]Warning, 0, len(rec.Warnings))
		for _, w := range rec.Warnings {
			if w.Content.Matches(contentID) {
				continue
			}
			kept = append(kept, w)
		}
		removed = len(rec.Warnings) - len(kept)
		rec.Warnings = kept
		return removed > 0
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Records that a ban tier has been applied. The stored level only ever moves up; a lower or equal level is a no-op.
func (l *Ledger) SetBanLevel(ctx context.Context, username string, level int) (*UserWarningRecord, error) {
	if level < 0 || level > MaxBanLevel {
		return nil, fmt.Errorf("ban level out of range: %d", level)
	}
	return l.update(ctx, username, func(rec *UserWarningRecord) bool {
		if level <= rec.LastBanLevel {
			return false
		}
		rec.LastBanLevel = level
		return true
	})
}

// Deletes a user's entire warning history. Administrative; not part of normal event processing.
func (l *Ledger) Clear(ctx context.Context, username string) error {
	if username == "" {
		return ErrEmptyUsername
	}
	unlock := l.lock(username)
	defer unlock()
	return l.Store.Delete(ctx, WarningsKey(username))
}
