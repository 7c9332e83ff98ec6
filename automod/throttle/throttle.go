package throttle

import (
	"context"
	"errors"
	"time"

	"github.com/modshield/modshield/automod/recordstore"
)

var ErrEmptyKey = errors.New("empty throttle key")

// Per-user cooldown between outbound notices.
type NotificationThrottle struct {
	Store    recordstore.RecordStore
	Cooldown time.Duration
	Now      func() time.Time
}

func NewNotificationThrottle(store recordstore.RecordStore) *NotificationThrottle {
	return &NotificationThrottle{
		Store:    store,
		Cooldown: DefaultNotificationCooldown,
		Now:      time.Now,
	}
}

// True if the user has never been notified, or the last notice is at least Cooldown old. An unparseable mark counts as no mark.
func (t *NotificationThrottle) CanSend(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, ErrEmptyKey
	}
	raw, err := t.Store.Get(ctx, NotificationKey(username))
	if err != nil {
		return false, err
	}
	return elapsed(raw, t.Now(), t.Cooldown), nil
}

// Must be called right after a notice was actually sent.
func (t *NotificationThrottle) MarkSent(ctx context.Context, username string) error {
	if username == "" {
		return ErrEmptyKey
	}
	return t.Store.Set(ctx, NotificationKey(username), encodeMillis(t.Now()), 0)
}

// Per-item "already evaluated for restoration" marker.
type ProcessedGuard struct {
	Store recordstore.RecordStore
	TTL   time.Duration
}

func NewProcessedGuard(store recordstore.RecordStore) *ProcessedGuard {
	return &ProcessedGuard{
		Store: store,
		TTL:   DefaultProcessedTTL,
	}
}

func (g *ProcessedGuard) AlreadyProcessed(ctx context.Context, itemID string) (bool, error) {
	if itemID == "" {
		return false, ErrEmptyKey
	}
	raw, err := g.Store.Get(ctx, ProcessedKey(itemID))
	if err != nil {
		return false, err
	}
	return raw != "", nil
}

// After TTL expires the item may be evaluated again.
func (g *ProcessedGuard) MarkProcessed(ctx context.Context, itemID string) error {
	if itemID == "" {
		return ErrEmptyKey
	}
	return g.Store.Set(ctx, ProcessedKey(itemID), "1", g.TTL)
}

// Process-wide cooldown between automatic approvals, independent of user.
type AutoApprovalThrottle struct {
	Store    recordstore.RecordStore
	Interval time.Duration
	Now      func() time.Time
}

func NewAutoApprovalThrottle(store recordstore.RecordStore, interval time.Duration) *AutoApprovalThrottle {
	if interval <= 0 {
		interval = DefaultAutoApprovalInterval
	}
	return &AutoApprovalThrottle{
		Store:    store,
		Interval: interval,
		Now:      time.Now,
	}
}

func (t *AutoApprovalThrottle) CanAutoApprove(ctx context.Context) (bool, error) {
	raw, err := t.Store.Get(ctx, AutoApprovalKey)
	if err != nil {
		return false, err
	}
	return elapsed(raw, t.Now(), t.Interval), nil
}

func (t *AutoApprovalThrottle) MarkDone(ctx context.Context) error {
	return t.Store.Set(ctx, AutoApprovalKey, encodeMillis(t.Now()), 0)
}

// Returns the time of the last automatic approval, if any.
func (t *AutoApprovalThrottle) Last(ctx context.Context) (time.Time, bool, error) {
	raw, err := t.Store.Get(ctx, AutoApprovalKey)
	if err != nil {
		return time.Time{}, false, err
	}
	last, ok := decodeMillis(raw)
	return last, ok, nil
}
