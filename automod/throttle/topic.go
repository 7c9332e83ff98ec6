package throttle

import (
	"context"
	"time"

	"github.com/modshield/modshield/automod/recordstore"
)

// placeholder value while the notice for a claimed post is being posted
const pendingTopicMark = "pending"

// Per-post marker gating a one-time sticky notice. Unlike the other markers it has an explicit clear path: when the triggering flair is removed the marker is dropped, so the notice can be posted again if the flair comes back.
type TopicMarker struct {
	Store  recordstore.RecordStore
	TTL    time.Duration
	Prefix string
}

func NewTopicMarker(store recordstore.RecordStore) *TopicMarker {
	return &TopicMarker{
		Store:  store,
		TTL:    DefaultTopicTTL,
		Prefix: TopicPrefix,
	}
}

func (m *TopicMarker) key(postID string) string {
	if m.Prefix == "" {
		return TopicKey(postID)
	}
	return m.Prefix + postID
}

func (m *TopicMarker) IsMarked(ctx context.Context, postID string) (bool, error) {
	if postID == "" {
		return false, ErrEmptyKey
	}
	raw, err := m.Store.Get(ctx, m.key(postID))
	if err != nil {
		return false, err
	}
	return raw != "", nil
}

// Atomically takes the marker for a post. Only one caller gets true; it should post the notice and then call Mark, or Clear if posting failed.
func (m *TopicMarker) Claim(ctx context.Context, postID string) (bool, error) {
	if postID == "" {
		return false, ErrEmptyKey
	}
	return m.Store.CompareAndSwap(ctx, m.key(postID), "", pendingTopicMark, m.TTL)
}

// Records the notice. commentID may be empty.
func (m *TopicMarker) Mark(ctx context.Context, postID, commentID string) error {
	if postID == "" {
		return ErrEmptyKey
	}
	val := commentID
	if val == "" {
		val = "1"
	}
	return m.Store.Set(ctx, m.key(postID), val, m.TTL)
}

func (m *TopicMarker) Clear(ctx context.Context, postID string) error {
	if postID == "" {
		return ErrEmptyKey
	}
	return m.Store.Delete(ctx, m.key(postID))
}
