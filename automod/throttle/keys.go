// Cooldown and once-only markers kept in the record store: per-user notification cooldown, per-item processed guard, the global auto-approval cooldown and per-post topic notice markers.
//
// All of these are check-then-act. Callers check, perform the side effect, then mark; two overlapping invocations can both pass the check. That window is tolerated, except for TopicMarker.Claim which uses compare-and-swap.
package throttle

import (
	"strconv"
	"time"
)

// Stored key names. These match data written by earlier deployments and must not change.
const (
	NotificationPrefix = "last_notif:"
	ProcessedPrefix    = "processed:"
	AutoApprovalKey    = "last_auto_approval"
	TopicPrefix        = "rumor_comment:"
)

const (
	DefaultNotificationCooldown = 5 * 24 * time.Hour
	DefaultProcessedTTL         = 30 * 24 * time.Hour
	DefaultAutoApprovalInterval = 5 * 24 * time.Hour
	DefaultTopicTTL             = 365 * 24 * time.Hour
)

func NotificationKey(username string) string {
	return NotificationPrefix + username
}

func ProcessedKey(itemID string) string {
	return ProcessedPrefix + itemID
}

func TopicKey(postID string) string {
	return TopicPrefix + postID
}

// timestamps are stored as decimal milliseconds since the epoch
func encodeMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func decodeMillis(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// true if no usable mark exists, or at least interval has passed since it
func elapsed(raw string, now time.Time, interval time.Duration) bool {
	last, ok := decodeMillis(raw)
	if !ok {
		return true
	}
	return now.Sub(last) >= interval
}
