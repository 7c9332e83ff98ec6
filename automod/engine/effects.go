package engine

type CounterRef struct {
	Name string
	Val  string
}

type CounterDistinctRef struct {
	Name   string
	Bucket string
	Val    string
}

type NoticeKind string

var (
	BlacklistNotice     NoticeKind = "blacklist"
	ParticipationNotice NoticeKind = "participation"
)

// A reply to post on the content once it has been removed. Rendered at persist time, so it can include the author's updated warning counts.
type Notice struct {
	Kind NoticeKind
	// free text for participation notices
	Reason string
}

type WarningEffect struct {
	Reason    string
	Moderator string
}

type WarningRemoval struct {
	Username  string
	ContentID string
}

// Mutable container for all the possible side-effects from rule execution.
//
// Rules only enqueue effects; nothing touches the store or the moderation API until every rule has run.
type Effects struct {
	// List of counters which should be incremented as part of processing this event. These are collected during rule execution and persisted in bulk at the end.
	CounterIncrements []CounterRef
	// Similar to "CounterIncrements", but for "distinct" style counters
	CounterDistinctIncrements []CounterDistinctRef
	// Warning to record against the author of the content being processed.
	Warning *WarningEffect
	// Remove the content being processed.
	Remove bool
	// Replies to post on the removed content.
	Notices []Notice
	// Posts which should get a pinned topic notice, if they don't already have one.
	TopicNotices []string
	// Posts whose topic marker should be cleared.
	TopicClears []string
	// Items to check for (and reverse) a platform spam-filter removal.
	Restorations []string
	WarningRemovals []WarningRemoval
	// Private flags for the content author, recorded in the flagstore.
	AuthorFlags []string
	// If true, no further rules run for this event.
	Halted bool
}

// Enqueues the named counter to be incremented at the end of all rule processing. Will automatically increment for all time periods.
//
// "name" is the counter namespace.
// "val" is the specific counter with that namespace.
func (e *Effects) Increment(name, val string) {
	e.CounterIncrements = append(e.CounterIncrements, CounterRef{Name: name, Val: val})
}

// Enqueues the named "distinct value" counter based on the supplied string value ("val") to be incremented at the end of all rule processing. Will automatically increment for all time periods.
func (e *Effects) IncrementDistinct(name, bucket, val string) {
	e.CounterDistinctIncrements = append(e.CounterDistinctIncrements, CounterDistinctRef{Name: name, Bucket: bucket, Val: val})
}

// Only one warning is recorded per event; the first reason wins.
func (e *Effects) AddWarning(reason, moderator string) {
	if e.Warning != nil {
		return
	}
	e.Warning = &WarningEffect{Reason: reason, Moderator: moderator}
}

func (e *Effects) RemoveContent() {
	e.Remove = true
}

func (e *Effects) AddNotice(n Notice) {
	e.Notices = append(e.Notices, n)
}

func (e *Effects) AddTopicNotice(postID string) {
	e.TopicNotices = append(e.TopicNotices, postID)
}

func (e *Effects) ClearTopic(postID string) {
	e.TopicClears = append(e.TopicClears, postID)
}

func (e *Effects) RestoreIfFiltered(contentID string) {
	e.Restorations = append(e.Restorations, contentID)
}

func (e *Effects) RemoveWarningFor(username, contentID string) {
	e.WarningRemovals = append(e.WarningRemovals, WarningRemoval{Username: username, ContentID: contentID})
}

// Enqueues the provided flag (string value) to be recorded (in the Engine's flagstore) at the end of rule processing.
func (e *Effects) AddAuthorFlag(val string) {
	e.AuthorFlags = append(e.AuthorFlags, val)
}

func (e *Effects) Halt() {
	e.Halted = true
}
