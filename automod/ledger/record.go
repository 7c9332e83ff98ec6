package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// highest ban level: permanent
	MaxBanLevel = 3
	// warnings older than this no longer count towards ban thresholds
	DefaultRetention = 90 * 24 * time.Hour
)

// Returned when a stored value does not parse as a valid UserWarningRecord. Read paths treat such a record as absent.
var ErrMalformedRecord = errors.New("malformed warning record")

type ContentKind int

const (
	NoContent ContentKind = iota
	PostContent
	CommentContent
)

// Identifies the content (if any) which triggered a warning.
type ContentRef struct {
	Kind ContentKind
	ID   string
}

func PostRef(id string) ContentRef {
	return ContentRef{Kind: PostContent, ID: id}
}

func CommentRef(id string) ContentRef {
	return ContentRef{Kind: CommentContent, ID: id}
}

// True if this reference points at the given post or comment ID.
func (r ContentRef) Matches(id string) bool {
	return r.Kind != NoContent && id != "" && r.ID == id
}

func (r ContentRef) String() string {
	switch r.Kind {
	case PostContent:
		return "post:" + r.ID
	case CommentContent:
		return "comment:" + r.ID
	default:
		return "none"
	}
}

// A single disciplinary event. Warnings are never edited: they are appended, aged out, or removed when the content is reinstated.
type Warning struct {
	Timestamp time.Time
	Content   ContentRef
	// human moderator username, or an automated-system tag like "AutoMod"
	Moderator string
	Reason    string
}

// stored form; postId/commentId are mutually exclusive optional fields
type warningJSON struct {
	Timestamp int64  `json:"timestamp"`
	PostID    string `json:"postId,omitempty"`
	CommentID string `json:"commentId,omitempty"`
	Moderator string `json:"moderator"`
	Reason    string `json:"reason"`
}

func (w Warning) MarshalJSON() ([]byte, error) {
	out := warningJSON{
		Timestamp: w.Timestamp.UnixMilli(),
		Moderator: w.Moderator,
		Reason:    w.Reason,
	}
	switch w.Content.Kind {
	case PostContent:
		out.PostID = w.Content.ID
	case CommentContent:
		out.CommentID = w.Content.ID
	}
	return json.Marshal(out)
}

func (w *Warning) UnmarshalJSON(b []byte) error {
	var in warningJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if in.PostID != "" && in.CommentID != "" {
		return fmt.Errorf("warning references both post %s and comment %s", in.PostID, in.CommentID)
	}
	w.Timestamp = time.UnixMilli(in.Timestamp)
	w.Moderator = in.Moderator
	w.Reason = in.Reason
	switch {
	case in.PostID != "":
		w.Content = PostRef(in.PostID)
	case in.CommentID != "":
		w.Content = CommentRef(in.CommentID)
	default:
		w.Content = ContentRef{}
	}
	return nil
}

// Per-user warning history; the unit of storage.
type UserWarningRecord struct {
	// insertion order
	Warnings []Warning `json:"warnings"`
	// lifetime counter, including pruned and removed warnings. Never decremented.
	TotalWarnings int `json:"totalWarnings"`
	// highest ban tier already applied (0 = none, 3 = permanent)
	LastBanLevel int `json:"lastBanLevel"`
}

func NewRecord() *UserWarningRecord {
	return &UserWarningRecord{
		Warnings: []Warning{},
	}
}

func (r *UserWarningRecord) Validate() error {
	if r.TotalWarnings < 0 {
		return fmt.Errorf("negative totalWarnings: %d", r.TotalWarnings)
	}
	if r.LastBanLevel < 0 || r.LastBanLevel > MaxBanLevel {
		return fmt.Errorf("lastBanLevel out of range: %d", r.LastBanLevel)
	}
	for _, w := range r.Warnings {
		if w.Timestamp.UnixMilli() <= 0 {
			return fmt.Errorf("warning missing timestamp")
		}
	}
	return nil
}

// Drops warnings issued at or before the cutoff. TotalWarnings is unaffected.
func (r *UserWarningRecord) prune(cutoff time.Time) {
	kept := make([]Warning, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		if w.Timestamp.After(cutoff) {
			kept = append(kept, w)
		}
	}
	r.Warnings = kept
}

func (r *UserWarningRecord) activeCount(cutoff time.Time) int {
	n := 0
	for _, w := range r.Warnings {
		if w.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

type WarningCounts struct {
	Active  int
	Expired int
	Total   int
}

// Parses a stored record. An empty string decodes to a fresh zero record.
func DecodeRecord(raw string) (*UserWarningRecord, error) {
	rec := NewRecord()
	if raw == "" {
		return rec, nil
	}
	if err := json.Unmarshal([]byte(raw), rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if rec.Warnings == nil {
		rec.Warnings = []Warning{}
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	return rec, nil
}

func EncodeRecord(rec *UserWarningRecord) (string, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
