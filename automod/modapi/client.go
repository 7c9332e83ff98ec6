// Boundary to the hosting platform's moderation API: banning users, removing/approving content, replying, and looking up content and user metadata.
package modapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Operation names, used in errors, metrics and mock failure injection.
const (
	OpBan        = "ban"
	OpRemove     = "remove"
	OpApprove    = "approve"
	OpReply      = "reply"
	OpLock       = "lock"
	OpGetContent = "get-content"
	OpGetUser    = "get-user"
	OpModNote    = "mod-note"
)

type ContentKind string

const (
	KindPost    ContentKind = "post"
	KindComment ContentKind = "comment"
)

var ErrNotFound = errors.New("not found")

// Returned for any failed moderation API call: transport errors, timeouts, permission failures and unexpected statuses.
type ModerationAPIError struct {
	Op string
	// zero when the request never got a response
	StatusCode int
	Err        error
}

func (e *ModerationAPIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("moderation API %s: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("moderation API %s (HTTP %d): %s", e.Op, e.StatusCode, e.Err)
}

func (e *ModerationAPIError) Unwrap() error {
	return e.Err
}

func (e *ModerationAPIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound || errors.Is(e.Err, ErrNotFound)
}

type Content struct {
	ID   string      `json:"id"`
	Kind ContentKind `json:"kind"`
	// empty for deleted accounts
	Author string `json:"author,omitempty"`
	// parent post, for comments
	PostID    string    `json:"postId,omitempty"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body,omitempty"`
	FlairText string    `json:"flairText,omitempty"`
	Removed   bool      `json:"removed"`
	Spam      bool      `json:"spam"`
	CreatedAt time.Time `json:"createdAt"`
}

// Text considered by content rules: title and body for posts, body for comments.
func (c *Content) Text() string {
	if c.Kind == KindPost && c.Title != "" {
		if c.Body == "" {
			return c.Title
		}
		return c.Title + " " + c.Body
	}
	return c.Body
}

type UserInfo struct {
	Username     string    `json:"username"`
	LinkKarma    int       `json:"linkKarma"`
	CommentKarma int       `json:"commentKarma"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u *UserInfo) Karma() int {
	return u.LinkKarma + u.CommentKarma
}

// Account age in whole days at the given time.
func (u *UserInfo) AgeDays(now time.Time) int {
	if u.CreatedAt.IsZero() {
		return 0
	}
	return int(now.Sub(u.CreatedAt) / (24 * time.Hour))
}

type BanRequest struct {
	Username  string `json:"username"`
	Subreddit string `json:"subreddit"`
	// ignored when Permanent
	Days      int    `json:"days,omitempty"`
	Permanent bool   `json:"permanent"`
	Reason    string `json:"reason"`
	// shown to the banned user
	Message string `json:"message,omitempty"`
	// moderator-only note
	Note string `json:"note,omitempty"`
}

type ModNote struct {
	Username  string `json:"username"`
	Subreddit string `json:"subreddit"`
	Note      string `json:"note"`
	Label     string `json:"label,omitempty"`
	// content the note refers to
	ContentID string `json:"contentId,omitempty"`
}

// Every method may fail with *ModerationAPIError.
type Client interface {
	Ban(ctx context.Context, req BanRequest) error
	Remove(ctx context.Context, contentID string, spam bool) error
	Approve(ctx context.Context, contentID string) error
	// Replies to a post or comment, returning the new comment's ID. sticky distinguishes and pins the reply.
	Reply(ctx context.Context, contentID, text string, sticky bool) (string, error)
	Lock(ctx context.Context, contentID string) error
	GetContent(ctx context.Context, contentID string) (*Content, error)
	GetUser(ctx context.Context, username string) (*UserInfo, error)
	AddModNote(ctx context.Context, note ModNote) error
}
