package engine

import (
	"fmt"

	"github.com/modshield/modshield/automod/modapi"
)

var (
	SubmitTrigger = "submit"
	UpdateTrigger = "update"
)

// Moderator actions which the engine reacts to. Anything else is ignored.
var (
	EditFlairAction      = "editflair"
	ApproveLinkAction    = "approvelink"
	ApproveCommentAction = "approvecomment"
	SpamAction           = "spam"
)

// A post or comment was submitted, or a post was edited.
type ContentEvent struct {
	// "submit" or "update"
	Trigger string         `json:"trigger"`
	Item    modapi.Content `json:"item"`
}

func (evt *ContentEvent) Validate() error {
	switch evt.Trigger {
	case SubmitTrigger, UpdateTrigger:
	default:
		return fmt.Errorf("unexpected content trigger: %q", evt.Trigger)
	}
	if evt.Item.ID == "" {
		return fmt.Errorf("content event missing item ID")
	}
	switch evt.Item.Kind {
	case modapi.KindPost, modapi.KindComment:
	default:
		return fmt.Errorf("unexpected content kind: %q", evt.Item.Kind)
	}
	return nil
}

// A moderator (human or platform filter) acted on a post or comment.
type ModActionEvent struct {
	Action    string `json:"action"`
	Moderator string `json:"moderator,omitempty"`
	// for comment actions, the post is the comment's parent and may also be set
	TargetPostID    string `json:"targetPostId,omitempty"`
	TargetCommentID string `json:"targetCommentId,omitempty"`
}

// The post or comment the action applies to. Post-level actions always target the post, even if a comment ID is present.
func (evt *ModActionEvent) TargetID() string {
	switch evt.Action {
	case EditFlairAction, ApproveLinkAction:
		return evt.TargetPostID
	case ApproveCommentAction:
		return evt.TargetCommentID
	}
	if evt.TargetCommentID != "" {
		return evt.TargetCommentID
	}
	return evt.TargetPostID
}
