package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/modshield/modshield/automod/modapi"
)

// True if the post's flair contains the configured topic word, case-insensitively.
func (eng *Engine) TopicFlairMatches(item *modapi.Content) bool {
	word := strings.ToLower(strings.TrimSpace(eng.Config.TopicWord))
	if word == "" || item.FlairText == "" {
		return false
	}
	return strings.Contains(strings.ToLower(item.FlairText), word)
}

// Posts the pinned, locked topic notice unless the post already has one. Returns true if a notice was posted.
func (eng *Engine) postTopicNotice(ctx context.Context, logger *slog.Logger, postID string, out *Outcome) bool {
	claimed, err := eng.Topics.Claim(ctx, postID)
	if err != nil {
		logger.Warn("failed to claim topic marker, posting anyway", "post", postID, "err", err)
		out.Degrade("topic-marker", err)
		claimed = true
	}
	if !claimed {
		return false
	}
	text, err := eng.Messages.TopicNotice(eng.Config.TopicWord)
	if err != nil {
		logger.Error("failed to render topic notice", "post", postID, "err", err)
		out.Degrade("topic-notice", err)
		eng.releaseTopicClaim(ctx, logger, postID, out)
		return false
	}
	replyID, err := eng.API.Reply(ctx, postID, text, true)
	if err != nil {
		logger.Error("failed to post topic notice", "post", postID, "err", err)
		out.Degrade("topic-notice", err)
		eng.releaseTopicClaim(ctx, logger, postID, out)
		return false
	}
	out.Replies = append(out.Replies, replyID)
	if err := eng.API.Lock(ctx, replyID); err != nil {
		logger.Warn("failed to lock topic notice", "post", postID, "err", err)
		out.Degrade("topic-lock", err)
	}
	if err := eng.Topics.Mark(ctx, postID, replyID); err != nil {
		logger.Error("failed to record topic marker", "post", postID, "err", err)
		out.Degrade("topic-marker", err)
	}
	logger.Info("posted topic notice", "post", postID, "reply", replyID)
	return true
}

// Drops a claim whose notice was never posted, so a later event can retry.
func (eng *Engine) releaseTopicClaim(ctx context.Context, logger *slog.Logger, postID string, out *Outcome) {
	if err := eng.Topics.Clear(ctx, postID); err != nil {
		logger.Warn("failed to release topic marker", "post", postID, "err", err)
		out.Degrade("topic-release", err)
	}
}

// Clears the topic marker when a post's flair no longer matches. Returns true if a marker was removed. The existing notice is left in place.
func (eng *Engine) clearTopic(ctx context.Context, logger *slog.Logger, postID string, out *Outcome) bool {
	marked, err := eng.Topics.IsMarked(ctx, postID)
	if err != nil {
		out.Degrade("topic-marker", err)
		return false
	}
	if !marked {
		return false
	}
	if err := eng.Topics.Clear(ctx, postID); err != nil {
		logger.Error("failed to clear topic marker", "post", postID, "err", err)
		out.Degrade("topic-marker", err)
		return false
	}
	logger.Info("cleared topic marker", "post", postID)
	return true
}
