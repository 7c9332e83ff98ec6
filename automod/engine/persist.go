package engine

import (
	"context"
	"log/slog"

	"github.com/modshield/modshield/automod/keyword"
	"github.com/modshield/modshield/automod/ledger"
	"github.com/modshield/modshield/automod/modapi"
)

// Counter failures only affect stats and quotas, so they are reported but never stop processing.
func (eng *Engine) persistCounters(ctx context.Context, eff *Effects, out *Outcome) {
	for _, ref := range eff.CounterIncrements {
		if err := eng.Counters.Increment(ctx, ref.Name, ref.Val); err != nil {
			out.Degrade("counters", err)
			return
		}
	}
	for _, ref := range eff.CounterDistinctIncrements {
		if err := eng.Counters.IncrementDistinct(ctx, ref.Name, ref.Bucket, ref.Val); err != nil {
			out.Degrade("counters", err)
			return
		}
	}
}

func contentRef(item *modapi.Content) ledger.ContentRef {
	if item.Kind == modapi.KindComment {
		return ledger.CommentRef(item.ID)
	}
	return ledger.PostRef(item.ID)
}

// Persists the effects of content rules, in order: warning, escalation and ban, removal, notices, then markers and restorations.
//
// Each step degrades independently. A failed warning still lets the removal go ahead; a failed removal suppresses the removal notice, since it would be false.
func (eng *Engine) persistContentEffects(c *ContentContext, out *Outcome) {
	ctx := c.Ctx
	eff := c.effects
	item := &c.Item

	if eff.Warning != nil {
		if item.Author == "" {
			c.Logger.Info("not warning deleted account")
		} else {
			eng.recordWarning(ctx, c.Logger, item.Author, contentRef(item), eff.Warning, out)
			eff.IncrementDistinct("automod-warned", "users", item.Author)
		}
	}

	if eff.Remove {
		if err := eng.API.Remove(ctx, item.ID, false); err != nil {
			c.Logger.Error("failed to remove content", "err", err)
			out.Degrade("remove", err)
		} else {
			out.Removed = true
			actionNewRemovalCount.WithLabelValues(string(item.Kind)).Inc()
			eff.Increment("automod-removal", string(item.Kind))
			// reposts of the same removed text count once
			if text := keyword.Normalize(item.Text()); text != "" {
				eff.IncrementDistinct("automod-removed-text", "texts", hashOfString(text))
			}
		}
	}

	if len(eff.Notices) > 0 {
		if out.Removed {
			for _, n := range eff.Notices {
				eng.postNotice(ctx, c.Logger, item, n, out)
			}
		} else {
			c.Logger.Warn("skipping removal notices, content was not removed", "count", len(eff.Notices))
		}
	}

	eng.persistSharedEffects(ctx, c.Logger, eff, out)

	if item.Author != "" && len(eff.AuthorFlags) > 0 {
		eng.addFlags(ctx, c.Logger, item.Author, dedupeStrings(eff.AuthorFlags), out)
	}

	if eng.Notifier != nil && out.Removed {
		if err := eng.Notifier.SendRemoval(ctx, item, out); err != nil {
			c.Logger.Error("failed to deliver notification", "err", err)
		}
	}
}

func (eng *Engine) persistModActionEffects(c *ModActionContext, out *Outcome) {
	eng.persistSharedEffects(c.Ctx, c.Logger, c.effects, out)
}

// effects which either context type may produce
func (eng *Engine) persistSharedEffects(ctx context.Context, logger *slog.Logger, eff *Effects, out *Outcome) {
	for _, postID := range dedupeStrings(eff.TopicNotices) {
		if eng.postTopicNotice(ctx, logger, postID, out) {
			out.TopicNotice = true
		}
	}
	for _, postID := range dedupeStrings(eff.TopicClears) {
		if eng.clearTopic(ctx, logger, postID, out) {
			out.TopicCleared = true
		}
	}
	for _, wr := range eff.WarningRemovals {
		n, err := eng.Ledger.RemoveWarning(ctx, wr.Username, wr.ContentID)
		if err != nil {
			logger.Error("failed to remove warning for reinstated content", "user", wr.Username, "content", wr.ContentID, "err", err)
			out.Degrade("warning-removal", err)
			continue
		}
		if n > 0 {
			logger.Info("removed warning for reinstated content", "user", wr.Username, "content", wr.ContentID, "count", n)
		}
		out.WarningsRemoved += n
	}
	for _, id := range dedupeStrings(eff.Restorations) {
		res := eng.restore(ctx, logger, id, out)
		out.Restorations = append(out.Restorations, res)
	}
}

// Appends a warning and evaluates escalation, holding the user's lock until any ban has been applied and recorded. On ledger failure the counts are re-read (best effort) so any notice can still report them.
func (eng *Engine) recordWarning(ctx context.Context, logger *slog.Logger, username string, ref ledger.ContentRef, w *WarningEffect, out *Outcome) {
	unlock := eng.lockUser(username)
	defer unlock()

	rec, err := eng.Ledger.AddWarning(ctx, username, ledger.Warning{
		Content:   ref,
		Moderator: w.Moderator,
		Reason:    w.Reason,
	})
	if err != nil {
		logger.Error("failed to record warning", "user", username, "err", err)
		out.Degrade("warning", err)
		counts, err := eng.Ledger.GetWarningCounts(ctx, username)
		if err != nil {
			out.Degrade("warning-counts", err)
		}
		out.Counts = counts
		return
	}
	out.Warned = true
	out.Counts = eng.Ledger.Counts(rec)
	actionNewWarningCount.WithLabelValues(w.Reason).Inc()
	logger.Info("recorded warning", "user", username, "reason", w.Reason, "active", out.Counts.Active, "total", out.Counts.Total)

	decision := eng.Policy.Check(out.Counts.Active, rec.LastBanLevel)
	if decision.ShouldBan {
		out.Ban = eng.applyBan(ctx, username, decision, out)
	}
}

// Renders and posts a (non-sticky) removal notice.
func (eng *Engine) postNotice(ctx context.Context, logger *slog.Logger, item *modapi.Content, n Notice, out *Outcome) {
	var text string
	var err error
	switch n.Kind {
	case BlacklistNotice:
		text, err = eng.Messages.BlacklistRemoval(item.Author, out.Counts.Active, out.Counts.Expired)
	case ParticipationNotice:
		text, err = eng.Messages.ParticipationRemoval(string(item.Kind), n.Reason)
	default:
		logger.Warn("unknown notice kind", "kind", n.Kind)
		return
	}
	if err != nil {
		logger.Error("failed to render notice", "kind", n.Kind, "err", err)
		out.Degrade("notice", err)
		return
	}
	replyID, err := eng.API.Reply(ctx, item.ID, text, false)
	if err != nil {
		logger.Error("failed to post notice", "kind", n.Kind, "err", err)
		out.Degrade("notice", err)
		return
	}
	out.Replies = append(out.Replies, replyID)
}

func (eng *Engine) addFlags(ctx context.Context, logger *slog.Logger, username string, flags []string, out *Outcome) {
	if err := eng.Flags.Add(ctx, username, flags); err != nil {
		logger.Error("failed to persist flags", "user", username, "flags", flags, "err", err)
		if out != nil {
			out.Degrade("flags", err)
		}
		return
	}
	for _, f := range flags {
		actionNewFlagCount.WithLabelValues(f).Inc()
	}
}

// Emits a single log line summarizing the effects and outcome of an event.
func (eng *Engine) CanonicalLogLine(logger *slog.Logger, eventType string, eff *Effects, out *Outcome) {
	logger.Info("canonical-event-line",
		"type", eventType,
		"warned", out.Warned,
		"activeWarnings", out.Counts.Active,
		"ban", out.Ban != nil && out.Ban.Applied,
		"removed", out.Removed,
		"replies", len(out.Replies),
		"topicNotice", out.TopicNotice,
		"topicCleared", out.TopicCleared,
		"restorations", len(out.Restorations),
		"warningsRemoved", out.WarningsRemoved,
		"flags", eff.AuthorFlags,
		"halted", eff.Halted,
		"degraded", out.DegradedSteps(),
	)
}
