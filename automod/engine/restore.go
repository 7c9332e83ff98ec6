package engine

import (
	"context"
	"log/slog"
)

// Checks whether a post or comment was removed by the platform's spam filter, and if so (and throttles allow) approves it and tells the author.
//
// An item is marked processed once it has been dealt with, so redelivered events are no-ops. Throttled, over-quota and failed approvals are deliberately left unmarked, so a later event can retry.
func (eng *Engine) Restore(ctx context.Context, contentID string) (RestoreResult, *Outcome) {
	out := &Outcome{ContentID: contentID}
	res := eng.restore(ctx, eng.Logger.With("content", contentID), contentID, out)
	out.Restorations = append(out.Restorations, res)
	return res, out
}

func (eng *Engine) restore(ctx context.Context, logger *slog.Logger, contentID string, out *Outcome) RestoreResult {
	res := RestoreResult{ContentID: contentID}
	defer func() {
		actionRestoreCount.WithLabelValues(string(res.Status)).Inc()
	}()

	unlock := eng.lockItem(contentID)
	defer unlock()

	done, err := eng.Processed.AlreadyProcessed(ctx, contentID)
	if err != nil {
		logger.Warn("failed to read processed mark, treating as unprocessed", "err", err)
		out.Degrade("processed-check", err)
		done = false
	}
	if done {
		logger.Debug("restoration already processed")
		res.Status = RestoreAlreadyProcessed
		return res
	}

	item, err := eng.API.GetContent(ctx, contentID)
	if err != nil {
		logger.Error("failed to fetch content for restoration", "err", err)
		out.Degrade("restore-fetch", err)
		res.Status = RestoreFailed
		return res
	}
	if item.Author != "" {
		eng.cacheAuthor(ctx, contentID, item.Author)
	}

	if !item.Removed {
		res.Status = RestoreNotRemoved
	} else {
		ok, err := eng.AutoApproval.CanAutoApprove(ctx)
		if err != nil {
			logger.Warn("failed to read auto-approval mark, allowing", "err", err)
			out.Degrade("auto-approval-check", err)
			ok = true
		}
		if !ok {
			logger.Info("auto-approval throttled, leaving removed")
			res.Status = RestoreThrottled
			return res
		}
		if !eng.circuitBreakAutoApproval(ctx) {
			res.Status = RestoreQuotaExceeded
			return res
		}
		if err := eng.API.Approve(ctx, contentID); err != nil {
			logger.Error("failed to approve filtered content", "err", err)
			out.Degrade("approve", err)
			res.Status = RestoreFailed
			return res
		}
		res.Status = RestoreApproved
		eng.countQuota(ctx, "auto-approval")
		logger.Info("approved content removed by spam filter", "author", item.Author)
		if err := eng.AutoApproval.MarkDone(ctx); err != nil {
			logger.Error("failed to record auto-approval", "err", err)
			out.Degrade("auto-approval-mark", err)
		}
		if item.Author != "" {
			res.Notified = eng.sendRestorationNotice(ctx, logger, contentID, item.Author, string(item.Kind), out)
		}
	}

	if err := eng.Processed.MarkProcessed(ctx, contentID); err != nil {
		logger.Error("failed to mark content processed", "err", err)
		out.Degrade("processed-mark", err)
	}
	return res
}

func (eng *Engine) sendRestorationNotice(ctx context.Context, logger *slog.Logger, contentID, author, kind string, out *Outcome) bool {
	ok, err := eng.Notify.CanSend(ctx, author)
	if err != nil {
		logger.Warn("failed to read notification mark, allowing", "err", err)
		out.Degrade("notification-check", err)
		ok = true
	}
	if !ok {
		logger.Info("restoration notice throttled", "author", author)
		return false
	}
	text, err := eng.Messages.Restoration(author, kind)
	if err != nil {
		out.Degrade("restoration-notice", err)
		return false
	}
	replyID, err := eng.API.Reply(ctx, contentID, text, false)
	if err != nil {
		logger.Error("failed to post restoration notice", "err", err)
		out.Degrade("restoration-notice", err)
		return false
	}
	out.Replies = append(out.Replies, replyID)
	if err := eng.Notify.MarkSent(ctx, author); err != nil {
		logger.Error("failed to record notification", "err", err)
		out.Degrade("notification-mark", err)
	}
	return true
}
