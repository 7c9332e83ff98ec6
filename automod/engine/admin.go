package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modshield/modshield/automod/countstore"
	"github.com/modshield/modshield/automod/ledger"
	"github.com/modshield/modshield/automod/messages"
	"github.com/modshield/modshield/automod/modapi"
	"github.com/modshield/modshield/automod/recordstore"
	"github.com/modshield/modshield/automod/setstore"
	"github.com/modshield/modshield/automod/throttle"
)

var ErrUnknownReason = errors.New("unknown removal reason")

// A moderator removing a post or comment with one of the configured removal reasons.
type RemovalRequest struct {
	ContentID string `json:"contentId"`
	ReasonID  string `json:"reasonId"`
	// also record a warning against the author, which can trigger a ban
	AddWarning bool   `json:"addWarning"`
	Moderator  string `json:"moderator"`
}

// Removes content on behalf of a moderator: remove, optional warning and escalation, a pinned and locked explanation with the author's warning counts, and a mod note.
//
// Unlike event processing, failing to look up or remove the content is returned as an error, since a moderator is waiting on the result. Later steps degrade as usual.
func (eng *Engine) RemoveWithReason(ctx context.Context, req RemovalRequest) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "RemoveWithReason")
	defer span.End()

	reasons, err := eng.RemovalReasons(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading removal reasons: %w", err)
	}
	reason, ok := messages.FindRemovalReason(reasons, req.ReasonID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReason, req.ReasonID)
	}
	item, err := eng.API.GetContent(ctx, req.ContentID)
	if err != nil {
		return nil, fmt.Errorf("fetching content: %w", err)
	}
	logger := eng.Logger.With("content", item.ID, "author", item.Author, "moderator", req.Moderator, "reason", reason.ID)

	if err := eng.API.Remove(ctx, item.ID, false); err != nil {
		logger.Error("manual removal failed", "err", err)
		return nil, fmt.Errorf("removing content: %w", err)
	}
	out := &Outcome{
		Username:  item.Author,
		ContentID: item.ID,
		Removed:   true,
	}
	actionNewRemovalCount.WithLabelValues(string(item.Kind)).Inc()

	if item.Author == "" {
		logger.Info("content author deleted, skipping warning and notice")
		return out, nil
	}

	if req.AddWarning {
		moderator := req.Moderator
		if moderator == "" {
			moderator = eng.Config.BotModerator
		}
		eng.recordWarning(ctx, logger, item.Author, contentRef(item), &WarningEffect{Reason: reason.Label, Moderator: moderator}, out)
	} else {
		counts, err := eng.Ledger.GetWarningCounts(ctx, item.Author)
		if err != nil {
			out.Degrade("warning-counts", err)
		}
		out.Counts = counts
	}

	text, err := eng.Messages.ManualRemoval(item.Author, reason.ReasonText, out.Counts.Active, out.Counts.Expired)
	if err != nil {
		out.Degrade("notice", err)
	} else {
		replyID, err := eng.API.Reply(ctx, item.ID, text, true)
		if err != nil {
			logger.Error("failed to post removal notice", "err", err)
			out.Degrade("notice", err)
		} else {
			out.Replies = append(out.Replies, replyID)
			if err := eng.API.Lock(ctx, replyID); err != nil {
				out.Degrade("notice-lock", err)
			}
		}
	}

	noun := "Post"
	if item.Kind == modapi.KindComment {
		noun = "Comment"
	}
	note := modapi.ModNote{
		Username:  item.Author,
		Subreddit: eng.Config.Subreddit,
		Note:      fmt.Sprintf("%s removed: %s", noun, reason.Label),
		ContentID: item.ID,
	}
	if err := eng.API.AddModNote(ctx, note); err != nil {
		logger.Error("failed to add mod note", "err", err)
		out.Degrade("mod-note", err)
	}
	if err := eng.Counters.Increment(ctx, "automod-manual-removal", reason.ID); err != nil {
		out.Degrade("counters", err)
	}
	logger.Info("custom removal", "description", fmt.Sprintf("Removed by u/%s: %s", req.Moderator, reason.Label), "warned", out.Warned, "active", out.Counts.Active, "degraded", out.DegradedSteps())
	return out, nil
}

type WarningSummary struct {
	Username     string           `json:"username"`
	Active       int              `json:"active"`
	Expired      int              `json:"expired"`
	Total        int              `json:"total"`
	LastBanLevel int              `json:"lastBanLevel"`
	Warnings     []ledger.Warning `json:"warnings"`
	Flags        []string         `json:"flags"`
	// a restoration notice could be sent now
	CanNotify bool `json:"canNotify"`
}

func (eng *Engine) WarningSummary(ctx context.Context, username string) (*WarningSummary, error) {
	rec, err := eng.Ledger.GetUserWarnings(ctx, username)
	if err != nil {
		return nil, err
	}
	counts, err := eng.Ledger.GetWarningCounts(ctx, username)
	if err != nil {
		return nil, err
	}
	flags, err := eng.Flags.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	canNotify, err := eng.Notify.CanSend(ctx, username)
	if err != nil {
		return nil, err
	}
	return &WarningSummary{
		Username:     username,
		Active:       counts.Active,
		Expired:      counts.Expired,
		Total:        counts.Total,
		LastBanLevel: rec.LastBanLevel,
		Warnings:     rec.Warnings,
		Flags:        flags,
		CanNotify:    canNotify,
	}, nil
}

// Forgets everything stored about a user: warning history, ban level, notification cooldown and audit flags.
func (eng *Engine) ClearUserMemory(ctx context.Context, username string) error {
	if username == "" {
		return ledger.ErrEmptyUsername
	}
	if err := eng.Ledger.Clear(ctx, username); err != nil {
		return err
	}
	if err := eng.Store.Delete(ctx, throttle.NotificationKey(username)); err != nil {
		return err
	}
	flags, err := eng.Flags.Get(ctx, username)
	if err != nil {
		return err
	}
	if len(flags) > 0 {
		if err := eng.Flags.Remove(ctx, username, flags); err != nil {
			return err
		}
	}
	eng.Logger.Info("cleared user memory", "user", username)
	return nil
}

// keys removed by ClearAllMemory on any store
func settingsKeys() []string {
	return []string{
		setstore.BlacklistSet,
		RestrictionsEnabledKey,
		KarmaRequirementKey,
		AccountAgeRequirementKey,
		RemovalReasonsKey,
		throttle.AutoApprovalKey,
	}
}

// prefixes of per-user and per-item keys
var memoryPrefixes = []string{
	"warnings:",
	throttle.NotificationPrefix,
	throttle.ProcessedPrefix,
	throttle.TopicPrefix,
}

// Resets settings (blacklist, participation requirements, removal reasons) and the auto-approval throttle. With includeUserData, also removes per-user and per-item records; that requires a store which can list keys.
//
// Returns the number of keys deleted.
func (eng *Engine) ClearAllMemory(ctx context.Context, includeUserData bool) (int, error) {
	keys := settingsKeys()
	if includeUserData {
		lister, ok := eng.Store.(recordstore.KeyLister)
		if !ok {
			return 0, fmt.Errorf("record store %T can't list keys; user data must be cleared per user", eng.Store)
		}
		for _, prefix := range memoryPrefixes {
			found, err := lister.ListKeys(ctx, prefix)
			if err != nil {
				return 0, err
			}
			keys = append(keys, found...)
		}
	}
	for i, k := range keys {
		if err := eng.Store.Delete(ctx, k); err != nil {
			return i, err
		}
	}
	eng.Logger.Warn("cleared all memory", "keys", len(keys), "userData", includeUserData)
	return len(keys), nil
}

func (eng *Engine) Blacklist(ctx context.Context) ([]string, error) {
	return eng.Sets.Members(ctx, setstore.BlacklistSet)
}

type setWriter interface {
	SetMembers(ctx context.Context, name string, vals []string) error
}

func (eng *Engine) SetBlacklist(ctx context.Context, terms []string) error {
	w, ok := eng.Sets.(setWriter)
	if !ok {
		return fmt.Errorf("set store %T is read-only", eng.Sets)
	}
	cleaned := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return w.SetMembers(ctx, setstore.BlacklistSet, cleaned)
}

// Daily activity counts, plus the auto-approval throttle state.
type Stats struct {
	WarnedUsersToday   int        `json:"warnedUsersToday"`
	BansToday          int        `json:"bansToday"`
	AutoApprovalsToday int        `json:"autoApprovalsToday"`
	PostRemovalsToday  int        `json:"postRemovalsToday"`
	CommentRemovals    int        `json:"commentRemovalsToday"`
	RemovedTextsToday  int        `json:"removedTextsToday"` // distinct, after case folding
	LastAutoApproval   *time.Time `json:"lastAutoApproval,omitempty"`
}

func (eng *Engine) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	var err error
	if out.WarnedUsersToday, err = eng.Counters.GetCountDistinct(ctx, "automod-warned", "users", countstore.PeriodDay); err != nil {
		return nil, err
	}
	if out.BansToday, err = eng.Counters.GetCount(ctx, "automod-quota", "ban", countstore.PeriodDay); err != nil {
		return nil, err
	}
	if out.AutoApprovalsToday, err = eng.Counters.GetCount(ctx, "automod-quota", "auto-approval", countstore.PeriodDay); err != nil {
		return nil, err
	}
	if out.PostRemovalsToday, err = eng.Counters.GetCount(ctx, "automod-removal", string(modapi.KindPost), countstore.PeriodDay); err != nil {
		return nil, err
	}
	if out.CommentRemovals, err = eng.Counters.GetCount(ctx, "automod-removal", string(modapi.KindComment), countstore.PeriodDay); err != nil {
		return nil, err
	}
	if out.RemovedTextsToday, err = eng.Counters.GetCountDistinct(ctx, "automod-removed-text", "texts", countstore.PeriodDay); err != nil {
		return nil, err
	}
	last, ok, err := eng.AutoApproval.Last(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		out.LastAutoApproval = &last
	}
	return &out, nil
}
