package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/modshield/modshield/automod/escalation"
	"github.com/modshield/modshield/automod/modapi"
)

// Applies an escalation decision through the moderation API.
//
// The stored ban level is only advanced after the API accepts the ban, so a failed ban is retried naturally the next time the user's warnings are evaluated. Failures are reported in the result; this never returns an error.
func (eng *Engine) ApplyBan(ctx context.Context, username string, d escalation.Decision) *BanResult {
	res := &BanResult{Decision: d}
	if !d.ShouldBan || username == "" {
		return res
	}
	logger := eng.Logger.With("user", username, "level", d.BanLevel)

	if !eng.circuitBreakBan(ctx) {
		res.QuotaExceeded = true
		return res
	}

	req := modapi.BanRequest{
		Username:  username,
		Subreddit: eng.Config.Subreddit,
		Permanent: d.Permanent,
		Reason:    d.Message,
		Message:   d.Message,
		Note:      eng.Config.BanNote,
	}
	if !d.Permanent {
		req.Days = d.BanDays
	}
	if err := eng.API.Ban(ctx, req); err != nil {
		logger.Error("failed to apply ban", "err", err)
		actionBanFailCount.Inc()
		res.Err = err
		eng.addFlags(ctx, logger, username, []string{"ban-failed"}, nil)
		return res
	}
	res.Applied = true
	eng.countQuota(ctx, "ban")
	actionNewBanCount.WithLabelValues(strconv.Itoa(d.BanLevel)).Inc()
	if d.Permanent {
		logger.Info("applied permanent ban")
	} else {
		logger.Info("applied temporary ban", "days", d.BanDays)
	}

	if _, err := eng.Ledger.SetBanLevel(ctx, username, d.BanLevel); err != nil {
		logger.Error("ban applied but failed to record ban level", "err", err)
		res.LevelErr = err
	}
	eng.addFlags(ctx, logger, username, []string{fmt.Sprintf("ban-tier-%d", d.BanLevel)}, nil)

	if eng.Notifier != nil {
		if err := eng.Notifier.SendBan(ctx, username, res); err != nil {
			logger.Error("failed to deliver notification", "err", err)
		}
	}
	return res
}

func (eng *Engine) applyBan(ctx context.Context, username string, d escalation.Decision, out *Outcome) *BanResult {
	res := eng.ApplyBan(ctx, username, d)
	if res.Err != nil {
		out.Degrade("ban", res.Err)
	}
	if res.LevelErr != nil {
		out.Degrade("ban-level", res.LevelErr)
	}
	return res
}
