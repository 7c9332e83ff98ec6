package engine

import (
	"context"

	"github.com/modshield/modshield/automod/countstore"
)

// Returns true if another action of the given quota type is allowed today. A counter read failure allows the action.
func (eng *Engine) circuitBreak(ctx context.Context, kind string, quota int) bool {
	c, err := eng.Counters.GetCount(ctx, "automod-quota", kind, countstore.PeriodDay)
	if err != nil {
		eng.Logger.Warn("failed to read quota counter", "type", kind, "err", err)
		return true
	}
	if c >= quota {
		eng.Logger.Warn("CIRCUIT BREAKER: automod quota exhausted", "type", kind, "count", c, "quota", quota)
		circuitBreakerCount.WithLabelValues(kind).Inc()
		return false
	}
	return true
}

func (eng *Engine) countQuota(ctx context.Context, kind string) {
	if err := eng.Counters.Increment(ctx, "automod-quota", kind); err != nil {
		eng.Logger.Warn("failed to increment quota counter", "type", kind, "err", err)
	}
}

func (eng *Engine) circuitBreakBan(ctx context.Context) bool {
	return eng.circuitBreak(ctx, "ban", QuotaBanDay)
}

func (eng *Engine) circuitBreakAutoApproval(ctx context.Context) bool {
	return eng.circuitBreak(ctx, "auto-approval", QuotaAutoApprovalDay)
}
