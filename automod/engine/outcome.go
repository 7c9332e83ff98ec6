package engine

import (
	"github.com/modshield/modshield/automod/escalation"
	"github.com/modshield/modshield/automod/ledger"
)

// A step which failed without aborting event processing. The remaining steps still ran.
type Degradation struct {
	Step string
	Err  error
}

type BanResult struct {
	Decision escalation.Decision
	// ban was accepted by the moderation API
	Applied bool
	// skipped because the daily ban quota was exhausted
	QuotaExceeded bool
	// moderation API failure; the stored ban level was left untouched
	Err error
	// ban applied, but recording the new level failed
	LevelErr error
}

type RestoreStatus string

var (
	RestoreAlreadyProcessed RestoreStatus = "already-processed"
	RestoreNotRemoved       RestoreStatus = "not-removed"
	RestoreThrottled        RestoreStatus = "throttled"
	RestoreQuotaExceeded    RestoreStatus = "quota-exceeded"
	RestoreApproved         RestoreStatus = "approved"
	RestoreFailed           RestoreStatus = "failed"
)

type RestoreResult struct {
	ContentID string
	Status    RestoreStatus
	// a restoration notice was posted
	Notified bool
}

// Summary of everything which was done (or attempted) while handling a single event.
type Outcome struct {
	Username  string
	ContentID string

	Warned bool
	Counts ledger.WarningCounts
	Ban    *BanResult

	Removed bool
	// IDs of notices posted by the bot
	Replies []string

	TopicNotice  bool
	TopicCleared bool

	Restorations    []RestoreResult
	WarningsRemoved int

	Degraded []Degradation
}

func (o *Outcome) Degrade(step string, err error) {
	o.Degraded = append(o.Degraded, Degradation{Step: step, Err: err})
	degradedStepCount.WithLabelValues(step).Inc()
}

func (o *Outcome) IsDegraded() bool {
	return len(o.Degraded) > 0
}

// Names of the degraded steps, in order.
func (o *Outcome) DegradedSteps() []string {
	out := make([]string, 0, len(o.Degraded))
	for _, d := range o.Degraded {
		out = append(out, d.Step)
	}
	return out
}
