package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("automod")

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "automod_event_duration_sec",
	Help: "Total duration of automod event processing",
}, []string{"type"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_event_processed",
	Help: "Number of events processed",
}, []string{"type"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_event_errors",
	Help: "Number of events which failed processing",
}, []string{"type"})

var degradedStepCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_degraded_steps",
	Help: "Number of processing steps which failed without aborting the event",
}, []string{"step"})

var actionNewWarningCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_new_action_warnings",
	Help: "Number of new warnings recorded",
}, []string{"reason"})

var actionNewBanCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_new_action_bans",
	Help: "Number of new bans applied",
}, []string{"level"})

var actionBanFailCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_action_ban_failures",
	Help: "Number of ban attempts rejected by the moderation API",
})

var actionNewRemovalCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_new_action_removals",
	Help: "Number of posts and comments removed",
}, []string{"type"})

var actionRestoreCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_restorations",
	Help: "Outcome of spam-filter restoration checks",
}, []string{"status"})

var actionNewFlagCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_new_action_flags",
	Help: "Number of new flags persisted",
}, []string{"val"})

var circuitBreakerCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_circuit_breaker_trips",
	Help: "Number of actions skipped because a daily quota was exhausted",
}, []string{"type"})

var userFetches = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_user_fetches",
	Help: "Number of user metadata reads (API calls)",
})
