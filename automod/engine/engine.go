package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modshield/modshield/automod/cachestore"
	"github.com/modshield/modshield/automod/countstore"
	"github.com/modshield/modshield/automod/escalation"
	"github.com/modshield/modshield/automod/flagstore"
	"github.com/modshield/modshield/automod/ledger"
	"github.com/modshield/modshield/automod/messages"
	"github.com/modshield/modshield/automod/modapi"
	"github.com/modshield/modshield/automod/recordstore"
	"github.com/modshield/modshield/automod/setstore"
	"github.com/modshield/modshield/automod/throttle"

	"github.com/puzpuzpuz/xsync/v4"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// runtime for executing rules, managing persistent memory, and applying moderation actions.
//
// Use NewEngine: several fields must not be nil, even though they are pointer or interface types.
type Engine struct {
	Logger *slog.Logger
	Config Config
	Rules  RuleSet
	// durable key/value memory. everything below which persists state is layered on it
	Store        recordstore.RecordStore
	Ledger       *ledger.Ledger
	Policy       escalation.Policy
	Notify       *throttle.NotificationThrottle
	Processed    *throttle.ProcessedGuard
	AutoApproval *throttle.AutoApprovalThrottle
	Topics       *throttle.TopicMarker
	// quota circuit breakers and stats
	Counters countstore.CountStore
	Sets     setstore.SetStore
	// author and user metadata lookups
	Cache cachestore.CacheStore
	// private per-user audit flags
	Flags    flagstore.FlagStore
	API      modapi.Client
	Messages *messages.Messages
	// optional
	Notifier Notifier
	Now      func() time.Time

	itemLocks   *xsync.Map[string, *sync.Mutex]
	userLocks   *xsync.Map[string, *sync.Mutex]
	userLookups singleflight.Group
}

// Builds an engine with in-process counters, cache and flags. Callers may swap those for shared (redis) implementations before use.
func NewEngine(store recordstore.RecordStore, api modapi.Client, msgs *messages.Messages, config Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Logger:       logger,
		Config:       config,
		Store:        store,
		Ledger:       ledger.NewLedger(store, logger),
		Policy:       escalation.DefaultPolicy,
		Notify:       throttle.NewNotificationThrottle(store),
		Processed:    throttle.NewProcessedGuard(store),
		AutoApproval: throttle.NewAutoApprovalThrottle(store, 0),
		Topics:       throttle.NewTopicMarker(store),
		Counters:     countstore.NewMemCountStore(),
		Sets:         setstore.NewRecordSetStore(store, logger),
		Cache:        cachestore.NewMemCacheStore(10_000, 30*time.Minute),
		Flags:        flagstore.NewMemFlagStore(),
		API:          api,
		Messages:     msgs,
		Now:          time.Now,
		itemLocks:    xsync.NewMap[string, *sync.Mutex](),
		userLocks:    xsync.NewMap[string, *sync.Mutex](),
	}
}

// Sets the clock on the engine and every time-aware component.
func (eng *Engine) SetClock(now func() time.Time) {
	eng.Now = now
	eng.Ledger.Now = now
	eng.Notify.Now = now
	eng.AutoApproval.Now = now
}

// serializes work on a single post or comment within this process
func (eng *Engine) lockItem(id string) func() {
	return lockKey(eng.itemLocks, id)
}

// Held from appending a warning until any resulting ban level is stored, so overlapping warnings for one user never issue the same tier twice.
func (eng *Engine) lockUser(username string) func() {
	return lockKey(eng.userLocks, username)
}

func lockKey(locks *xsync.Map[string, *sync.Mutex], key string) func() {
	if locks == nil {
		return func() {}
	}
	mu, _ := locks.LoadOrCompute(key, func() (*sync.Mutex, bool) {
		return &sync.Mutex{}, false
	})
	mu.Lock()
	return mu.Unlock
}

// Handles a post/comment submission or a post edit. The returned error covers failures which prevented processing entirely; partial failures are reported in Outcome.Degraded.
func (eng *Engine) ProcessContent(ctx context.Context, evt ContentEvent) (out *Outcome, err error) {
	// similar to an HTTP server, we want to recover any panics from rule execution
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod event execution exception", "err", r, "content", evt.Item.ID, "trigger", evt.Trigger)
			eventErrorCount.WithLabelValues("content").Inc()
			err = fmt.Errorf("rule execution panic: %v", r)
		}
	}()
	ctx, span := tracer.Start(ctx, "ProcessContent")
	defer span.End()
	span.SetAttributes(attribute.String("trigger", evt.Trigger), attribute.String("content", evt.Item.ID))

	if err := evt.Validate(); err != nil {
		eventErrorCount.WithLabelValues("content").Inc()
		return nil, err
	}
	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues("content").Observe(time.Since(start).Seconds())
	}()
	eventProcessCount.WithLabelValues("content").Inc()

	if evt.Item.Author != "" {
		eng.cacheAuthor(ctx, evt.Item.ID, evt.Item.Author)
	}

	c := NewContentContext(ctx, eng, evt)
	if err := eng.Rules.CallContentRules(&c); err != nil {
		eventErrorCount.WithLabelValues("content").Inc()
		return nil, err
	}
	out = &Outcome{
		Username:  evt.Item.Author,
		ContentID: evt.Item.ID,
	}
	if c.Err != nil {
		c.Logger.Warn("rule lookup failed during content processing", "err", c.Err)
		out.Degrade("rule-lookup", c.Err)
	}
	eng.persistContentEffects(&c, out)
	eng.persistCounters(ctx, c.effects, out)
	eng.CanonicalLogLine(c.Logger, "content", c.effects, out)
	if out.IsDegraded() {
		span.SetAttributes(attribute.StringSlice("degraded", out.DegradedSteps()))
	}
	return out, nil
}

// Fetches a post or comment from the moderation API, then processes it like any other content event.
func (eng *Engine) ProcessContentID(ctx context.Context, trigger, contentID string) (*Outcome, error) {
	item, err := eng.API.GetContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("fetching content %s: %w", contentID, err)
	}
	return eng.ProcessContent(ctx, ContentEvent{Trigger: trigger, Item: *item})
}

func (eng *Engine) ProcessModAction(ctx context.Context, evt ModActionEvent) (out *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod event execution exception", "err", r, "action", evt.Action, "target", evt.TargetID())
			eventErrorCount.WithLabelValues("modaction").Inc()
			err = fmt.Errorf("rule execution panic: %v", r)
		}
	}()
	ctx, span := tracer.Start(ctx, "ProcessModAction")
	defer span.End()
	span.SetAttributes(attribute.String("action", evt.Action), attribute.String("target", evt.TargetID()))

	if evt.Action == "" {
		eventErrorCount.WithLabelValues("modaction").Inc()
		return nil, errors.New("mod action event missing action type")
	}
	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues("modaction").Observe(time.Since(start).Seconds())
	}()
	eventProcessCount.WithLabelValues("modaction").Inc()

	c := NewModActionContext(ctx, eng, evt)
	if err := eng.Rules.CallModActionRules(&c); err != nil {
		eventErrorCount.WithLabelValues("modaction").Inc()
		return nil, err
	}
	out = &Outcome{
		ContentID: evt.TargetID(),
	}
	if c.Err != nil {
		c.Logger.Warn("rule lookup failed during mod action processing", "err", c.Err)
		out.Degrade("rule-lookup", c.Err)
	}
	eng.persistModActionEffects(&c, out)
	eng.persistCounters(ctx, c.effects, out)
	eng.CanonicalLogLine(c.Logger, "modaction", c.effects, out)
	if out.IsDegraded() {
		span.SetAttributes(attribute.StringSlice("degraded", out.DegradedSteps()))
	}
	return out, nil
}

// Looks up the author of a post or comment, via cache. Returns the empty string for deleted accounts.
func (eng *Engine) GetContentAuthor(ctx context.Context, contentID string) (string, error) {
	author, err := eng.Cache.Get(ctx, "author", contentID)
	if err != nil {
		eng.Logger.Warn("author cache read failed", "content", contentID, "err", err)
	} else if author != "" {
		return author, nil
	}
	item, err := eng.API.GetContent(ctx, contentID)
	if err != nil {
		return "", err
	}
	if item.Author != "" {
		eng.cacheAuthor(ctx, contentID, item.Author)
	}
	return item.Author, nil
}

func (eng *Engine) cacheAuthor(ctx context.Context, contentID, author string) {
	if err := eng.Cache.Set(ctx, "author", contentID, author); err != nil {
		eng.Logger.Warn("author cache write failed", "content", contentID, "err", err)
	}
}
