package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/modshield/modshield/automod/modapi"
)

// The primary interface exposed to rules. All other contexts derive from this "base" struct.
type BaseContext struct {
	// Actual golang "context.Context", if needed for timeouts etc
	Ctx context.Context
	// Any errors encountered while processing methods on this struct (or sub-types) get rolled up in this nullable field
	Err error
	// slog logger handle, with event-specific structured fields pre-populated. Pointer, but expected to never be nil.
	Logger *slog.Logger

	engine  *Engine // NOTE: pointer, but expected never to be nil
	effects *Effects
}

// A post or comment submission, or a post edit.
type ContentContext struct {
	BaseContext

	Trigger string
	Item    modapi.Content
}

type ModActionContext struct {
	BaseContext

	Action ModActionEvent
}

func NewContentContext(ctx context.Context, eng *Engine, evt ContentEvent) ContentContext {
	return ContentContext{
		BaseContext: BaseContext{
			Ctx:     ctx,
			Logger:  eng.Logger.With("content", evt.Item.ID, "kind", evt.Item.Kind, "author", evt.Item.Author, "trigger", evt.Trigger),
			engine:  eng,
			effects: &Effects{},
		},
		Trigger: evt.Trigger,
		Item:    evt.Item,
	}
}

func NewModActionContext(ctx context.Context, eng *Engine, evt ModActionEvent) ModActionContext {
	return ModActionContext{
		BaseContext: BaseContext{
			Ctx:     ctx,
			Logger:  eng.Logger.With("action", evt.Action, "target", evt.TargetID(), "moderator", evt.Moderator),
			engine:  eng,
			effects: &Effects{},
		},
		Action: evt,
	}
}

func (c *BaseContext) setErr(err error) {
	if nil == c.Err {
		c.Err = err
	}
}

// request external state via engine (indirect)
func (c *BaseContext) GetCount(name, val, period string) int {
	out, err := c.engine.Counters.GetCount(c.Ctx, name, val, period)
	if err != nil {
		c.setErr(err)
		return 0
	}
	return out
}

func (c *BaseContext) GetCountDistinct(name, bucket, period string) int {
	out, err := c.engine.Counters.GetCountDistinct(c.Ctx, name, bucket, period)
	if err != nil {
		c.setErr(err)
		return 0
	}
	return out
}

func (c *BaseContext) InSet(name, val string) bool {
	out, err := c.engine.Sets.InSet(c.Ctx, name, val)
	if err != nil {
		c.setErr(err)
		return false
	}
	return out
}

func (c *BaseContext) SetMembers(name string) []string {
	out, err := c.engine.Sets.Members(c.Ctx, name)
	if err != nil {
		c.setErr(err)
		return nil
	}
	return out
}

// Reads a moderator-editable setting from the store. Returns the empty string if unset or unreadable.
func (c *BaseContext) GetSetting(key string) string {
	out, err := c.engine.Store.Get(c.Ctx, key)
	if err != nil {
		c.setErr(err)
		return ""
	}
	return out
}

// Fetches account metadata, via cache. Returns nil if the account doesn't exist or couldn't be looked up.
func (c *BaseContext) GetUser(username string) *modapi.UserInfo {
	u, _ := c.LookupUser(username)
	return u
}

// Like GetUser, but reports whether a nil result means the account doesn't exist. A failed lookup returns (nil, false) and is recorded as an error.
func (c *BaseContext) LookupUser(username string) (*modapi.UserInfo, bool) {
	u, err := c.engine.GetUser(c.Ctx, username)
	if err != nil {
		var apiErr *modapi.ModerationAPIError
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			c.Logger.Info("user not found", "user", username)
			return nil, true
		}
		c.setErr(err)
		return nil, false
	}
	return u, false
}

// Fetches a post or comment. Returns nil on any failure.
func (c *BaseContext) GetContent(contentID string) *modapi.Content {
	item, err := c.engine.API.GetContent(c.Ctx, contentID)
	if err != nil {
		c.setErr(err)
		return nil
	}
	return item
}

// Returns the author of a post or comment, or the empty string if unknown.
func (c *BaseContext) GetContentAuthor(contentID string) string {
	author, err := c.engine.GetContentAuthor(c.Ctx, contentID)
	if err != nil {
		c.setErr(err)
		return ""
	}
	return author
}

// Participation requirements currently configured. Unreadable settings read as disabled.
func (c *BaseContext) GetParticipationSettings() ParticipationSettings {
	s, err := c.engine.GetParticipationSettings(c.Ctx)
	if err != nil {
		c.setErr(err)
		return ParticipationSettings{}
	}
	return s
}

func (c *BaseContext) TopicFlairMatches(item *modapi.Content) bool {
	return c.engine.TopicFlairMatches(item)
}

func (c *BaseContext) Now() time.Time {
	return c.engine.Now()
}

func (c *BaseContext) Config() Config {
	return c.engine.Config
}

// Returns a pointer to the underlying automod engine. This usually should NOT be used in rules.
func (c *BaseContext) InternalEngine() *Engine {
	return c.engine
}

func (c *BaseContext) Increment(name, val string) {
	c.effects.Increment(name, val)
}

func (c *BaseContext) IncrementDistinct(name, bucket, val string) {
	c.effects.IncrementDistinct(name, bucket, val)
}

func (c *BaseContext) AddTopicNotice(postID string) {
	c.effects.AddTopicNotice(postID)
}

func (c *BaseContext) ClearTopic(postID string) {
	c.effects.ClearTopic(postID)
}

func (c *BaseContext) RestoreIfFiltered(contentID string) {
	c.effects.RestoreIfFiltered(contentID)
}

func (c *BaseContext) RemoveWarningFor(username, contentID string) {
	c.effects.RemoveWarningFor(username, contentID)
}

// Stops any remaining rules from running for this event. Effects enqueued so far are still persisted.
func (c *BaseContext) Halt() {
	c.effects.Halt()
}

func (c *BaseContext) Halted() bool {
	return c.effects.Halted
}

// Read-only view of the effects enqueued so far. Intended for tests.
func (c *BaseContext) Effects() Effects {
	return *c.effects
}

func (c *ContentContext) IsPost() bool {
	return c.Item.Kind == modapi.KindPost
}

// Records a warning against the content author, attributed to the bot moderator.
func (c *ContentContext) WarnAuthor(reason string) {
	c.effects.AddWarning(reason, c.engine.Config.BotModerator)
}

func (c *ContentContext) RemoveContent() {
	c.effects.RemoveContent()
}

func (c *ContentContext) AddNotice(n Notice) {
	c.effects.AddNotice(n)
}

func (c *ContentContext) AddAuthorFlag(val string) {
	c.effects.AddAuthorFlag(val)
}

// Fetches account metadata through the cache.
func (eng *Engine) GetUser(ctx context.Context, username string) (*modapi.UserInfo, error) {
	raw, err := eng.Cache.Get(ctx, "user", username)
	if err != nil {
		eng.Logger.Warn("user cache read failed", "user", username, "err", err)
	} else if raw != "" {
		var u modapi.UserInfo
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			return &u, nil
		}
		eng.Logger.Warn("ignoring malformed cached user", "user", username)
	}
	// concurrent events from one author share a single lookup
	v, err, _ := eng.userLookups.Do(username, func() (any, error) {
		return eng.API.GetUser(ctx, username)
	})
	if err != nil {
		return nil, err
	}
	u := v.(*modapi.UserInfo)
	userFetches.Inc()
	b, err := json.Marshal(u)
	if err == nil {
		if err := eng.Cache.Set(ctx, "user", username, string(b)); err != nil {
			eng.Logger.Warn("user cache write failed", "user", username, "err", err)
		}
	}
	return u, nil
}
