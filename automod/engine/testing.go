package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modshield/modshield/automod/countstore"
	"github.com/modshield/modshield/automod/messages"
	"github.com/modshield/modshield/automod/modapi"
	"github.com/modshield/modshield/automod/recordstore"
	"github.com/modshield/modshield/automod/setstore"
)

// Manually advanced clock, shared by every component of a test engine.
type TestClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewTestClock(start time.Time) *TestClock {
	return &TestClock{now: start}
}

func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ ContentRuleFunc = simpleBlacklistRule

func simpleBlacklistRule(c *ContentContext) error {
	text := strings.ToLower(c.Item.Text())
	for _, term := range c.SetMembers(setstore.BlacklistSet) {
		if strings.Contains(text, strings.ToLower(term)) {
			c.WarnAuthor("Blacklisted word")
			c.RemoveContent()
			c.AddNotice(Notice{Kind: BlacklistNotice})
			return nil
		}
	}
	return nil
}

var _ ContentRuleFunc = simpleTopicRule

func simpleTopicRule(c *ContentContext) error {
	if c.TopicFlairMatches(&c.Item) {
		c.AddTopicNotice(c.Item.ID)
	} else if c.Trigger == UpdateTrigger {
		c.ClearTopic(c.Item.ID)
	}
	return nil
}

var _ ModActionRuleFunc = simpleModActionRule

func simpleModActionRule(c *ModActionContext) error {
	target := c.Action.TargetID()
	switch c.Action.Action {
	case SpamAction:
		c.RestoreIfFiltered(target)
	case ApproveLinkAction, ApproveCommentAction:
		if author := c.GetContentAuthor(target); author != "" {
			c.RemoveWarningFor(author, target)
		}
	}
	return nil
}

// Returns an engine backed entirely by in-memory stores and a mock moderation client, with a manually advanced clock. The blacklist contains "badword".
func EngineTestFixture() (*Engine, *modapi.MockClient, *TestClock) {
	clock := NewTestClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	store := recordstore.NewMemStore()
	store.Now = clock.Now
	api := modapi.NewMockClient()
	msgs, err := messages.New("testsub", "")
	if err != nil {
		panic(err)
	}
	config := DefaultConfig()
	config.Subreddit = "testsub"

	eng := NewEngine(store, api, msgs, config, slog.Default())
	counters := countstore.NewMemCountStore()
	counters.Now = clock.Now
	eng.Counters = counters
	eng.SetClock(clock.Now)
	eng.Rules = RuleSet{
		ContentRules:    []ContentRuleFunc{simpleBlacklistRule},
		PostRules:       []ContentRuleFunc{simpleTopicRule},
		PostUpdateRules: []ContentRuleFunc{simpleTopicRule},
		ModActionRules:  []ModActionRuleFunc{simpleModActionRule},
	}
	if err := eng.SetBlacklist(context.Background(), []string{"badword"}); err != nil {
		panic(err)
	}
	return eng, api, clock
}
