package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modshield/modshield/automod/escalation"
	"github.com/modshield/modshield/automod/ledger"
	"github.com/modshield/modshield/automod/messages"
	"github.com/modshield/modshield/automod/modapi"
	"github.com/modshield/modshield/automod/recordstore"
	"github.com/modshield/modshield/automod/throttle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commentEvent(id, author, body string) ContentEvent {
	return ContentEvent{
		Trigger: SubmitTrigger,
		Item: modapi.Content{
			ID:     id,
			Kind:   modapi.KindComment,
			Author: author,
			PostID: "t3_parent",
			Body:   body,
		},
	}
}

func postEvent(id, author, title, flair string) ContentEvent {
	return ContentEvent{
		Trigger: SubmitTrigger,
		Item: modapi.Content{
			ID:        id,
			Kind:      modapi.KindPost,
			Author:    author,
			Title:     title,
			FlairText: flair,
		},
	}
}

// wraps a store, failing selected operations
type flakyStore struct {
	recordstore.RecordStore

	mu      sync.Mutex
	failGet bool
	failSet bool
}

var errFlaky = fmt.Errorf("%w: injected failure", recordstore.ErrStoreUnavailable)

func (s *flakyStore) setFailures(get, set bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet = get
	s.failSet = set
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	fail := s.failGet
	s.mu.Unlock()
	if fail {
		return "", errFlaky
	}
	return s.RecordStore.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	s.mu.Lock()
	fail := s.failSet
	s.mu.Unlock()
	if fail {
		return errFlaky
	}
	return s.RecordStore.Set(ctx, key, val, ttl)
}

func (s *flakyStore) CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	fail := s.failSet
	s.mu.Unlock()
	if fail {
		return false, errFlaky
	}
	return s.RecordStore.CompareAndSwap(ctx, key, old, new, ttl)
}

// rebuilds every store-backed component of the engine on top of a flakyStore
func withFlakyStore(eng *Engine) *flakyStore {
	fs := &flakyStore{RecordStore: eng.Store}
	now := eng.Now
	eng.Store = fs
	eng.Ledger.Store = fs
	eng.Notify.Store = fs
	eng.Processed.Store = fs
	eng.AutoApproval.Store = fs
	eng.Topics.Store = fs
	eng.SetClock(now)
	return fs
}

func TestCleanContent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	out, err := eng.ProcessContent(ctx, commentEvent("t1_a", "alice", "perfectly pleasant"))
	require.NoError(t, err)
	assert.False(out.Warned)
	assert.False(out.Removed)
	assert.Nil(out.Ban)
	assert.False(out.IsDegraded())
	assert.Empty(api.Removed)
	assert.Equal(0, api.ReplyCount())
}

func TestBlacklistRemovalNotice(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	out, err := eng.ProcessContent(ctx, commentEvent("t1_a", "alice", "you BADWORD you"))
	require.NoError(t, err)
	assert.True(out.Warned)
	assert.True(out.Removed)
	assert.Equal(1, out.Counts.Active)
	assert.Nil(out.Ban)
	assert.Equal([]string{"t1_a"}, api.Removed)
	require.Equal(t, 1, api.ReplyCount())
	reply := api.Replies[0]
	assert.Equal("t1_a", reply.ParentID)
	assert.False(reply.Sticky)
	assert.Contains(reply.Text, "u/alice")
	assert.Contains(reply.Text, "**1** removal(s) active")
	assert.Equal([]string{reply.ID}, out.Replies)

	rec, err := eng.Ledger.GetUserWarnings(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, rec.Warnings, 1)
	assert.Equal("AutoMod", rec.Warnings[0].Moderator)
	assert.Equal("Blacklisted word", rec.Warnings[0].Reason)
	assert.Equal(ledger.CommentRef("t1_a"), rec.Warnings[0].Content)
}

func TestEscalationEndToEnd(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, clock := EngineTestFixture()

	// five warnings: no ban
	for i := range 5 {
		out, err := eng.ProcessContent(ctx, commentEvent(fmt.Sprintf("t1_%d", i), "bob", "badword"))
		require.NoError(t, err)
		assert.Nil(out.Ban)
		clock.Advance(time.Hour)
	}
	assert.Equal(0, api.BanCount())

	// sixth: 7 day ban, level 1
	out, err := eng.ProcessContent(ctx, commentEvent("t1_6", "bob", "badword"))
	require.NoError(t, err)
	require.NotNil(t, out.Ban)
	assert.True(out.Ban.Applied)
	assert.Equal(1, out.Ban.Decision.BanLevel)
	assert.Equal(6, out.Counts.Active)
	require.Equal(t, 1, api.BanCount())
	ban := api.Bans[0]
	assert.Equal("bob", ban.Username)
	assert.Equal("testsub", ban.Subreddit)
	assert.Equal(7, ban.Days)
	assert.False(ban.Permanent)
	assert.Equal(escalation.BanMessage, ban.Message)
	assert.Equal("Automatic ban by ModShield bot", ban.Note)

	summary, err := eng.WarningSummary(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(1, summary.LastBanLevel)
	assert.Equal(6, summary.Active)
	assert.Contains(summary.Flags, "ban-tier-1")

	// seventh: already at level 1, nothing new until 12
	out, err = eng.ProcessContent(ctx, commentEvent("t1_7", "bob", "badword"))
	require.NoError(t, err)
	assert.Nil(out.Ban)
	assert.Equal(1, api.BanCount())

	for i := 8; i <= 12; i++ {
		out, err = eng.ProcessContent(ctx, commentEvent(fmt.Sprintf("t1_%d", i), "bob", "badword"))
		require.NoError(t, err)
	}
	require.NotNil(t, out.Ban)
	assert.Equal(2, out.Ban.Decision.BanLevel)
	require.Equal(t, 2, api.BanCount())
	assert.Equal(28, api.Bans[1].Days)
}

func TestWarningsAgeOut(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, clock := EngineTestFixture()

	for i := range 5 {
		_, err := eng.ProcessContent(ctx, commentEvent(fmt.Sprintf("t1_%d", i), "carol", "badword"))
		require.NoError(t, err)
	}
	clock.Advance(91 * 24 * time.Hour)
	out, err := eng.ProcessContent(ctx, commentEvent("t1_late", "carol", "badword"))
	require.NoError(t, err)
	assert.Equal(1, out.Counts.Active)
	assert.Equal(5, out.Counts.Expired)
	assert.Nil(out.Ban)
	assert.Equal(0, api.BanCount())
	assert.Contains(api.Replies[len(api.Replies)-1].Text, "**5** past removal(s)")
}

func TestFailedBanLeavesLevel(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	api.SetFailure(modapi.OpBan, errors.New("forbidden"))
	var out *Outcome
	var err error
	for i := range 6 {
		out, err = eng.ProcessContent(ctx, commentEvent(fmt.Sprintf("t1_%d", i), "dave", "badword"))
		require.NoError(t, err)
	}
	require.NotNil(t, out.Ban)
	assert.False(out.Ban.Applied)
	assert.Error(out.Ban.Err)
	assert.Contains(out.DegradedSteps(), "ban")
	// warning is kept and content still removed
	assert.True(out.Warned)
	assert.True(out.Removed)

	summary, err := eng.WarningSummary(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(0, summary.LastBanLevel)
	assert.Contains(summary.Flags, "ban-failed")

	// next evaluation retries the same tier
	api.SetFailure(modapi.OpBan, nil)
	out, err = eng.ProcessContent(ctx, commentEvent("t1_retry", "dave", "badword"))
	require.NoError(t, err)
	require.NotNil(t, out.Ban)
	assert.True(out.Ban.Applied)
	assert.Equal(1, out.Ban.Decision.BanLevel)
	assert.Equal(1, api.BanCount())
}

func TestBanQuotaCircuitBreaker(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	for range QuotaBanDay {
		assert.NoError(eng.Counters.Increment(ctx, "automod-quota", "ban"))
	}
	res := eng.ApplyBan(ctx, "erin", escalation.CheckBanThreshold(6, 0))
	assert.True(res.QuotaExceeded)
	assert.False(res.Applied)
	assert.Equal(0, api.BanCount())

	rec, err := eng.Ledger.GetUserWarnings(ctx, "erin")
	require.NoError(t, err)
	assert.Equal(0, rec.LastBanLevel)
}

func TestRemovalFailureSuppressesNotice(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	api.SetFailure(modapi.OpRemove, errors.New("timeout"))
	out, err := eng.ProcessContent(ctx, commentEvent("t1_a", "frank", "badword"))
	require.NoError(t, err)
	assert.True(out.Warned)
	assert.False(out.Removed)
	assert.Equal([]string{"remove"}, out.DegradedSteps())
	assert.Equal(0, api.ReplyCount())
}

func TestWarningFailureStillRemoves(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()
	fs := withFlakyStore(eng)

	fs.setFailures(false, true)
	out, err := eng.ProcessContent(ctx, commentEvent("t1_a", "gina", "badword"))
	require.NoError(t, err)
	assert.False(out.Warned)
	assert.True(out.Removed)
	assert.Contains(out.DegradedSteps(), "warning")
	assert.Equal(1, api.ReplyCount())
}

func TestDeletedAuthor(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	out, err := eng.ProcessContent(ctx, commentEvent("t1_a", "", "badword"))
	require.NoError(t, err)
	assert.False(out.Warned)
	assert.True(out.Removed)
	assert.Contains(api.Replies[0].Text, "u/user")
}

func TestInvalidEvents(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _, _ := EngineTestFixture()

	_, err := eng.ProcessContent(ctx, ContentEvent{Trigger: "delete", Item: modapi.Content{ID: "t1_a", Kind: modapi.KindComment}})
	assert.Error(err)
	_, err = eng.ProcessContent(ctx, ContentEvent{Trigger: SubmitTrigger, Item: modapi.Content{Kind: modapi.KindComment}})
	assert.Error(err)
	_, err = eng.ProcessModAction(ctx, ModActionEvent{})
	assert.Error(err)

	// unknown actions are ignored
	out, err := eng.ProcessModAction(ctx, ModActionEvent{Action: "sticky", TargetPostID: "t3_a"})
	assert.NoError(err)
	assert.Empty(out.Restorations)
}

func TestPanicRecovery(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _, _ := EngineTestFixture()
	eng.Rules.ContentRules = append(eng.Rules.ContentRules, func(c *ContentContext) error {
		panic("rule bug")
	})

	out, err := eng.ProcessContent(ctx, commentEvent("t1_a", "hank", "fine"))
	assert.Error(err)
	assert.Nil(out)
}

func TestHaltStopsRules(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()
	eng.Rules.ContentRules = append([]ContentRuleFunc{func(c *ContentContext) error {
		c.RemoveContent()
		c.Halt()
		return nil
	}}, eng.Rules.ContentRules...)

	out, err := eng.ProcessContent(ctx, commentEvent("t1_a", "ivy", "badword"))
	require.NoError(t, err)
	assert.True(out.Removed)
	assert.False(out.Warned)
	assert.Equal(0, api.ReplyCount())
}

func TestRuleErrorAborts(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()
	eng.Rules.ContentRules = append([]ContentRuleFunc{func(c *ContentContext) error {
		return errors.New("broken rule")
	}}, eng.Rules.ContentRules...)

	_, err := eng.ProcessContent(ctx, commentEvent("t1_a", "jack", "badword"))
	assert.Error(err)
	assert.Empty(api.Removed)
}

func TestTopicNotice(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	out, err := eng.ProcessContent(ctx, postEvent("t3_a", "kim", "big news", "Rumor / Unverified"))
	require.NoError(t, err)
	assert.True(out.TopicNotice)
	require.Equal(t, 1, api.ReplyCount())
	assert.True(api.Replies[0].Sticky)
	assert.Contains(api.Replies[0].Text, "[rumor]")
	assert.Equal([]string{api.Replies[0].ID}, api.Locked)

	marked, err := eng.Topics.IsMarked(ctx, "t3_a")
	require.NoError(t, err)
	assert.True(marked)

	// edits don't post a second notice
	evt := postEvent("t3_a", "kim", "big news", "RUMOR")
	evt.Trigger = UpdateTrigger
	out, err = eng.ProcessContent(ctx, evt)
	require.NoError(t, err)
	assert.False(out.TopicNotice)
	assert.Equal(1, api.ReplyCount())

	// flair removed: marker cleared, so the notice can come back
	evt = postEvent("t3_a", "kim", "big news", "Discussion")
	evt.Trigger = UpdateTrigger
	out, err = eng.ProcessContent(ctx, evt)
	require.NoError(t, err)
	assert.True(out.TopicCleared)

	evt = postEvent("t3_a", "kim", "big news", "rumor")
	evt.Trigger = UpdateTrigger
	out, err = eng.ProcessContent(ctx, evt)
	require.NoError(t, err)
	assert.True(out.TopicNotice)
	assert.Equal(2, api.ReplyCount())
}

func TestTopicNoticeReplyFailureReleasesClaim(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	api.SetFailure(modapi.OpReply, errors.New("rate limited"))
	out, err := eng.ProcessContent(ctx, postEvent("t3_a", "lee", "news", "rumor"))
	require.NoError(t, err)
	assert.False(out.TopicNotice)
	assert.Contains(out.DegradedSteps(), "topic-notice")

	marked, err := eng.Topics.IsMarked(ctx, "t3_a")
	require.NoError(t, err)
	assert.False(marked)

	api.SetFailure(modapi.OpReply, nil)
	evt := postEvent("t3_a", "lee", "news", "rumor")
	evt.Trigger = UpdateTrigger
	out, err = eng.ProcessContent(ctx, evt)
	require.NoError(t, err)
	assert.True(out.TopicNotice)
}

func TestConcurrentTopicNoticeOnce(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			evt := postEvent("t3_race", "mo", "news", "rumor")
			evt.Trigger = UpdateTrigger
			_, err := eng.ProcessContent(ctx, evt)
			assert.NoError(err)
		}()
	}
	wg.Wait()
	assert.Equal(1, api.ReplyCount())
}

func TestReinstatementRemovesWarning(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _, _ := EngineTestFixture()

	_, err := eng.ProcessContent(ctx, commentEvent("t1_a", "nina", "badword"))
	require.NoError(t, err)
	_, err = eng.ProcessContent(ctx, commentEvent("t1_b", "nina", "badword"))
	require.NoError(t, err)

	// author comes from the cache populated while processing the comment
	out, err := eng.ProcessModAction(ctx, ModActionEvent{
		Action:          ApproveCommentAction,
		Moderator:       "mod1",
		TargetPostID:    "t3_parent",
		TargetCommentID: "t1_a",
	})
	require.NoError(t, err)
	assert.Equal(1, out.WarningsRemoved)

	counts, err := eng.Ledger.GetWarningCounts(ctx, "nina")
	require.NoError(t, err)
	assert.Equal(1, counts.Active)
	// the lifetime total is not decremented
	assert.Equal(2, counts.Total)
}

func TestSpamRestoration(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, clock := EngineTestFixture()

	api.AddContent(modapi.Content{ID: "t3_a", Kind: modapi.KindPost, Author: "olga", Removed: true})
	out, err := eng.ProcessModAction(ctx, ModActionEvent{Action: SpamAction, TargetPostID: "t3_a"})
	require.NoError(t, err)
	require.Len(t, out.Restorations, 1)
	assert.Equal(RestoreApproved, out.Restorations[0].Status)
	assert.True(out.Restorations[0].Notified)
	assert.Equal([]string{"t3_a"}, api.Approved)
	require.Equal(t, 1, api.ReplyCount())
	assert.Contains(api.Replies[0].Text, "Your post was (not anymore!) filtered")

	// redelivery of the same event does nothing
	out, err = eng.ProcessModAction(ctx, ModActionEvent{Action: SpamAction, TargetPostID: "t3_a"})
	require.NoError(t, err)
	assert.Equal(RestoreAlreadyProcessed, out.Restorations[0].Status)
	assert.Equal(1, api.ApproveCount())
	assert.Equal(1, api.ReplyCount())

	// a second filtered item inside the auto-approval interval is left alone, and not marked
	api.AddContent(modapi.Content{ID: "t3_b", Kind: modapi.KindPost, Author: "olga", Removed: true})
	out, err = eng.ProcessModAction(ctx, ModActionEvent{Action: SpamAction, TargetPostID: "t3_b"})
	require.NoError(t, err)
	assert.Equal(RestoreThrottled, out.Restorations[0].Status)
	done, err := eng.Processed.AlreadyProcessed(ctx, "t3_b")
	require.NoError(t, err)
	assert.False(done)

	clock.Advance(throttle.DefaultAutoApprovalInterval - time.Hour)
	out, err = eng.ProcessModAction(ctx, ModActionEvent{Action: SpamAction, TargetPostID: "t3_b"})
	require.NoError(t, err)
	assert.Equal(RestoreThrottled, out.Restorations[0].Status)

	clock.Advance(2 * time.Hour)
	out, err = eng.ProcessModAction(ctx, ModActionEvent{Action: SpamAction, TargetPostID: "t3_b"})
	require.NoError(t, err)
	assert.Equal(RestoreApproved, out.Restorations[0].Status)
	assert.True(out.Restorations[0].Notified)
	assert.Equal(2, api.ApproveCount())
}

func TestRestorationNotificationCooldown(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, clock := EngineTestFixture()
	eng.AutoApproval.Interval = time.Hour

	api.AddContent(modapi.Content{ID: "t1_a", Kind: modapi.KindComment, Author: "olga", Removed: true})
	api.AddContent(modapi.Content{ID: "t1_b", Kind: modapi.KindComment, Author: "olga", Removed: true})
	res, _ := eng.Restore(ctx, "t1_a")
	assert.True(res.Notified)

	// approved, but the author was told about a restoration too recently
	clock.Advance(2 * time.Hour)
	res, _ = eng.Restore(ctx, "t1_b")
	assert.Equal(RestoreApproved, res.Status)
	assert.False(res.Notified)
	assert.Equal(1, api.ReplyCount())
}

func TestRestorationNotRemoved(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	api.AddContent(modapi.Content{ID: "t1_a", Kind: modapi.KindComment, Author: "pat"})
	res, out := eng.Restore(ctx, "t1_a")
	assert.Equal(RestoreNotRemoved, res.Status)
	assert.False(out.IsDegraded())
	assert.Equal(0, api.ApproveCount())

	// marked processed anyway
	done, err := eng.Processed.AlreadyProcessed(ctx, "t1_a")
	require.NoError(t, err)
	assert.True(done)
}

func TestRestorationApproveFailureNotMarked(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	api.AddContent(modapi.Content{ID: "t1_a", Kind: modapi.KindComment, Author: "quinn", Removed: true})
	api.SetFailure(modapi.OpApprove, errors.New("server error"))
	res, out := eng.Restore(ctx, "t1_a")
	assert.Equal(RestoreFailed, res.Status)
	assert.Contains(out.DegradedSteps(), "approve")

	done, err := eng.Processed.AlreadyProcessed(ctx, "t1_a")
	require.NoError(t, err)
	assert.False(done)
	_, ok, err := eng.AutoApproval.Last(ctx)
	require.NoError(t, err)
	assert.False(ok)

	api.SetFailure(modapi.OpApprove, nil)
	res, _ = eng.Restore(ctx, "t1_a")
	assert.Equal(RestoreApproved, res.Status)
}

func TestRestorationConcurrentOnce(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	api.AddContent(modapi.Content{ID: "t1_a", Kind: modapi.KindComment, Author: "ray", Removed: true})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng.Restore(ctx, "t1_a")
		}()
	}
	wg.Wait()
	assert.Equal(1, api.ApproveCount())
	assert.Equal(1, api.ReplyCount())
}

func TestRestorationStoreFailureIsPermissive(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()
	fs := withFlakyStore(eng)

	api.AddContent(modapi.Content{ID: "t1_a", Kind: modapi.KindComment, Author: "sam", Removed: true})
	fs.setFailures(true, false)
	res, out := eng.Restore(ctx, "t1_a")
	assert.Equal(RestoreApproved, res.Status)
	assert.True(res.Notified)
	steps := out.DegradedSteps()
	assert.Contains(steps, "processed-check")
	assert.Contains(steps, "auto-approval-check")
	assert.Contains(steps, "notification-check")
}

func TestRemoveWithReason(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	api.AddContent(modapi.Content{ID: "t3_a", Kind: modapi.KindPost, Author: "tess", Title: "hello"})
	out, err := eng.RemoveWithReason(ctx, RemovalRequest{
		ContentID:  "t3_a",
		ReasonID:   "offtopic",
		AddWarning: true,
		Moderator:  "mod1",
	})
	require.NoError(t, err)
	assert.True(out.Removed)
	assert.True(out.Warned)
	assert.Equal(1, out.Counts.Active)
	require.Equal(t, 1, api.ReplyCount())
	assert.True(api.Replies[0].Sticky)
	assert.Contains(api.Replies[0].Text, "off-topic")
	assert.Equal([]string{api.Replies[0].ID}, api.Locked)
	require.Len(t, api.Notes, 1)
	assert.Equal("Post removed: Off-topic", api.Notes[0].Note)
	assert.Equal("t3_a", api.Notes[0].ContentID)

	rec, err := eng.Ledger.GetUserWarnings(ctx, "tess")
	require.NoError(t, err)
	require.Len(t, rec.Warnings, 1)
	assert.Equal("mod1", rec.Warnings[0].Moderator)
	assert.Equal("Off-topic", rec.Warnings[0].Reason)

	// without a warning, counts are reported but unchanged
	api.AddContent(modapi.Content{ID: "t1_b", Kind: modapi.KindComment, Author: "tess", Body: "x"})
	out, err = eng.RemoveWithReason(ctx, RemovalRequest{ContentID: "t1_b", ReasonID: "spam", Moderator: "mod1"})
	require.NoError(t, err)
	assert.False(out.Warned)
	assert.Equal(1, out.Counts.Active)
	assert.Equal("Comment removed: Spam", api.Notes[1].Note)
}

func TestRemoveWithReasonErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	_, err := eng.RemoveWithReason(ctx, RemovalRequest{ContentID: "t3_a", ReasonID: "nope"})
	assert.ErrorIs(err, ErrUnknownReason)

	_, err = eng.RemoveWithReason(ctx, RemovalRequest{ContentID: "t3_missing", ReasonID: "spam"})
	assert.ErrorIs(err, modapi.ErrNotFound)

	api.AddContent(modapi.Content{ID: "t3_a", Kind: modapi.KindPost, Author: "uma"})
	api.SetFailure(modapi.OpRemove, errors.New("forbidden"))
	_, err = eng.RemoveWithReason(ctx, RemovalRequest{ContentID: "t3_a", ReasonID: "spam", AddWarning: true})
	var apiErr *modapi.ModerationAPIError
	assert.ErrorAs(err, &apiErr)

	// nothing recorded when the removal failed
	counts, err := eng.Ledger.GetWarningCounts(ctx, "uma")
	require.NoError(t, err)
	assert.Equal(0, counts.Total)
}

func TestParticipationSettingsRoundTrip(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _, _ := EngineTestFixture()

	s, err := eng.GetParticipationSettings(ctx)
	require.NoError(t, err)
	assert.Equal(ParticipationSettings{}, s)

	want := ParticipationSettings{Enabled: true, MinKarma: 50, MinAccountAgeDays: 14}
	require.NoError(t, eng.SetParticipationSettings(ctx, want))
	s, err = eng.GetParticipationSettings(ctx)
	require.NoError(t, err)
	assert.Equal(want, s)

	raw, err := eng.Store.Get(ctx, RestrictionsEnabledKey)
	require.NoError(t, err)
	assert.Equal("true", raw)
}

func TestClearMemory(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	api.AddContent(modapi.Content{ID: "t1_a", Kind: modapi.KindComment, Author: "vic", Removed: true})
	eng.Restore(ctx, "t1_a")
	for i := range 6 {
		_, err := eng.ProcessContent(ctx, commentEvent(fmt.Sprintf("t1_%d", i), "vic", "badword"))
		require.NoError(t, err)
	}
	_, err := eng.ProcessContent(ctx, commentEvent("t1_w", "walt", "badword"))
	require.NoError(t, err)

	require.NoError(t, eng.ClearUserMemory(ctx, "vic"))
	summary, err := eng.WarningSummary(ctx, "vic")
	require.NoError(t, err)
	assert.Equal(0, summary.Total)
	assert.Equal(0, summary.LastBanLevel)
	assert.Empty(summary.Flags)
	assert.True(summary.CanNotify)
	assert.ErrorIs(eng.ClearUserMemory(ctx, ""), ledger.ErrEmptyUsername)

	// settings only: walt's history survives, the blacklist reverts to defaults
	n, err := eng.ClearAllMemory(ctx, false)
	require.NoError(t, err)
	assert.Equal(len(settingsKeys()), n)
	counts, err := eng.Ledger.GetWarningCounts(ctx, "walt")
	require.NoError(t, err)
	assert.Equal(1, counts.Total)
	terms, err := eng.Blacklist(ctx)
	require.NoError(t, err)
	assert.NotContains(terms, "badword")
	_, ok, err := eng.AutoApproval.Last(ctx)
	require.NoError(t, err)
	assert.False(ok)

	_, err = eng.ClearAllMemory(ctx, true)
	require.NoError(t, err)
	counts, err = eng.Ledger.GetWarningCounts(ctx, "walt")
	require.NoError(t, err)
	assert.Equal(0, counts.Total)
	done, err := eng.Processed.AlreadyProcessed(ctx, "t1_a")
	require.NoError(t, err)
	assert.False(done)
}

func TestBlacklistAdmin(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _, _ := EngineTestFixture()

	require.NoError(t, eng.SetBlacklist(ctx, []string{" spoiler ", "", "leak"}))
	terms, err := eng.Blacklist(ctx)
	require.NoError(t, err)
	assert.ElementsMatch([]string{"spoiler", "leak"}, terms)

	out, err := eng.ProcessContent(ctx, commentEvent("t1_a", "xena", "a LEAK here"))
	require.NoError(t, err)
	assert.True(out.Removed)
}

func TestStats(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	_, err := eng.ProcessContent(ctx, commentEvent("t1_a", "yan", "badword"))
	require.NoError(t, err)
	_, err = eng.ProcessContent(ctx, commentEvent("t1_b", "yan", "badword"))
	require.NoError(t, err)
	_, err = eng.ProcessContent(ctx, postEvent("t3_c", "zed", "badword", ""))
	require.NoError(t, err)
	api.AddContent(modapi.Content{ID: "t1_d", Kind: modapi.KindComment, Author: "zed", Removed: true})
	eng.Restore(ctx, "t1_d")

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(2, stats.WarnedUsersToday)
	assert.Equal(2, stats.CommentRemovals)
	assert.Equal(1, stats.PostRemovalsToday)
	assert.Equal(1, stats.RemovedTextsToday)
	assert.Equal(1, stats.AutoApprovalsToday)
	assert.Equal(0, stats.BansToday)
	require.NotNil(t, stats.LastAutoApproval)
}

func TestCachedUserLookup(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()

	api.AddUser(modapi.UserInfo{Username: "amy", LinkKarma: 3, CommentKarma: 4})
	u, err := eng.GetUser(ctx, "amy")
	require.NoError(t, err)
	assert.Equal(7, u.Karma())

	// served from cache even once the API starts failing
	api.SetFailure(modapi.OpGetUser, errors.New("down"))
	u, err = eng.GetUser(ctx, "amy")
	require.NoError(t, err)
	assert.Equal(7, u.Karma())
	_, err = eng.GetUser(ctx, "other")
	assert.Error(err)
}

func TestTargetID(t *testing.T) {
	assert := assert.New(t)

	evt := ModActionEvent{Action: ApproveCommentAction, TargetPostID: "t3_p", TargetCommentID: "t1_c"}
	assert.Equal("t1_c", evt.TargetID())
	evt.Action = ApproveLinkAction
	assert.Equal("t3_p", evt.TargetID())
	evt.Action = SpamAction
	assert.Equal("t1_c", evt.TargetID())
	evt.TargetCommentID = ""
	assert.Equal("t3_p", evt.TargetID())
	assert.True(strings.HasPrefix(evt.TargetID(), "t3_"))
}

// mock client whose bans take a while, widening any window between evaluating and recording a ban
type slowBanClient struct {
	*modapi.MockClient
	delay time.Duration
}

func (c *slowBanClient) Ban(ctx context.Context, req modapi.BanRequest) error {
	time.Sleep(c.delay)
	return c.MockClient.Ban(ctx, req)
}

func TestConcurrentEscalationOneBanPerTier(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()
	eng.API = &slowBanClient{MockClient: api, delay: 20 * time.Millisecond}

	for i := range 5 {
		_, err := eng.ProcessContent(ctx, commentEvent(fmt.Sprintf("t1_seed%d", i), "bob", "badword"))
		require.NoError(t, err)
	}
	require.Equal(t, 0, api.BanCount())

	// warnings 6 through 15 arrive at once: tier 1 and tier 2 are each crossed exactly once
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.ProcessContent(ctx, commentEvent(fmt.Sprintf("t1_burst%d", i), "bob", "badword"))
			assert.NoError(err)
		}()
	}
	wg.Wait()

	require.Equal(t, 2, api.BanCount())
	assert.Equal(7, api.Bans[0].Days)
	assert.Equal(28, api.Bans[1].Days)

	summary, err := eng.WarningSummary(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(2, summary.LastBanLevel)
	assert.Equal(15, summary.Active)
}

// record store which refuses deletes
type noDeleteStore struct {
	recordstore.RecordStore
}

func (s noDeleteStore) Delete(ctx context.Context, key string) error {
	return fmt.Errorf("%w: delete %q", recordstore.ErrStoreUnavailable, key)
}

func TestTopicClaimReleaseFailureReported(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, api, _ := EngineTestFixture()
	eng.Topics.Store = noDeleteStore{RecordStore: eng.Topics.Store}

	// reply fails and the claim can't be released
	api.SetFailure(modapi.OpReply, errors.New("rate limited"))
	out, err := eng.ProcessContent(ctx, postEvent("t3_a", "lee", "news", "rumor"))
	require.NoError(t, err)
	assert.False(out.TopicNotice)
	assert.Contains(out.DegradedSteps(), "topic-notice")
	assert.Contains(out.DegradedSteps(), "topic-release")

	// notice can't be rendered and the claim can't be released
	api.SetFailure(modapi.OpReply, nil)
	eng.Messages = &messages.Messages{Subreddit: "testsub"}
	out, err = eng.ProcessContent(ctx, postEvent("t3_b", "lee", "news", "rumor"))
	require.NoError(t, err)
	assert.False(out.TopicNotice)
	assert.Contains(out.DegradedSteps(), "topic-notice")
	assert.Contains(out.DegradedSteps(), "topic-release")
	assert.Empty(api.Replies)
}

func TestRemovedTextsCountedOnce(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _, _ := EngineTestFixture()

	for i, body := range []string{"badword", "BADWORD", "more badword", "badword"} {
		out, err := eng.ProcessContent(ctx, commentEvent(fmt.Sprintf("t1_%d", i), fmt.Sprintf("user%d", i), body))
		require.NoError(t, err)
		assert.True(out.Removed)
	}

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(4, stats.CommentRemovals)
	assert.Equal(2, stats.RemovedTextsToday)

	assert.Equal(hashOfString("badword"), hashOfString("badword"))
	assert.NotEqual(hashOfString("badword"), hashOfString("more badword"))
	assert.Len(hashOfString(""), 16)
}
