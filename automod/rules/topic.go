package rules

import (
	"github.com/modshield/modshield/automod"
)

var _ automod.ContentRuleFunc = TopicFlairPostRule

// Pins a topic notice on posts whose flair contains the topic word. On edits, a post whose flair no longer matches has its marker cleared, so a later re-flair posts a fresh notice.
func TopicFlairPostRule(c *automod.ContentContext) error {
	if !c.IsPost() {
		return nil
	}
	if c.TopicFlairMatches(&c.Item) {
		c.AddTopicNotice(c.Item.ID)
	} else if c.Trigger == automod.UpdateTrigger {
		c.ClearTopic(c.Item.ID)
	}
	return nil
}

var _ automod.ModActionRuleFunc = TopicFlairModActionRule

// Moderator flair edits don't always arrive as post updates, so re-check the post's current flair.
func TopicFlairModActionRule(c *automod.ModActionContext) error {
	if c.Action.Action != automod.EditFlairAction || c.Action.TargetPostID == "" {
		return nil
	}
	post := c.GetContent(c.Action.TargetPostID)
	if post == nil {
		return nil
	}
	if c.TopicFlairMatches(post) {
		c.AddTopicNotice(post.ID)
	} else {
		c.ClearTopic(post.ID)
	}
	return nil
}
