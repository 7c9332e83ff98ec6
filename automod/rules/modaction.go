package rules

import (
	"github.com/modshield/modshield/automod"
)

var _ automod.ModActionRuleFunc = ReinstatementModActionRule

// A moderator approving content the bot removed takes back the warning recorded for it.
func ReinstatementModActionRule(c *automod.ModActionContext) error {
	switch c.Action.Action {
	case automod.ApproveLinkAction, automod.ApproveCommentAction:
	default:
		return nil
	}
	target := c.Action.TargetID()
	if target == "" {
		return nil
	}
	author := c.GetContentAuthor(target)
	if author == "" {
		c.Logger.Info("reinstated content has no known author")
		return nil
	}
	c.RemoveWarningFor(author, target)
	return nil
}

var _ automod.ModActionRuleFunc = SpamRestorationModActionRule

// Content caught by the platform spam filter is queued for a restoration check.
func SpamRestorationModActionRule(c *automod.ModActionContext) error {
	if c.Action.Action != automod.SpamAction {
		return nil
	}
	if target := c.Action.TargetID(); target != "" {
		c.RestoreIfFiltered(target)
	}
	return nil
}
