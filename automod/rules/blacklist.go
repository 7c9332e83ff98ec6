package rules

import (
	"github.com/modshield/modshield/automod"
	"github.com/modshield/modshield/automod/keyword"
	"github.com/modshield/modshield/automod/setstore"
)

const BlacklistWarningReason = "Blacklisted word"

var _ automod.ContentRuleFunc = BlacklistContentRule

// Removes posts and comments containing a blacklisted term, warning the author. Config.BlacklistMatch picks how terms are matched.
func BlacklistContentRule(c *automod.ContentContext) error {
	if c.Item.Author == c.Config().BotModerator {
		return nil
	}
	terms := c.SetMembers(setstore.BlacklistSet)
	if len(terms) == 0 {
		return nil
	}
	term, ok := keyword.NewMatcher(terms, c.Config().BlacklistMatch).Match(c.Item.Text())
	if !ok {
		return nil
	}
	c.Logger.Info("blacklisted term found", "term", term)
	c.WarnAuthor(BlacklistWarningReason)
	c.RemoveContent()
	c.AddNotice(automod.Notice{Kind: automod.BlacklistNotice})
	c.AddAuthorFlag("blacklist-hit")
	return nil
}
