package rules

import (
	"fmt"

	"github.com/modshield/modshield/automod"
)

const UnknownAuthorReason = "Could not fetch user information"

var _ automod.ContentRuleFunc = ParticipationContentRule

// Removes content from accounts below the configured karma or account age, when restrictions are enabled. No further rules run for removed content.
//
// Authors whose account can't be found are treated as not meeting the requirements. If the lookup itself fails the content is allowed.
func ParticipationContentRule(c *automod.ContentContext) error {
	if c.Item.Author == "" {
		return nil
	}
	settings := c.GetParticipationSettings()
	if !settings.Enabled {
		return nil
	}
	user, notFound := c.LookupUser(c.Item.Author)
	if notFound {
		c.Logger.Info("participation requirements not met, author not found")
		removeForParticipation(c, UnknownAuthorReason)
		return nil
	}
	if user == nil {
		c.Logger.Warn("participation check skipped, author lookup failed")
		return nil
	}

	reason := ""
	karma := user.Karma()
	age := user.AgeDays(c.Now())
	if karma < settings.MinKarma {
		reason = fmt.Sprintf("Your account needs at least %d karma to participate. You currently have %d karma.", settings.MinKarma, karma)
	} else if age < settings.MinAccountAgeDays {
		reason = fmt.Sprintf("Your account needs to be at least %d days old to participate. Your account is %d days old.", settings.MinAccountAgeDays, age)
	}
	if reason == "" {
		return nil
	}

	c.Logger.Info("participation requirements not met", "karma", karma, "ageDays", age)
	removeForParticipation(c, reason)
	return nil
}

func removeForParticipation(c *automod.ContentContext, reason string) {
	c.RemoveContent()
	c.AddNotice(automod.Notice{Kind: automod.ParticipationNotice, Reason: reason})
	c.Increment("participation-removal", string(c.Item.Kind))
	c.Halt()
}
