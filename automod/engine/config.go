package engine

import (
	"github.com/modshield/modshield/automod/keyword"
)

var (
	// number of bans automod can apply per day, across all users (circuit breaker)
	QuotaBanDay = 50
	// number of removed items automod can re-approve per day (circuit breaker). The auto-approval interval normally keeps this far lower.
	QuotaAutoApprovalDay = 20
)

// Store keys for moderator-editable settings. These are the only keys ClearAllMemory is guaranteed to remove on stores which can't list keys.
var (
	RestrictionsEnabledKey   = "restrictions_enabled"
	KarmaRequirementKey      = "karma_requirement"
	AccountAgeRequirementKey = "account_age_requirement"
	RemovalReasonsKey        = "removal_reasons"
)

type Config struct {
	// community the bot moderates
	Subreddit string
	// recorded as the moderator on automatic warnings
	BotModerator string
	// moderator-only note attached to automatic bans
	BanNote string
	// posts whose flair contains this word (case-insensitive) get a pinned notice
	TopicWord string
	// how blacklisted terms are matched against post and comment text
	BlacklistMatch keyword.MatchMode
}

func DefaultConfig() Config {
	return Config{
		BotModerator:   "AutoMod",
		BanNote:        "Automatic ban by ModShield bot",
		TopicWord:      "rumor",
		BlacklistMatch: keyword.MatchSubstring,
	}
}
