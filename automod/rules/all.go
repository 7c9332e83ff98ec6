package rules

import (
	"github.com/modshield/modshield/automod"
)

func DefaultRules() automod.RuleSet {
	rules := automod.RuleSet{
		ContentRules: []automod.ContentRuleFunc{
			// participation runs first and halts, so unqualified authors are never warned
			ParticipationContentRule,
			BlacklistContentRule,
		},
		PostRules: []automod.ContentRuleFunc{
			TopicFlairPostRule,
		},
		PostUpdateRules: []automod.ContentRuleFunc{
			TopicFlairPostRule,
		},
		ModActionRules: []automod.ModActionRuleFunc{
			TopicFlairModActionRule,
			ReinstatementModActionRule,
			SpamRestorationModActionRule,
		},
	}
	return rules
}
