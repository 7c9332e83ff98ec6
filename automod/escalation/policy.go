// Ban escalation policy: maps a user's active warning count and the highest ban tier already applied to a ban decision.
//
// Everything in this package is a pure function of its inputs. Storage and the moderation API are the caller's concern (see the engine's ban executor).
package escalation

// Sent to the user along with every automatic ban.
const BanMessage = "You've exceeded our internal threshold of allowed removals in a specific time. For more details, please look at your previous removal messages."

// One escalation step. A user with at least MinActive active warnings, whose last applied level is below Level, is banned at this tier.
type Tier struct {
	MinActive int
	Level     int
	// ban duration in days; ignored when Permanent
	Days      int
	Permanent bool
}

// Ordered set of tiers. Evaluation checks the highest tier first, so a user who crossed several thresholds between checks lands directly on the highest applicable one.
type Policy struct {
	Tiers   []Tier
	Message string
}

type Decision struct {
	ShouldBan bool
	// 0 when not banning or when Permanent
	BanDays   int
	Permanent bool
	// new level when ShouldBan, otherwise the unchanged last level
	BanLevel int
	Message  string
}

// 26 active warnings: permanent; 12: 28 days; 6: 7 days.
var DefaultPolicy = Policy{
	Tiers: []Tier{
		{MinActive: 26, Level: 3, Permanent: true},
		{MinActive: 12, Level: 2, Days: 28},
		{MinActive: 6, Level: 1, Days: 7},
	},
	Message: BanMessage,
}

// Evaluates the policy. Tiers are tried in order of descending level regardless of slice order.
func (p Policy) Check(active, lastLevel int) Decision {
	var best *Tier
	for i := range p.Tiers {
		t := &p.Tiers[i]
		if active < t.MinActive || lastLevel >= t.Level {
			continue
		}
		if best == nil || t.Level > best.Level {
			best = t
		}
	}
	if best == nil {
		return Decision{BanLevel: lastLevel}
	}
	d := Decision{
		ShouldBan: true,
		Permanent: best.Permanent,
		BanLevel:  best.Level,
		Message:   p.Message,
	}
	if !best.Permanent {
		d.BanDays = best.Days
	}
	return d
}

// Highest level the policy can reach.
func (p Policy) MaxLevel() int {
	m := 0
	for _, t := range p.Tiers {
		m = max(m, t.Level)
	}
	return m
}

func CheckBanThreshold(active, lastLevel int) Decision {
	return DefaultPolicy.Check(active, lastLevel)
}
