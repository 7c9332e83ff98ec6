package engine

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/modshield/modshield/automod/messages"
)

// Minimum karma and account age for posting and commenting. Only enforced when Enabled.
type ParticipationSettings struct {
	Enabled           bool `json:"enabled"`
	MinKarma          int  `json:"minKarma"`
	MinAccountAgeDays int  `json:"minAccountAgeDays"`
}

// unset or unparseable numbers read as zero (no requirement)
func parseSettingInt(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (eng *Engine) GetParticipationSettings(ctx context.Context) (ParticipationSettings, error) {
	var out ParticipationSettings
	enabled, err := eng.Store.Get(ctx, RestrictionsEnabledKey)
	if err != nil {
		return out, err
	}
	karma, err := eng.Store.Get(ctx, KarmaRequirementKey)
	if err != nil {
		return out, err
	}
	age, err := eng.Store.Get(ctx, AccountAgeRequirementKey)
	if err != nil {
		return out, err
	}
	out.Enabled = enabled == "true"
	out.MinKarma = parseSettingInt(karma)
	out.MinAccountAgeDays = parseSettingInt(age)
	return out, nil
}

func (eng *Engine) SetParticipationSettings(ctx context.Context, s ParticipationSettings) error {
	if err := eng.Store.Set(ctx, RestrictionsEnabledKey, strconv.FormatBool(s.Enabled), 0); err != nil {
		return err
	}
	if err := eng.Store.Set(ctx, KarmaRequirementKey, strconv.Itoa(max(s.MinKarma, 0)), 0); err != nil {
		return err
	}
	return eng.Store.Set(ctx, AccountAgeRequirementKey, strconv.Itoa(max(s.MinAccountAgeDays, 0)), 0)
}

// Returns the configured removal reasons, falling back to the defaults if none are stored or the stored list is malformed.
func (eng *Engine) RemovalReasons(ctx context.Context) ([]messages.RemovalReason, error) {
	raw, err := eng.Store.Get(ctx, RemovalReasonsKey)
	if err != nil {
		return nil, err
	}
	reasons, err := messages.ParseRemovalReasons(raw)
	if err != nil {
		eng.Logger.Warn("ignoring malformed removal reasons", "err", err)
		return messages.DefaultRemovalReasons, nil
	}
	return reasons, nil
}

func (eng *Engine) SetRemovalReasons(ctx context.Context, reasons []messages.RemovalReason) error {
	b, err := json.Marshal(reasons)
	if err != nil {
		return err
	}
	if _, err := messages.ParseRemovalReasons(string(b)); err != nil {
		return err
	}
	return eng.Store.Set(ctx, RemovalReasonsKey, string(b), 0)
}
