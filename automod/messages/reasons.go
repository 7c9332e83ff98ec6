package messages

import (
	"encoding/json"
	"fmt"
)

// A moderator-selectable removal reason.
type RemovalReason struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	// shown to the author
	ReasonText string `json:"reasonText"`
}

var DefaultRemovalReasons = []RemovalReason{
	{
		ID:         "spam",
		Label:      "Spam",
		ReasonText: "Your content was removed because it was identified as spam.",
	},
	{
		ID:         "harassment",
		Label:      "Harassment",
		ReasonText: "Your content was removed for harassment or bullying.",
	},
	{
		ID:         "offtopic",
		Label:      "Off-topic",
		ReasonText: "Your content was removed because it was off-topic.",
	},
}

// Parses a stored JSON list of reasons. Empty input yields the defaults.
func ParseRemovalReasons(raw string) ([]RemovalReason, error) {
	if raw == "" {
		return DefaultRemovalReasons, nil
	}
	var out []RemovalReason
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parsing removal reasons: %w", err)
	}
	for _, r := range out {
		if r.ID == "" || r.ReasonText == "" {
			return nil, fmt.Errorf("removal reason missing id or text: %+v", r)
		}
	}
	return out, nil
}

func FindRemovalReason(reasons []RemovalReason, id string) (RemovalReason, bool) {
	for _, r := range reasons {
		if r.ID == id {
			return r, true
		}
	}
	return RemovalReason{}, false
}
