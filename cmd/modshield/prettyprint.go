package main

import (
	"fmt"
	"time"

	"github.com/modshield/modshield/automod/engine"

	"github.com/xlab/treeprint"
)

func prettyWarnings(summary *engine.WarningSummary) string {
	tree := treeprint.NewWithRoot(fmt.Sprintf("u/%s (active=%d expired=%d total=%d ban-level=%d)",
		summary.Username, summary.Active, summary.Expired, summary.Total, summary.LastBanLevel))

	warnings := tree.AddBranch("warnings")
	if len(summary.Warnings) == 0 {
		warnings.AddNode("(none)")
	}
	for _, w := range summary.Warnings {
		branch := warnings.AddBranch(w.Timestamp.UTC().Format(time.RFC3339))
		branch.AddNode("reason: " + w.Reason)
		branch.AddNode("moderator: " + w.Moderator)
		branch.AddNode("content: " + w.Content.String())
	}

	if len(summary.Flags) > 0 {
		flags := tree.AddBranch("flags")
		for _, f := range summary.Flags {
			flags.AddNode(f)
		}
	}
	tree.AddNode(fmt.Sprintf("can-notify: %v", summary.CanNotify))
	return tree.String()
}
