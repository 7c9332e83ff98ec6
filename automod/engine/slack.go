package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/modshield/modshield/automod/modapi"
)

type SlackNotifier struct {
	SlackWebhookURL string
	// subreddit name, used for links
	Subreddit string
	// defaults to http.DefaultClient
	Client *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

func (n *SlackNotifier) SendBan(ctx context.Context, username string, res *BanResult) error {
	msg := "⚠️ ModShield Ban ⚠️\n"
	msg += n.userLine(username)
	if res.Decision.Permanent {
		msg += fmt.Sprintf("Level: `%d` (permanent)\n", res.Decision.BanLevel)
	} else {
		msg += fmt.Sprintf("Level: `%d` (%d days)\n", res.Decision.BanLevel, res.Decision.BanDays)
	}
	if res.LevelErr != nil {
		msg += "Ban level could not be recorded\n"
	}
	return n.sendSlackMsg(ctx, msg)
}

func (n *SlackNotifier) SendRemoval(ctx context.Context, item *modapi.Content, out *Outcome) error {
	header := "⚠️ ModShield Post Removal ⚠️\n"
	if item.Kind == modapi.KindComment {
		header = "⚠️ ModShield Comment Removal ⚠️\n"
	}
	msg := header
	msg += n.userLine(item.Author)
	msg += fmt.Sprintf("Item: `%s`\n", item.ID)
	if out.Warned {
		msg += fmt.Sprintf("Warnings: `%d` active / `%d` total\n", out.Counts.Active, out.Counts.Total)
	}
	if len(out.Degraded) > 0 {
		msg += fmt.Sprintf("Degraded: `%s`\n", strings.Join(out.DegradedSteps(), ", "))
	}
	return n.sendSlackMsg(ctx, msg)
}

func (n *SlackNotifier) userLine(username string) string {
	if username == "" {
		return "User: `[deleted]`\n"
	}
	return fmt.Sprintf("User: `%s` / <https://www.reddit.com/user/%s|profile> / <https://www.reddit.com/r/%s/about/banned|bans>\n", username, username, n.Subreddit)
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	// loosely based on: https://golangcode.com/send-slack-messages-without-a-library/

	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}
