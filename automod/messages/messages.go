// Markdown notices posted to users: automatic and manual removal notices, restoration notices, topic notices and participation-requirement removals.
//
// Templates are pongo2 (Django-style) with a built-in default for each message. A directory of "<name>.md" files can override any of them.
package messages

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flosch/pongo2/v6"
)

// Template names. Override files are named "<name>.md".
const (
	BlacklistRemoval     = "blacklist_removal"
	Restoration          = "restoration"
	ManualRemoval        = "manual_removal"
	TopicNotice          = "topic_notice"
	ParticipationRemoval = "participation_removal"
)

const footerAuto = `---

*This action was performed automatically by a bot, not a human.*

*If you feel this was in error, or need more clarification, please don't hesitate to [modmail us](https://www.reddit.com/message/compose?to=r/{{ subreddit }}). Thank you!*`

const countsLine = `You have **{{ active }}** removal(s) active{% if expired > 0 %} and **{{ expired }}** past removal(s) that are no longer counted{% endif %}.`

var defaultTemplates = map[string]string{
	BlacklistRemoval: `Greetings u/{{ author }}!

Thank you for posting to r/{{ subreddit }}.

Your content was removed automatically by our bot. This usually means you tried saying something offensive, derogatory, rude or racist. Try re-phrasing it and posting it again.

---

` + countsLine + `

` + footerAuto,

	Restoration: `Greetings u/{{ author }}!

Your {{ kind }} was (not anymore!) filtered by Reddit. This can happen for several different reasons, including but not limited to:

* Your account being new and not having many contributions on our subreddit yet
* Certain words or phrases triggering Reddit's filters
* A URL you posted being on a sitewide blacklist
* A possible shadow ban (you can check that here: https://www.reddit.com/r/ShadowBan/wiki/detection/)

**We have already automatically approved your {{ kind }}.** You do not need to contact us about this. We cannot provide any additional details about why Reddit filtered it, as these filters are controlled by Reddit, not by the moderators of r/{{ subreddit }}.

If you need assistance from Reddit Support (for example, about filters, account trust, or spam history), you can contact them here: https://support.reddithelp.com/hc/en-us/requests/new

If you believe your account may be shadow banned, you can appeal that directly here: https://reddit.com/appeal

You will only see this message to your filtered out content every {{ cooldownDays }} days.

` + footerAuto,

	ManualRemoval: `Greetings u/{{ author }}!

{{ reasonText }}

---

` + countsLine + `

---

*This action was performed by a bot at the explicit direction of a human. This was not an automated action, but a conscious decision by a sapient life form charged with moderating this sub.*

*If you feel this was in error, or need more clarification, please don't hesitate to [modmail us](https://www.reddit.com/r/{{ subreddit }}/). Thank you!*`,

	TopicNotice: `Greetings snarkers!

The post's content is classified as a [{{ topic }}](https://en.wikipedia.org/wiki/{{ topic|capfirst }}). Please take everything with a grain of salt and not too seriously, because these are unverified claims and make sure to remember our [subreddit's rules](https://www.reddit.com/r/{{ subreddit }}/about/rules) when participating. Thank you!

` + footerAuto,

	ParticipationRemoval: `Your {{ kind }} was automatically removed.

{{ reason }}

Please try again once you meet the requirements.`,
}

// Renders notices for one subreddit. Safe for concurrent use once constructed.
type Messages struct {
	Subreddit string
	// shown in the restoration notice
	NotificationCooldownDays int

	templates map[string]*pongo2.Template
}

// overrideDir may be empty; missing override files fall back to the defaults.
func New(subreddit, overrideDir string) (*Messages, error) {
	m := &Messages{
		Subreddit:                subreddit,
		NotificationCooldownDays: 5,
		templates:                make(map[string]*pongo2.Template, len(defaultTemplates)),
	}
	for name, src := range defaultTemplates {
		if overrideDir != "" {
			b, err := os.ReadFile(filepath.Join(overrideDir, name+".md"))
			if err == nil {
				src = string(b)
			} else if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading %s template: %w", name, err)
			}
		}
		// notices are markdown; HTML escaping would mangle apostrophes in reason text
		tpl, err := pongo2.FromString("{% autoescape off %}" + src + "{% endautoescape %}")
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", name, err)
		}
		m.templates[name] = tpl
	}
	return m, nil
}

func (m *Messages) render(name string, data pongo2.Context) (string, error) {
	tpl, ok := m.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown message template: %s", name)
	}
	data["subreddit"] = m.Subreddit
	out, err := tpl.Execute(data)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return strings.TrimSpace(out), nil
}

func authorOrDefault(author string) string {
	if author == "" {
		return "user"
	}
	return author
}

func (m *Messages) BlacklistRemoval(author string, active, expired int) (string, error) {
	return m.render(BlacklistRemoval, pongo2.Context{
		"author":  authorOrDefault(author),
		"active":  active,
		"expired": expired,
	})
}

// kind is "post" or "comment"
func (m *Messages) Restoration(author, kind string) (string, error) {
	return m.render(Restoration, pongo2.Context{
		"author":       authorOrDefault(author),
		"kind":         kind,
		"cooldownDays": m.NotificationCooldownDays,
	})
}

func (m *Messages) ManualRemoval(author, reasonText string, active, expired int) (string, error) {
	return m.render(ManualRemoval, pongo2.Context{
		"author":     authorOrDefault(author),
		"reasonText": reasonText,
		"active":     active,
		"expired":    expired,
	})
}

func (m *Messages) TopicNotice(topic string) (string, error) {
	return m.render(TopicNotice, pongo2.Context{
		"topic": topic,
	})
}

func (m *Messages) ParticipationRemoval(kind, reason string) (string, error) {
	return m.render(ParticipationRemoval, pongo2.Context{
		"kind":   kind,
		"reason": reason,
	})
}
