package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/modshield/modshield/automod/modapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slackRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *slackRecorder) handler(w http.ResponseWriter, req *http.Request) {
	var body SlackWebhookBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.msgs = append(r.msgs, body.Text)
	r.mu.Unlock()
	w.Write([]byte("ok"))
}

func TestSlackNotifier(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	rec := &slackRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	eng, _, _ := EngineTestFixture()
	eng.Notifier = &SlackNotifier{SlackWebhookURL: srv.URL, Subreddit: "testsub"}

	for i := range 6 {
		_, err := eng.ProcessContent(ctx, commentEvent("t1_"+string(rune('a'+i)), "bob", "badword"))
		require.NoError(t, err)
	}
	// one removal message per event, plus the ban
	require.Len(t, rec.msgs, 7)
	assert.Contains(rec.msgs[0], "Comment Removal")
	assert.Contains(rec.msgs[0], "`bob`")
	ban := ""
	for _, m := range rec.msgs {
		if strings.HasPrefix(m, "⚠️ ModShield Ban") {
			ban = m
		}
	}
	assert.Contains(ban, "Level: `1` (7 days)")
}

func TestSlackNotifierFailure(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid_token"))
	}))
	defer srv.Close()

	n := &SlackNotifier{SlackWebhookURL: srv.URL}
	err := n.SendRemoval(context.Background(), &modapi.Content{ID: "t3_a", Kind: modapi.KindPost}, &Outcome{})
	assert.Error(err)
}
