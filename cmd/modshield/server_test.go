package main

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modshield/modshield/automod/engine"
	"github.com/modshield/modshield/automod/modapi"
	"github.com/modshield/modshield/automod/rules"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, secret string) (*Server, *modapi.MockClient) {
	eng, api, _ := engine.EngineTestFixture()
	eng.Rules = rules.DefaultRules()
	return newServer(eng, slog.Default(), ":0", secret, prometheus.NewRegistry()), api
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t, "")

	rec := doRequest(srv, http.MethodGet, "/_health", "")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"status":"ok"`)
}

func TestContentEventEndpoint(t *testing.T) {
	assert := assert.New(t)
	srv, api := testServer(t, "")

	rec := doRequest(srv, http.MethodPost, "/events/content", `{"trigger":"submit","item":{"id":"t1_a","kind":"comment","author":"bob","postId":"t3_p","body":"such a badword"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out OutcomeBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(out.Warned)
	assert.True(out.Removed)
	assert.Equal(1, out.ActiveWarnings)
	assert.Equal([]string{"t1_a"}, api.Removed)

	// by ID, fetched from the moderation API
	api.AddContent(modapi.Content{ID: "t3_q", Kind: modapi.KindPost, Author: "bob", Title: "hello"})
	rec = doRequest(srv, http.MethodPost, "/events/content", `{"trigger":"submit","id":"t3_q"}`)
	assert.Equal(http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/events/content", `{"trigger":"submit","id":"t3_missing"}`)
	assert.Equal(http.StatusNotFound, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/events/content", `{"trigger":"delete","item":{"id":"t1_b","kind":"comment"}}`)
	assert.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/events/content", `{"trigger":"submit"}`)
	assert.Equal(http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/admin/warnings/bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary engine.WarningSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(1, summary.Active)
	assert.Len(summary.Warnings, 1)
}

func TestModActionEndpoint(t *testing.T) {
	assert := assert.New(t)
	srv, api := testServer(t, "")

	api.AddContent(modapi.Content{ID: "t1_s", Kind: modapi.KindComment, Author: "amy", Removed: true, Spam: true})
	rec := doRequest(srv, http.MethodPost, "/events/modaction", `{"action":"spam","targetCommentId":"t1_s"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out OutcomeBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Restorations, 1)
	assert.Equal("approved", out.Restorations[0].Status)

	rec = doRequest(srv, http.MethodPost, "/events/modaction", `{}`)
	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestRemoveEndpoint(t *testing.T) {
	assert := assert.New(t)
	srv, api := testServer(t, "")

	api.AddContent(modapi.Content{ID: "t3_r", Kind: modapi.KindPost, Author: "carl", Title: "buy now"})
	rec := doRequest(srv, http.MethodPost, "/admin/remove", `{"contentId":"t3_r","reasonId":"spam","addWarning":true,"moderator":"mod1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out OutcomeBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(out.Removed)
	assert.True(out.Warned)
	assert.Len(api.Notes, 1)

	rec = doRequest(srv, http.MethodPost, "/admin/remove", `{"contentId":"t3_r","reasonId":"nope"}`)
	assert.Equal(http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/admin/remove", `{"contentId":"t3_r"}`)
	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t, "")

	rec := doRequest(srv, http.MethodPut, "/admin/blacklist", `{"terms":["foo"," bar ",""]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var bl BlacklistBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bl))
	assert.Equal([]string{"foo", "bar"}, bl.Terms)

	rec = doRequest(srv, http.MethodPut, "/admin/participation", `{"enabled":true,"minKarma":50,"minAccountAgeDays":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(srv, http.MethodGet, "/admin/participation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ps engine.ParticipationSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ps))
	assert.Equal(engine.ParticipationSettings{Enabled: true, MinKarma: 50, MinAccountAgeDays: 7}, ps)

	rec = doRequest(srv, http.MethodPut, "/admin/participation", `{"enabled":true,"minKarma":-1}`)
	assert.Equal(http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/admin/stats", "")
	assert.Equal(http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodDelete, "/admin/memory", "")
	assert.Equal(http.StatusBadRequest, rec.Code)
	rec = doRequest(srv, http.MethodDelete, "/admin/memory?confirm=CONFIRM", "")
	assert.Equal(http.StatusOK, rec.Code)

	// back to the default list
	rec = doRequest(srv, http.MethodGet, "/admin/blacklist", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bl))
	assert.NotContains(bl.Terms, "foo")
}

func TestWebhookSecret(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t, "hunter2")

	rec := doRequest(srv, http.MethodGet, "/_health", "")
	assert.Equal(http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/admin/stats", "")
	assert.NotEqual(http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer hunter2")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(http.StatusOK, w.Code)
}

func TestRunAPIReturnsListenError(t *testing.T) {
	assert := assert.New(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	eng, _, _ := engine.EngineTestFixture()
	srv := newServer(eng, slog.Default(), ln.Addr().String(), "", prometheus.NewRegistry())

	done := make(chan error, 1)
	go func() { done <- srv.RunAPI() }()

	select {
	case err := <-done:
		assert.Error(err)
		assert.Contains(err.Error(), "HTTP server")
	case <-time.After(5 * time.Second):
		t.Fatal("RunAPI did not return after the listener failed")
	}
}

func TestNewEngineRejectsUnknownMatchMode(t *testing.T) {
	assert := assert.New(t)

	_, _, err := NewEngine(Config{Subreddit: "testsub", StoreURL: "memory://", BlacklistMatch: "regex"})
	assert.Error(err)
	assert.Contains(err.Error(), "match mode")
}
