package modapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/modshield/modshield/util"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"
)

// Speaks JSON to a platform bridge service over HTTP, with bearer token auth. Requests are retried by the underlying client and paced by an outbound rate limiter.
type HTTPClient struct {
	// If not set, defaults to util.RobustHTTPClient()
	Client    *http.Client
	Host      string
	Token     string
	UserAgent string
	Limiter   *rate.Limiter
}

var _ Client = (*HTTPClient)(nil)

// perSecond <= 0 disables rate limiting
func NewHTTPClient(host, token string, perSecond float64) *HTTPClient {
	c := &HTTPClient{
		Client:    util.RobustHTTPClient(),
		Host:      strings.TrimRight(host, "/"),
		Token:     token,
		UserAgent: "modshield/" + versioninfo.Short(),
	}
	if perSecond > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return c
}

type errorBody struct {
	ErrStr  string `json:"error"`
	Message string `json:"message"`
}

func (e *errorBody) Error() string {
	if e.Message == "" {
		return e.ErrStr
	}
	return fmt.Sprintf("%s: %s", e.ErrStr, e.Message)
}

func (c *HTTPClient) getClient() *http.Client {
	if c.Client == nil {
		return util.RobustHTTPClient()
	}
	return c.Client
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, bodyobj, out any) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return &ModerationAPIError{Op: op, Err: err}
		}
	}

	var body io.Reader
	if bodyobj != nil {
		b, err := json.Marshal(bodyobj)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Host+"/api/v1/"+path, body)
	if err != nil {
		return err
	}
	if bodyobj != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.getClient().Do(req)
	if err != nil {
		return &ModerationAPIError{Op: op, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err != nil || eb.ErrStr == "" {
			eb = errorBody{ErrStr: http.StatusText(resp.StatusCode)}
		}
		var wrapped error = &eb
		if resp.StatusCode == http.StatusNotFound {
			wrapped = fmt.Errorf("%w: %w", ErrNotFound, &eb)
		}
		return &ModerationAPIError{Op: op, StatusCode: resp.StatusCode, Err: wrapped}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &ModerationAPIError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
		}
	}
	return nil
}

func (c *HTTPClient) Ban(ctx context.Context, req BanRequest) error {
	if req.Permanent {
		req.Days = 0
	}
	req.Reason = TruncateGraphemes(req.Reason, MaxBanReasonLength)
	return c.do(ctx, OpBan, http.MethodPost, "bans", req, nil)
}

func (c *HTTPClient) Remove(ctx context.Context, contentID string, spam bool) error {
	body := map[string]any{"id": contentID, "spam": spam}
	return c.do(ctx, OpRemove, http.MethodPost, "content/remove", body, nil)
}

func (c *HTTPClient) Approve(ctx context.Context, contentID string) error {
	body := map[string]any{"id": contentID}
	return c.do(ctx, OpApprove, http.MethodPost, "content/approve", body, nil)
}

func (c *HTTPClient) Reply(ctx context.Context, contentID, text string, sticky bool) (string, error) {
	body := map[string]any{"parentId": contentID, "text": text, "sticky": sticky}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, OpReply, http.MethodPost, "content/reply", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *HTTPClient) Lock(ctx context.Context, contentID string) error {
	body := map[string]any{"id": contentID}
	return c.do(ctx, OpLock, http.MethodPost, "content/lock", body, nil)
}

func (c *HTTPClient) GetContent(ctx context.Context, contentID string) (*Content, error) {
	var out Content
	if err := c.do(ctx, OpGetContent, http.MethodGet, "content/"+url.PathEscape(contentID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetUser(ctx context.Context, username string) (*UserInfo, error) {
	var out UserInfo
	if err := c.do(ctx, OpGetUser, http.MethodGet, "users/"+url.PathEscape(username), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) AddModNote(ctx context.Context, note ModNote) error {
	note.Note = TruncateGraphemes(note.Note, MaxModNoteLength)
	return c.do(ctx, OpModNote, http.MethodPost, "modnotes", note, nil)
}
