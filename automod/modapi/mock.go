package modapi

import (
	"context"
	"fmt"
	"sync"
)

type MockReply struct {
	ID       string
	ParentID string
	Text     string
	Sticky   bool
}

// In-memory Client for tests and dry runs. Records every mutating call; individual operations can be made to fail by setting Failures[op]. Safe for concurrent use.
type MockClient struct {
	mu sync.Mutex

	Bans     []BanRequest
	Removed  []string
	Approved []string
	Replies  []MockReply
	Locked   []string
	Notes    []ModNote

	Contents map[string]*Content
	Users    map[string]*UserInfo
	// keyed by Op* constant
	Failures map[string]error

	nextReply int
}

var _ Client = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{
		Contents: make(map[string]*Content),
		Users:    make(map[string]*UserInfo),
		Failures: make(map[string]error),
	}
}

func (m *MockClient) SetFailure(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.Failures, op)
		return
	}
	m.Failures[op] = err
}

func (m *MockClient) AddContent(c Content) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Contents[c.ID] = &c
}

func (m *MockClient) AddUser(u UserInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[u.Username] = &u
}

// must be called with lock held
func (m *MockClient) fail(op string) error {
	if err, ok := m.Failures[op]; ok {
		return &ModerationAPIError{Op: op, Err: err}
	}
	return nil
}

func (m *MockClient) Ban(ctx context.Context, req BanRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(OpBan); err != nil {
		return err
	}
	m.Bans = append(m.Bans, req)
	return nil
}

func (m *MockClient) Remove(ctx context.Context, contentID string, spam bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(OpRemove); err != nil {
		return err
	}
	m.Removed = append(m.Removed, contentID)
	if c, ok := m.Contents[contentID]; ok {
		c.Removed = true
		c.Spam = spam
	}
	return nil
}

func (m *MockClient) Approve(ctx context.Context, contentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(OpApprove); err != nil {
		return err
	}
	m.Approved = append(m.Approved, contentID)
	if c, ok := m.Contents[contentID]; ok {
		c.Removed = false
		c.Spam = false
	}
	return nil
}

func (m *MockClient) Reply(ctx context.Context, contentID, text string, sticky bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(OpReply); err != nil {
		return "", err
	}
	m.nextReply++
	id := fmt.Sprintf("t1_mock%d", m.nextReply)
	m.Replies = append(m.Replies, MockReply{ID: id, ParentID: contentID, Text: text, Sticky: sticky})
	return id, nil
}

func (m *MockClient) Lock(ctx context.Context, contentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(OpLock); err != nil {
		return err
	}
	m.Locked = append(m.Locked, contentID)
	return nil
}

func (m *MockClient) GetContent(ctx context.Context, contentID string) (*Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(OpGetContent); err != nil {
		return nil, err
	}
	c, ok := m.Contents[contentID]
	if !ok {
		return nil, &ModerationAPIError{Op: OpGetContent, StatusCode: 404, Err: ErrNotFound}
	}
	out := *c
	return &out, nil
}

func (m *MockClient) GetUser(ctx context.Context, username string) (*UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(OpGetUser); err != nil {
		return nil, err
	}
	u, ok := m.Users[username]
	if !ok {
		return nil, &ModerationAPIError{Op: OpGetUser, StatusCode: 404, Err: ErrNotFound}
	}
	out := *u
	return &out, nil
}

func (m *MockClient) AddModNote(ctx context.Context, note ModNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(OpModNote); err != nil {
		return err
	}
	m.Notes = append(m.Notes, note)
	return nil
}

// Snapshot accessors, for assertions while other goroutines may still be calling the mock.

func (m *MockClient) BanCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Bans)
}

func (m *MockClient) ApproveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Approved)
}

func (m *MockClient) ReplyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Replies)
}
