package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/puyokura/foodfortalk/model"
)

type mockConn struct {
	id       string
	received [][]byte
	closed   bool
	mu       sync.Mutex
	sendErr  error
}

func newMockConn(id string) *mockConn { return &mockConn{id: id} }

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = nil
}

func (m *mockConn) frames(t *testing.T) []model.Outbound {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Outbound, 0, len(m.received))
	for _, data := range m.received {
		f, err := model.DecodeOutbound(data)
		require.NoError(t, err)
		out = append(out, f)
	}
	return out
}

func (m *mockConn) kinds(t *testing.T) []model.FrameType {
	t.Helper()
	var out []model.FrameType
	for _, f := range m.frames(t) {
		out = append(out, f.Kind())
	}
	return out
}

func (m *mockConn) ofKind(t *testing.T, kind model.FrameType) []model.Outbound {
	t.Helper()
	var out []model.Outbound
	for _, f := range m.frames(t) {
		if f.Kind() == kind {
			out = append(out, f)
		}
	}
	return out
}

type fakeStore struct {
	mu        sync.Mutex
	messages  []model.Message
	createErr error
	listErr   error
	base      time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{base: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *fakeStore) CreateMessage(_ context.Context, m model.NewMessage) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	id := uint(len(s.messages) + 1)
	msg := model.Message{
		ID:             id,
		SenderID:       m.SenderID,
		RecipientID:    m.RecipientID,
		Content:        m.Content,
		MessageType:    m.MessageType,
		ConversationID: m.ConversationID,
		CreatedAt:      s.base.Add(time.Duration(id) * time.Second),
	}
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *fakeStore) ListRecentPublic(_ context.Context, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var public []model.Message
	for _, m := range s.messages {
		if m.MessageType == model.MessagePublic {
			public = append(public, m)
		}
	}
	if len(public) > limit {
		public = public[len(public)-limit:]
	}
	return public, nil
}

func (s *fakeStore) setCreateErr(err error) {
	s.mu.Lock()
	s.createErr = err
	s.mu.Unlock()
}

func (s *fakeStore) count(t model.MessageType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.MessageType == t {
			n++
		}
	}
	return n
}

type fakeDirectory struct {
	mu    sync.Mutex
	users map[uint]model.Identity
	err   error
	calls int
}

func newFakeDirectory(users ...model.Identity) *fakeDirectory {
	d := &fakeDirectory{users: make(map[uint]model.Identity)}
	for _, u := range users {
		d.users[u.UserID] = u
	}
	return d
}

func (d *fakeDirectory) GetUserByID(_ context.Context, id uint) (*model.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	u, ok := d.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return &u, nil
}

func (d *fakeDirectory) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *fakeDirectory) setNickname(id uint, nickname string) {
	d.mu.Lock()
	u := d.users[id]
	u.Nickname = nickname
	d.users[id] = u
	d.mu.Unlock()
}

type staticVerifier struct{}

func (staticVerifier) Verify(string) (*model.Claims, error) {
	return nil, errors.New("not used")
}

var (
	amy   = model.Identity{UserID: 1, FirstName: "Amy", Nickname: "Amy", Email: "amy@example.com"}
	bob   = model.Identity{UserID: 2, FirstName: "Bob", Email: "bob@example.com"}
	carol = model.Identity{UserID: 3, FirstName: "Carol", Nickname: "caz", Email: "carol@example.com"}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, store *fakeStore, dir *fakeDirectory) *Server {
	t.Helper()
	s, err := NewServer(Config{}, Deps{
		Verifier:  staticVerifier{},
		Directory: dir,
		Store:     store,
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}
