// Package chat runs the Food for Talk websocket chat: authentication at connect,
// presence, public and private routing, history replay and conversation announcements.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/puyokura/foodfortalk/model"
)

const (
	DefaultHistoryLimit   = 50
	DefaultPersistTimeout = 5 * time.Second
	DefaultSendBuffer     = 256
	DefaultWelcome        = "Welcome to Food for Talk!"
)

// TokenVerifier checks a chat session token.
type TokenVerifier interface {
	Verify(token string) (*model.Claims, error)
}

// Directory resolves user ids to identities. Unknown ids return model.ErrUserNotFound.
type Directory interface {
	GetUserByID(ctx context.Context, id uint) (*model.Identity, error)
}

// MessageStore persists messages and serves the public history.
type MessageStore interface {
	CreateMessage(ctx context.Context, m model.NewMessage) (*model.Message, error)
	ListRecentPublic(ctx context.Context, limit int) ([]model.Message, error)
}

type Config struct {
	HistoryLimit   int
	PersistTimeout time.Duration
	WelcomeMessage string
	// AllowedOrigins restricts browser origins. Empty allows every origin.
	AllowedOrigins []string
	SendBuffer     int
}

func (c *Config) setDefaults() {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = DefaultPersistTimeout
	}
	if c.WelcomeMessage == "" {
		c.WelcomeMessage = DefaultWelcome
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
}

type Deps struct {
	Verifier  TokenVerifier
	Directory Directory
	Store     MessageStore
	Announcer Announcer // defaults to a MemoryAnnouncer
	Logger    *slog.Logger
	IsBanned  func(userID uint) bool
}

// Server owns the presence registry and routes frames between connections.
type Server struct {
	cfg       Config
	verifier  TokenVerifier
	dir       Directory
	store     MessageStore
	announcer Announcer
	logger    *slog.Logger
	isBanned  func(uint) bool

	registry *Registry
	names    *nameResolver
	upgrader websocket.Upgrader

	// routeMu serializes every persist and fan-out so all clients observe one order.
	routeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Verifier == nil || deps.Directory == nil || deps.Store == nil {
		return nil, errors.New("chat: verifier, directory and store are required")
	}
	cfg.setDefaults()
	if deps.Announcer == nil {
		deps.Announcer = NewMemoryAnnouncer()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.IsBanned == nil {
		deps.IsBanned = func(uint) bool { return false }
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		verifier:  deps.Verifier,
		dir:       deps.Directory,
		store:     deps.Store,
		announcer: deps.Announcer,
		logger:    deps.Logger,
		isBanned:  deps.IsBanned,
		registry:  NewRegistry(),
		names:     newNameResolver(deps.Directory),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients do not send one.
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeWS authenticates the request, upgrades it and admits the connection.
// Rejections are plain HTTP responses sent before any upgrade.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	identity, fromDirectory, status := s.authenticate(r)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "userId", identity.UserID, "error", err)
		return
	}

	client := newClient(uuid.NewString(), conn, s.cfg.SendBuffer, s.logger)
	go client.writePump()

	s.admit(s.ctx, client, *identity, fromDirectory)
	go client.readPump(
		func(data []byte) { s.HandleFrame(s.ctx, client, data) },
		func() { s.Disconnect(client) },
	)
}

// authenticate reports whether the identity came from the directory or, when the
// lookup failed, from the token claims.
func (s *Server) authenticate(r *http.Request) (*model.Identity, bool, int) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return nil, false, http.StatusUnauthorized
	}

	claims, err := s.verifier.Verify(token)
	if err != nil {
		s.logger.Info("rejected chat token", "remote", r.RemoteAddr, "error", err)
		return nil, false, http.StatusUnauthorized
	}

	fromDirectory := true
	identity, err := s.dir.GetUserByID(r.Context(), claims.UserID)
	switch {
	case errors.Is(err, model.ErrUserNotFound):
		s.logger.Info("token for unknown user", "userId", claims.UserID)
		return nil, false, http.StatusUnauthorized
	case err != nil:
		s.logger.Warn("user lookup failed, using token claims", "userId", claims.UserID, "error", err)
		identity = &model.Identity{UserID: claims.UserID, Nickname: claims.Nickname, Email: claims.Email}
		fromDirectory = false
	}

	if s.isBanned(identity.UserID) {
		s.logger.Info("banned user tried to connect", "userId", identity.UserID)
		return nil, false, http.StatusForbidden
	}
	return identity, fromDirectory, http.StatusOK
}

// Admit registers conn for identity, greets it and replays history. A previous
// connection of the same user is replaced and closed.
func (s *Server) Admit(ctx context.Context, conn Conn, identity model.Identity) *Session {
	return s.admit(ctx, conn, identity, true)
}

// admit caches the session's display name only when cacheName is set. Names built
// from token claims stay out of the cache.
func (s *Server) admit(ctx context.Context, conn Conn, identity model.Identity, cacheName bool) *Session {
	sess := &Session{
		Conn:        conn,
		UserID:      identity.UserID,
		DisplayName: model.DisplayName(identity),
		ConnectedAt: time.Now(),
	}

	s.routeMu.Lock()
	defer s.routeMu.Unlock()

	prev := s.registry.Admit(sess)
	if cacheName {
		s.names.remember(sess.UserID, sess.DisplayName)
	}
	if prev != nil {
		s.logger.Info("replacing connection", "userId", sess.UserID, "oldConn", prev.Conn.ID(), "newConn", conn.ID())
		prev.Conn.Close()
	} else {
		s.logger.Info("user joined", "userId", sess.UserID, "conn", conn.ID(), "online", s.registry.Count())
	}

	s.send(conn, model.NewWelcome(s.cfg.WelcomeMessage))
	s.send(conn, model.NewSession(sess.UserID, sess.DisplayName))
	s.send(conn, model.NewPresenceList(s.registry.ListOnline()))
	if prev == nil {
		s.broadcast(model.NewPresenceJoined(sess.UserID, sess.DisplayName), conn)
	}
	s.sendHistory(ctx, conn)
	return sess
}

// Disconnect removes conn and tells everyone else. Calls for replaced or already
// removed connections do nothing.
func (s *Server) Disconnect(conn Conn) {
	s.routeMu.Lock()
	defer s.routeMu.Unlock()

	sess, ok := s.registry.Remove(conn)
	conn.Close()
	if !ok {
		return
	}
	s.names.forget(sess.UserID)
	s.logger.Info("user left", "userId", sess.UserID, "conn", conn.ID(), "online", s.registry.Count())
	s.broadcast(model.NewPresenceLeft(sess.UserID), nil)
}

// Kick disconnects the live session of userID.
func (s *Server) Kick(userID uint) bool {
	sess, ok := s.registry.Find(userID)
	if !ok {
		return false
	}
	s.Disconnect(sess.Conn)
	return true
}

// BroadcastSystem persists an operator notice and sends it to everyone.
func (s *Server) BroadcastSystem(ctx context.Context, text string) error {
	content, ok := normalizeContent(text)
	if !ok {
		return errors.New("empty or oversized notice")
	}

	s.routeMu.Lock()
	defer s.routeMu.Unlock()

	msg, err := s.persist(ctx, model.NewMessage{Content: content, MessageType: model.MessageSystem})
	if err != nil {
		return err
	}
	s.broadcast(model.NewChatFrame(model.NewMessageView(*msg, systemName)), nil)
	return nil
}

// ForgetName drops the cached display name of userID, e.g. after a nickname change.
// Live sessions keep the name they connected with; their cached name is dropped
// when they leave.
func (s *Server) ForgetName(userID uint) {
	if _, online := s.registry.Find(userID); online {
		return
	}
	s.names.forget(userID)
}

func (s *Server) OnlineUsers() []model.PresenceEntry { return s.registry.ListOnline() }

func (s *Server) Count() int { return s.registry.Count() }

// Shutdown refuses new connections and closes every live one.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	for _, sess := range s.registry.Sessions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		sess.Conn.Close()
	}
	return nil
}

func (s *Server) sendHistory(ctx context.Context, conn Conn) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()

	messages, err := s.store.ListRecentPublic(ctx, s.cfg.HistoryLimit)
	if err != nil {
		s.logger.Error("failed to load history", "conn", conn.ID(), "error", err)
		return
	}

	views := make([]model.MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, model.NewMessageView(m, s.names.displayName(ctx, m.SenderID)))
	}
	s.send(conn, model.NewHistory(views))
}

func (s *Server) persist(ctx context.Context, m model.NewMessage) (*model.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()
	return s.store.CreateMessage(ctx, m)
}

func encode(frame model.Outbound) ([]byte, error) {
	return json.Marshal(frame)
}

// send queues one frame. A connection that cannot take it is closed; its read loop
// then removes it from the registry.
func (s *Server) send(conn Conn, frame model.Outbound) {
	data, err := encode(frame)
	if err != nil {
		s.logger.Error("failed to encode frame", "type", frame.Kind(), "error", err)
		return
	}
	s.deliver(conn, data)
}

func (s *Server) deliver(conn Conn, data []byte) {
	if err := conn.Send(data); err != nil {
		if !errors.Is(err, ErrConnClosed) {
			s.logger.Warn("dropping connection", "conn", conn.ID(), "error", err)
		}
		conn.Close()
	}
}

// broadcast sends frame to every admitted connection except skip.
func (s *Server) broadcast(frame model.Outbound, skip Conn) {
	data, err := encode(frame)
	if err != nil {
		s.logger.Error("failed to encode frame", "type", frame.Kind(), "error", err)
		return
	}
	for _, sess := range s.registry.Sessions() {
		if skip != nil && sess.Conn.ID() == skip.ID() {
			continue
		}
		s.deliver(sess.Conn, data)
	}
}
