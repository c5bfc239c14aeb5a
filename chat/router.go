package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/puyokura/foodfortalk/model"
)

const maxContentLength = 5000

// HandleFrame routes one inbound frame from conn. Failures are logged and never
// reach the connection.
func (s *Server) HandleFrame(ctx context.Context, conn Conn, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while handling frame", "conn", conn.ID(), "panic", r)
		}
	}()

	sess, ok := s.registry.SessionOf(conn)
	if !ok {
		s.logger.Debug("frame from connection that is not admitted", "conn", conn.ID())
		return
	}

	in, err := model.DecodeInbound(data)
	if err != nil {
		s.logger.Warn("dropping frame", "userId", sess.UserID, "error", err)
		return
	}

	switch req := in.(type) {
	case model.JoinRequest:
		s.resync(ctx, sess)
	case model.PublicRequest:
		s.sendPublic(ctx, sess, req.Content)
	case model.PrivateRequest:
		s.sendPrivate(ctx, sess, req)
	case model.LeaveRequest:
		s.Disconnect(conn)
	}
}

func normalizeContent(text string) (string, bool) {
	content := strings.TrimSpace(text)
	if content == "" || utf8.RuneCountInString(content) > maxContentLength {
		return "", false
	}
	return content, true
}

func (s *Server) sendPublic(ctx context.Context, sess *Session, text string) {
	content, ok := normalizeContent(text)
	if !ok {
		return
	}

	s.routeMu.Lock()
	defer s.routeMu.Unlock()

	msg, err := s.persist(ctx, model.NewMessage{
		SenderID:    sess.UserID,
		Content:     content,
		MessageType: model.MessagePublic,
	})
	if err != nil {
		s.logger.Error("failed to save public message", "userId", sess.UserID, "error", err)
		return
	}
	s.broadcast(model.NewChatFrame(model.NewMessageView(*msg, sess.DisplayName)), nil)
}

func (s *Server) sendPrivate(ctx context.Context, sess *Session, req model.PrivateRequest) {
	if req.RecipientID == 0 || req.RecipientID == sess.UserID {
		s.logger.Debug("dropping private message without a valid recipient", "userId", sess.UserID, "recipientId", req.RecipientID)
		return
	}
	content, ok := normalizeContent(req.Content)
	if !ok {
		return
	}

	recipientID := req.RecipientID
	conversationID := model.ConversationID(sess.UserID, recipientID)

	s.routeMu.Lock()
	defer s.routeMu.Unlock()

	msg, err := s.persist(ctx, model.NewMessage{
		SenderID:       sess.UserID,
		RecipientID:    &recipientID,
		Content:        content,
		MessageType:    model.MessagePrivate,
		ConversationID: &conversationID,
	})
	if err != nil {
		s.logger.Error("failed to save private message", "userId", sess.UserID, "recipientId", recipientID, "error", err)
		return
	}

	data, err := encode(model.NewChatFrame(model.NewMessageView(*msg, sess.DisplayName)))
	if err != nil {
		s.logger.Error("failed to encode private message", "error", err)
		return
	}
	if recipient, online := s.registry.Find(recipientID); online {
		s.deliver(recipient.Conn, data)
	}
	s.deliver(sess.Conn, data)

	s.announce(ctx, sess, recipientID, conversationID)
}

// announce tells everyone the first time a conversation is used. The id is marked
// before anything is sent, so a failure later on never leads to a second notice.
func (s *Server) announce(ctx context.Context, sess *Session, recipientID uint, conversationID string) {
	markCtx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	first, err := s.announcer.MarkAnnounced(markCtx, conversationID)
	cancel()
	if err != nil {
		s.logger.Warn("failed to record conversation start", "conversationId", conversationID, "error", err)
		return
	}
	if !first {
		return
	}

	var recipientName string
	if recipient, online := s.registry.Find(recipientID); online {
		recipientName = recipient.DisplayName
	} else {
		recipientName = s.names.displayName(ctx, recipientID)
	}
	text := fmt.Sprintf("%s and %s started a private chat", sess.DisplayName, recipientName)

	msg, err := s.persist(ctx, model.NewMessage{Content: text, MessageType: model.MessageSystem})
	if err != nil {
		s.logger.Error("failed to save conversation notice", "conversationId", conversationID, "error", err)
		return
	}
	s.broadcast(model.NewChatFrame(model.NewMessageView(*msg, systemName)), nil)
}

// resync answers a join frame from an already admitted connection.
func (s *Server) resync(ctx context.Context, sess *Session) {
	s.routeMu.Lock()
	defer s.routeMu.Unlock()

	s.send(sess.Conn, model.NewSession(sess.UserID, sess.DisplayName))
	s.send(sess.Conn, model.NewPresenceList(s.registry.ListOnline()))
	s.sendHistory(ctx, sess.Conn)
}
