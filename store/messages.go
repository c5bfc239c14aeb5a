package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/puyokura/foodfortalk/model"
)

var ErrInvalidMessage = errors.New("invalid message")

// MessageRepository stores chat messages. Rows are append-only.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateMessage inserts a message and returns it with its id and timestamp.
func (r *MessageRepository) CreateMessage(ctx context.Context, m model.NewMessage) (*model.Message, error) {
	if err := validate(m); err != nil {
		return nil, err
	}

	row := MessageRow{
		SenderID:       m.SenderID,
		RecipientID:    m.RecipientID,
		Content:        m.Content,
		MessageType:    string(m.MessageType),
		ConversationID: m.ConversationID,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	out := row.toModel()
	return &out, nil
}

// ListRecentPublic returns up to limit public messages, oldest first.
func (r *MessageRepository) ListRecentPublic(ctx context.Context, limit int) ([]model.Message, error) {
	var rows []MessageRow
	err := r.db.WithContext(ctx).
		Where("message_type = ?", string(model.MessagePublic)).
		Order("created_at desc").Order("id desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list public messages: %w", err)
	}
	return toModelsAscending(rows), nil
}

// ListConversation returns up to limit messages of one private conversation, oldest first.
func (r *MessageRepository) ListConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	var rows []MessageRow
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at desc").Order("id desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation: %w", err)
	}
	return toModelsAscending(rows), nil
}

// rows arrive newest first
func toModelsAscending(rows []MessageRow) []model.Message {
	out := make([]model.Message, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row.toModel()
	}
	return out
}

func validate(m model.NewMessage) error {
	// operator broadcasts are system messages without a sender
	if m.SenderID == 0 && m.MessageType != model.MessageSystem {
		return fmt.Errorf("%w: missing sender", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidMessage)
	}
	switch m.MessageType {
	case model.MessagePublic, model.MessageSystem:
		if m.RecipientID != nil || m.ConversationID != nil {
			return fmt.Errorf("%w: %s message with recipient", ErrInvalidMessage, m.MessageType)
		}
	case model.MessagePrivate:
		if m.RecipientID == nil || m.ConversationID == nil {
			return fmt.Errorf("%w: private message without recipient", ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.MessageType)
	}
	return nil
}
