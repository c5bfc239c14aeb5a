package store

import (
	"time"

	"github.com/puyokura/foodfortalk/model"
)

// MessageRow is the persisted form of a chat message.
type MessageRow struct {
	ID             uint      `gorm:"primaryKey"`
	SenderID       uint      `gorm:"index;not null"`
	RecipientID    *uint     `gorm:"index"`
	Content        string    `gorm:"type:text;not null"`
	MessageType    string    `gorm:"size:16;index;not null"`
	ConversationID *string   `gorm:"size:64;index"`
	CreatedAt      time.Time `gorm:"index"`
}

func (MessageRow) TableName() string {
	return "food_for_talk_messages"
}

func (r MessageRow) toModel() model.Message {
	return model.Message{
		ID:             r.ID,
		SenderID:       r.SenderID,
		RecipientID:    r.RecipientID,
		Content:        r.Content,
		MessageType:    model.MessageType(r.MessageType),
		ConversationID: r.ConversationID,
		CreatedAt:      r.CreatedAt,
	}
}

// UserRow is the slice of the platform's users table the chat reads.
type UserRow struct {
	ID           uint      `gorm:"primaryKey"`
	Email        string    `gorm:"size:190;uniqueIndex;not null"`
	FirstName    string    `gorm:"size:120;not null"`
	Nickname     string    `gorm:"size:60"`
	PasswordHash string    `gorm:"size:255;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (UserRow) TableName() string {
	return "users"
}

func (u UserRow) toIdentity() model.Identity {
	return model.Identity{
		UserID:    u.ID,
		FirstName: u.FirstName,
		Nickname:  u.Nickname,
		Email:     u.Email,
	}
}
