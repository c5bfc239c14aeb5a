package model

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// MessageType tags a persisted chat message.
type MessageType string

const (
	MessagePublic  MessageType = "public"
	MessagePrivate MessageType = "private"
	MessageSystem  MessageType = "system"
)

// Message is a persisted chat message.
type Message struct {
	ID             uint        `json:"id"`
	SenderID       uint        `json:"senderId"`
	RecipientID    *uint       `json:"recipientId,omitempty"` // nil for public and system messages
	Content        string      `json:"content"`
	MessageType    MessageType `json:"messageType"`
	ConversationID *string     `json:"conversationId,omitempty"` // set for private messages only
	CreatedAt      time.Time   `json:"createdAt"`
}

// NewMessage is what the router hands to the store; the store assigns ID and CreatedAt.
type NewMessage struct {
	SenderID       uint
	RecipientID    *uint
	Content        string
	MessageType    MessageType
	ConversationID *string
}

// ErrUserNotFound is returned by identity lookups for unknown user ids.
var ErrUserNotFound = errors.New("user not found")

// Identity is the subset of a platform user the chat needs.
type Identity struct {
	UserID    uint   `json:"userId"`
	FirstName string `json:"-"`
	Nickname  string `json:"nickname,omitempty"`
	Email     string `json:"-"`
}

// Claims are the verified contents of a chat session token.
type Claims struct {
	UserID   uint
	Email    string
	Nickname string
	Type     string
}

// PresenceEntry is one row of the online list.
type PresenceEntry struct {
	UserID      uint   `json:"userId"`
	DisplayName string `json:"displayName"`
}

const mask = "***"

// DisplayName returns the name shown for a participant: the nickname verbatim when one is
// set, otherwise the first letter of the first name followed by a mask.
func DisplayName(id Identity) string {
	if strings.TrimSpace(id.Nickname) != "" {
		return id.Nickname
	}
	first := strings.TrimSpace(id.FirstName)
	if first == "" {
		return "Guest"
	}
	r, _ := utf8.DecodeRuneInString(first)
	return string(r) + mask
}

// ConversationID returns the key shared by both directions of a 1:1 thread.
func ConversationID(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return strconv.FormatUint(uint64(a), 10) + "_" + strconv.FormatUint(uint64(b), 10)
}
