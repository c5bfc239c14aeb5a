package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// FrameType is the "type" discriminator carried by every websocket frame.
type FrameType string

// Client to server.
const (
	FrameJoin               FrameType = "join"
	FramePublicMessage      FrameType = "public_message"
	FrameSendMessage        FrameType = "send_message" // legacy alias of public_message
	FramePrivateMessage     FrameType = "private_message"
	FrameSendPrivateMessage FrameType = "send_private_message" // legacy alias of private_message
	FrameLeave              FrameType = "leave"
)

// Server to client. public_message and private_message are shared with the inbound set.
const (
	FrameWelcome        FrameType = "welcome"
	FrameSession        FrameType = "session"
	FramePresenceList   FrameType = "presence_list"
	FramePresenceJoined FrameType = "presence_joined"
	FramePresenceLeft   FrameType = "presence_left"
	FrameHistory        FrameType = "history"
	FrameSystem         FrameType = "system"
)

var (
	ErrUnknownFrame = errors.New("unknown frame type")
	ErrMissingType  = errors.New("frame has no type")
)

// UserRef is a user id that decodes from either a JSON number or a numeric string.
type UserRef uint

func (r *UserRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*r = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*r = 0
			return nil
		}
		b = []byte(s)
	}
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", b, err)
	}
	*r = UserRef(n)
	return nil
}

// Inbound is a decoded client frame: one of JoinRequest, PublicRequest, PrivateRequest
// or LeaveRequest.
type Inbound interface {
	inbound()
}

type JoinRequest struct{}

type PublicRequest struct {
	Content string
}

type PrivateRequest struct {
	RecipientID uint
	Content     string
}

type LeaveRequest struct{}

func (JoinRequest) inbound()    {}
func (PublicRequest) inbound()  {}
func (PrivateRequest) inbound() {}
func (LeaveRequest) inbound()   {}

type inboundEnvelope struct {
	Type        FrameType `json:"type"`
	Content     string    `json:"content,omitempty"`
	RecipientID UserRef   `json:"recipientId,omitempty"`
}

// DecodeInbound parses a client frame into its variant.
func DecodeInbound(data []byte) (Inbound, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	switch env.Type {
	case "":
		return nil, ErrMissingType
	case FrameJoin:
		return JoinRequest{}, nil
	case FramePublicMessage, FrameSendMessage:
		return PublicRequest{Content: env.Content}, nil
	case FramePrivateMessage, FrameSendPrivateMessage:
		return PrivateRequest{RecipientID: uint(env.RecipientID), Content: env.Content}, nil
	case FrameLeave:
		return LeaveRequest{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, env.Type)
	}
}

// EncodeInbound is used by clients to build frames for the server.
func EncodeInbound(in Inbound) ([]byte, error) {
	var env inboundEnvelope
	switch v := in.(type) {
	case JoinRequest:
		env.Type = FrameJoin
	case PublicRequest:
		env = inboundEnvelope{Type: FramePublicMessage, Content: v.Content}
	case PrivateRequest:
		env = inboundEnvelope{Type: FramePrivateMessage, Content: v.Content, RecipientID: UserRef(v.RecipientID)}
	case LeaveRequest:
		env.Type = FrameLeave
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownFrame, in)
	}
	return json.Marshal(env)
}

// MessageView is a persisted message as clients see it.
type MessageView struct {
	ID             uint        `json:"id"`
	SenderID       uint        `json:"senderId"`
	DisplayName    string      `json:"displayName"`
	RecipientID    *uint       `json:"recipientId,omitempty"`
	ConversationID *string     `json:"conversationId,omitempty"`
	Content        string      `json:"content"`
	MessageType    MessageType `json:"messageType"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// NewMessageView pairs a stored message with its sender's display name.
func NewMessageView(m Message, displayName string) MessageView {
	return MessageView{
		ID:             m.ID,
		SenderID:       m.SenderID,
		DisplayName:    displayName,
		RecipientID:    m.RecipientID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		MessageType:    m.MessageType,
		CreatedAt:      m.CreatedAt,
	}
}

// Outbound is a server frame. Kind reports its discriminator.
type Outbound interface {
	Kind() FrameType
}

type Welcome struct {
	Type    FrameType `json:"type"`
	Message string    `json:"message"`
}

type Session struct {
	Type        FrameType `json:"type"`
	UserID      uint      `json:"userId"`
	DisplayName string    `json:"displayName"`
}

type PresenceList struct {
	Type  FrameType       `json:"type"`
	Users []PresenceEntry `json:"users"`
}

type PresenceJoined struct {
	Type        FrameType `json:"type"`
	UserID      uint      `json:"userId"`
	DisplayName string    `json:"displayName"`
}

type PresenceLeft struct {
	Type   FrameType `json:"type"`
	UserID uint      `json:"userId"`
}

type History struct {
	Type     FrameType     `json:"type"`
	Messages []MessageView `json:"messages"`
}

// ChatFrame carries a public, private or system message.
type ChatFrame struct {
	Type FrameType `json:"type"`
	MessageView
}

func (f Welcome) Kind() FrameType        { return f.Type }
func (f Session) Kind() FrameType        { return f.Type }
func (f PresenceList) Kind() FrameType   { return f.Type }
func (f PresenceJoined) Kind() FrameType { return f.Type }
func (f PresenceLeft) Kind() FrameType   { return f.Type }
func (f History) Kind() FrameType        { return f.Type }
func (f ChatFrame) Kind() FrameType      { return f.Type }

func NewWelcome(text string) Welcome {
	return Welcome{Type: FrameWelcome, Message: text}
}

func NewSession(userID uint, displayName string) Session {
	return Session{Type: FrameSession, UserID: userID, DisplayName: displayName}
}

func NewPresenceList(users []PresenceEntry) PresenceList {
	if users == nil {
		users = []PresenceEntry{}
	}
	return PresenceList{Type: FramePresenceList, Users: users}
}

func NewPresenceJoined(userID uint, displayName string) PresenceJoined {
	return PresenceJoined{Type: FramePresenceJoined, UserID: userID, DisplayName: displayName}
}

func NewPresenceLeft(userID uint) PresenceLeft {
	return PresenceLeft{Type: FramePresenceLeft, UserID: userID}
}

func NewHistory(messages []MessageView) History {
	if messages == nil {
		messages = []MessageView{}
	}
	return History{Type: FrameHistory, Messages: messages}
}

// NewChatFrame picks the frame type from the message type.
func NewChatFrame(v MessageView) ChatFrame {
	t := FramePublicMessage
	switch v.MessageType {
	case MessagePrivate:
		t = FramePrivateMessage
	case MessageSystem:
		t = FrameSystem
	}
	return ChatFrame{Type: t, MessageView: v}
}

// DecodeOutbound parses a server frame into its variant.
func DecodeOutbound(data []byte) (Outbound, error) {
	var head struct {
		Type FrameType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	var out Outbound
	var err error
	switch head.Type {
	case "":
		return nil, ErrMissingType
	case FrameWelcome:
		var f Welcome
		err = json.Unmarshal(data, &f)
		out = f
	case FrameSession:
		var f Session
		err = json.Unmarshal(data, &f)
		out = f
	case FramePresenceList:
		var f PresenceList
		err = json.Unmarshal(data, &f)
		out = f
	case FramePresenceJoined:
		var f PresenceJoined
		err = json.Unmarshal(data, &f)
		out = f
	case FramePresenceLeft:
		var f PresenceLeft
		err = json.Unmarshal(data, &f)
		out = f
	case FrameHistory:
		var f History
		err = json.Unmarshal(data, &f)
		out = f
	case FramePublicMessage, FramePrivateMessage, FrameSystem:
		var f ChatFrame
		err = json.Unmarshal(data, &f)
		out = f
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
	}
	return out, nil
}
