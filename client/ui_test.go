package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puyokura/foodfortalk/model"
)

func TestChatURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8999/food-for-talk-chat?token=a+b", chatURL("localhost", "a b"))
	assert.Equal(t, "ws://example.com:80/food-for-talk-chat?token=t", chatURL("example.com:80", "t"))
}

func TestChatURL_CustomPath(t *testing.T) {
	chatPath = "/chat"
	t.Cleanup(func() { chatPath = defaultChatPath })

	assert.Equal(t, "ws://localhost:8999/chat?token=t", chatURL("localhost", "t"))
}

func TestParseColorTags(t *testing.T) {
	assert.Equal(t, "plain text", parseColorTags("plain text"))
	assert.Equal(t, "<#FF0000>oops", parseColorTags("<#FF0000>oops"))

	out := parseColorTags("a <#FF0000>red</> b")
	assert.Contains(t, out, "red")
	assert.NotContains(t, out, "<#")
	assert.True(t, strings.HasPrefix(out, "a "))
}

func TestModel_HandleFrameTracksPresence(t *testing.T) {
	m := initialModel(NewNetwork())

	m.handleFrame(model.NewSession(1, "Amy"))
	m.handleFrame(model.NewPresenceList([]model.PresenceEntry{{UserID: 1, DisplayName: "Amy"}}))
	m.handleFrame(model.NewPresenceJoined(2, "B***"))
	assert.Equal(t, map[uint]string{1: "Amy", 2: "B***"}, m.online)
	assert.Equal(t, "2 online: Amy (#1), B*** (#2)", m.whoLine())

	m.handleFrame(model.NewPresenceLeft(2))
	assert.Equal(t, map[uint]string{1: "Amy"}, m.online)
	assert.Contains(t, m.messages[len(m.messages)-1], "B*** left")
	assert.Equal(t, uint(1), m.self.UserID)
}

func TestFormatMessage(t *testing.T) {
	recipient := uint(2)
	conv := model.ConversationID(1, 2)
	created := time.Date(2026, 5, 1, 18, 30, 0, 0, time.UTC)

	public := formatMessage(model.MessageView{
		ID: 1, SenderID: 1, DisplayName: "Amy", Content: "hi", MessageType: model.MessagePublic, CreatedAt: created,
	}, 100, 2, nil)
	assert.Contains(t, public, "Amy")
	assert.Contains(t, public, "hi")
	assert.NotContains(t, public, "private")

	private := formatMessage(model.MessageView{
		ID: 2, SenderID: 1, DisplayName: "Amy", RecipientID: &recipient, ConversationID: &conv,
		Content: "psst", MessageType: model.MessagePrivate, CreatedAt: created,
	}, 100, 1, map[uint]string{2: "B***"})
	assert.Contains(t, private, "[private to B***]")
	assert.Contains(t, private, "psst")

	system := formatMessage(model.MessageView{
		ID: 3, DisplayName: "System", Content: "B*** and Amy started a private chat",
		MessageType: model.MessageSystem, CreatedAt: created,
	}, 100, 1, nil)
	assert.Contains(t, system, "started a private chat")
}

func TestModel_HandleInputValidatesCommands(t *testing.T) {
	m := initialModel(NewNetwork())

	tests := []struct {
		input string
		want  string
	}{
		{"/msg abc hi", "Invalid user id: abc"},
		{"/msg 2", "Usage: /msg <userId> <text>"},
		{"/connect onlyhost", "Usage: /connect <host> <token>"},
		{"/login host mail", "Usage: /login <host> <email> <password>"},
		{"/dance", "Unknown command: /dance"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			next, cmd := m.handleInput(tt.input)
			assert.Nil(t, cmd)
			state, ok := next.(modelState)
			require.True(t, ok)
			assert.Equal(t, tt.want, state.messages[len(state.messages)-1])
		})
	}
}

func TestNetwork_SendWithoutConnection(t *testing.T) {
	cmd := NewNetwork().Send(model.PublicRequest{Content: "hi"})
	msg := cmd()
	err, ok := msg.(errMsg)
	require.True(t, ok)
	assert.EqualError(t, err, "not connected")
}
