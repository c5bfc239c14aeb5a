package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/puyokura/foodfortalk/model"
)

type fakeChat struct {
	online    []model.PresenceEntry
	kicked    []uint
	notices   []string
	forgotten []uint
}

func (f *fakeChat) Kick(userID uint) bool {
	for _, u := range f.online {
		if u.UserID == userID {
			f.kicked = append(f.kicked, userID)
			return true
		}
	}
	return false
}

func (f *fakeChat) BroadcastSystem(_ context.Context, text string) error {
	f.notices = append(f.notices, text)
	return nil
}

func (f *fakeChat) OnlineUsers() []model.PresenceEntry { return f.online }
func (f *fakeChat) ForgetName(userID uint)             { f.forgotten = append(f.forgotten, userID) }

type fakeUsers struct {
	created   []string
	nicknames map[uint]string
}

func (f *fakeUsers) Create(_ context.Context, email, firstName, nickname, hash string) (*model.Identity, error) {
	if hash == "" {
		return nil, errors.New("no hash")
	}
	f.created = append(f.created, email)
	return &model.Identity{UserID: uint(len(f.created)), FirstName: firstName, Nickname: nickname}, nil
}

func (f *fakeUsers) SetNickname(_ context.Context, id uint, nickname string) error {
	if id == 404 {
		return model.ErrUserNotFound
	}
	f.nicknames[id] = nickname
	return nil
}

type fakeBans struct {
	banned map[uint]bool
}

func (f *fakeBans) Ban(id uint) error   { f.banned[id] = true; return nil }
func (f *fakeBans) Unban(id uint) error { delete(f.banned, id); return nil }

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "hashed:" + p, nil }

func newTestConsole() (*console, *fakeChat, *fakeUsers, *fakeBans, *bytes.Buffer) {
	chat := &fakeChat{online: []model.PresenceEntry{{UserID: 1, DisplayName: "Amy"}, {UserID: 2, DisplayName: "B***"}}}
	users := &fakeUsers{nicknames: map[uint]string{}}
	bans := &fakeBans{banned: map[uint]bool{}}
	out := &bytes.Buffer{}
	return &console{chat: chat, users: users, bans: bans, hasher: plainHasher{}, out: out}, chat, users, bans, out
}

func TestConsole_Commands(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"help", "Available commands"},
		{"online", "2 online"},
		{"kick 2", "User kicked."},
		{"kick 9", "User not online."},
		{"kick abc", "Invalid user id: abc"},
		{"kick", "Usage: kick <userId>"},
		{"ban 2", "User banned."},
		{"unban 2", "User unbanned."},
		{"broadcast doors close at 10", "Broadcast sent."},
		{"broadcast", "Usage: broadcast <message>"},
		{"adduser eve@example.com pw Eve", "Created user 1 (E***)."},
		{"adduser eve@example.com", "Usage: adduser"},
		{"nick 1 Amy2", "Nickname updated."},
		{"nick 404 x", "Error setting nickname: user not found"},
		{"dance", "Unknown command."},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			c, _, _, _, out := newTestConsole()
			stop := c.exec(context.Background(), tt.line)
			assert.False(t, stop)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestConsole_SideEffects(t *testing.T) {
	c, chat, users, bans, _ := newTestConsole()
	ctx := context.Background()

	c.exec(ctx, "ban 2")
	assert.True(t, bans.banned[2])
	assert.Equal(t, []uint{2}, chat.kicked)

	c.exec(ctx, "broadcast hello   all")
	assert.Equal(t, []string{"[Admin] hello all"}, chat.notices)

	c.exec(ctx, "nick 1 The Amy")
	assert.Equal(t, "The Amy", users.nicknames[1])
	assert.Equal(t, []uint{1}, chat.forgotten)

	c.exec(ctx, "nick 1")
	assert.Equal(t, "", users.nicknames[1])
}

func TestConsole_RunStopsOnStop(t *testing.T) {
	c, chat, _, _, out := newTestConsole()

	c.run(context.Background(), strings.NewReader("kick 1\nstop\nkick 2\n"))

	assert.Equal(t, []uint{1}, chat.kicked)
	assert.Contains(t, out.String(), "Stopping server...")
}
