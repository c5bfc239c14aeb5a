package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puyokura/foodfortalk/model"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{Secret: "test-secret", Issuer: "fft-test", TTL: time.Hour})
	require.NoError(t, err)
	return m
}

func TestManager_IssueAndVerify(t *testing.T) {
	m := newTestManager(t)

	token, err := m.IssueChatToken(model.Identity{UserID: 42, Email: "amy@example.com", Nickname: "Amy"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "amy@example.com", claims.Email)
	assert.Equal(t, "Amy", claims.Nickname)
	assert.Equal(t, ChatSessionType, claims.Type)
}

func TestManager_VerifyRejects(t *testing.T) {
	m := newTestManager(t)
	other, err := NewManager(Config{Secret: "other-secret", Issuer: "fft-test"})
	require.NoError(t, err)

	expired, err := m.issue(model.Identity{UserID: 1}, ChatSessionType, -time.Minute)
	require.NoError(t, err)
	wrongType, err := m.issue(model.Identity{UserID: 1}, "access", time.Hour)
	require.NoError(t, err)
	foreign, err := other.IssueChatToken(model.Identity{UserID: 1})
	require.NoError(t, err)
	noUser, err := m.IssueChatToken(model.Identity{})
	require.NoError(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"userId": 1, "type": ChatSessionType})
	none, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "garbage", token: "not-a-token", wantErr: ErrInvalidToken},
		{name: "expired", token: expired, wantErr: ErrExpiredToken},
		{name: "wrong type", token: wrongType, wantErr: ErrWrongTokenType},
		{name: "wrong secret", token: foreign, wantErr: ErrInvalidToken},
		{name: "missing user id", token: noUser, wantErr: ErrInvalidToken},
		{name: "alg none", token: none, wantErr: ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := m.Verify(tt.token)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewManager_RequiresSecret(t *testing.T) {
	_, err := NewManager(Config{})
	assert.Error(t, err)
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasherWithCost(4)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.True(t, h.Verify("correct horse", hash))
	assert.False(t, h.Verify("battery staple", hash))
}
