// Package auth issues and verifies chat session tokens.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/puyokura/foodfortalk/model"
)

// ChatSessionType is the token type the chat gateway accepts.
const ChatSessionType = "food_for_talk_chat"

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrWrongTokenType = errors.New("token is not a chat session token")
)

// Config holds token settings.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// sessionClaims is the JWT body. userId is a number for compatibility with the web app.
type sessionClaims struct {
	UserID   uint   `json:"userId"`
	Email    string `json:"email,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 chat tokens.
type Manager struct {
	config Config
}

func NewManager(config Config) (*Manager, error) {
	if config.Secret == "" {
		return nil, errors.New("auth: empty token secret")
	}
	if config.TTL <= 0 {
		config.TTL = 12 * time.Hour
	}
	return &Manager{config: config}, nil
}

// IssueChatToken returns a chat session token for the given user.
func (m *Manager) IssueChatToken(id model.Identity) (string, error) {
	return m.issue(id, ChatSessionType, m.config.TTL)
}

func (m *Manager) issue(id model.Identity, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		UserID:   id.UserID,
		Email:    id.Email,
		Nickname: id.Nickname,
		Type:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   strconv.FormatUint(uint64(id.UserID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and token type and returns the identity claims.
func (m *Manager) Verify(tokenString string) (*model.Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(*jwt.Token) (any, error) {
		return []byte(m.config.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	if claims.Type != ChatSessionType {
		return nil, ErrWrongTokenType
	}

	return &model.Claims{
		UserID:   claims.UserID,
		Email:    claims.Email,
		Nickname: claims.Nickname,
		Type:     claims.Type,
	}, nil
}
