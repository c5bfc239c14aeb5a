package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/puyokura/foodfortalk/model"
)

var (
	ErrUserNotFound = model.ErrUserNotFound
	ErrUserExists   = errors.New("user already exists")
)

// UserRepository reads and registers platform users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetUserByID returns the identity for id, or ErrUserNotFound.
func (r *UserRepository) GetUserByID(ctx context.Context, id uint) (*model.Identity, error) {
	var row UserRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	identity := row.toIdentity()
	return &identity, nil
}

// FindByEmail returns the identity and password hash for a login.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.Identity, string, error) {
	var row UserRow
	err := r.db.WithContext(ctx).First(&row, "email = ?", normalizeEmail(email)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", fmt.Errorf("failed to find user: %w", err)
	}
	identity := row.toIdentity()
	return &identity, row.PasswordHash, nil
}

// Create registers a user with an already hashed password.
func (r *UserRepository) Create(ctx context.Context, email, firstName, nickname, passwordHash string) (*model.Identity, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(firstName) == "" {
		return nil, errors.New("email and first name are required")
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&UserRow{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	row := UserRow{
		Email:        email,
		FirstName:    strings.TrimSpace(firstName),
		Nickname:     nickname,
		PasswordHash: passwordHash,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	identity := row.toIdentity()
	return &identity, nil
}

// SetNickname changes the nickname shown in the chat; an empty nickname clears it.
func (r *UserRepository) SetNickname(ctx context.Context, id uint, nickname string) error {
	result := r.db.WithContext(ctx).Model(&UserRow{}).Where("id = ?", id).Update("nickname", nickname)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update nickname: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
