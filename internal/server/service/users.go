package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"jobvault/internal/server/auth"
	"jobvault/internal/server/database"

	"github.com/google/uuid"
)

var (
	ErrEmailTaken     = errors.New("email is already in use")
	ErrUnknownUser    = errors.New("user not found")
	ErrBadCredentials = errors.New("invalid credentials")
	ErrMissingField   = errors.New("email and password are required")
)

// UserRecords is the slice of the account store the vault needs.
type UserRecords interface {
	Create(ctx context.Context, u *database.User) error
	GetByEmail(ctx context.Context, email string) (*database.User, error)
}

// UserService backs the registration and login surface that issues session
// tokens.
type UserService struct {
	users UserRecords
}

func NewUserService(users UserRecords) *UserService {
	return &UserService{users: users}
}

// Register creates an account with an argon2id-hashed password.
func (s *UserService) Register(ctx context.Context, email, password string) (*database.User, error) {
	if email == "" || password == "" {
		return nil, ErrMissingField
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &database.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	slog.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and returns the account on success.
func (s *UserService) Login(ctx context.Context, email, password string) (*database.User, error) {
	if email == "" || password == "" {
		return nil, ErrMissingField
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, ErrBadCredentials
	}
	return user, nil
}
