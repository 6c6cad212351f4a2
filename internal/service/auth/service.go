package auth

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/paylite/api/internal/domain"
	"github.com/paylite/api/internal/repository"
	"github.com/paylite/api/pkg/config"
	"github.com/paylite/api/pkg/crypto"
	jwtpkg "github.com/paylite/api/pkg/jwt"
)

// Service handles signup provisioning and signin authentication.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	cfg    config.APIConfig
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, logger: logger, cfg: cfg}
}

// Signup validates input, provisions a user with its account in one atomic
// store operation, and issues a bearer token for the new identity.
func (s Service) Signup(ctx context.Context, in domain.SignupInput) (*domain.User, string, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		CreatedAt:    now,
	}
	account := &domain.Account{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Balance:   initialBalance(),
		CreatedAt: now,
	}

	if err := s.users.CreateUserWithAccount(ctx, user, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, "", domain.ErrUsernameTaken
		}
		return nil, "", fmt.Errorf("provision user: %w", err)
	}

	token, err := jwtpkg.GenerateToken(user.ID, s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info("user provisioned", "user_id", user.ID)
	return user, token, nil
}

// Signin authenticates a user by username and password and issues a token.
func (s Service) Signin(ctx context.Context, in domain.SigninInput) (*domain.User, string, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	user, err := s.users.GetUserByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", domain.ErrUserNotFound
		}
		return nil, "", fmt.Errorf("lookup user: %w", err)
	}
	if err := crypto.ComparePassword(user.PasswordHash, in.Password); err != nil {
		return nil, "", domain.ErrInvalidCredentials
	}

	token, err := jwtpkg.GenerateToken(user.ID, s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info("user signed in", "user_id", user.ID)
	return user, token, nil
}

// Authorize resolves a bearer token to a user identifier. It is pure: no
// store access, no side effects.
func (s Service) Authorize(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", domain.ErrUnauthorized
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.UserID == "" {
		return "", domain.ErrUnauthorized
	}
	return claims.UserID, nil
}

// initialBalance picks the starting balance for a fresh account,
// uniformly in [1, 10000).
func initialBalance() float64 {
	return 1 + rand.Float64()*9999
}
