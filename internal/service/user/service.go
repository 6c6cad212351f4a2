package user

import (
	"context"
	"errors"
	"fmt"

	"log/slog"

	"github.com/paylite/api/internal/domain"
	"github.com/paylite/api/internal/repository"
	"github.com/paylite/api/pkg/crypto"
)

// Service handles profile mutation and user search.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger) Service {
	return Service{users: users, logger: logger}
}

// Summary is the public projection of a user for search results.
type Summary struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Update applies a partial profile change to the user resolved by the
// session guard. A present password always passes through the hasher.
func (s Service) Update(ctx context.Context, userID string, in domain.UpdateInput) error {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	update := repository.UserUpdate{
		UserID:    userID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	}
	if in.Password != nil {
		hash, err := crypto.HashPassword(*in.Password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		update.PasswordHash = hash
	}

	if err := s.users.UpdateUser(ctx, update); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("update user: %w", err)
	}
	s.logger.Info("profile updated", "user_id", userID, "password_changed", in.Password != nil)
	return nil
}

// Search lists users whose first or last name contains filter as a literal
// substring. No match yields an empty slice, never an error.
func (s Service) Search(ctx context.Context, filter string) ([]Summary, error) {
	users, err := s.users.SearchUsers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	summaries := make([]Summary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, Summary{
			ID:        u.ID,
			Username:  u.Username,
			FirstName: u.FirstName,
			LastName:  u.LastName,
		})
	}
	return summaries, nil
}
