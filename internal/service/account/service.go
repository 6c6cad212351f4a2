package account

import (
	"context"
	"errors"
	"fmt"

	"log/slog"

	"github.com/paylite/api/internal/domain"
	"github.com/paylite/api/internal/repository"
)

// Service exposes read access to provisioned accounts. Balance mutation
// belongs to transfer logic, which lives outside this service.
type Service struct {
	accounts repository.AccountRepository
	logger   *slog.Logger
}

// New constructs a Service.
func New(accounts repository.AccountRepository, logger *slog.Logger) Service {
	return Service{accounts: accounts, logger: logger}
}

// Balance returns the current balance of the caller's account. Every user
// is provisioned with exactly one account at signup, so a missing account
// means the identity itself no longer resolves.
func (s Service) Balance(ctx context.Context, userID string) (float64, error) {
	acct, err := s.accounts.GetAccountByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("load account: %w", err)
	}
	return acct.Balance, nil
}
