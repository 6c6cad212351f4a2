package account

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/paylite/api/internal/domain"
	"github.com/paylite/api/internal/repository"
)

type stubAccountRepository struct {
	accounts map[string]*domain.Account
}

func (s *stubAccountRepository) GetAccountByUserID(ctx context.Context, userID string) (*domain.Account, error) {
	if acct, ok := s.accounts[userID]; ok {
		return acct, nil
	}
	return nil, repository.ErrNotFound
}

func TestBalance(t *testing.T) {
	repo := &stubAccountRepository{accounts: map[string]*domain.Account{
		"user-1": {ID: "acct-1", UserID: "user-1", Balance: 4321.5},
	}}
	svc := New(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	balance, err := svc.Balance(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 4321.5 {
		t.Fatalf("unexpected balance: %v", balance)
	}

	_, err = svc.Balance(context.Background(), "missing")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected domain.ErrUserNotFound, got %v", err)
	}
}
