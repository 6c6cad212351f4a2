package repository

import (
	"context"

	"github.com/paylite/api/internal/domain"
)

// UserUpdate describes a partial mutation of a user record. Nil fields
// keep their stored value. Password arrives here already hashed.
type UserUpdate struct {
	UserID       string
	PasswordHash []byte
	FirstName    *string
	LastName     *string
}

// UserRepository persists user identities.
type UserRepository interface {
	// CreateUserWithAccount provisions a user and its account as one
	// atomic operation; on any failure neither record is observable.
	CreateUserWithAccount(ctx context.Context, user *domain.User, account *domain.Account) error
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdateUser(ctx context.Context, update UserUpdate) error
	// SearchUsers matches filter as a literal, case-sensitive substring of
	// first or last name. An empty filter matches every user.
	SearchUsers(ctx context.Context, filter string) ([]domain.User, error)
}

// AccountRepository reads provisioned accounts.
type AccountRepository interface {
	GetAccountByUserID(ctx context.Context, userID string) (*domain.Account, error)
}
