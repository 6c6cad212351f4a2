package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paylite/api/internal/domain"
	"github.com/paylite/api/internal/repository"
)

const uniqueViolation = "23505"

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository    = (*Repository)(nil)
	_ repository.AccountRepository = (*Repository)(nil)
)

// CreateUserWithAccount provisions the user and its account inside one
// transaction. A username collision surfaces as repository.ErrDuplicate;
// the unique index is the authority, not any prior lookup.
func (r *Repository) CreateUserWithAccount(ctx context.Context, user *domain.User, account *domain.Account) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin provision tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const userQuery = `INSERT INTO users (id, username, password_hash, first_name, last_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, userQuery, user.ID, user.Username, user.PasswordHash, user.FirstName, user.LastName, user.CreatedAt); err != nil {
		return classifyError(err)
	}

	const accountQuery = `INSERT INTO accounts (id, user_id, balance, created_at)
		VALUES ($1, $2, $3, $4)`
	if _, err := tx.Exec(ctx, accountQuery, account.ID, account.UserID, account.Balance, account.CreatedAt); err != nil {
		return classifyError(err)
	}

	return tx.Commit(ctx)
}

// GetUserByUsername fetches a user by its normalized username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	const query = `SELECT id, username, password_hash, first_name, last_name, created_at
		FROM users WHERE username = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, username))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, username, password_hash, first_name, last_name, created_at
		FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// UpdateUser applies a partial update; nil fields keep stored values.
func (r *Repository) UpdateUser(ctx context.Context, update repository.UserUpdate) error {
	const query = `UPDATE users SET
		password_hash = COALESCE($2, password_hash),
		first_name = COALESCE($3, first_name),
		last_name = COALESCE($4, last_name)
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, update.UserID, update.PasswordHash, update.FirstName, update.LastName)
	if err != nil {
		return classifyError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SearchUsers returns users whose first or last name contains filter as a
// literal substring. POSITION sidesteps LIKE/regex metacharacters entirely.
func (r *Repository) SearchUsers(ctx context.Context, filter string) ([]domain.User, error) {
	const query = `SELECT id, username, password_hash, first_name, last_name, created_at
		FROM users
		WHERE POSITION($1 IN first_name) > 0 OR POSITION($1 IN last_name) > 0
		ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, filter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetAccountByUserID returns the account provisioned for a user.
func (r *Repository) GetAccountByUserID(ctx context.Context, userID string) (*domain.Account, error) {
	const query = `SELECT id, user_id, balance, created_at FROM accounts WHERE user_id = $1`
	row := r.pool.QueryRow(ctx, query, userID)
	var a domain.Account
	if err := row.Scan(&a.ID, &a.UserID, &a.Balance, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *Repository) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func classifyError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicate
	}
	return err
}
