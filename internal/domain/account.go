package domain

import "time"

// Account holds the monetary balance for exactly one user. It is created
// in the same transaction as its user and never deleted.
type Account struct {
	ID        string
	UserID    string
	Balance   float64
	CreatedAt time.Time
}
