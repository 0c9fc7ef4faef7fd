package repository

import (
	"context"
	"errors"

	"espresso-tracker/internal/domain"
)

// ErrDuplicateEmail reports a unique-constraint violation on the email column.
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository defines persistence operations for User records.
// Lookup methods return (nil, nil) when no row matches.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}
