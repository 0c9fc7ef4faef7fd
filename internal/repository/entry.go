package repository

import (
	"context"

	"espresso-tracker/internal/domain"
)

// EntryRepository exposes persistence operations for espresso entries.
// Get returns (nil, nil) when no row matches. Listings are ordered
// newest-created-first.
type EntryRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, entry *domain.Entry) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Entry, error)
	Update(ctx context.Context, entry *domain.Entry) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]domain.Entry, error)
	ListByCoffee(ctx context.Context, coffee string) ([]domain.Entry, error)
	Coffees(ctx context.Context) ([]string, error)
}
