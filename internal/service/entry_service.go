package service

import (
	"context"
	"errors"
	"time"

	"espresso-tracker/internal/domain"
	"espresso-tracker/internal/repository"
)

var (
	// ErrNotOwner is returned when a requester tries to mutate someone else's entry.
	ErrNotOwner = errors.New("entry belongs to another user")
	// ErrEntryNotFound is returned by mutations targeting a missing entry.
	ErrEntryNotFound = errors.New("entry not found")
)

// EntryUpdate carries the mutable fields of an entry. Owner and creation
// time are immutable and deliberately absent.
type EntryUpdate struct {
	Coffee         string
	GrinderSetting string
	InputWeight    float64
	OutputWeight   float64
	TasteComment   string
}

// EntryService coordinates brew-entry operations and the viewer-visibility
// partition.
type EntryService interface {
	AddEntry(ctx context.Context, ownerID int64, upd EntryUpdate) (*domain.Entry, error)
	GetEntry(ctx context.Context, id int64) (*domain.Entry, error)
	UpdateEntry(ctx context.Context, id, requesterID int64, upd EntryUpdate) error
	DeleteEntry(ctx context.Context, id, requesterID int64) error
	ListEntries(ctx context.Context, viewerID *int64, coffee string) (mine, community []domain.Entry, err error)
	Coffees(ctx context.Context) ([]string, error)
}

type entryService struct {
	entries repository.EntryRepository
}

func NewEntryService(entries repository.EntryRepository) EntryService {
	return &entryService{entries: entries}
}

func (s *entryService) AddEntry(ctx context.Context, ownerID int64, upd EntryUpdate) (*domain.Entry, error) {
	if upd.Coffee == "" {
		return nil, errors.New("coffee is required")
	}
	if upd.GrinderSetting == "" {
		return nil, errors.New("grinder setting is required")
	}

	entry := &domain.Entry{
		UserID:         ownerID,
		Coffee:         upd.Coffee,
		GrinderSetting: upd.GrinderSetting,
		InputWeight:    upd.InputWeight,
		OutputWeight:   upd.OutputWeight,
		TasteComment:   upd.TasteComment,
		CreatedAt:      time.Now().UTC(),
	}

	if _, err := s.entries.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *entryService) GetEntry(ctx context.Context, id int64) (*domain.Entry, error) {
	return s.entries.Get(ctx, id)
}

func (s *entryService) UpdateEntry(ctx context.Context, id, requesterID int64, upd EntryUpdate) error {
	entry, err := s.requireOwned(ctx, id, requesterID)
	if err != nil {
		return err
	}

	entry.Coffee = upd.Coffee
	entry.GrinderSetting = upd.GrinderSetting
	entry.InputWeight = upd.InputWeight
	entry.OutputWeight = upd.OutputWeight
	entry.TasteComment = upd.TasteComment

	return s.entries.Update(ctx, entry)
}

func (s *entryService) DeleteEntry(ctx context.Context, id, requesterID int64) error {
	if _, err := s.requireOwned(ctx, id, requesterID); err != nil {
		return err
	}
	return s.entries.Delete(ctx, id)
}

func (s *entryService) requireOwned(ctx context.Context, id, requesterID int64) (*domain.Entry, error) {
	entry, err := s.entries.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	if entry.UserID != requesterID {
		return nil, ErrNotOwner
	}
	return entry, nil
}

// ListEntries returns the full listing (optionally filtered by coffee name)
// partitioned by viewer identity: entries the viewer owns land in mine,
// everything else in community. An anonymous viewer has no mine partition
// and sees the whole listing as community. Both partitions keep the
// newest-created-first order of the underlying listing.
func (s *entryService) ListEntries(ctx context.Context, viewerID *int64, coffee string) ([]domain.Entry, []domain.Entry, error) {
	var (
		entries []domain.Entry
		err     error
	)
	if coffee == "" {
		entries, err = s.entries.List(ctx)
	} else {
		entries, err = s.entries.ListByCoffee(ctx, coffee)
	}
	if err != nil {
		return nil, nil, err
	}

	if viewerID == nil {
		return nil, entries, nil
	}

	var mine, community []domain.Entry
	for _, entry := range entries {
		if entry.UserID == *viewerID {
			mine = append(mine, entry)
		} else {
			community = append(community, entry)
		}
	}
	return mine, community, nil
}

func (s *entryService) Coffees(ctx context.Context) ([]string, error) {
	return s.entries.Coffees(ctx)
}
