// Package store defines the persistence contract shared by the MongoDB and
// SQLite backends. Lookups that find nothing return (nil, nil); callers decide
// what absence means.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dukerupert/galactic-archives/internal/model"
)

var (
	// ErrUnavailable wraps failures caused by an unreachable store.
	ErrUnavailable = errors.New("store unavailable")
	// ErrDuplicateEmail is returned when a user with the same email exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrEmptyPatch is returned by Notes.Update when no field is set.
	ErrEmptyPatch = errors.New("empty note patch")
)

type Users interface {
	Create(ctx context.Context, email, passwordHash string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	SetStripeCustomerID(ctx context.Context, userID, customerID string) error
	// UpdateSubscription stores sub on the user owning customerID and
	// reports whether such a user exists.
	UpdateSubscription(ctx context.Context, customerID string, sub model.Subscription) (bool, error)
}

// Notes is ownership scoped: every method that addresses a single note
// matches on both the note id and the owner id.
type Notes interface {
	Create(ctx context.Context, ownerID, title, content string) (*model.Note, error)
	List(ctx context.Context, ownerID, search string) ([]model.Note, error)
	Get(ctx context.Context, id, ownerID string) (*model.Note, error)
	Update(ctx context.Context, id, ownerID string, patch model.NotePatch) (*model.Note, error)
	Delete(ctx context.Context, id, ownerID string) (bool, error)
}

type Products interface {
	List(ctx context.Context) ([]model.Product, error)
	GetByLookupKey(ctx context.Context, lookupKey string) (*model.Product, error)
	Upsert(ctx context.Context, p model.Product) error
}

// Store is an open connection to one backend.
type Store interface {
	Users() Users
	Notes() Notes
	Products() Products
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Clock returns the current time. Backends truncate it to milliseconds, the
// resolution both of them persist.
type Clock func() time.Time

func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC().Truncate(time.Millisecond)
	}
	return c().UTC().Truncate(time.Millisecond)
}
