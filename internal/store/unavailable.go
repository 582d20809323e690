package store

import (
	"context"

	"github.com/dukerupert/galactic-archives/internal/model"
)

// Unavailable stands in for a store that could not be reached at startup.
// Every call fails with ErrUnavailable until the process is restarted.
type Unavailable struct {
	Err error
}

func (u Unavailable) err() error {
	if u.Err == nil {
		return ErrUnavailable
	}
	return &unavailableError{cause: u.Err}
}

type unavailableError struct{ cause error }

func (e *unavailableError) Error() string   { return ErrUnavailable.Error() + ": " + e.cause.Error() }
func (e *unavailableError) Is(t error) bool { return t == ErrUnavailable }
func (e *unavailableError) Unwrap() error   { return e.cause }

func (u Unavailable) Users() Users                   { return unavailableUsers{u} }
func (u Unavailable) Notes() Notes                   { return unavailableNotes{u} }
func (u Unavailable) Products() Products             { return unavailableProducts{u} }
func (u Unavailable) Ping(ctx context.Context) error { return u.err() }
func (u Unavailable) Close(context.Context) error    { return nil }

type unavailableUsers struct{ u Unavailable }

func (s unavailableUsers) Create(context.Context, string, string) (*model.User, error) {
	return nil, s.u.err()
}

func (s unavailableUsers) GetByID(context.Context, string) (*model.User, error) {
	return nil, s.u.err()
}

func (s unavailableUsers) GetByEmail(context.Context, string) (*model.User, error) {
	return nil, s.u.err()
}

func (s unavailableUsers) SetStripeCustomerID(context.Context, string, string) error {
	return s.u.err()
}

func (s unavailableUsers) UpdateSubscription(context.Context, string, model.Subscription) (bool, error) {
	return false, s.u.err()
}

type unavailableNotes struct{ u Unavailable }

func (s unavailableNotes) Create(context.Context, string, string, string) (*model.Note, error) {
	return nil, s.u.err()
}

func (s unavailableNotes) List(context.Context, string, string) ([]model.Note, error) {
	return nil, s.u.err()
}

func (s unavailableNotes) Get(context.Context, string, string) (*model.Note, error) {
	return nil, s.u.err()
}

func (s unavailableNotes) Update(context.Context, string, string, model.NotePatch) (*model.Note, error) {
	return nil, s.u.err()
}

func (s unavailableNotes) Delete(context.Context, string, string) (bool, error) {
	return false, s.u.err()
}

type unavailableProducts struct{ u Unavailable }

func (s unavailableProducts) List(context.Context) ([]model.Product, error) {
	return nil, s.u.err()
}

func (s unavailableProducts) GetByLookupKey(context.Context, string) (*model.Product, error) {
	return nil, s.u.err()
}

func (s unavailableProducts) Upsert(context.Context, model.Product) error {
	return s.u.err()
}
