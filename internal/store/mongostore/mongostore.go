// Package mongostore implements the store contract on MongoDB. Documents use
// the field names of the existing galactic_archives collections.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dukerupert/galactic-archives/internal/database"
	"github.com/dukerupert/galactic-archives/internal/store"
)

const (
	usersCollection    = "users"
	notesCollection    = "notes"
	productsCollection = "products"
)

type Store struct {
	client   *mongo.Client
	users    *UserStore
	notes    *NoteStore
	products *ProductStore
}

// New uses db for all collections. The caller keeps ownership of the client
// until Close is called on the returned store.
func New(db *mongo.Database, clock store.Clock) *Store {
	return &Store{
		client:   db.Client(),
		users:    &UserStore{coll: db.Collection(usersCollection), clock: clock},
		notes:    &NoteStore{coll: db.Collection(notesCollection), clock: clock},
		products: &ProductStore{coll: db.Collection(productsCollection)},
	}
}

func (s *Store) Users() store.Users       { return s.users }
func (s *Store) Notes() store.Notes       { return s.notes }
func (s *Store) Products() store.Products { return s.products }

func (s *Store) Ping(ctx context.Context) error {
	if err := database.PingMongo(ctx, s.client); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// wrapErr marks connectivity failures as unavailability.
func wrapErr(err error) error {
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
