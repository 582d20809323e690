// Package sqlitestore implements the store contract on an embedded SQLite
// database opened by database.Open.
package sqlitestore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dukerupert/galactic-archives/internal/store"
)

func init() {
	// contains_fold(haystack, needle) is a Unicode-aware, case-insensitive
	// substring test. SQLite's own lower() only folds ASCII.
	err := sqlite.RegisterDeterministicScalarFunction("contains_fold", 2, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		haystack, needle := textArg(args[0]), textArg(args[1])
		if strings.Contains(strings.ToLower(haystack), strings.ToLower(needle)) {
			return int64(1), nil
		}
		return int64(0), nil
	})
	if err != nil {
		panic(fmt.Sprintf("register contains_fold: %v", err))
	}
}

func textArg(v driver.Value) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

type Store struct {
	db       *sql.DB
	users    *UserStore
	notes    *NoteStore
	products *ProductStore
}

// New wraps an open, migrated database. A nil clock uses time.Now.
func New(db *sql.DB, clock store.Clock) *Store {
	return &Store{
		db:       db,
		users:    &UserStore{db: db, clock: clock},
		notes:    &NoteStore{db: db, clock: clock},
		products: &ProductStore{db: db},
	}
}

func (s *Store) Users() store.Users       { return s.users }
func (s *Store) Notes() store.Notes       { return s.notes }
func (s *Store) Products() store.Products { return s.products }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return wrapErr(err)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// wrapErr marks errors from a closed pool as unavailability.
func wrapErr(err error) error {
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
