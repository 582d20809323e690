package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/galactic-archives/internal/model"
	"github.com/dukerupert/galactic-archives/internal/store"
)

type UserStore struct {
	db    *sql.DB
	clock store.Clock
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var customerID, subID, priceID, status sql.NullString
	var createdAt, updatedAt int64

	err := scanner.Scan(
		&u.ID, &u.Email, &u.PasswordHash,
		&customerID, &subID, &priceID, &status,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	u.StripeCustomerID = customerID.String
	if subID.Valid || status.Valid || priceID.Valid {
		u.Subscription = &model.Subscription{
			ID:      subID.String,
			Status:  status.String,
			PriceID: priceID.String,
		}
	}
	return &u, nil
}

const userCols = `id, email, password_hash,
	stripe_customer_id, stripe_subscription_id, stripe_price_id, stripe_subscription_status,
	created_at, updated_at`

func (s *UserStore) Create(ctx context.Context, email, passwordHash string) (*model.User, error) {
	id := model.NewID()
	now := toMillis(s.clock.Now())

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, email, passwordHash, now, now,
	)
	if isUniqueViolation(err) {
		return nil, store.ErrDuplicateEmail
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", wrapErr(err))
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", wrapErr(err))
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ? COLLATE NOCASE`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", wrapErr(err))
	}
	return u, nil
}

func (s *UserStore) SetStripeCustomerID(ctx context.Context, userID, customerID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET stripe_customer_id = ?, updated_at = ? WHERE id = ?`,
		customerID, toMillis(s.clock.Now()), userID,
	)
	if err != nil {
		return fmt.Errorf("update stripe customer id: %w", wrapErr(err))
	}
	return nil
}

func (s *UserStore) UpdateSubscription(ctx context.Context, customerID string, sub model.Subscription) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users
		 SET stripe_subscription_id = ?, stripe_subscription_status = ?, stripe_price_id = ?, updated_at = ?
		 WHERE stripe_customer_id = ?`,
		sub.ID, sub.Status, sub.PriceID, toMillis(s.clock.Now()), customerID,
	)
	if err != nil {
		return false, fmt.Errorf("update subscription: %w", wrapErr(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
