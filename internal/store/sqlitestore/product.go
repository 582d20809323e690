package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/galactic-archives/internal/model"
)

type ProductStore struct {
	db *sql.DB
}

const productCols = `name, description, price_id, lookup_key, amount, currency, interval`

func scanProduct(scanner interface{ Scan(...any) error }) (*model.Product, error) {
	var p model.Product
	if err := scanner.Scan(&p.Name, &p.Description, &p.PriceID, &p.LookupKey, &p.Amount, &p.Currency, &p.Interval); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *ProductStore) List(ctx context.Context) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productCols+` FROM products ORDER BY amount, lookup_key`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", wrapErr(err))
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", wrapErr(err))
	}
	return products, nil
}

func (s *ProductStore) GetByLookupKey(ctx context.Context, lookupKey string) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productCols+` FROM products WHERE lookup_key = ?`, lookupKey)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", wrapErr(err))
	}
	return p, nil
}

func (s *ProductStore) Upsert(ctx context.Context, p model.Product) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (`+productCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (lookup_key) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   price_id = excluded.price_id,
		   amount = excluded.amount,
		   currency = excluded.currency,
		   interval = excluded.interval`,
		p.Name, p.Description, p.PriceID, p.LookupKey, p.Amount, p.Currency, p.Interval,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", wrapErr(err))
	}
	return nil
}
