package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dukerupert/galactic-archives/internal/model"
)

type ProductStore struct {
	coll *mongo.Collection
}

type productDoc struct {
	Name        string `bson:"name"`
	Description string `bson:"description"`
	PriceID     string `bson:"price_id"`
	LookupKey   string `bson:"lookup_key"`
	Amount      int64  `bson:"amount"`
	Currency    string `bson:"currency"`
	Interval    string `bson:"interval"`
}

func (d productDoc) model() model.Product {
	return model.Product{
		Name:        d.Name,
		Description: d.Description,
		PriceID:     d.PriceID,
		LookupKey:   d.LookupKey,
		Amount:      d.Amount,
		Currency:    d.Currency,
		Interval:    d.Interval,
	}
}

func (s *ProductStore) List(ctx context.Context) ([]model.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "amount", Value: 1}, {Key: "lookup_key", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", wrapErr(err))
	}
	defer cur.Close(ctx)

	products := []model.Product{}
	for cur.Next(ctx) {
		var doc productDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		products = append(products, doc.model())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", wrapErr(err))
	}
	return products, nil
}

func (s *ProductStore) GetByLookupKey(ctx context.Context, lookupKey string) (*model.Product, error) {
	var doc productDoc
	err := s.coll.FindOne(ctx, bson.M{"lookup_key": lookupKey}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", wrapErr(err))
	}
	p := doc.model()
	return &p, nil
}

func (s *ProductStore) Upsert(ctx context.Context, p model.Product) error {
	doc := productDoc{
		Name:        p.Name,
		Description: p.Description,
		PriceID:     p.PriceID,
		LookupKey:   p.LookupKey,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Interval:    p.Interval,
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"lookup_key": p.LookupKey}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert product: %w", wrapErr(err))
	}
	return nil
}
