package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dukerupert/galactic-archives/internal/database"
	"github.com/dukerupert/galactic-archives/internal/model"
	"github.com/dukerupert/galactic-archives/internal/store"
)

type UserStore struct {
	coll  *mongo.Collection
	clock store.Clock
}

type userDoc struct {
	ID                       primitive.ObjectID `bson:"_id"`
	Email                    string             `bson:"email"`
	PasswordHash             string             `bson:"password_hash"`
	StripeCustomerID         string             `bson:"stripe_customer_id,omitempty"`
	StripeSubscriptionID     string             `bson:"stripe_subscription_id,omitempty"`
	StripePriceID            string             `bson:"stripe_price_id,omitempty"`
	StripeSubscriptionStatus string             `bson:"stripe_subscription_status,omitempty"`
	CreatedAt                time.Time          `bson:"created_at"`
	UpdatedAt                time.Time          `bson:"updated_at"`
}

func (d userDoc) model() *model.User {
	u := &model.User{
		ID:               d.ID.Hex(),
		Email:            d.Email,
		PasswordHash:     d.PasswordHash,
		StripeCustomerID: d.StripeCustomerID,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
	if d.StripeSubscriptionID != "" || d.StripeSubscriptionStatus != "" || d.StripePriceID != "" {
		u.Subscription = &model.Subscription{
			ID:      d.StripeSubscriptionID,
			Status:  d.StripeSubscriptionStatus,
			PriceID: d.StripePriceID,
		}
	}
	return u
}

func (s *UserStore) Create(ctx context.Context, email, passwordHash string) (*model.User, error) {
	now := s.clock.Now()
	doc := userDoc{
		ID:           primitive.NewObjectID(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return nil, store.ErrDuplicateEmail
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", wrapErr(err))
	}
	return doc.model(), nil
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*model.User, error) {
	var doc userDoc
	err := s.coll.FindOne(ctx, filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return doc.model(), nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	u, err := s.findOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := s.findOne(ctx, bson.M{"email": email}, options.FindOne().SetCollation(database.EmailCollation))
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) SetStripeCustomerID(ctx context.Context, userID, customerID string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("update stripe customer id: invalid user id %q", userID)
	}
	_, err = s.coll.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"stripe_customer_id": customerID, "updated_at": s.clock.Now()}},
	)
	if err != nil {
		return fmt.Errorf("update stripe customer id: %w", wrapErr(err))
	}
	return nil
}

func (s *UserStore) UpdateSubscription(ctx context.Context, customerID string, sub model.Subscription) (bool, error) {
	result, err := s.coll.UpdateOne(ctx,
		bson.M{"stripe_customer_id": customerID},
		bson.M{"$set": bson.M{
			"stripe_subscription_id":     sub.ID,
			"stripe_subscription_status": sub.Status,
			"stripe_price_id":            sub.PriceID,
			"updated_at":                 s.clock.Now(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("update subscription: %w", wrapErr(err))
	}
	return result.MatchedCount > 0, nil
}
