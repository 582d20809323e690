package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo creates the process-wide MongoDB client and verifies the
// deployment answers a ping within timeout.
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := PingMongo(pingCtx, client); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return client, nil
}

// PingMongo runs the admin ping command.
func PingMongo(ctx context.Context, client *mongo.Client) error {
	return client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}

// EmailCollation compares email addresses ignoring case. The unique users
// index and every lookup by email must use it for the index to apply.
var EmailCollation = &options.Collation{Locale: "en", Strength: 2}

// legacyEmailIndex is the case-sensitive unique index earlier deployments
// created on users.email.
const legacyEmailIndex = "email_1"

// EnsureIndexes creates the indexes the application relies on. Creating an
// index that already exists with the same definition is a no-op.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	if err := dropIndexIfExists(ctx, db.Collection("users"), legacyEmailIndex); err != nil {
		return fmt.Errorf("drop legacy email index: %w", err)
	}
	users := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_ci").SetUnique(true).SetCollation(EmailCollation),
		},
		{
			Keys: bson.D{{Key: "stripe_customer_id", Value: 1}},
		},
	}
	if _, err := db.Collection("users").Indexes().CreateMany(ctx, users); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	notes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}},
		},
	}
	if _, err := db.Collection("notes").Indexes().CreateMany(ctx, notes); err != nil {
		return fmt.Errorf("create note indexes: %w", err)
	}

	products := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "lookup_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection("products").Indexes().CreateMany(ctx, products); err != nil {
		return fmt.Errorf("create product indexes: %w", err)
	}

	return nil
}

func dropIndexIfExists(ctx context.Context, coll *mongo.Collection, name string) error {
	_, err := coll.Indexes().DropOne(ctx, name)
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && (cmdErr.Name == "IndexNotFound" || cmdErr.Name == "NamespaceNotFound") {
		return nil
	}
	return err
}
