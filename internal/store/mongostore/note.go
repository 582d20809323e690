package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dukerupert/galactic-archives/internal/model"
	"github.com/dukerupert/galactic-archives/internal/store"
)

type NoteStore struct {
	coll  *mongo.Collection
	clock store.Clock
}

type noteDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	UserID    primitive.ObjectID `bson:"user_id"`
	Title     string             `bson:"title"`
	Content   string             `bson:"content"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func (d noteDoc) model() *model.Note {
	return &model.Note{
		ID:        d.ID.Hex(),
		OwnerID:   d.UserID.Hex(),
		Title:     d.Title,
		Content:   d.Content,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

// scope builds the ownership filter. ok is false when either id cannot name
// a document, in which case nothing matches.
func scope(id, ownerID string) (bson.M, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	owner, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return nil, false
	}
	return bson.M{"_id": oid, "user_id": owner}, true
}

func (s *NoteStore) Create(ctx context.Context, ownerID, title, content string) (*model.Note, error) {
	owner, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return nil, fmt.Errorf("insert note: invalid owner id %q", ownerID)
	}
	now := s.clock.Now()
	doc := noteDoc{
		ID:        primitive.NewObjectID(),
		UserID:    owner,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert note: %w", wrapErr(err))
	}
	return doc.model(), nil
}

// List returns the owner's notes, most recently updated first. A non-empty
// search keeps notes whose title or content contains it, ignoring case.
func (s *NoteStore) List(ctx context.Context, ownerID, search string) ([]model.Note, error) {
	notes := []model.Note{}
	owner, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return notes, nil
	}

	filter := bson.M{"user_id": owner}
	if search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"content": pattern},
		}
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}})

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", wrapErr(err))
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc noteDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode note: %w", err)
		}
		notes = append(notes, *doc.model())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", wrapErr(err))
	}
	return notes, nil
}

func (s *NoteStore) Get(ctx context.Context, id, ownerID string) (*model.Note, error) {
	filter, ok := scope(id, ownerID)
	if !ok {
		return nil, nil
	}
	var doc noteDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", wrapErr(err))
	}
	return doc.model(), nil
}

func (s *NoteStore) Update(ctx context.Context, id, ownerID string, patch model.NotePatch) (*model.Note, error) {
	if patch.Empty() {
		return nil, store.ErrEmptyPatch
	}
	filter, ok := scope(id, ownerID)
	if !ok {
		return nil, nil
	}

	set := bson.M{"updated_at": s.clock.Now()}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Content != nil {
		set["content"] = *patch.Content
	}

	var doc noteDoc
	err := s.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update note: %w", wrapErr(err))
	}
	return doc.model(), nil
}

func (s *NoteStore) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	filter, ok := scope(id, ownerID)
	if !ok {
		return false, nil
	}
	result, err := s.coll.DeleteOne(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("delete note: %w", wrapErr(err))
	}
	return result.DeletedCount > 0, nil
}
