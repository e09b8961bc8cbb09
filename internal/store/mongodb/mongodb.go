// Package mongodb stores users, events and chat messages in MongoDB collections keyed by the string field "id".
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trailmeet/backend/internal/models"
	"github.com/trailmeet/backend/internal/store"
)

const (
	collUsers    = "users"
	collEvents   = "events"
	collMessages = "chat_messages"
)

// New returns a store bundle backed by db. Close disconnects the client.
func New(db *mongo.Database) *store.Store {
	return &store.Store{
		Users:    &Users{coll: db.Collection(collUsers)},
		Events:   &Events{coll: db.Collection(collEvents)},
		Messages: &Messages{coll: db.Collection(collMessages)},
		Close: func(ctx context.Context) error {
			return db.Client().Disconnect(ctx)
		},
	}
}

// EnsureIndexes creates the indexes the queries rely on. It stops at the first failure.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []struct {
		coll  string
		model mongo.IndexModel
	}{
		{collUsers, mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{collUsers, mongo.IndexModel{Keys: bson.D{{Key: "session_token", Value: 1}}}},
		{collEvents, mongo.IndexModel{Keys: bson.D{{Key: "id", Value: 1}}}},
		{collEvents, mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}}}},
		{collEvents, mongo.IndexModel{Keys: bson.D{{Key: "event_type", Value: 1}}}},
		{collEvents, mongo.IndexModel{Keys: bson.D{{Key: "created_by", Value: 1}}}},
		{collMessages, mongo.IndexModel{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "timestamp", Value: 1}}}},
	}
	for _, idx := range indexes {
		if _, err := db.Collection(idx.coll).Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("create index on %s: %w", idx.coll, err)
		}
	}
	return nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) (*T, error) {
	var doc T
	err := coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Users implements store.Users.
type Users struct {
	coll *mongo.Collection
}

// GetByEmail returns the user with that email.
func (r *Users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	doc, err := findOne[userDoc](ctx, r.coll, bson.M{"email": email})
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

// GetBySessionToken returns the user holding token.
func (r *Users) GetBySessionToken(ctx context.Context, token string) (*models.User, error) {
	doc, err := findOne[userDoc](ctx, r.coll, bson.M{"session_token": token})
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

// Create inserts u, mapping a unique email violation to store.ErrConflict.
func (r *Users) Create(ctx context.Context, u *models.User) error {
	_, err := r.coll.InsertOne(ctx, toUserDoc(u))
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrConflict
	}
	return err
}

// SetSession stores a new token and expiry.
func (r *Users) SetSession(ctx context.Context, userID, token string, expires time.Time) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"id": userID}, bson.M{"$set": bson.M{
		"session_token":   token,
		"session_expires": NewTimestamp(expires),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ClearSession unsets the token and expiry.
func (r *Users) ClearSession(ctx context.Context, userID string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"id": userID}, bson.M{"$unset": bson.M{
		"session_token":   "",
		"session_expires": "",
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Events implements store.Events.
type Events struct {
	coll *mongo.Collection
}

func (r *Events) find(ctx context.Context, filter bson.M, limit int) ([]models.Event, error) {
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	var docs []eventDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	list := make([]models.Event, 0, len(docs))
	for i := range docs {
		e, err := docs[i].model()
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, nil
}

// ListByStatus returns up to limit events with the status, in natural order.
func (r *Events) ListByStatus(ctx context.Context, status models.EventStatus, limit int) ([]models.Event, error) {
	return r.find(ctx, bson.M{"status": string(status)}, limit)
}

// ListByCreator returns up to limit events created by userID.
func (r *Events) ListByCreator(ctx context.Context, userID string, limit int) ([]models.Event, error) {
	return r.find(ctx, bson.M{"created_by": userID}, limit)
}

// ListByParticipant returns up to limit events whose participants contain userID.
func (r *Events) ListByParticipant(ctx context.Context, userID string, limit int) ([]models.Event, error) {
	return r.find(ctx, bson.M{"participants": userID}, limit)
}

// GetByID returns the event or store.ErrNotFound.
func (r *Events) GetByID(ctx context.Context, id string) (*models.Event, error) {
	doc, err := findOne[eventDoc](ctx, r.coll, bson.M{"id": id})
	if err != nil {
		return nil, err
	}
	return doc.model()
}

// Create inserts e.
func (r *Events) Create(ctx context.Context, e *models.Event) error {
	_, err := r.coll.InsertOne(ctx, toEventDoc(e))
	return err
}

// joinFilter matches the event only when userID is absent and the participant count is under capacity.
func joinFilter(eventID, userID string) bson.M {
	size := bson.M{"$size": bson.M{"$ifNull": bson.A{"$participants", bson.A{}}}}
	return bson.M{
		"id":           eventID,
		"participants": bson.M{"$ne": userID},
		"$or": bson.A{
			bson.M{"capacity": nil},
			bson.M{"$expr": bson.M{"$lt": bson.A{size, "$capacity"}}},
		},
	}
}

// AddParticipant pushes userID with a single conditional update.
func (r *Events) AddParticipant(ctx context.Context, eventID, userID string) error {
	res, err := r.coll.UpdateOne(ctx, joinFilter(eventID, userID), bson.M{"$push": bson.M{"participants": userID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	e, err := r.GetByID(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return store.ClassifyJoinMiss(e, userID)
}

// RemoveParticipant pulls userID.
func (r *Events) RemoveParticipant(ctx context.Context, eventID, userID string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"id": eventID}, bson.M{"$pull": bson.M{"participants": userID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Messages implements store.Messages.
type Messages struct {
	coll *mongo.Collection
}

// ListByEvent returns up to limit messages of the event, oldest first.
func (r *Messages) ListByEvent(ctx context.Context, eventID string, limit int) ([]models.ChatMessage, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, bson.M{"event_id": eventID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	list := make([]models.ChatMessage, 0, len(docs))
	for i := range docs {
		list = append(list, docs[i].model())
	}
	return list, nil
}

// Create inserts m.
func (r *Messages) Create(ctx context.Context, m *models.ChatMessage) error {
	_, err := r.coll.InsertOne(ctx, toMessageDoc(m))
	return err
}
