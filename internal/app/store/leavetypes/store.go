package leavetypes

import (
	"context"
	"time"

	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists the leave type registry in the "leave_types" collection.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("leave_types")}
}

// Get returns the leave type whose code is name. Returns store.ErrNotFound if missing.
func (s *Store) Get(ctx context.Context, name string) (*models.LeaveType, error) {
	var lt models.LeaveType
	if err := s.c.FindOne(ctx, bson.M{"name": name}).Decode(&lt); err != nil {
		return nil, store.Unavailable(err)
	}
	return &lt, nil
}

// List returns leave types ordered by name, optionally only the active ones.
func (s *Store) List(ctx context.Context, activeOnly bool) ([]models.LeaveType, error) {
	filter := bson.M{}
	if activeOnly {
		filter["is_active"] = true
	}
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, store.Unavailable(err)
	}
	defer cur.Close(ctx)

	out := []models.LeaveType{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, store.Unavailable(err)
	}
	return out, nil
}

// Count returns the number of registry entries, active or not.
func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, store.Unavailable(err)
	}
	return n, nil
}

// Upsert creates or replaces the entry named lt.Name and returns the stored document.
func (s *Store) Upsert(ctx context.Context, lt models.LeaveType) (models.LeaveType, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"label":             lt.Label,
			"default_days":      lt.DefaultDays,
			"requires_approval": lt.RequiresApproval,
			"is_active":         lt.IsActive,
			"updated_at":        now,
		},
		"$setOnInsert": bson.M{
			"_id":        primitive.NewObjectID(),
			"name":       lt.Name,
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out models.LeaveType
	if err := s.c.FindOneAndUpdate(ctx, bson.M{"name": lt.Name}, update, opts).Decode(&out); err != nil {
		if wafflemongo.IsDup(err) {
			return models.LeaveType{}, store.ErrDuplicate
		}
		return models.LeaveType{}, store.Unavailable(err)
	}
	return out, nil
}

// SetActive flips the active flag of an existing entry.
func (s *Store) SetActive(ctx context.Context, name string, active bool) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"name": name}, bson.M{"$set": bson.M{
		"is_active":  active,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return store.Unavailable(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// InsertMany seeds entries that do not exist yet. Existing names are left alone.
func (s *Store) InsertMany(ctx context.Context, types []models.LeaveType) error {
	if len(types) == 0 {
		return nil
	}
	now := time.Now().UTC()
	writes := make([]mongo.WriteModel, 0, len(types))
	for _, lt := range types {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"name": lt.Name}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{
				"_id":               primitive.NewObjectID(),
				"name":              lt.Name,
				"label":             lt.Label,
				"default_days":      lt.DefaultDays,
				"requires_approval": lt.RequiresApproval,
				"is_active":         lt.IsActive,
				"created_at":        now,
				"updated_at":        now,
			}}).
			SetUpsert(true))
	}
	if _, err := s.c.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		if wafflemongo.IsDup(err) {
			// a concurrent seeder won the race; every name now exists
			return nil
		}
		return store.Unavailable(err)
	}
	return nil
}
