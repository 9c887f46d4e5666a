package leaverequests

import (
	"context"
	"time"

	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists leave requests in the "leave_requests" collection.
// Requests are never deleted.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("leave_requests")}
}

// Create inserts r, assigning an ID and timestamps when they are unset.
func (s *Store) Create(ctx context.Context, r models.LeaveRequest) (models.LeaveRequest, error) {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = r.CreatedAt
	if _, err := s.c.InsertOne(ctx, r); err != nil {
		return models.LeaveRequest{}, store.Unavailable(err)
	}
	return r, nil
}

// GetByID loads a request. Returns store.ErrNotFound if missing.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.LeaveRequest, error) {
	var r models.LeaveRequest
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		return nil, store.Unavailable(err)
	}
	return &r, nil
}

// Find returns requests matching f, newest first.
func (s *Store) Find(ctx context.Context, f store.RequestFilter) ([]models.LeaveRequest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	cur, err := s.c.Find(ctx, f.Query(), opts)
	if err != nil {
		return nil, store.Unavailable(err)
	}
	defer cur.Close(ctx)

	out := []models.LeaveRequest{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, store.Unavailable(err)
	}
	return out, nil
}

// UpdateIfStatus applies upd only while the stored status still equals
// expected, and returns the updated document. The status check and the write
// are one findAndModify, so two racing transitions cannot both succeed.
//
// Returns store.ErrNotFound when id does not exist and store.ErrConflict when
// the status has moved on.
func (s *Store) UpdateIfStatus(ctx context.Context, id primitive.ObjectID, expected models.LeaveStatus, upd store.RequestUpdate) (*models.LeaveRequest, error) {
	if upd.UpdatedAt.IsZero() {
		upd.UpdatedAt = time.Now().UTC()
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var out models.LeaveRequest
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": expected},
		bson.M{"$set": upd.Set()},
		opts,
	).Decode(&out)
	if err == nil {
		return &out, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, store.Unavailable(err)
	}

	n, cerr := s.c.CountDocuments(ctx, bson.M{"_id": id})
	if cerr != nil {
		return nil, store.Unavailable(cerr)
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrConflict
}
