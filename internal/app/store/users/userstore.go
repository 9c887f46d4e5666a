package userstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetByID loads a user by ObjectID. Returns store.ErrNotFound if missing.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, store.Unavailable(err)
	}
	return &u, nil
}

// GetByEmail looks up a user by case-insensitive email. Returns store.ErrNotFound if missing.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"email": NormalizeEmail(email)}).Decode(&u); err != nil {
		return nil, store.Unavailable(err)
	}
	return &u, nil
}

var (
	ErrBadRole  = errors.New(`role must be "employee"|"manager"|"hr"`)
	ErrNoEmail  = errors.New("email is required")
	errBadBlank = errors.New("leave type key must be a non-empty code without '.' or '$'")
)

// Create inserts a new user after normalizing & validating fields.
// Returns store.ErrDuplicate when the email is taken.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u, err := Prepare(u, time.Now().UTC())
	if err != nil {
		return models.User{}, err
	}
	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, store.ErrDuplicate
		}
		return models.User{}, store.Unavailable(err)
	}
	return u, nil
}

// Prepare normalizes a new user record and checks role and email.
// It is shared by every users backend.
func Prepare(u models.User, now time.Time) (models.User, error) {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.FullName = strings.TrimSpace(u.FullName)
	u.FullNameCI = text.Fold(u.FullName)
	u.Email = NormalizeEmail(u.Email)
	u.Department = strings.TrimSpace(u.Department)
	if u.Email == "" {
		return models.User{}, ErrNoEmail
	}
	if !models.IsValidRole(u.Role) {
		return models.User{}, ErrBadRole
	}
	if u.LeaveBalances == nil {
		u.LeaveBalances = map[string]int{}
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	return u, nil
}

// SetRole changes a user's role.
func (s *Store) SetRole(ctx context.Context, id primitive.ObjectID, role string) error {
	if !models.IsValidRole(role) {
		return ErrBadRole
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"role":       role,
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

// SetActive enables or disables a user. Inactive users cannot sign in and
// their requests cannot be decided.
func (s *Store) SetActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
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

// UpdatePassword replaces the stored bcrypt hash.
func (s *Store) UpdatePassword(ctx context.Context, id primitive.ObjectID, hash string) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"password_hash": hash,
		"updated_at":    time.Now().UTC(),
	}})
	if err != nil {
		return store.Unavailable(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListActive returns every active user ordered by name.
func (s *Store) ListActive(ctx context.Context) ([]models.User, error) {
	cur, err := s.c.Find(ctx, bson.M{"is_active": true},
		options.Find().SetSort(bson.D{{Key: "full_name_ci", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, store.Unavailable(err)
	}
	defer cur.Close(ctx)

	var out []models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, store.Unavailable(err)
	}
	return out, nil
}

// BalanceKey returns the dotted path of leaveType inside leave_balances.
func BalanceKey(leaveType string) (string, error) {
	if leaveType == "" || strings.ContainsAny(leaveType, ".$") {
		return "", errBadBlank
	}
	return "leave_balances." + leaveType, nil
}

// DecrementBalance atomically subtracts days from the user's balance for
// leaveType. The availability check and the decrement are one update: the
// filter only matches while the balance is at least days.
// Returns store.ErrInsufficientBalance when the guard fails.
func (s *Store) DecrementBalance(ctx context.Context, id primitive.ObjectID, leaveType string, days int) error {
	key, err := BalanceKey(leaveType)
	if err != nil {
		return err
	}
	filter := bson.M{"_id": id, key: bson.M{"$gte": days}}
	update := bson.M{
		"$inc": bson.M{key: -days},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := s.c.UpdateOne(ctx, filter, update)
	if err != nil {
		return store.Unavailable(err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return store.Unavailable(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrInsufficientBalance
}

// IncrementBalance credits days back to the user's balance for leaveType.
func (s *Store) IncrementBalance(ctx context.Context, id primitive.ObjectID, leaveType string, days int) error {
	key, err := BalanceKey(leaveType)
	if err != nil {
		return err
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{key: days},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return store.Unavailable(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ReplaceBalances overwrites the balance map of every listed user in one
// ordered bulk write. Run it inside txn.Run for all-or-nothing semantics.
func (s *Store) ReplaceBalances(ctx context.Context, sets []store.BalanceSet) error {
	if len(sets) == 0 {
		return nil
	}
	now := time.Now().UTC()
	writes := make([]mongo.WriteModel, 0, len(sets))
	for _, bs := range sets {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": bs.UserID}).
			SetUpdate(bson.M{"$set": bson.M{
				"leave_balances": bs.Balances,
				"updated_at":     now,
			}}))
	}
	res, err := s.c.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return store.Unavailable(err)
	}
	if res.MatchedCount != int64(len(sets)) {
		return fmt.Errorf("replace balances: matched %d of %d users: %w", res.MatchedCount, len(sets), store.ErrNotFound)
	}
	return nil
}
