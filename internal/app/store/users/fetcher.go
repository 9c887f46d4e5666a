package userstore

import (
	"context"

	"github.com/dalemusser/leavedesk/internal/app/system/auth"
	"github.com/dalemusser/leavedesk/internal/app/system/timeouts"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Getter loads one user. Both the Mongo store and the memory backend
// satisfy it.
type Getter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// Fetcher implements auth.UserFetcher to load fresh user data on each request.
type Fetcher struct {
	users Getter
}

// NewFetcher creates a UserFetcher over users.
func NewFetcher(users Getter) *Fetcher {
	return &Fetcher{users: users}
}

// FetchUser retrieves a user by ID and returns nil if the user is not found,
// inactive, or if any error occurs. This implements auth.UserFetcher.
func (f *Fetcher) FetchUser(ctx context.Context, userID string) *auth.SessionUser {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	u, err := f.users.GetByID(ctx, oid)
	if err != nil || !u.IsActive {
		return nil
	}
	return SessionUser(u)
}

// SessionUser converts a stored user into the session identity.
func SessionUser(u *models.User) *auth.SessionUser {
	su := &auth.SessionUser{
		ID:         u.ID.Hex(),
		Name:       u.FullName,
		Email:      u.Email,
		Role:       u.Role,
		Department: u.Department,
	}
	if u.ManagerID != nil && !u.ManagerID.IsZero() {
		su.ManagerID = u.ManagerID.Hex()
	}
	return su
}
