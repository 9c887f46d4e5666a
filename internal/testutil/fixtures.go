package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/leavedesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts an active user with the given role and balances.
func (f *Fixtures) CreateUser(ctx context.Context, fullName, email, role string, balances map[string]int) models.User {
	f.t.Helper()
	return f.insertUser(ctx, models.User{FullName: fullName, Email: email, Role: role, LeaveBalances: balances})
}

// CreateEmployee inserts an employee reporting to managerID in department.
func (f *Fixtures) CreateEmployee(ctx context.Context, fullName, email, department string, managerID *primitive.ObjectID, balances map[string]int) models.User {
	f.t.Helper()
	return f.insertUser(ctx, models.User{
		FullName: fullName, Email: email, Role: models.RoleEmployee,
		Department: department, ManagerID: managerID, LeaveBalances: balances,
	})
}

// CreateManager inserts a manager in department.
func (f *Fixtures) CreateManager(ctx context.Context, fullName, email, department string) models.User {
	f.t.Helper()
	return f.insertUser(ctx, models.User{FullName: fullName, Email: email, Role: models.RoleManager, Department: department})
}

// CreateHR inserts an HR user.
func (f *Fixtures) CreateHR(ctx context.Context, fullName, email string) models.User {
	f.t.Helper()
	return f.insertUser(ctx, models.User{FullName: fullName, Email: email, Role: models.RoleHR})
}

func (f *Fixtures) insertUser(ctx context.Context, user models.User) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	user.ID = primitive.NewObjectID()
	user.FullNameCI = text.Fold(user.FullName)
	user.IsActive = true
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.LeaveBalances == nil {
		user.LeaveBalances = map[string]int{}
	}

	if _, err := f.db.Collection("users").InsertOne(ctx, user); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateLeaveType inserts an active leave type.
func (f *Fixtures) CreateLeaveType(ctx context.Context, name, label string, defaultDays int) models.LeaveType {
	f.t.Helper()

	now := time.Now().UTC()
	lt := models.LeaveType{
		ID:               primitive.NewObjectID(),
		Name:             name,
		Label:            label,
		DefaultDays:      defaultDays,
		RequiresApproval: true,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if _, err := f.db.Collection("leave_types").InsertOne(ctx, lt); err != nil {
		f.t.Fatalf("failed to create test leave type: %v", err)
	}
	return lt
}

// CreateLeaveRequest inserts a request for user with the given status.
func (f *Fixtures) CreateLeaveRequest(ctx context.Context, user models.User, leaveType string, start, end time.Time, days int, status models.LeaveStatus) models.LeaveRequest {
	f.t.Helper()

	now := time.Now().UTC()
	r := models.LeaveRequest{
		ID:         primitive.NewObjectID(),
		UserID:     user.ID,
		UserName:   user.FullName,
		UserEmail:  user.Email,
		Department: user.Department,
		ManagerID:  user.ManagerID,
		LeaveType:  leaveType,
		StartDate:  start,
		EndDate:    end,
		Days:       days,
		Reason:     "test",
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := f.db.Collection("leave_requests").InsertOne(ctx, r); err != nil {
		f.t.Fatalf("failed to create test leave request: %v", err)
	}
	return r
}
