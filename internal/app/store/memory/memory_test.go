package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/app/store/memory"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seedUser(t *testing.T, db *memory.DB, email string, vacation int) models.User {
	t.Helper()
	u, err := db.Users().Create(context.Background(), models.User{
		FullName:      "Test User",
		Email:         email,
		Role:          models.RoleEmployee,
		IsActive:      true,
		LeaveBalances: map[string]int{"vacation": vacation},
	})
	require.NoError(t, err)
	return u
}

func seedRequest(t *testing.T, db *memory.DB, userID primitive.ObjectID) models.LeaveRequest {
	t.Helper()
	r, err := db.Requests().Create(context.Background(), models.LeaveRequest{
		UserID:    userID,
		LeaveType: "vacation",
		Days:      2,
		Reason:    "trip",
		Status:    models.StatusPending,
	})
	require.NoError(t, err)
	return r
}

func balance(t *testing.T, db *memory.DB, id primitive.ObjectID) int {
	t.Helper()
	u, err := db.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	return u.LeaveBalances["vacation"]
}

func TestUsers_CreateRejectsDuplicateEmail(t *testing.T) {
	db := memory.New()
	seedUser(t, db, "ann@example.com", 1)

	_, err := db.Users().Create(context.Background(), models.User{
		FullName: "Ann Again", Email: "  ANN@example.com", Role: models.RoleEmployee,
	})
	require.ErrorIs(t, err, store.ErrDuplicate)
}

func TestUsers_DecrementBalanceIsGuarded(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	u := seedUser(t, db, "ann@example.com", 3)

	require.NoError(t, db.Users().DecrementBalance(ctx, u.ID, "vacation", 2))
	assert.Equal(t, 1, balance(t, db, u.ID))

	err := db.Users().DecrementBalance(ctx, u.ID, "vacation", 2)
	require.ErrorIs(t, err, store.ErrInsufficientBalance)
	assert.Equal(t, 1, balance(t, db, u.ID))

	err = db.Users().DecrementBalance(ctx, u.ID, "sick", 1)
	require.ErrorIs(t, err, store.ErrInsufficientBalance, "absent type has no balance")

	err = db.Users().DecrementBalance(ctx, primitive.NewObjectID(), "vacation", 1)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.Error(t, db.Users().DecrementBalance(ctx, u.ID, "bad.key", 1))
}

func TestUsers_GetByIDReturnsCopy(t *testing.T) {
	db := memory.New()
	u := seedUser(t, db, "ann@example.com", 4)

	got, err := db.Users().GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	got.LeaveBalances["vacation"] = 99

	assert.Equal(t, 4, balance(t, db, u.ID))
}

func TestRequests_UpdateIfStatus(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	u := seedUser(t, db, "ann@example.com", 5)
	r := seedRequest(t, db, u.ID)

	approved := models.StatusManagerApproved
	upd := store.RequestUpdate{Status: &approved}

	_, err := db.Requests().UpdateIfStatus(ctx, r.ID, models.StatusManagerApproved, upd)
	require.ErrorIs(t, err, store.ErrConflict)
	stored, err := db.Requests().GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)

	out, err := db.Requests().UpdateIfStatus(ctx, r.ID, models.StatusPending, upd)
	require.NoError(t, err)
	assert.Equal(t, models.StatusManagerApproved, out.Status)
	assert.False(t, out.UpdatedAt.IsZero())

	// the expected status is re-checked on every write
	_, err = db.Requests().UpdateIfStatus(ctx, r.ID, models.StatusPending, upd)
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = db.Requests().UpdateIfStatus(ctx, primitive.NewObjectID(), models.StatusPending, upd)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTx_UndoesAllWritesOnError(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	u := seedUser(t, db, "ann@example.com", 5)
	r := seedRequest(t, db, u.ID)

	boom := errors.New("boom")
	approved := models.StatusApproved
	var created models.User
	err := db.Tx().Run(ctx, func(ctx context.Context) error {
		if err := db.Users().DecrementBalance(ctx, u.ID, "vacation", 2); err != nil {
			return err
		}
		if _, err := db.Requests().UpdateIfStatus(ctx, r.ID, models.StatusPending, store.RequestUpdate{Status: &approved}); err != nil {
			return err
		}
		var err error
		created, err = db.Users().Create(ctx, models.User{FullName: "Bea", Email: "bea@example.com", Role: models.RoleEmployee})
		if err != nil {
			return err
		}
		// a nested run joins the outer one
		if err := db.Tx().Run(ctx, func(ctx context.Context) error {
			return db.Users().IncrementBalance(ctx, u.ID, "vacation", 10)
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 5, balance(t, db, u.ID))
	stored, err := db.Requests().GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	_, err = db.Users().GetByID(ctx, created.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTx_KeepsWritesOnSuccess(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	u := seedUser(t, db, "ann@example.com", 5)

	err := db.Tx().Run(ctx, func(ctx context.Context) error {
		return db.Users().DecrementBalance(ctx, u.ID, "vacation", 3)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, balance(t, db, u.ID))
}

func TestFailNext_FiresOnce(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	u := seedUser(t, db, "ann@example.com", 5)
	r := seedRequest(t, db, u.ID)

	injected := store.Unavailable(errors.New("connection reset"))
	db.FailNext("requests.update", injected)

	cancelled := models.StatusCancelled
	upd := store.RequestUpdate{Status: &cancelled}
	_, err := db.Requests().UpdateIfStatus(ctx, r.ID, models.StatusPending, upd)
	require.ErrorIs(t, err, store.ErrUnavailable)

	out, err := db.Requests().UpdateIfStatus(ctx, r.ID, models.StatusPending, upd)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, out.Status)
}
