package userstore_test

import (
	"errors"
	"testing"

	"github.com/dalemusser/leavedesk/internal/app/store"
	userstore "github.com/dalemusser/leavedesk/internal/app/store/users"
	"github.com/dalemusser/leavedesk/internal/app/system/indexes"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"github.com/dalemusser/leavedesk/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestStore_Create_Normalizes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := users.Create(ctx, models.User{
		FullName:   "  José Álvarez ",
		Email:      "  Jose@Example.COM ",
		Role:       models.RoleEmployee,
		Department: " ENG ",
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if created.ID == primitive.NilObjectID {
		t.Error("expected ID to be assigned")
	}
	if created.FullName != "José Álvarez" {
		t.Errorf("FullName: got %q", created.FullName)
	}
	if created.FullNameCI != "jose alvarez" {
		t.Errorf("FullNameCI: got %q", created.FullNameCI)
	}
	if created.Email != "jose@example.com" {
		t.Errorf("Email: got %q", created.Email)
	}
	if created.Department != "ENG" {
		t.Errorf("Department: got %q", created.Department)
	}
	if created.LeaveBalances == nil {
		t.Error("expected LeaveBalances to be initialized")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}

	got, err := users.GetByEmail(ctx, "JOSE@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("GetByEmail returned %s, want %s", got.ID.Hex(), created.ID.Hex())
	}
}

func TestStore_Create_RejectsBadInput(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := users.Create(ctx, models.User{FullName: "X", Email: "x@example.com", Role: "admin"}); !errors.Is(err, userstore.ErrBadRole) {
		t.Errorf("bad role: got %v, want ErrBadRole", err)
	}
	if _, err := users.Create(ctx, models.User{FullName: "X", Email: "  ", Role: models.RoleHR}); !errors.Is(err, userstore.ErrNoEmail) {
		t.Errorf("no email: got %v, want ErrNoEmail", err)
	}
}

func TestStore_Create_DuplicateEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	users := userstore.New(db)

	if _, err := users.Create(ctx, models.User{FullName: "A", Email: "dup@example.com", Role: models.RoleEmployee}); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	_, err := users.Create(ctx, models.User{FullName: "B", Email: "DUP@example.com", Role: models.RoleEmployee})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestStore_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := users.GetByID(ctx, primitive.NewObjectID())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SetRoleAndActive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := userstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := fixtures.CreateUser(ctx, "Pat", "pat@example.com", models.RoleEmployee, nil)

	if err := users.SetRole(ctx, u.ID, models.RoleManager); err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	if err := users.SetRole(ctx, u.ID, "root"); !errors.Is(err, userstore.ErrBadRole) {
		t.Errorf("SetRole(root): got %v", err)
	}
	if err := users.SetActive(ctx, u.ID, false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if err := users.SetActive(ctx, primitive.NewObjectID(), false); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetActive(missing): got %v", err)
	}

	got, err := users.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Role != models.RoleManager {
		t.Errorf("role: got %q", got.Role)
	}
	if got.IsActive {
		t.Error("expected user to be inactive")
	}
}

func TestStore_UpdatePassword(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := userstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := fixtures.CreateUser(ctx, "Pat", "pat@example.com", models.RoleEmployee, nil)

	if err := users.UpdatePassword(ctx, u.ID, "$2a$10$hash"); err != nil {
		t.Fatalf("UpdatePassword failed: %v", err)
	}
	got, err := users.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.PasswordHash != "$2a$10$hash" {
		t.Errorf("password_hash: got %q", got.PasswordHash)
	}
	if err := users.UpdatePassword(ctx, primitive.NewObjectID(), "x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdatePassword(missing): got %v", err)
	}
}

func TestStore_ListActive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := userstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fixtures.CreateUser(ctx, "Zed", "zed@example.com", models.RoleEmployee, nil)
	fixtures.CreateUser(ctx, "Amy", "amy@example.com", models.RoleEmployee, nil)
	gone := fixtures.CreateUser(ctx, "Bea", "bea@example.com", models.RoleEmployee, nil)
	if err := users.SetActive(ctx, gone.ID, false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	list, err := users.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 active users, got %d", len(list))
	}
	if list[0].FullName != "Amy" || list[1].FullName != "Zed" {
		t.Errorf("unexpected order: %q, %q", list[0].FullName, list[1].FullName)
	}
}

func TestStore_DecrementBalance_Guarded(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := userstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := fixtures.CreateUser(ctx, "Pat", "pat@example.com", models.RoleEmployee, map[string]int{"vacation": 5})

	if err := users.DecrementBalance(ctx, u.ID, "vacation", 3); err != nil {
		t.Fatalf("DecrementBalance failed: %v", err)
	}
	if err := users.DecrementBalance(ctx, u.ID, "vacation", 3); !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := users.DecrementBalance(ctx, u.ID, "sick", 1); !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("missing key: expected ErrInsufficientBalance, got %v", err)
	}
	if err := users.DecrementBalance(ctx, primitive.NewObjectID(), "vacation", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing user: expected ErrNotFound, got %v", err)
	}
	if err := users.DecrementBalance(ctx, u.ID, "a.b", 1); err == nil {
		t.Fatal("expected dotted key to be rejected")
	}

	if err := users.IncrementBalance(ctx, u.ID, "vacation", 3); err != nil {
		t.Fatalf("IncrementBalance failed: %v", err)
	}
	got, err := users.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Balance("vacation") != 5 {
		t.Errorf("vacation balance: got %d, want 5", got.Balance("vacation"))
	}
}

func TestStore_ReplaceBalances(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := userstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := fixtures.CreateUser(ctx, "A", "a@example.com", models.RoleEmployee, map[string]int{"vacation": 1, "old": 4})
	b := fixtures.CreateUser(ctx, "B", "b@example.com", models.RoleEmployee, nil)

	want := map[string]int{"vacation": 20, "sick": 10}
	err := users.ReplaceBalances(ctx, []store.BalanceSet{
		{UserID: a.ID, Balances: want},
		{UserID: b.ID, Balances: want},
	})
	if err != nil {
		t.Fatalf("ReplaceBalances failed: %v", err)
	}

	for _, id := range []primitive.ObjectID{a.ID, b.ID} {
		got, err := users.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if len(got.LeaveBalances) != 2 || got.Balance("vacation") != 20 || got.Balance("sick") != 10 {
			t.Errorf("balances for %s: got %v", id.Hex(), got.LeaveBalances)
		}
	}

	err = users.ReplaceBalances(ctx, []store.BalanceSet{{UserID: primitive.NewObjectID(), Balances: want}})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown user: got %v, want ErrNotFound", err)
	}
}

func TestFetcher_FetchUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	users := userstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	mgr := fixtures.CreateManager(ctx, "Maria", "maria@example.com", "ENG")
	emp := fixtures.CreateEmployee(ctx, "Alice", "alice@example.com", "ENG", &mgr.ID, nil)

	f := userstore.NewFetcher(users)
	su := f.FetchUser(ctx, emp.ID.Hex())
	if su == nil {
		t.Fatal("expected session user")
	}
	if su.Role != models.RoleEmployee || su.Department != "ENG" || su.ManagerID != mgr.ID.Hex() {
		t.Errorf("unexpected session user: %+v", su)
	}

	if f.FetchUser(ctx, "not-an-id") != nil {
		t.Error("expected nil for malformed id")
	}
	if err := users.SetActive(ctx, emp.ID, false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if f.FetchUser(ctx, emp.ID.Hex()) != nil {
		t.Error("expected nil for inactive user")
	}
}
