package balances_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/dalemusser/leavedesk/internal/app/features/balances"
	"github.com/dalemusser/leavedesk/internal/app/leave"
	"github.com/dalemusser/leavedesk/internal/app/store/memory"
	"github.com/dalemusser/leavedesk/internal/app/system/authz"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"github.com/dalemusser/leavedesk/internal/testutil"
	"go.uber.org/zap"
)

type env struct {
	router http.Handler
	svc    *leave.Service
	db     *memory.DB
	emp    models.User
	hr     models.User
}

func newEnv(t *testing.T) env {
	t.Helper()
	ctx := context.Background()
	db := memory.New()
	svc := leave.New(leave.Backend{
		Users: db.Users(), LeaveTypes: db.LeaveTypes(), Requests: db.Requests(), Tx: db.Tx(),
	}, leave.Config{Gate: authz.DefaultGate()}, zap.NewNop())
	if _, err := svc.Registry.SeedDefaults(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	emp, err := db.Users().Create(ctx, models.User{
		FullName: "Alice", Email: "alice@example.com", Role: models.RoleEmployee, IsActive: true,
		LeaveBalances: map[string]int{"vacation": 3, "legacy": 2},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	hr, err := db.Users().Create(ctx, models.User{FullName: "Hana", Email: "hana@example.com", Role: models.RoleHR, IsActive: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h := balances.NewHandler(svc, zap.NewNop())
	return env{router: balances.Routes(h, testutil.NewSessionManager(t)), svc: svc, db: db, emp: emp, hr: hr}
}

func (e env) serve(req *http.Request) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type row struct {
	LeaveType string `json:"leave_type"`
	Available int    `json:"available"`
	Active    bool   `json:"active"`
}

func TestServeMine(t *testing.T) {
	e := newEnv(t)
	rec := e.serve(testutil.NewAuthenticatedRequest(http.MethodGet, "/me", testutil.AsTestUser(e.emp)))
	rec.AssertStatus(t, http.StatusOK)

	var body struct {
		Balances []row `json:"balances"`
	}
	rec.DecodeJSON(t, &body)

	got := map[string]row{}
	for _, r := range body.Balances {
		got[r.LeaveType] = r
	}
	if got["vacation"].Available != 3 || !got["vacation"].Active {
		t.Errorf("vacation = %+v", got["vacation"])
	}
	if r, ok := got["sick"]; !ok || r.Available != 0 {
		t.Errorf("active type without balance should be listed at 0, got %+v", r)
	}
	if r, ok := got["legacy"]; !ok || r.Available != 2 || r.Active {
		t.Errorf("unregistered balance should be listed inactive, got %+v", r)
	}
}

func TestReset(t *testing.T) {
	e := newEnv(t)
	hr := testutil.AsTestUser(e.hr)

	e.serve(testutil.NewAuthenticatedRequest(http.MethodPost, "/reset", testutil.AsTestUser(e.emp))).
		AssertStatus(t, http.StatusForbidden)
	e.serve(testutil.NewAuthenticatedRequest(http.MethodPost, "/reset", hr)).
		AssertStatus(t, http.StatusBadRequest)

	rec := e.serve(testutil.NewAuthenticatedRequest(http.MethodPost, "/reset?confirm=true", hr))
	rec.AssertStatus(t, http.StatusOK)
	var body struct {
		UsersReset int `json:"users_reset"`
	}
	rec.DecodeJSON(t, &body)
	if body.UsersReset != 2 {
		t.Errorf("users_reset = %d, want 2", body.UsersReset)
	}

	bal, err := e.svc.Ledger.Balances(context.Background(), e.emp.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if bal["vacation"] != 20 || bal["sick"] != 10 {
		t.Errorf("balances after reset = %v", bal)
	}
	if _, ok := bal["legacy"]; ok {
		t.Error("reset should drop types outside the active registry")
	}
}

func TestReset_StoreFailureChangesNothing(t *testing.T) {
	e := newEnv(t)
	e.db.FailNext("users.replace", context.DeadlineExceeded)

	rec := e.serve(testutil.NewAuthenticatedRequest(http.MethodPost, "/reset?confirm=true", testutil.AsTestUser(e.hr)))
	rec.AssertStatus(t, http.StatusServiceUnavailable)

	bal, _ := e.svc.Ledger.Balances(context.Background(), e.emp.ID)
	if bal["vacation"] != 3 {
		t.Errorf("vacation = %d, want 3", bal["vacation"])
	}
}
