package leave_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/leavedesk/internal/app/leave"
	"github.com/dalemusser/leavedesk/internal/app/store/memory"
	"github.com/dalemusser/leavedesk/internal/app/system/authz"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Monday 3 March 2025, 09:00 UTC.
var testNow = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type env struct {
	db  *memory.DB
	svc *leave.Service
	ctx context.Context
	rec *recorder

	manager  models.User
	employee models.User
	peer     models.User
	hr       models.User
	hr2      models.User
	solo     models.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := memory.New()
	svc := leave.New(leave.Backend{
		Users:      db.Users(),
		LeaveTypes: db.LeaveTypes(),
		Requests:   db.Requests(),
		Tx:         db.Tx(),
	}, leave.Config{
		Gate: authz.DefaultGate(),
		Now:  func() time.Time { return testNow },
	}, zap.NewNop())

	e := &env{db: db, svc: svc, ctx: context.Background(), rec: &recorder{}}
	svc.SetListener(e.rec)

	seeded, err := svc.Registry.SeedDefaults(e.ctx)
	require.NoError(t, err)
	require.True(t, seeded)

	e.manager = e.addUser(t, models.User{
		FullName: "Maria Manager", Email: "maria@example.com", Role: models.RoleManager,
		Department: "ENG", LeaveBalances: map[string]int{"vacation": 20},
	})
	e.employee = e.addUser(t, models.User{
		FullName: "Alice Employee", Email: "alice@example.com", Role: models.RoleEmployee,
		Department: "ENG", ManagerID: &e.manager.ID,
		LeaveBalances: map[string]int{"vacation": 5, "sick": 10},
	})
	e.peer = e.addUser(t, models.User{
		FullName: "Bob Peer", Email: "bob@example.com", Role: models.RoleEmployee,
		Department: "ENG", ManagerID: &e.manager.ID,
		LeaveBalances: map[string]int{"vacation": 20},
	})
	e.hr = e.addUser(t, models.User{FullName: "Hana HR", Email: "hana@example.com", Role: models.RoleHR, LeaveBalances: map[string]int{"vacation": 20}})
	e.hr2 = e.addUser(t, models.User{FullName: "Hugo HR", Email: "hugo@example.com", Role: models.RoleHR})
	e.solo = e.addUser(t, models.User{
		FullName: "Sam Solo", Email: "sam@example.com", Role: models.RoleEmployee,
		LeaveBalances: map[string]int{"vacation": 10},
	})
	return e
}

func (e *env) addUser(t *testing.T, u models.User) models.User {
	t.Helper()
	u.ID = primitive.NewObjectID()
	u.IsActive = true
	out, err := e.db.Users().Create(e.ctx, u)
	require.NoError(t, err)
	return out
}

func actor(u models.User) authz.Actor { return authz.ActorFromUser(u) }

func (e *env) balance(t *testing.T, u models.User, leaveType string) int {
	t.Helper()
	n, err := e.svc.Ledger.Available(e.ctx, u.ID, leaveType)
	require.NoError(t, err)
	return n
}

func (e *env) stored(t *testing.T, id primitive.ObjectID) models.LeaveRequest {
	t.Helper()
	r, err := e.db.Requests().GetByID(e.ctx, id)
	require.NoError(t, err)
	return *r
}

// submit creates a vacation request from start to end for u.
func (e *env) submit(t *testing.T, u models.User, start, end string) models.LeaveRequest {
	t.Helper()
	r, err := e.svc.CreateRequest(e.ctx, u, leave.Draft{
		LeaveType: "vacation",
		StartDate: date(start),
		EndDate:   date(end),
		Reason:    "family trip",
	})
	require.NoError(t, err)
	return r
}

// approveFully runs a request through both stages.
func (e *env) approveFully(t *testing.T, r models.LeaveRequest) models.LeaveRequest {
	t.Helper()
	if r.HasManager() {
		_, err := e.svc.ManagerDecide(e.ctx, actor(e.manager), r.ID, leave.Approve, "")
		require.NoError(t, err)
	}
	out, err := e.svc.HRConfirm(e.ctx, actor(e.hr), r.ID, leave.Approve, "")
	require.NoError(t, err)
	return out
}

type recorder struct {
	leave.NopListener
	mu      sync.Mutex
	actions []leave.Action
	resets  int
}

func (r *recorder) RequestChanged(_ context.Context, ev leave.RequestEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, ev.Action)
}

func (r *recorder) BalancesReset(context.Context, authz.Actor, int, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
}

func (r *recorder) seen() []leave.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]leave.Action(nil), r.actions...)
}
