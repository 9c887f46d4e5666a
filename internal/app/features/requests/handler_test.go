package requests_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/leavedesk/internal/app/features/requests"
	"github.com/dalemusser/leavedesk/internal/app/leave"
	"github.com/dalemusser/leavedesk/internal/app/store/audit"
	"github.com/dalemusser/leavedesk/internal/app/store/memory"
	"github.com/dalemusser/leavedesk/internal/app/system/authz"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"github.com/dalemusser/leavedesk/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Monday 3 March 2025.
var testNow = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

type env struct {
	t       *testing.T
	db      *memory.DB
	svc     *leave.Service
	handler http.Handler

	manager, employee, peer, hr models.User
}

func newEnv(t *testing.T, history requests.History) *env {
	t.Helper()
	db := memory.New()
	svc := leave.New(leave.Backend{
		Users:      db.Users(),
		LeaveTypes: db.LeaveTypes(),
		Requests:   db.Requests(),
		Tx:         db.Tx(),
	}, leave.Config{Gate: authz.DefaultGate(), Now: func() time.Time { return testNow }}, zap.NewNop())
	if _, err := svc.Registry.SeedDefaults(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	e := &env{t: t, db: db, svc: svc}
	h := requests.NewHandler(svc, db.Users(), history, zap.NewNop())
	e.handler = requests.Routes(h, testutil.NewSessionManager(t))

	e.manager = e.add(models.User{FullName: "Maria Manager", Email: "maria@example.com", Role: models.RoleManager, Department: "ENG"})
	e.employee = e.add(models.User{
		FullName: "Alice Employee", Email: "alice@example.com", Role: models.RoleEmployee,
		Department: "ENG", ManagerID: &e.manager.ID, LeaveBalances: map[string]int{"vacation": 5},
	})
	e.peer = e.add(models.User{
		FullName: "Bob Peer", Email: "bob@example.com", Role: models.RoleEmployee,
		Department: "ENG", ManagerID: &e.manager.ID, LeaveBalances: map[string]int{"vacation": 5},
	})
	e.hr = e.add(models.User{FullName: "Hana HR", Email: "hana@example.com", Role: models.RoleHR})
	return e
}

func (e *env) add(u models.User) models.User {
	e.t.Helper()
	u.IsActive = true
	out, err := e.db.Users().Create(context.Background(), u)
	if err != nil {
		e.t.Fatalf("create user: %v", err)
	}
	return out
}

func (e *env) do(as *models.User, method, target string, body any) *testutil.ResponseRecorder {
	e.t.Helper()
	req := testutil.NewJSONRequest(method, target, body)
	if as != nil {
		req = testutil.WithUser(req, testutil.AsTestUser(*as))
	}
	rec := testutil.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *env) create(as models.User, start, end string) models.LeaveRequest {
	e.t.Helper()
	rec := e.do(&as, http.MethodPost, "/", map[string]any{
		"leave_type": "vacation",
		"start_date": start,
		"end_date":   end,
		"reason":     "family trip",
	})
	rec.AssertStatus(e.t, http.StatusCreated)
	var out models.LeaveRequest
	rec.DecodeJSON(e.t, &out)
	return out
}

func (e *env) balance(u models.User) int {
	e.t.Helper()
	n, err := e.svc.Ledger.Available(context.Background(), u.ID, "vacation")
	if err != nil {
		e.t.Fatalf("balance: %v", err)
	}
	return n
}

type errorBody struct {
	Error struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
		Meta   map[string]any    `json:"meta"`
	} `json:"error"`
}

func TestCreate(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(&e.employee, http.MethodPost, "/", map[string]any{
		"leave_type": "Vacation",
		"start_date": "2025-03-05",
		"end_date":   "2025-03-06",
		"reason":     "<b>family</b> trip",
	})
	rec.AssertStatus(t, http.StatusCreated)

	var out models.LeaveRequest
	rec.DecodeJSON(t, &out)
	if out.Status != models.StatusPending || out.Days != 2 || out.LeaveType != "vacation" {
		t.Errorf("got %+v", out)
	}
	if out.Reason != "family trip" {
		t.Errorf("reason = %q, want markup stripped", out.Reason)
	}
	if out.ManagerID == nil || *out.ManagerID != e.manager.ID {
		t.Errorf("manager snapshot = %v", out.ManagerID)
	}
	if got := e.balance(e.employee); got != 5 {
		t.Errorf("balance changed on submit: %d", got)
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		status int
		field  string
		code   string
	}{
		{"bad date format", map[string]any{"leave_type": "vacation", "start_date": "03/05/2025", "end_date": "2025-03-06", "reason": "x"}, http.StatusUnprocessableEntity, "start_date", "validation_error"},
		{"past date", map[string]any{"leave_type": "vacation", "start_date": "2025-02-28", "end_date": "2025-03-04", "reason": "x"}, http.StatusUnprocessableEntity, "start_date", "validation_error"},
		{"unknown type", map[string]any{"leave_type": "sabbatical", "start_date": "2025-03-05", "end_date": "2025-03-05", "reason": "x"}, http.StatusUnprocessableEntity, "leave_type", "validation_error"},
		{"reason only markup", map[string]any{"leave_type": "vacation", "start_date": "2025-03-05", "end_date": "2025-03-05", "reason": "<br>"}, http.StatusUnprocessableEntity, "reason", "validation_error"},
		{"too many days", map[string]any{"leave_type": "vacation", "start_date": "2025-03-04", "end_date": "2025-03-12", "reason": "x"}, http.StatusUnprocessableEntity, "", "insufficient_balance"},
		{"unknown field", map[string]any{"leave_type": "vacation", "days": 3}, http.StatusBadRequest, "", "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, nil)
			rec := e.do(&e.employee, http.MethodPost, "/", tt.body)
			rec.AssertStatus(t, tt.status)

			var b errorBody
			rec.DecodeJSON(t, &b)
			if b.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", b.Error.Code, tt.code)
			}
			if tt.field != "" {
				if _, ok := b.Error.Fields[tt.field]; !ok {
					t.Errorf("fields = %v, want %s", b.Error.Fields, tt.field)
				}
			}
		})
	}
}

func TestRequiresSignIn(t *testing.T) {
	e := newEnv(t, nil)
	e.do(nil, http.MethodGet, "/", nil).AssertStatus(t, http.StatusUnauthorized)
	e.do(nil, http.MethodPost, "/", map[string]any{}).AssertStatus(t, http.StatusUnauthorized)
}

func TestGet_Visibility(t *testing.T) {
	e := newEnv(t, nil)
	req := e.create(e.employee, "2025-03-05", "2025-03-05")
	path := "/" + req.ID.Hex()

	e.do(&e.employee, http.MethodGet, path, nil).AssertStatus(t, http.StatusOK)
	e.do(&e.manager, http.MethodGet, path, nil).AssertStatus(t, http.StatusOK)
	e.do(&e.hr, http.MethodGet, path, nil).AssertStatus(t, http.StatusOK)
	e.do(&e.peer, http.MethodGet, path, nil).AssertStatus(t, http.StatusNotFound)

	e.do(&e.hr, http.MethodGet, "/not-an-id", nil).AssertStatus(t, http.StatusNotFound)
	e.do(&e.hr, http.MethodGet, "/"+primitive.NewObjectID().Hex(), nil).AssertStatus(t, http.StatusNotFound)
}

func TestList(t *testing.T) {
	e := newEnv(t, nil)
	e.create(e.employee, "2025-03-05", "2025-03-05")
	e.create(e.peer, "2025-03-06", "2025-03-06")

	count := func(as models.User, query string) int {
		t.Helper()
		rec := e.do(&as, http.MethodGet, "/"+query, nil)
		rec.AssertStatus(t, http.StatusOK)
		var out struct {
			Requests []models.LeaveRequest `json:"requests"`
		}
		rec.DecodeJSON(t, &out)
		return len(out.Requests)
	}

	if n := count(e.employee, ""); n != 1 {
		t.Errorf("employee sees %d, want 1", n)
	}
	if n := count(e.manager, "?scope=team"); n != 2 {
		t.Errorf("manager team sees %d, want 2", n)
	}
	if n := count(e.manager, "?scope=mine"); n != 0 {
		t.Errorf("manager mine sees %d, want 0", n)
	}
	if n := count(e.hr, "?status=pending,approved"); n != 2 {
		t.Errorf("hr sees %d, want 2", n)
	}
	if n := count(e.hr, "?status=approved"); n != 0 {
		t.Errorf("hr approved sees %d, want 0", n)
	}
	if n := count(e.employee, "?scope=team"); n != 0 {
		t.Errorf("employee team sees %d, want 0", n)
	}

	e.do(&e.hr, http.MethodGet, "/?scope=everyone", nil).AssertStatus(t, http.StatusBadRequest)
	e.do(&e.hr, http.MethodGet, "/?status=done", nil).AssertStatus(t, http.StatusBadRequest)
	e.do(&e.hr, http.MethodGet, "/?limit=-1", nil).AssertStatus(t, http.StatusBadRequest)
}

func TestList_Paging(t *testing.T) {
	e := newEnv(t, nil)
	third := e.create(e.employee, "2025-03-05", "2025-03-05")
	second := e.create(e.employee, "2025-03-06", "2025-03-06")
	first := e.create(e.employee, "2025-03-07", "2025-03-07")

	type page struct {
		Requests   []models.LeaveRequest `json:"requests"`
		NextCursor string                `json:"next_cursor"`
	}
	get := func(query string) page {
		t.Helper()
		rec := e.do(&e.employee, http.MethodGet, "/"+query, nil)
		rec.AssertStatus(t, http.StatusOK)
		var out page
		rec.DecodeJSON(t, &out)
		return out
	}

	p1 := get("?limit=2")
	if len(p1.Requests) != 2 || p1.NextCursor == "" {
		t.Fatalf("first page = %d rows, cursor %q", len(p1.Requests), p1.NextCursor)
	}
	if p1.Requests[0].ID != first.ID || p1.Requests[1].ID != second.ID {
		t.Errorf("first page out of order: %v, %v", p1.Requests[0].ID, p1.Requests[1].ID)
	}

	p2 := get("?limit=2&cursor=" + p1.NextCursor)
	if len(p2.Requests) != 1 || p2.Requests[0].ID != third.ID {
		t.Fatalf("second page = %+v", p2.Requests)
	}
	if p2.NextCursor != "" {
		t.Errorf("last page must not carry a cursor, got %q", p2.NextCursor)
	}

	e.do(&e.employee, http.MethodGet, "/?cursor=not-a-cursor", nil).AssertStatus(t, http.StatusBadRequest)
}

func TestEdit(t *testing.T) {
	e := newEnv(t, nil)
	req := e.create(e.employee, "2025-03-05", "2025-03-05")
	path := "/" + req.ID.Hex()

	rec := e.do(&e.employee, http.MethodPatch, path, map[string]any{"end_date": "2025-03-07"})
	rec.AssertStatus(t, http.StatusOK)
	var out models.LeaveRequest
	rec.DecodeJSON(t, &out)
	if out.Days != 3 {
		t.Errorf("days = %d, want 3", out.Days)
	}

	e.do(&e.manager, http.MethodPatch, path, map[string]any{"reason": "x"}).AssertStatus(t, http.StatusForbidden)
	e.do(&e.employee, http.MethodPatch, path, map[string]any{"end_date": "2025-03-31"}).
		AssertStatus(t, http.StatusUnprocessableEntity)
}

func TestTwoStageApproval(t *testing.T) {
	e := newEnv(t, nil)
	req := e.create(e.employee, "2025-03-05", "2025-03-06")
	path := "/" + req.ID.Hex()

	// hr cannot skip the manager
	rec := e.do(&e.hr, http.MethodPost, path+"/hr-decision", map[string]any{"decision": "approve"})
	rec.AssertStatus(t, http.StatusConflict)

	// peers cannot decide
	e.do(&e.peer, http.MethodPost, path+"/manager-decision", map[string]any{"decision": "approve"}).
		AssertStatus(t, http.StatusForbidden)

	rec = e.do(&e.manager, http.MethodPost, path+"/manager-decision", map[string]any{"decision": "APPROVE", "comments": "ok"})
	rec.AssertStatus(t, http.StatusOK)
	var out models.LeaveRequest
	rec.DecodeJSON(t, &out)
	if out.Status != models.StatusManagerApproved {
		t.Fatalf("status = %s", out.Status)
	}
	if got := e.balance(e.employee); got != 5 {
		t.Errorf("balance after manager approval = %d, want 5", got)
	}

	rec = e.do(&e.hr, http.MethodPost, path+"/hr-decision", map[string]any{"decision": "approve"})
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &out)
	if out.Status != models.StatusApproved {
		t.Fatalf("status = %s", out.Status)
	}
	if got := e.balance(e.employee); got != 3 {
		t.Errorf("balance after final approval = %d, want 3", got)
	}

	// approving again is a conflict and deducts nothing
	e.do(&e.hr, http.MethodPost, path+"/hr-decision", map[string]any{"decision": "approve"}).
		AssertStatus(t, http.StatusConflict)
	if got := e.balance(e.employee); got != 3 {
		t.Errorf("balance after repeat = %d, want 3", got)
	}
}

func TestDecision_Validation(t *testing.T) {
	e := newEnv(t, nil)
	req := e.create(e.employee, "2025-03-05", "2025-03-05")
	path := "/" + req.ID.Hex() + "/manager-decision"

	e.do(&e.manager, http.MethodPost, path, map[string]any{"decision": "maybe"}).
		AssertStatus(t, http.StatusUnprocessableEntity)

	rec := e.do(&e.manager, http.MethodPost, path, map[string]any{"decision": "reject", "comments": "<i></i>"})
	rec.AssertStatus(t, http.StatusUnprocessableEntity)
	var b errorBody
	rec.DecodeJSON(t, &b)
	if _, ok := b.Error.Fields["comments"]; !ok {
		t.Errorf("fields = %v, want comments", b.Error.Fields)
	}
}

func TestCancel(t *testing.T) {
	e := newEnv(t, nil)
	req := e.create(e.employee, "2025-03-05", "2025-03-06")
	path := "/" + req.ID.Hex()

	e.do(&e.manager, http.MethodPost, path+"/manager-decision", map[string]any{"decision": "approve"}).AssertStatus(t, http.StatusOK)
	e.do(&e.hr, http.MethodPost, path+"/hr-decision", map[string]any{"decision": "approve"}).AssertStatus(t, http.StatusOK)

	e.do(&e.manager, http.MethodPost, path+"/cancel", nil).AssertStatus(t, http.StatusForbidden)

	rec := e.do(&e.employee, http.MethodPost, path+"/cancel", map[string]any{"reason": "<b>plans</b> changed"})
	rec.AssertStatus(t, http.StatusOK)
	var out models.LeaveRequest
	rec.DecodeJSON(t, &out)
	if out.Status != models.StatusCancelled {
		t.Errorf("status = %s", out.Status)
	}
	if out.CancellationReason != "plans changed" {
		t.Errorf("cancellation_reason = %q, want %q", out.CancellationReason, "plans changed")
	}
	if got := e.balance(e.employee); got != 5 {
		t.Errorf("balance after cancel = %d, want 5", got)
	}
	e.do(&e.employee, http.MethodPost, path+"/cancel", nil).AssertStatus(t, http.StatusConflict)
}

func TestStoreUnavailable(t *testing.T) {
	e := newEnv(t, nil)
	e.db.FailNext("requests.find", context.DeadlineExceeded)
	e.do(&e.hr, http.MethodGet, "/", nil).AssertStatus(t, http.StatusServiceUnavailable)
}

type fakeHistory struct {
	events map[primitive.ObjectID][]audit.Event
}

func (f fakeHistory) GetByRequest(_ context.Context, id primitive.ObjectID, _ int64) ([]audit.Event, error) {
	return f.events[id], nil
}

func TestHistory(t *testing.T) {
	hist := fakeHistory{events: map[primitive.ObjectID][]audit.Event{}}
	e := newEnv(t, hist)
	req := e.create(e.employee, "2025-03-05", "2025-03-05")
	hist.events[req.ID] = []audit.Event{{Category: audit.CategoryLeave, EventType: audit.EventLeaveSubmitted, RequestID: &req.ID}}

	rec := e.do(&e.employee, http.MethodGet, "/"+req.ID.Hex()+"/history", nil)
	rec.AssertStatus(t, http.StatusOK)
	var out struct {
		Events []audit.Event `json:"events"`
	}
	rec.DecodeJSON(t, &out)
	if len(out.Events) != 1 || out.Events[0].EventType != audit.EventLeaveSubmitted {
		t.Errorf("events = %+v", out.Events)
	}

	e.do(&e.peer, http.MethodGet, "/"+req.ID.Hex()+"/history", nil).AssertStatus(t, http.StatusNotFound)
}

func TestHistory_NoAuditStore(t *testing.T) {
	e := newEnv(t, nil)
	req := e.create(e.employee, "2025-03-05", "2025-03-05")
	rec := e.do(&e.hr, http.MethodGet, "/"+req.ID.Hex()+"/history", nil)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"events":[]`)
}

