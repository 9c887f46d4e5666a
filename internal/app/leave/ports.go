package leave

import (
	"context"

	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/app/system/authz"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserStore is the slice of the users collection the service needs.
type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	ListActive(ctx context.Context) ([]models.User, error)
	// DecrementBalance must check and subtract in one atomic step and return
	// store.ErrInsufficientBalance when fewer than days remain.
	DecrementBalance(ctx context.Context, id primitive.ObjectID, leaveType string, days int) error
	IncrementBalance(ctx context.Context, id primitive.ObjectID, leaveType string, days int) error
	ReplaceBalances(ctx context.Context, sets []store.BalanceSet) error
}

// LeaveTypeStore persists the leave type registry.
type LeaveTypeStore interface {
	Get(ctx context.Context, name string) (*models.LeaveType, error)
	List(ctx context.Context, activeOnly bool) ([]models.LeaveType, error)
	Count(ctx context.Context) (int64, error)
	Upsert(ctx context.Context, lt models.LeaveType) (models.LeaveType, error)
	SetActive(ctx context.Context, name string, active bool) error
	InsertMany(ctx context.Context, types []models.LeaveType) error
}

// RequestStore persists leave requests.
type RequestStore interface {
	Create(ctx context.Context, r models.LeaveRequest) (models.LeaveRequest, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.LeaveRequest, error)
	Find(ctx context.Context, f store.RequestFilter) ([]models.LeaveRequest, error)
	// UpdateIfStatus applies upd only while the stored status equals expected,
	// returning store.ErrConflict otherwise.
	UpdateIfStatus(ctx context.Context, id primitive.ObjectID, expected models.LeaveStatus, upd store.RequestUpdate) (*models.LeaveRequest, error)
}

// TxRunner runs fn so that its writes land together or not at all, where
// the backend can do that.
type TxRunner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// Backend bundles the stores.
type Backend struct {
	Users      UserStore
	LeaveTypes LeaveTypeStore
	Requests   RequestStore
	Tx         TxRunner
}

// Action names a committed change to a request.
type Action string

const (
	ActionSubmitted       Action = "submitted"
	ActionEdited          Action = "edited"
	ActionManagerApproved Action = "manager_approved"
	ActionManagerRejected Action = "manager_rejected"
	ActionHRApproved      Action = "hr_approved"
	ActionHRRejected      Action = "hr_rejected"
	ActionCancelled       Action = "cancelled"
)

// RequestEvent describes one committed request change.
type RequestEvent struct {
	Action  Action
	Actor   authz.Actor
	From    models.LeaveStatus
	Request models.LeaveRequest
}

// Listener is told about committed changes. It runs after the write and
// cannot affect the outcome; implementations must not block for long.
type Listener interface {
	RequestChanged(ctx context.Context, ev RequestEvent)
	LeaveTypeChanged(ctx context.Context, actor authz.Actor, lt models.LeaveType, action string)
	BalancesReset(ctx context.Context, actor authz.Actor, users int, types []string)
}

// NopListener ignores everything. Embed it to implement part of Listener.
type NopListener struct{}

func (NopListener) RequestChanged(context.Context, RequestEvent)                             {}
func (NopListener) LeaveTypeChanged(context.Context, authz.Actor, models.LeaveType, string) {}
func (NopListener) BalancesReset(context.Context, authz.Actor, int, []string)               {}

// Listeners fans out to several listeners in order.
type Listeners []Listener

func (ls Listeners) RequestChanged(ctx context.Context, ev RequestEvent) {
	for _, l := range ls {
		l.RequestChanged(ctx, ev)
	}
}

func (ls Listeners) LeaveTypeChanged(ctx context.Context, actor authz.Actor, lt models.LeaveType, action string) {
	for _, l := range ls {
		l.LeaveTypeChanged(ctx, actor, lt, action)
	}
}

func (ls Listeners) BalancesReset(ctx context.Context, actor authz.Actor, users int, types []string) {
	for _, l := range ls {
		l.BalancesReset(ctx, actor, users, types)
	}
}
