// Package store holds the types shared by every document store backend:
// the sentinel errors each backend returns, the request query filter and
// the partial update applied to a leave request.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/leavedesk/internal/app/system/paging"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned by conditional updates whose expected status
	// no longer matches the stored document.
	ErrConflict = errors.New("document changed since it was read")
	// ErrInsufficientBalance is returned when a guarded balance decrement
	// finds fewer days than requested.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("duplicate key")
	// ErrUnavailable wraps I/O failures talking to the backing database.
	ErrUnavailable = errors.New("store unavailable")
)

// Unavailable wraps err as ErrUnavailable unless it is already one of the
// store sentinels or a context error.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict),
		errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrUnavailable):
		return err
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	}
	return &unavailableError{err: err}
}

type unavailableError struct{ err error }

func (e *unavailableError) Error() string { return "store unavailable: " + e.err.Error() }
func (e *unavailableError) Unwrap() []error {
	return []error{ErrUnavailable, e.err}
}

// IsContextErr reports whether err came from a cancelled or expired context.
func IsContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// BalanceSet overwrites one user's whole balance map.
type BalanceSet struct {
	UserID   primitive.ObjectID
	Balances map[string]int
}

// RequestFilter selects leave requests.
//
// The scope fields (UserID, ManagerID, Department, ManagerEmail) are OR-ed
// together when more than one is set; Statuses, LeaveType and Before narrow
// the result. An empty scope matches every request.
type RequestFilter struct {
	UserID       *primitive.ObjectID
	ManagerID    *primitive.ObjectID
	Department   string
	ManagerEmail string

	Statuses  []models.LeaveStatus
	LeaveType string
	// Before keeps only requests older than the cursor in (created_at, _id)
	// order.
	Before *paging.Cursor
	Limit  int64
}

// Matches applies the filter to r in memory.
func (f RequestFilter) Matches(r *models.LeaveRequest) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if r.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.LeaveType != "" && r.LeaveType != f.LeaveType {
		return false
	}
	if f.Before != nil && !f.Before.After(r.CreatedAt, r.ID) {
		return false
	}
	if !f.hasScope() {
		return true
	}
	if f.UserID != nil && r.UserID == *f.UserID {
		return true
	}
	if f.ManagerID != nil && r.ManagerID != nil && *r.ManagerID == *f.ManagerID {
		return true
	}
	if f.Department != "" && r.Department == f.Department {
		return true
	}
	if f.ManagerEmail != "" && strings.EqualFold(r.ManagerEmail, f.ManagerEmail) {
		return true
	}
	return false
}

func (f RequestFilter) hasScope() bool {
	return f.UserID != nil || f.ManagerID != nil || f.Department != "" || f.ManagerEmail != ""
}

// Query builds the Mongo filter document for f.
func (f RequestFilter) Query() bson.M {
	q := bson.M{}
	if len(f.Statuses) > 0 {
		q["status"] = bson.M{"$in": f.Statuses}
	}
	if f.LeaveType != "" {
		q["leave_type"] = f.LeaveType
	}
	if f.Before != nil {
		q["$and"] = []bson.M{{"$or": []bson.M{
			{"created_at": bson.M{"$lt": f.Before.At}},
			{"created_at": f.Before.At, "_id": bson.M{"$lt": f.Before.ID}},
		}}}
	}
	var or []bson.M
	if f.UserID != nil {
		or = append(or, bson.M{"user_id": *f.UserID})
	}
	if f.ManagerID != nil {
		or = append(or, bson.M{"manager_id": *f.ManagerID})
	}
	if f.Department != "" {
		or = append(or, bson.M{"department": f.Department})
	}
	if f.ManagerEmail != "" {
		or = append(or, bson.M{"manager_email": strings.ToLower(f.ManagerEmail)})
	}
	switch len(or) {
	case 0:
	case 1:
		for k, v := range or[0] {
			q[k] = v
		}
	default:
		q["$or"] = or
	}
	return q
}

// RequestUpdate is a partial update of a leave request. Nil fields are left
// untouched. UpdatedAt is always written.
type RequestUpdate struct {
	Status *models.LeaveStatus

	LeaveType   *string
	StartDate   *time.Time
	EndDate     *time.Time
	Days        *int
	Reason      *string
	Attachments *[]models.Attachment

	ApprovedBy         *string
	ApprovedAt         *time.Time
	RejectedBy         *string
	RejectedAt         *time.Time
	RejectionReason    *string
	CancelledBy        *string
	CancelledAt        *time.Time
	CancellationReason *string

	ManagerApproval *models.ManagerApproval
	HRApproval      *models.HRApproval

	UpdatedAt time.Time
}

// Set returns the $set document for u.
func (u RequestUpdate) Set() bson.M {
	set := bson.M{"updated_at": u.UpdatedAt}
	if u.Status != nil {
		set["status"] = *u.Status
	}
	if u.LeaveType != nil {
		set["leave_type"] = *u.LeaveType
	}
	if u.StartDate != nil {
		set["start_date"] = *u.StartDate
	}
	if u.EndDate != nil {
		set["end_date"] = *u.EndDate
	}
	if u.Days != nil {
		set["days"] = *u.Days
	}
	if u.Reason != nil {
		set["reason"] = *u.Reason
	}
	if u.Attachments != nil {
		set["attachments"] = *u.Attachments
	}
	if u.ApprovedBy != nil {
		set["approved_by"] = *u.ApprovedBy
	}
	if u.ApprovedAt != nil {
		set["approved_at"] = *u.ApprovedAt
	}
	if u.RejectedBy != nil {
		set["rejected_by"] = *u.RejectedBy
	}
	if u.RejectedAt != nil {
		set["rejected_at"] = *u.RejectedAt
	}
	if u.RejectionReason != nil {
		set["rejection_reason"] = *u.RejectionReason
	}
	if u.CancelledBy != nil {
		set["cancelled_by"] = *u.CancelledBy
	}
	if u.CancelledAt != nil {
		set["cancelled_at"] = *u.CancelledAt
	}
	if u.CancellationReason != nil {
		set["cancellation_reason"] = *u.CancellationReason
	}
	if u.ManagerApproval != nil {
		set["manager_approval"] = *u.ManagerApproval
	}
	if u.HRApproval != nil {
		set["hr_approval"] = *u.HRApproval
	}
	return set
}

// Apply writes u onto r.
func (u RequestUpdate) Apply(r *models.LeaveRequest) {
	r.UpdatedAt = u.UpdatedAt
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.LeaveType != nil {
		r.LeaveType = *u.LeaveType
	}
	if u.StartDate != nil {
		r.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		r.EndDate = *u.EndDate
	}
	if u.Days != nil {
		r.Days = *u.Days
	}
	if u.Reason != nil {
		r.Reason = *u.Reason
	}
	if u.Attachments != nil {
		r.Attachments = append([]models.Attachment(nil), (*u.Attachments)...)
	}
	if u.ApprovedBy != nil {
		r.ApprovedBy = *u.ApprovedBy
	}
	if u.ApprovedAt != nil {
		t := *u.ApprovedAt
		r.ApprovedAt = &t
	}
	if u.RejectedBy != nil {
		r.RejectedBy = *u.RejectedBy
	}
	if u.RejectedAt != nil {
		t := *u.RejectedAt
		r.RejectedAt = &t
	}
	if u.RejectionReason != nil {
		r.RejectionReason = *u.RejectionReason
	}
	if u.CancelledBy != nil {
		r.CancelledBy = *u.CancelledBy
	}
	if u.CancelledAt != nil {
		t := *u.CancelledAt
		r.CancelledAt = &t
	}
	if u.CancellationReason != nil {
		r.CancellationReason = *u.CancellationReason
	}
	if u.ManagerApproval != nil {
		ma := *u.ManagerApproval
		r.ManagerApproval = &ma
	}
	if u.HRApproval != nil {
		ha := *u.HRApproval
		r.HRApproval = &ha
	}
}
