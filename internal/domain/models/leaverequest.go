// internal/domain/models/leaverequest.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LeaveStatus is the workflow state of a leave request.
type LeaveStatus string

const (
	StatusPending         LeaveStatus = "pending"
	StatusManagerApproved LeaveStatus = "manager_approved"
	StatusApproved        LeaveStatus = "approved"
	StatusRejected        LeaveStatus = "rejected"
	StatusCancelled       LeaveStatus = "cancelled"
)

// IsTerminal reports whether no further transition may leave s.
func (s LeaveStatus) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// IsValid reports whether s is a known status.
func (s LeaveStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusManagerApproved, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Decision values recorded in ManagerApproval.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// Attachment is opaque metadata about an uploaded file.
type Attachment struct {
	Name string `bson:"name" json:"name"`
	URL  string `bson:"url" json:"url"`
	Size int64  `bson:"size" json:"size"`
	Type string `bson:"type" json:"type"`
}

// ManagerApproval records the first-stage decision.
type ManagerApproval struct {
	ManagerID   primitive.ObjectID `bson:"manager_id" json:"manager_id"`
	ManagerName string             `bson:"manager_name" json:"manager_name"`
	Decision    string             `bson:"decision" json:"decision"` // approve | reject
	Comments    string             `bson:"comments,omitempty" json:"comments,omitempty"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
}

// HRApproval records the final HR confirmation.
type HRApproval struct {
	HRID      primitive.ObjectID `bson:"hr_id" json:"hr_id"`
	HRName    string             `bson:"hr_name" json:"hr_name"`
	Comments  string             `bson:"comments,omitempty" json:"comments,omitempty"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

// LeaveRequest is a submitted request for time off.
//
// User fields are a snapshot taken at submission. StartDate and EndDate are
// calendar dates stored as UTC midnight. Days counts business days only.
// Requests are never deleted; cancellation is a status.
type LeaveRequest struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID  `bson:"user_id" json:"user_id"`
	UserName     string              `bson:"user_name" json:"user_name"`
	UserEmail    string              `bson:"user_email" json:"user_email"`
	Department   string              `bson:"department" json:"department"`
	ManagerID    *primitive.ObjectID `bson:"manager_id,omitempty" json:"manager_id,omitempty"`
	ManagerEmail string              `bson:"manager_email,omitempty" json:"-"`

	LeaveType   string       `bson:"leave_type" json:"leave_type"`
	StartDate   time.Time    `bson:"start_date" json:"start_date"`
	EndDate     time.Time    `bson:"end_date" json:"end_date"`
	Days        int          `bson:"days" json:"days"`
	Reason      string       `bson:"reason" json:"reason"`
	Attachments []Attachment `bson:"attachments,omitempty" json:"attachments,omitempty"`

	Status LeaveStatus `bson:"status" json:"status"`

	ApprovedBy         string     `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	ApprovedAt         *time.Time `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	RejectedBy         string     `bson:"rejected_by,omitempty" json:"rejected_by,omitempty"`
	RejectedAt         *time.Time `bson:"rejected_at,omitempty" json:"rejected_at,omitempty"`
	RejectionReason    string     `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	CancelledBy        string     `bson:"cancelled_by,omitempty" json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	CancellationReason string     `bson:"cancellation_reason,omitempty" json:"cancellation_reason,omitempty"`

	ManagerApproval *ManagerApproval `bson:"manager_approval,omitempty" json:"manager_approval,omitempty"`
	HRApproval      *HRApproval      `bson:"hr_approval,omitempty" json:"hr_approval,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// HasManager reports whether the request runs the two-stage workflow.
func (r *LeaveRequest) HasManager() bool {
	return r.ManagerID != nil && !r.ManagerID.IsZero()
}
