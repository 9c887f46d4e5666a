package authz

import (
	"strings"

	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Actor is the identity a leave operation runs as.
type Actor struct {
	ID         primitive.ObjectID
	Name       string
	Email      string
	Role       string
	Department string
	ManagerID  *primitive.ObjectID
}

func (a Actor) IsHR() bool      { return a.Role == models.RoleHR }
func (a Actor) IsManager() bool { return a.Role == models.RoleManager }

// Stage names the approver step a decision is made at.
type Stage string

const (
	StageManager Stage = "manager"
	StageHR      Stage = "hr"
)

// Gate decides which requests an actor may see and decide.
//
// A manager owns a request when the request's resolved ManagerID is the
// manager's ID. Two looser rules exist because request data does not always
// carry a resolved manager:
//
//   - DepartmentFallback: a manager also owns requests from their own
//     (non-empty) department. On by default.
//   - ManagerEmailMatch: a manager also owns requests whose manager email
//     snapshot equals their email, case-insensitively. Off by default.
type Gate struct {
	DepartmentFallback bool
	ManagerEmailMatch  bool
}

// DefaultGate returns the gate with the department fallback enabled.
func DefaultGate() Gate {
	return Gate{DepartmentFallback: true}
}

// CanView reports whether actor may read req.
func (g Gate) CanView(a Actor, req *models.LeaveRequest) bool {
	if req == nil || a.ID.IsZero() {
		return false
	}
	if a.IsHR() {
		return true
	}
	if req.UserID == a.ID {
		return true
	}
	if a.IsManager() {
		return g.manages(a, req)
	}
	return false
}

// CanDecide reports whether actor may decide req at stage. Nobody decides
// their own request.
func (g Gate) CanDecide(a Actor, req *models.LeaveRequest, stage Stage) bool {
	if req == nil || a.ID.IsZero() || req.UserID == a.ID {
		return false
	}
	switch stage {
	case StageManager:
		return a.IsManager() && g.manages(a, req)
	case StageHR:
		return a.IsHR()
	}
	return false
}

// CanCancel reports whether actor may withdraw req: the submitter or HR.
func (g Gate) CanCancel(a Actor, req *models.LeaveRequest) bool {
	if req == nil || a.ID.IsZero() {
		return false
	}
	return req.UserID == a.ID || a.IsHR()
}

// CanEdit reports whether actor may change req's fields: the submitter only.
func (g Gate) CanEdit(a Actor, req *models.LeaveRequest) bool {
	return req != nil && !a.ID.IsZero() && req.UserID == a.ID
}

func (g Gate) manages(a Actor, req *models.LeaveRequest) bool {
	if req.ManagerID != nil && *req.ManagerID == a.ID {
		return true
	}
	if g.DepartmentFallback && a.Department != "" && req.Department == a.Department {
		return true
	}
	if g.ManagerEmailMatch && a.Email != "" && strings.EqualFold(req.ManagerEmail, a.Email) {
		return true
	}
	return false
}
