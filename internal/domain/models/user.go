// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Roles. HR access requires an exact match on RoleHR.
const (
	RoleEmployee = "employee"
	RoleManager  = "manager"
	RoleHR       = "hr"
)

// IsValidRole reports whether role is one of the three portal roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleEmployee, RoleManager, RoleHR:
		return true
	}
	return false
}

// User represents employees, managers and HR staff.
//
// NOTE:
//   - LeaveBalances maps a leave type name to the remaining whole days.
//     It is only mutated through the balance ledger or an HR bulk reset.
//   - ManagerID is the approver for this user's requests; managers and HR
//     usually have none.
type User struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	FullName     string              `bson:"full_name" json:"full_name"`
	FullNameCI   string              `bson:"full_name_ci" json:"-"` // lowercase, diacritics-stripped
	Email        string              `bson:"email" json:"email"`
	PasswordHash string              `bson:"password_hash,omitempty" json:"-"`
	Role         string              `bson:"role" json:"role"` // employee | manager | hr
	ManagerID    *primitive.ObjectID `bson:"manager_id,omitempty" json:"manager_id,omitempty"`
	Department   string              `bson:"department" json:"department"`

	LeaveBalances map[string]int `bson:"leave_balances" json:"leave_balances"`
	IsActive      bool           `bson:"is_active" json:"is_active"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Balance returns the remaining days for leaveType, or 0 when unknown.
func (u *User) Balance(leaveType string) int {
	if u == nil || u.LeaveBalances == nil {
		return 0
	}
	return u.LeaveBalances[leaveType]
}
