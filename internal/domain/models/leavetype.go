// internal/domain/models/leavetype.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LeaveType is one entry of the leave type registry.
// Name is the lowercase code and is unique across the collection.
type LeaveType struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Name             string             `bson:"name" json:"name"`
	Label            string             `bson:"label" json:"label"`
	DefaultDays      int                `bson:"default_days" json:"default_days"`
	RequiresApproval bool               `bson:"requires_approval" json:"requires_approval"`
	IsActive         bool               `bson:"is_active" json:"is_active"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// DefaultLeaveTypes is the baseline set seeded into an empty registry.
func DefaultLeaveTypes() []LeaveType {
	return []LeaveType{
		{Name: "vacation", Label: "Vacation Leave", DefaultDays: 20, RequiresApproval: true, IsActive: true},
		{Name: "sick", Label: "Sick Leave", DefaultDays: 10, RequiresApproval: true, IsActive: true},
		{Name: "personal", Label: "Personal Leave", DefaultDays: 5, RequiresApproval: true, IsActive: true},
		{Name: "maternity", Label: "Maternity Leave", DefaultDays: 90, RequiresApproval: true, IsActive: true},
		{Name: "paternity", Label: "Paternity Leave", DefaultDays: 14, RequiresApproval: true, IsActive: true},
	}
}
