package leave

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/app/system/authz"
	"github.com/dalemusser/leavedesk/internal/domain/models"
)

// Registry manages which leave types exist.
type Registry struct {
	types LeaveTypeStore
}

var typeName = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,39}$`)

// NormalizeName lowercases and trims a leave type code.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ListActive returns the types new requests may use.
func (r *Registry) ListActive(ctx context.Context) ([]models.LeaveType, error) {
	out, err := r.types.List(ctx, true)
	return out, fromStore(err)
}

// List returns every type, active or not.
func (r *Registry) List(ctx context.Context) ([]models.LeaveType, error) {
	out, err := r.types.List(ctx, false)
	return out, fromStore(err)
}

// Get returns one type by code. Returns ErrNotFound if there is none.
func (r *Registry) Get(ctx context.Context, name string) (*models.LeaveType, error) {
	lt, err := r.types.Get(ctx, NormalizeName(name))
	return lt, fromStore(err)
}

// Active returns the type if it exists and is active, else an
// ErrUnknownLeaveType validation error.
func (r *Registry) Active(ctx context.Context, name string) (*models.LeaveType, error) {
	lt, err := r.types.Get(ctx, NormalizeName(name))
	if errors.Is(err, store.ErrNotFound) || (err == nil && !lt.IsActive) {
		return nil, invalid(ErrUnknownLeaveType, "leave_type", "leave type "+strconv.Quote(name)+" is not available")
	}
	if err != nil {
		return nil, fromStore(err)
	}
	return lt, nil
}

// Upsert creates or replaces the type named lt.Name. The name is normalised
// to lowercase first. When lt.ID is set the call edits that record, and a
// different record already holding the name is a collision.
func (r *Registry) Upsert(ctx context.Context, lt models.LeaveType) (models.LeaveType, error) {
	lt.Name = NormalizeName(lt.Name)
	lt.Label = strings.TrimSpace(lt.Label)

	switch {
	case lt.Name == "":
		return models.LeaveType{}, invalid(ErrValidation, "name", "name is required")
	case !typeName.MatchString(lt.Name):
		return models.LeaveType{}, invalid(ErrValidation, "name",
			"name must start with a letter and use only a-z, 0-9, '_' or '-'")
	case lt.Label == "":
		return models.LeaveType{}, invalid(ErrValidation, "label", "label is required")
	case lt.DefaultDays < 0:
		return models.LeaveType{}, invalid(ErrValidation, "default_days", "default days cannot be negative")
	}

	existing, err := r.types.Get(ctx, lt.Name)
	switch {
	case err == nil:
		if !lt.ID.IsZero() && existing.ID != lt.ID {
			return models.LeaveType{}, invalid(ErrValidation, "name", "name "+strconv.Quote(lt.Name)+" is already used by another leave type")
		}
	case errors.Is(err, store.ErrNotFound):
		if !lt.ID.IsZero() {
			return models.LeaveType{}, invalid(ErrValidation, "name", "leave types cannot be renamed")
		}
	default:
		return models.LeaveType{}, fromStore(err)
	}

	out, err := r.types.Upsert(ctx, lt)
	if errors.Is(err, store.ErrDuplicate) {
		return models.LeaveType{}, invalid(ErrValidation, "name", "name "+strconv.Quote(lt.Name)+" is already used by another leave type")
	}
	return out, fromStore(err)
}

// Activate makes a type eligible for new requests and balance resets.
func (r *Registry) Activate(ctx context.Context, name string) error {
	return fromStore(r.types.SetActive(ctx, NormalizeName(name), true))
}

// Deactivate hides a type from new requests and balance resets. Existing
// balances and pending requests are left alone.
func (r *Registry) Deactivate(ctx context.Context, name string) error {
	return fromStore(r.types.SetActive(ctx, NormalizeName(name), false))
}

// SeedDefaults inserts the baseline types when the registry is empty and
// reports whether it did. On a non-empty registry it does nothing.
func (r *Registry) SeedDefaults(ctx context.Context) (bool, error) {
	n, err := r.types.Count(ctx)
	if err != nil {
		return false, fromStore(err)
	}
	if n > 0 {
		return false, nil
	}
	if err := r.types.InsertMany(ctx, models.DefaultLeaveTypes()); err != nil {
		return false, fromStore(err)
	}
	return true, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| HR-facing operations                                                         |
*─────────────────────────────────────────────────────────────────────────────*/

// UpsertLeaveType is Registry.Upsert for an HR actor.
func (s *Service) UpsertLeaveType(ctx context.Context, actor authz.Actor, lt models.LeaveType) (models.LeaveType, error) {
	if !actor.IsHR() {
		return models.LeaveType{}, ErrForbidden
	}
	out, err := s.Registry.Upsert(ctx, lt)
	if err != nil {
		return models.LeaveType{}, err
	}
	s.listener.LeaveTypeChanged(ctx, actor, out, "upserted")
	return out, nil
}

// SetLeaveTypeActive activates or deactivates a type for an HR actor.
func (s *Service) SetLeaveTypeActive(ctx context.Context, actor authz.Actor, name string, active bool) (models.LeaveType, error) {
	if !actor.IsHR() {
		return models.LeaveType{}, ErrForbidden
	}
	var err error
	action := "activated"
	if active {
		err = s.Registry.Activate(ctx, name)
	} else {
		action = "deactivated"
		err = s.Registry.Deactivate(ctx, name)
	}
	if err != nil {
		return models.LeaveType{}, err
	}
	lt, err := s.Registry.Get(ctx, name)
	if err != nil {
		return models.LeaveType{}, err
	}
	s.listener.LeaveTypeChanged(ctx, actor, *lt, action)
	return *lt, nil
}
