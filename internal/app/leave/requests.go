package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/app/system/authz"
	"github.com/dalemusser/leavedesk/internal/app/system/limits"
	"github.com/dalemusser/leavedesk/internal/app/system/paging"
	"github.com/dalemusser/leavedesk/internal/app/system/workdays"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Draft is the input for a new request.
type Draft struct {
	LeaveType   string
	StartDate   time.Time
	EndDate     time.Time
	Reason      string
	Attachments []models.Attachment
}

// Changes is a partial edit of a pending request. Nil fields keep their value.
type Changes struct {
	LeaveType   *string
	StartDate   *time.Time
	EndDate     *time.Time
	Reason      *string
	Attachments *[]models.Attachment
}

// checked is a draft that passed validation.
type checked struct {
	leaveType string
	start     time.Time
	end       time.Time
	days      int
	reason    string
}

// validate runs the submission checks in order; the first failure wins.
// The leave type check is skipped when skipType is set (an edit that keeps
// the type of the stored request).
func (s *Service) validate(ctx context.Context, userID primitive.ObjectID, d Draft, skipType bool) (checked, error) {
	name := NormalizeName(d.LeaveType)

	// 1. active leave type
	if !skipType {
		if _, err := s.Registry.Active(ctx, name); err != nil {
			return checked{}, err
		}
	}

	// 2. required fields
	reason := strings.TrimSpace(d.Reason)
	switch {
	case d.StartDate.IsZero():
		return checked{}, invalid(ErrMissingField, "start_date", "start date is required")
	case d.EndDate.IsZero():
		return checked{}, invalid(ErrMissingField, "end_date", "end date is required")
	case reason == "":
		return checked{}, invalid(ErrMissingField, "reason", "reason is required")
	case utf8.RuneCountInString(reason) > limits.MaxReasonLength:
		return checked{}, invalid(ErrValidation, "reason", fmt.Sprintf("reason must be at most %d characters", limits.MaxReasonLength))
	case len(d.Attachments) > limits.MaxAttachments:
		return checked{}, invalid(ErrValidation, "attachments", fmt.Sprintf("at most %d attachments are allowed", limits.MaxAttachments))
	}

	start := workdays.Date(d.StartDate, time.UTC)
	end := workdays.Date(d.EndDate, time.UTC)

	// 3. no past dates
	if start.Before(s.today()) {
		return checked{}, invalid(ErrPastDate, "start_date", "start date cannot be in the past")
	}

	// 4. order
	if end.Before(start) {
		return checked{}, invalid(ErrDateOrder, "end_date", "end date cannot be before start date")
	}

	// 5. business days
	days := workdays.Count(start, end)
	if days == 0 {
		return checked{}, invalid(ErrValidation, "end_date", "the selected dates contain no working days")
	}

	// 6. soft balance check; the hard check happens on final approval
	avail, err := s.Ledger.Available(ctx, userID, name)
	if err != nil {
		return checked{}, err
	}
	if days > avail {
		return checked{}, &InsufficientBalanceError{LeaveType: name, Available: avail, Requested: days}
	}

	return checked{leaveType: name, start: start, end: end, days: days, reason: reason}, nil
}

// CreateRequest validates d for user and stores a pending request. Nothing
// is stored when validation fails.
func (s *Service) CreateRequest(ctx context.Context, user models.User, d Draft) (models.LeaveRequest, error) {
	if !user.IsActive {
		return models.LeaveRequest{}, ErrUserInactive
	}
	c, err := s.validate(ctx, user.ID, d, false)
	if err != nil {
		return models.LeaveRequest{}, err
	}

	now := s.clock()
	req := models.LeaveRequest{
		UserID:      user.ID,
		UserName:    user.FullName,
		UserEmail:   user.Email,
		Department:  user.Department,
		LeaveType:   c.leaveType,
		StartDate:   c.start,
		EndDate:     c.end,
		Days:        c.days,
		Reason:      c.reason,
		Attachments: d.Attachments,
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if user.ManagerID != nil && !user.ManagerID.IsZero() {
		mid := *user.ManagerID
		req.ManagerID = &mid
		mgr, err := s.users.GetByID(ctx, mid)
		switch {
		case err == nil:
			req.ManagerEmail = strings.ToLower(mgr.Email)
		case !errors.Is(err, store.ErrNotFound):
			return models.LeaveRequest{}, fromStore(err)
		}
	}

	out, err := s.requests.Create(ctx, req)
	if err != nil {
		return models.LeaveRequest{}, fromStore(err)
	}
	s.listener.RequestChanged(ctx, RequestEvent{
		Action:  ActionSubmitted,
		Actor:   authz.ActorFromUser(user),
		Request: out,
	})
	return out, nil
}

// EditRequest changes a pending request. Only the submitter may edit, and
// only while the request is pending. The merged values are re-validated
// against the current balance.
func (s *Service) EditRequest(ctx context.Context, actor authz.Actor, id primitive.ObjectID, ch Changes) (models.LeaveRequest, error) {
	cur, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return models.LeaveRequest{}, fromStore(err)
	}
	if !s.gate.CanView(actor, cur) {
		return models.LeaveRequest{}, ErrNotFound
	}
	if !s.gate.CanEdit(actor, cur) {
		return models.LeaveRequest{}, ErrForbidden
	}
	if cur.Status != models.StatusPending {
		return models.LeaveRequest{}, &notEditable{status: cur.Status}
	}

	d := Draft{
		LeaveType:   cur.LeaveType,
		StartDate:   cur.StartDate,
		EndDate:     cur.EndDate,
		Reason:      cur.Reason,
		Attachments: cur.Attachments,
	}
	if ch.LeaveType != nil {
		d.LeaveType = *ch.LeaveType
	}
	if ch.StartDate != nil {
		d.StartDate = *ch.StartDate
	}
	if ch.EndDate != nil {
		d.EndDate = *ch.EndDate
	}
	if ch.Reason != nil {
		d.Reason = *ch.Reason
	}
	if ch.Attachments != nil {
		d.Attachments = *ch.Attachments
	}
	sameType := NormalizeName(d.LeaveType) == cur.LeaveType

	c, err := s.validate(ctx, cur.UserID, d, sameType)
	if err != nil {
		return models.LeaveRequest{}, err
	}

	upd := store.RequestUpdate{
		LeaveType:   &c.leaveType,
		StartDate:   &c.start,
		EndDate:     &c.end,
		Days:        &c.days,
		Reason:      &c.reason,
		Attachments: ch.Attachments,
		UpdatedAt:   s.clock(),
	}
	out, err := s.requests.UpdateIfStatus(ctx, id, models.StatusPending, upd)
	if errors.Is(err, store.ErrConflict) {
		return models.LeaveRequest{}, &notEditable{status: s.currentStatus(ctx, id, cur.Status)}
	}
	if err != nil {
		return models.LeaveRequest{}, fromStore(err)
	}
	s.listener.RequestChanged(ctx, RequestEvent{
		Action:  ActionEdited,
		Actor:   actor,
		From:    models.StatusPending,
		Request: *out,
	})
	return *out, nil
}

type notEditable struct{ status models.LeaveStatus }

func (e *notEditable) Error() string {
	return "request is " + string(e.status) + " and can no longer be edited"
}

func (e *notEditable) Unwrap() error { return ErrNotEditable }

// Get returns a request the actor may view. Requests the actor may not see
// are reported as ErrNotFound.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id primitive.ObjectID) (models.LeaveRequest, error) {
	r, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return models.LeaveRequest{}, fromStore(err)
	}
	if !s.gate.CanView(actor, r) {
		return models.LeaveRequest{}, ErrNotFound
	}
	return *r, nil
}

// Scope narrows a request listing.
type Scope string

const (
	// ScopeVisible lists everything the actor can see.
	ScopeVisible Scope = ""
	// ScopeMine lists the actor's own requests.
	ScopeMine Scope = "mine"
	// ScopeTeam lists requests the actor decides on, excluding their own.
	ScopeTeam Scope = "team"
)

// ListQuery selects requests for List.
type ListQuery struct {
	Scope     Scope
	Statuses  []models.LeaveStatus
	LeaveType string
	// Before resumes after the last row of a previous page.
	Before *paging.Cursor
	Limit  int
}

// Page is one window of List results. Next is set when older rows remain.
type Page struct {
	Requests []models.LeaveRequest
	Next     *paging.Cursor
}

// List returns the requests actor may view, newest first.
func (s *Service) List(ctx context.Context, actor authz.Actor, q ListQuery) ([]models.LeaveRequest, error) {
	p, err := s.ListPage(ctx, actor, q)
	if err != nil {
		return nil, err
	}
	return p.Requests, nil
}

// ListPage is List with a continuation cursor.
func (s *Service) ListPage(ctx context.Context, actor authz.Actor, q ListQuery) (Page, error) {
	f := store.RequestFilter{
		Statuses:  q.Statuses,
		LeaveType: NormalizeName(q.LeaveType),
		Before:    q.Before,
	}
	if q.Limit > 0 {
		f.Limit = paging.LimitPlusOne(q.Limit)
	}
	own := actor.ID

	switch {
	case q.Scope == ScopeMine:
		f.UserID = &own
	case actor.IsHR():
		// hr sees everything
	case actor.IsManager():
		mid := actor.ID
		f.ManagerID = &mid
		if s.gate.DepartmentFallback && actor.Department != "" {
			f.Department = actor.Department
		}
		if s.gate.ManagerEmailMatch && actor.Email != "" {
			f.ManagerEmail = strings.ToLower(actor.Email)
		}
		if q.Scope != ScopeTeam {
			f.UserID = &own
		}
	default:
		if q.Scope == ScopeTeam {
			return Page{Requests: []models.LeaveRequest{}}, nil
		}
		f.UserID = &own
	}

	rows, err := s.requests.Find(ctx, f)
	if err != nil {
		return Page{}, fromStore(err)
	}
	var page Page
	if paging.Trim(&rows, q.Limit) {
		last := rows[len(rows)-1]
		page.Next = &paging.Cursor{At: last.CreatedAt, ID: last.ID}
	}
	out := make([]models.LeaveRequest, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		if !s.gate.CanView(actor, r) {
			continue
		}
		if q.Scope == ScopeTeam && r.UserID == actor.ID {
			continue
		}
		out = append(out, *r)
	}
	page.Requests = out
	return page, nil
}

func (s *Service) currentStatus(ctx context.Context, id primitive.ObjectID, fallback models.LeaveStatus) models.LeaveStatus {
	r, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return fallback
	}
	return r.Status
}
