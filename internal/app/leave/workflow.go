package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/app/system/authz"
	"github.com/dalemusser/leavedesk/internal/app/system/limits"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Decision is an approver's verdict.
type Decision string

const (
	Approve Decision = models.DecisionApprove
	Reject  Decision = models.DecisionReject
)

// ParseDecision accepts "approve" or "reject" in any case.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case Approve, Reject:
		return d, nil
	}
	return "", invalid(ErrValidation, "decision", `decision must be "approve" or "reject"`)
}

// ManagerDecide records the manager's verdict on a pending request.
// Approving moves it to manager_approved; rejecting requires comments and
// ends it as rejected. Balances are not touched.
func (s *Service) ManagerDecide(ctx context.Context, actor authz.Actor, id primitive.ObjectID, d Decision, comments string) (models.LeaveRequest, error) {
	d, err := ParseDecision(string(d))
	if err != nil {
		return models.LeaveRequest{}, err
	}
	comments = strings.TrimSpace(comments)

	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return models.LeaveRequest{}, fromStore(err)
	}
	if !s.gate.CanDecide(actor, req, authz.StageManager) {
		return models.LeaveRequest{}, ErrForbidden
	}
	if req.Status != models.StatusPending {
		return models.LeaveRequest{}, &InvalidTransitionError{From: req.Status, Action: "manager-" + string(d)}
	}
	if d == Reject && comments == "" {
		return models.LeaveRequest{}, invalid(ErrMissingField, "comments", "a reason is required to reject a request")
	}
	if utf8.RuneCountInString(comments) > limits.MaxCommentsLength {
		return models.LeaveRequest{}, invalid(ErrValidation, "comments", fmt.Sprintf("comments must be at most %d characters", limits.MaxCommentsLength))
	}
	if err := s.requireActive(ctx, req.UserID); err != nil {
		return models.LeaveRequest{}, err
	}

	now := s.clock()
	upd := store.RequestUpdate{
		ManagerApproval: &models.ManagerApproval{
			ManagerID:   actor.ID,
			ManagerName: actor.Name,
			Decision:    string(d),
			Comments:    comments,
			Timestamp:   now,
		},
		UpdatedAt: now,
	}
	action := ActionManagerApproved
	if d == Approve {
		upd.Status = statusPtr(models.StatusManagerApproved)
	} else {
		action = ActionManagerRejected
		upd.Status = statusPtr(models.StatusRejected)
		upd.RejectedBy = &actor.Name
		upd.RejectedAt = &now
		upd.RejectionReason = &comments
	}

	out, err := s.commit(ctx, req, upd, "manager-"+string(d))
	if err != nil {
		return models.LeaveRequest{}, err
	}
	s.listener.RequestChanged(ctx, RequestEvent{Action: action, Actor: actor, From: req.Status, Request: *out})
	return *out, nil
}

// HRConfirm records HR's final verdict. HR acts on manager_approved
// requests, or on pending ones that have no manager (single-stage).
// Approving reserves the request's days first; if the balance no longer
// covers them the request is left unchanged.
func (s *Service) HRConfirm(ctx context.Context, actor authz.Actor, id primitive.ObjectID, d Decision, comments string) (models.LeaveRequest, error) {
	d, err := ParseDecision(string(d))
	if err != nil {
		return models.LeaveRequest{}, err
	}
	comments = strings.TrimSpace(comments)

	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return models.LeaveRequest{}, fromStore(err)
	}
	if !s.gate.CanDecide(actor, req, authz.StageHR) {
		return models.LeaveRequest{}, ErrForbidden
	}
	if !hrCanAct(req) {
		return models.LeaveRequest{}, &InvalidTransitionError{From: req.Status, Action: "hr-" + string(d)}
	}
	if d == Reject && comments == "" {
		return models.LeaveRequest{}, invalid(ErrMissingField, "comments", "a reason is required to reject a request")
	}
	if utf8.RuneCountInString(comments) > limits.MaxCommentsLength {
		return models.LeaveRequest{}, invalid(ErrValidation, "comments", fmt.Sprintf("comments must be at most %d characters", limits.MaxCommentsLength))
	}
	if err := s.requireActive(ctx, req.UserID); err != nil {
		return models.LeaveRequest{}, err
	}

	now := s.clock()
	upd := store.RequestUpdate{
		HRApproval: &models.HRApproval{
			HRID:      actor.ID,
			HRName:    actor.Name,
			Comments:  comments,
			Timestamp: now,
		},
		UpdatedAt: now,
	}

	if d == Reject {
		upd.Status = statusPtr(models.StatusRejected)
		upd.RejectedBy = &actor.Name
		upd.RejectedAt = &now
		upd.RejectionReason = &comments
		out, err := s.commit(ctx, req, upd, "hr-reject")
		if err != nil {
			return models.LeaveRequest{}, err
		}
		s.listener.RequestChanged(ctx, RequestEvent{Action: ActionHRRejected, Actor: actor, From: req.Status, Request: *out})
		return *out, nil
	}

	upd.Status = statusPtr(models.StatusApproved)
	upd.ApprovedBy = &actor.Name
	upd.ApprovedAt = &now

	var out *models.LeaveRequest
	err = s.tx.Run(ctx, func(ctx context.Context) error {
		if err := s.Ledger.Reserve(ctx, req.UserID, req.LeaveType, req.Days); err != nil {
			return err
		}
		var cerr error
		out, cerr = s.commit(ctx, req, upd, "hr-approve")
		if cerr != nil {
			if rerr := s.Ledger.Release(ctx, req.UserID, req.LeaveType, req.Days); rerr != nil {
				s.log.Error("release after failed approval",
					zap.String("request_id", req.ID.Hex()),
					zap.String("user_id", req.UserID.Hex()),
					zap.String("leave_type", req.LeaveType),
					zap.Int("days", req.Days),
					zap.Error(rerr))
			}
			return cerr
		}
		return nil
	})
	if err != nil {
		return models.LeaveRequest{}, err
	}
	s.listener.RequestChanged(ctx, RequestEvent{Action: ActionHRApproved, Actor: actor, From: req.Status, Request: *out})
	return *out, nil
}

// Cancel withdraws a request that is pending, manager_approved or approved.
// The submitter and HR may cancel; reason is optional. Cancelling an
// approved request credits its days back.
func (s *Service) Cancel(ctx context.Context, actor authz.Actor, id primitive.ObjectID, reason string) (models.LeaveRequest, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > limits.MaxCommentsLength {
		return models.LeaveRequest{}, invalid(ErrValidation, "reason", fmt.Sprintf("reason must be at most %d characters", limits.MaxCommentsLength))
	}

	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return models.LeaveRequest{}, fromStore(err)
	}
	if !s.gate.CanView(actor, req) {
		return models.LeaveRequest{}, ErrNotFound
	}
	if !s.gate.CanCancel(actor, req) {
		return models.LeaveRequest{}, ErrForbidden
	}
	switch req.Status {
	case models.StatusPending, models.StatusManagerApproved, models.StatusApproved:
	default:
		return models.LeaveRequest{}, &InvalidTransitionError{From: req.Status, Action: "cancel"}
	}

	now := s.clock()
	upd := store.RequestUpdate{
		Status:      statusPtr(models.StatusCancelled),
		CancelledBy: &actor.Name,
		CancelledAt: &now,
		UpdatedAt:   now,
	}
	if reason != "" {
		upd.CancellationReason = &reason
	}

	var out *models.LeaveRequest
	if req.Status != models.StatusApproved {
		out, err = s.commit(ctx, req, upd, "cancel")
	} else {
		err = s.tx.Run(ctx, func(ctx context.Context) error {
			if err := s.Ledger.Release(ctx, req.UserID, req.LeaveType, req.Days); err != nil {
				return err
			}
			var cerr error
			out, cerr = s.commit(ctx, req, upd, "cancel")
			if cerr != nil {
				if rerr := s.users.DecrementBalance(ctx, req.UserID, req.LeaveType, req.Days); rerr != nil {
					s.log.Error("re-reserve after failed cancellation",
						zap.String("request_id", req.ID.Hex()),
						zap.String("user_id", req.UserID.Hex()),
						zap.String("leave_type", req.LeaveType),
						zap.Int("days", req.Days),
						zap.Error(rerr))
				}
				return cerr
			}
			return nil
		})
	}
	if err != nil {
		return models.LeaveRequest{}, err
	}
	s.listener.RequestChanged(ctx, RequestEvent{Action: ActionCancelled, Actor: actor, From: req.Status, Request: *out})
	return *out, nil
}

// commit writes upd only if req still has the status it was read with.
func (s *Service) commit(ctx context.Context, req *models.LeaveRequest, upd store.RequestUpdate, action string) (*models.LeaveRequest, error) {
	out, err := s.requests.UpdateIfStatus(ctx, req.ID, req.Status, upd)
	if errors.Is(err, store.ErrConflict) {
		return nil, &InvalidTransitionError{From: s.currentStatus(ctx, req.ID, req.Status), Action: action}
	}
	if err != nil {
		return nil, fromStore(err)
	}
	return out, nil
}

// requireActive rejects decisions on requests of inactive or deleted users.
func (s *Service) requireActive(ctx context.Context, userID primitive.ObjectID) error {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserInactive
	}
	if err != nil {
		return fromStore(err)
	}
	if !u.IsActive {
		return ErrUserInactive
	}
	return nil
}

func hrCanAct(req *models.LeaveRequest) bool {
	switch req.Status {
	case models.StatusManagerApproved:
		return true
	case models.StatusPending:
		return !req.HasManager()
	}
	return false
}

func statusPtr(s models.LeaveStatus) *models.LeaveStatus { return &s }
