// internal/app/features/me/handler.go
package me

import (
	"context"
	"errors"
	"net/http"

	uierrors "github.com/dalemusser/leavedesk/internal/app/features/errors"
	"github.com/dalemusser/leavedesk/internal/app/features/shared"
	"github.com/dalemusser/leavedesk/internal/app/leave"
	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/app/system/apierr"
	"github.com/dalemusser/leavedesk/internal/app/system/authz"
	"github.com/dalemusser/leavedesk/internal/app/system/timeouts"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// UserGetter loads the stored user record.
type UserGetter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

type Handler struct {
	Users UserGetter
	Leave *leave.Service
	Log   *zap.Logger
}

func NewHandler(users UserGetter, svc *leave.Service, logger *zap.Logger) *Handler {
	return &Handler{Users: users, Leave: svc, Log: logger}
}

type meResponse struct {
	User       models.User `json:"user"`
	CanApprove bool        `json:"can_approve"`
	IsHR       bool        `json:"is_hr"`
	Pending    int         `json:"pending_for_me"`
}

// ServeMe handles GET /me: the signed-in user, their balances and how many
// requests wait on them.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Actor(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.GetByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apierr.Unauthorized(w)
			return
		}
		uierrors.Write(w, h.Log, "me", leave.ErrStoreUnavailable)
		return
	}

	resp := meResponse{
		User:       *u,
		CanApprove: actor.IsManager() || actor.IsHR(),
		IsHR:       actor.IsHR(),
	}
	if resp.CanApprove {
		q := leave.ListQuery{Scope: leave.ScopeTeam, Statuses: []models.LeaveStatus{models.StatusPending}}
		if actor.IsHR() {
			q = leave.ListQuery{Statuses: []models.LeaveStatus{models.StatusPending, models.StatusManagerApproved}}
		}
		waiting, err := h.Leave.List(ctx, actor, q)
		if err != nil {
			uierrors.Write(w, h.Log, "me: pending", err)
			return
		}
		gate := h.Leave.Gate()
		for i := range waiting {
			req := &waiting[i]
			stage := authz.StageHR
			if req.Status == models.StatusPending && req.HasManager() {
				stage = authz.StageManager
			}
			if gate.CanDecide(actor, req, stage) {
				resp.Pending++
			}
		}
	}
	apierr.JSON(w, http.StatusOK, resp)
}
