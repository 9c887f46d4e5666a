// internal/app/features/leavetypes/handler.go
package leavetypes

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/leavedesk/internal/app/features/errors"
	"github.com/dalemusser/leavedesk/internal/app/features/shared"
	"github.com/dalemusser/leavedesk/internal/app/leave"
	"github.com/dalemusser/leavedesk/internal/app/system/apierr"
	"github.com/dalemusser/leavedesk/internal/app/system/timeouts"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	Leave *leave.Service
	Log   *zap.Logger
}

func NewHandler(svc *leave.Service, logger *zap.Logger) *Handler {
	return &Handler{Leave: svc, Log: logger}
}

type listResponse struct {
	LeaveTypes []models.LeaveType `json:"leave_types"`
}

// ServeActive handles GET /leave-types.
func (h *Handler) ServeActive(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	types, err := h.Leave.Registry.ListActive(ctx)
	if err != nil {
		uierrors.Write(w, h.Log, "leave types: list active", err)
		return
	}
	apierr.JSON(w, http.StatusOK, listResponse{LeaveTypes: nonNil(types)})
}

// ServeAll handles GET /leave-types/all (hr): inactive types included.
func (h *Handler) ServeAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	types, err := h.Leave.Registry.List(ctx)
	if err != nil {
		uierrors.Write(w, h.Log, "leave types: list", err)
		return
	}
	apierr.JSON(w, http.StatusOK, listResponse{LeaveTypes: nonNil(types)})
}

type upsertInput struct {
	Label            string `json:"label"`
	DefaultDays      int    `json:"default_days"`
	RequiresApproval *bool  `json:"requires_approval"`
	IsActive         *bool  `json:"is_active"`
}

// HandleUpsert handles PUT /leave-types/{name}. Omitted flags default to true.
func (h *Handler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Actor(w, r)
	if !ok {
		return
	}
	var in upsertInput
	if !shared.DecodeJSON(w, r, &in) {
		return
	}
	lt := models.LeaveType{
		Name:             chi.URLParam(r, "name"),
		Label:            in.Label,
		DefaultDays:      in.DefaultDays,
		RequiresApproval: in.RequiresApproval == nil || *in.RequiresApproval,
		IsActive:         in.IsActive == nil || *in.IsActive,
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	out, err := h.Leave.UpsertLeaveType(ctx, actor, lt)
	if err != nil {
		uierrors.Write(w, h.Log, "leave types: upsert", err)
		return
	}
	apierr.JSON(w, http.StatusOK, out)
}

// HandleActivate handles POST /leave-types/{name}/activate.
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// HandleDeactivate handles POST /leave-types/{name}/deactivate.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	actor, ok := shared.Actor(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	out, err := h.Leave.SetLeaveTypeActive(ctx, actor, chi.URLParam(r, "name"), active)
	if err != nil {
		uierrors.Write(w, h.Log, "leave types: set active", err)
		return
	}
	apierr.JSON(w, http.StatusOK, out)
}

func nonNil(types []models.LeaveType) []models.LeaveType {
	if types == nil {
		return []models.LeaveType{}
	}
	return types
}
