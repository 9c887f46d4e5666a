// internal/app/features/balances/handler.go
package balances

import (
	"context"
	"net/http"
	"sort"

	uierrors "github.com/dalemusser/leavedesk/internal/app/features/errors"
	"github.com/dalemusser/leavedesk/internal/app/features/shared"
	"github.com/dalemusser/leavedesk/internal/app/leave"
	"github.com/dalemusser/leavedesk/internal/app/system/apierr"
	"github.com/dalemusser/leavedesk/internal/app/system/timeouts"
	"go.uber.org/zap"
)

type Handler struct {
	Leave *leave.Service
	Log   *zap.Logger
}

func NewHandler(svc *leave.Service, logger *zap.Logger) *Handler {
	return &Handler{Leave: svc, Log: logger}
}

type balanceRow struct {
	LeaveType   string `json:"leave_type"`
	Label       string `json:"label,omitempty"`
	Available   int    `json:"available"`
	DefaultDays int    `json:"default_days"`
	Active      bool   `json:"active"`
}

type balancesResponse struct {
	Balances []balanceRow `json:"balances"`
}

// ServeMine handles GET /balances/me. Every active type is listed, plus any
// inactive type the user still holds days for.
func (h *Handler) ServeMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Actor(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	bal, err := h.Leave.Ledger.Balances(ctx, actor.ID)
	if err != nil {
		uierrors.Write(w, h.Log, "balances: load", err)
		return
	}
	types, err := h.Leave.Registry.List(ctx)
	if err != nil {
		uierrors.Write(w, h.Log, "balances: types", err)
		return
	}

	rows := make([]balanceRow, 0, len(types))
	seen := make(map[string]bool, len(types))
	for _, t := range types {
		days, has := bal[t.Name]
		if !t.IsActive && !has {
			continue
		}
		seen[t.Name] = true
		rows = append(rows, balanceRow{
			LeaveType:   t.Name,
			Label:       t.Label,
			Available:   days,
			DefaultDays: t.DefaultDays,
			Active:      t.IsActive,
		})
	}
	for name, days := range bal {
		if !seen[name] {
			rows = append(rows, balanceRow{LeaveType: name, Available: days})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].LeaveType < rows[j].LeaveType })

	apierr.JSON(w, http.StatusOK, balancesResponse{Balances: rows})
}

type resetResponse struct {
	UsersReset int `json:"users_reset"`
}

// HandleReset handles POST /balances/reset?confirm=true. It overwrites every
// active user's balances with the active registry defaults.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Actor(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("confirm") != "true" {
		apierr.BadRequest(w, "Resetting balances overwrites every user's balance; repeat with ?confirm=true.")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Batch())
	defer cancel()

	n, err := h.Leave.ResetBalances(ctx, actor)
	if err != nil {
		uierrors.Write(w, h.Log, "balances: reset", err)
		return
	}
	h.Log.Info("balances reset", zap.String("actor_id", actor.ID.Hex()), zap.Int("users", n))
	apierr.JSON(w, http.StatusOK, resetResponse{UsersReset: n})
}
