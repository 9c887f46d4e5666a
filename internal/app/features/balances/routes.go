// internal/app/features/balances/routes.go
package balances

import (
	"github.com/dalemusser/leavedesk/internal/app/system/auth"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Get("/me", h.ServeMine)
	r.With(sm.RequireRole(models.RoleHR)).Post("/reset", h.HandleReset)
	return r
}
