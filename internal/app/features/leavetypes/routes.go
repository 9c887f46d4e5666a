// internal/app/features/leavetypes/routes.go
package leavetypes

import (
	"github.com/dalemusser/leavedesk/internal/app/system/auth"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Get("/", h.ServeActive)

	r.Group(func(hr chi.Router) {
		hr.Use(sm.RequireRole(models.RoleHR))
		hr.Get("/all", h.ServeAll)
		hr.Put("/{name}", h.HandleUpsert)
		hr.Post("/{name}/activate", h.HandleActivate)
		hr.Post("/{name}/deactivate", h.HandleDeactivate)
	})
	return r
}
