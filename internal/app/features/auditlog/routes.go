// internal/app/features/auditlog/routes.go
package auditlog

import (
	"github.com/dalemusser/leavedesk/internal/app/system/auth"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the audit trail (typically at "/audit"). HR only.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Use(sm.RequireRole(models.RoleHR))

		pr.Get("/", h.ServeList)
		pr.Get("/failed-logins", h.ServeFailedLogins)
	})

	return r
}
