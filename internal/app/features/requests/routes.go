// internal/app/features/requests/routes.go
package requests

import (
	"github.com/dalemusser/leavedesk/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the leave request endpoints. Per-request rights are checked
// by the leave service, so only sign-in is enforced here.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Post("/", h.HandleCreate)
	r.Get("/", h.ServeList)

	r.Route("/{id}", func(rr chi.Router) {
		rr.Get("/", h.ServeGet)
		rr.Patch("/", h.HandleEdit)
		rr.Get("/history", h.ServeHistory)
		rr.Post("/manager-decision", h.HandleManagerDecision)
		rr.Post("/hr-decision", h.HandleHRDecision)
		rr.Post("/cancel", h.HandleCancel)
	})
	return r
}
