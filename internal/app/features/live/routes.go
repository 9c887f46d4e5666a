// internal/app/features/live/routes.go
package live

import (
	"github.com/dalemusser/leavedesk/internal/app/system/auth"
	"github.com/dalemusser/leavedesk/internal/app/system/notify"
	"github.com/go-chi/chi/v5"
)

// Routes serves GET /live: a WebSocket that pushes leave request changes
// the signed-in user may view.
func Routes(hub *notify.Hub, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Get("/", hub.ServeWS)
	return r
}
