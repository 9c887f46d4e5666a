// internal/app/features/health/handler.go
package health

import (
	"context"
	"net/http"

	"github.com/dalemusser/leavedesk/internal/app/system/apierr"
	"github.com/dalemusser/leavedesk/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// LiveCounter reports how many websocket clients are connected.
type LiveCounter interface {
	Clients() int
}

// Handler serves the liveness check. A nil Client means the in-memory
// backend is in use; a nil Live omits the client count.
type Handler struct {
	Client *mongo.Client
	Live   LiveCounter
	Log    *zap.Logger
}

func NewHandler(client *mongo.Client, live LiveCounter, logger *zap.Logger) *Handler {
	return &Handler{Client: client, Live: live, Log: logger}
}

type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	LiveClients *int   `json:"live_clients,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "live_clients":3 }
//
// When Mongo does not answer the ping: 503 and
//
//	{ "status":"error", "database":"disconnected", "message":"Database unavailable", "error":"…" }
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "memory"}
	if h.Live != nil {
		n := h.Live.Clients()
		resp.LiveClients = &n
	}

	if h.Client != nil {
		ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
		defer cancel()

		if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
			h.Log.Error("health-check: mongo ping failed", zap.Error(err))
			resp.Status = "error"
			resp.Database = "disconnected"
			resp.Message = "Database unavailable"
			resp.Error = err.Error()
			apierr.JSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Database = "connected"
	}

	apierr.JSON(w, http.StatusOK, resp)
}
