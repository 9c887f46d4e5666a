// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/leavedesk/internal/app/leave"
	"github.com/dalemusser/leavedesk/internal/app/store/audit"
	"github.com/dalemusser/leavedesk/internal/app/store/memory"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
//
// Exactly one of the Mongo pair or Memory is set, depending on the
// configured store backend.
type DBDeps struct {
	LeaveDeskMongoClient   *mongo.Client
	LeaveDeskMongoDatabase *mongo.Database
	Memory                 *memory.DB

	// Leave is the leave service built over whichever backend is active.
	Leave *leave.Service
	// Audit is the audit event store; nil in memory mode.
	Audit *audit.Store

	// Background workers started in Startup and BuildHandler stop when
	// Shutdown cancels this.
	bg *background
}

// background owns the context for long-running goroutines (websocket hub,
// rate limiter sweeps) and the workers started with Start/Stop.
type background struct {
	ctx     context.Context
	cancel  context.CancelFunc
	workers []stopper
}

type stopper interface{ Stop() }

// stop cancels the context and stops every registered worker.
func (b *background) stop() {
	b.cancel()
	for _, w := range b.workers {
		w.Stop()
	}
}

func newBackground() *background {
	ctx, cancel := context.WithCancel(context.Background())
	return &background{ctx: ctx, cancel: cancel}
}

// backgroundContext returns the background context, or context.Background when deps
// were assembled without ConnectDB (tests).
func (d DBDeps) backgroundContext() context.Context {
	if d.bg == nil {
		return context.Background()
	}
	return d.bg.ctx
}
