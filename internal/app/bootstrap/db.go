// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/leavedesk/internal/app/leave"
	"github.com/dalemusser/leavedesk/internal/app/store/audit"
	leaverequeststore "github.com/dalemusser/leavedesk/internal/app/store/leaverequests"
	leavetypestore "github.com/dalemusser/leavedesk/internal/app/store/leavetypes"
	"github.com/dalemusser/leavedesk/internal/app/store/memory"
	userstore "github.com/dalemusser/leavedesk/internal/app/store/users"
	"github.com/dalemusser/leavedesk/internal/app/system/authz"
	"github.com/dalemusser/leavedesk/internal/app/system/indexes"
	"github.com/dalemusser/leavedesk/internal/app/system/timeouts"
	"github.com/dalemusser/leavedesk/internal/app/system/txn"
	"github.com/dalemusser/leavedesk/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB opens the configured store backend and builds the leave
// service over it.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	configureTimeouts(appCfg)

	loc, err := resolveLocation(appCfg.TimeZone)
	if err != nil {
		return DBDeps{}, err
	}
	svcCfg := leave.Config{
		Location: loc,
		Gate: authz.Gate{
			DepartmentFallback: appCfg.DepartmentFallback,
			ManagerEmailMatch:  appCfg.ManagerEmailMatch,
		},
	}

	if appCfg.StoreBackend == BackendMemory {
		logger.Warn("using in-memory store backend; data will not survive a restart")
		mem := memory.New()
		deps := DBDeps{Memory: mem, bg: newBackground()}
		deps.Leave = leave.New(memoryBackend(mem), svcCfg, logger)
		return deps, nil
	}

	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)

	connectCtx, cancel := context.WithTimeout(ctx, timeouts.Long())
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		logger.Error("MongoDB connect failed", zap.Error(err))
		return DBDeps{}, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, timeouts.Ping())
	defer pingCancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		logger.Error("MongoDB ping failed", zap.Error(err))
		return DBDeps{}, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(appCfg.MongoDatabase)
	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool", appCfg.MongoMaxPoolSize),
		zap.Uint64("min_pool", appCfg.MongoMinPoolSize),
	)

	deps := DBDeps{
		LeaveDeskMongoClient:   client,
		LeaveDeskMongoDatabase: db,
		Audit:                  audit.New(db),
		bg:                     newBackground(),
	}
	deps.Leave = leave.New(mongoBackend(db, logger), svcCfg, logger)
	return deps, nil
}

// mongoBackend wires the Mongo stores behind the leave service.
func mongoBackend(db *mongo.Database, logger *zap.Logger) leave.Backend {
	return leave.Backend{
		Users:      userstore.New(db),
		LeaveTypes: leavetypestore.New(db),
		Requests:   leaverequeststore.New(db),
		Tx:         txn.Runner{DB: db, Log: logger},
	}
}

// memoryBackend wires the in-process stores behind the leave service.
func memoryBackend(mem *memory.DB) leave.Backend {
	return leave.Backend{
		Users:      mem.Users(),
		LeaveTypes: mem.LeaveTypes(),
		Requests:   mem.Requests(),
		Tx:         mem.Tx(),
	}
}

// EnsureSchema attaches collection validators and creates indexes. Memory
// mode has neither.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.LeaveDeskMongoDatabase == nil {
		return nil
	}
	ictx, cancel := context.WithTimeout(ctx, timeouts.Batch())
	defer cancel()
	if err := validators.EnsureAll(ictx, deps.LeaveDeskMongoDatabase, logger); err != nil {
		logger.Error("ensure validators failed", zap.Error(err))
		return err
	}
	if err := indexes.EnsureAll(ictx, deps.LeaveDeskMongoDatabase, logger); err != nil {
		logger.Error("ensure indexes failed", zap.Error(err))
		return err
	}
	return nil
}
