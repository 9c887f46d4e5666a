// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/leavedesk/internal/app/leave"
	"github.com/dalemusser/leavedesk/internal/app/store"
	userstore "github.com/dalemusser/leavedesk/internal/app/store/users"
	"github.com/dalemusser/leavedesk/internal/app/system/auditlog"
	"github.com/dalemusser/leavedesk/internal/app/system/authutil"
	"github.com/dalemusser/leavedesk/internal/app/system/timeouts"
	"github.com/dalemusser/leavedesk/internal/app/system/workers"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It seeds
// the leave type registry and makes sure the configured HR admin exists.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Leave == nil {
		return errors.New("leave service not initialized")
	}

	sctx, cancel := context.WithTimeout(ctx, timeouts.Batch())
	defer cancel()

	seeded, err := deps.Leave.Registry.SeedDefaults(sctx)
	if err != nil {
		logger.Error("seed leave types failed", zap.Error(err))
		return err
	}
	if seeded {
		logger.Info("seeded default leave types")
	}

	if strings.TrimSpace(appCfg.HRAdminEmail) != "" {
		admin := hrAdmin{
			Email:    appCfg.HRAdminEmail,
			Name:     appCfg.HRAdminName,
			Password: appCfg.HRAdminPassword,
		}
		if err := ensureHRAdmin(sctx, deps.users(), deps.Leave.Registry, admin, newAuditLogger(appCfg, deps, logger), logger); err != nil {
			logger.Error("ensure HR admin failed", zap.Error(err))
			return err
		}
	}

	if deps.Audit != nil && deps.bg != nil && appCfg.AuditRetention > 0 {
		w := workers.NewAuditRetention(deps.Audit, logger, appCfg.AuditRetentionInterval, appCfg.AuditRetention)
		w.Start()
		deps.bg.workers = append(deps.bg.workers, w)
	}
	return nil
}

// userBackend is the slice of a users backend that sign-in, session lookup,
// password changes and the HR admin bootstrap need.
type userBackend interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, u models.User) (models.User, error)
	SetRole(ctx context.Context, id primitive.ObjectID, role string) error
	SetActive(ctx context.Context, id primitive.ObjectID, active bool) error
	UpdatePassword(ctx context.Context, id primitive.ObjectID, hash string) error
}

// users returns the users backend for whichever store is active.
func (d DBDeps) users() userBackend {
	if d.Memory != nil {
		return d.Memory.Users()
	}
	return userstore.New(d.LeaveDeskMongoDatabase)
}

type hrAdmin struct {
	Email    string
	Name     string
	Password string
}

// ensureHRAdmin promotes the user with admin.Email to an active HR user, or
// creates one with full default balances when none exists. A new account
// without a configured password gets no password hash and cannot sign in
// until one is set.
func ensureHRAdmin(ctx context.Context, users userBackend, registry *leave.Registry, admin hrAdmin, audit *auditlog.Logger, logger *zap.Logger) error {
	email := userstore.NormalizeEmail(admin.Email)

	existing, err := users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == models.RoleHR && existing.IsActive {
			return nil
		}
		if err := users.SetRole(ctx, existing.ID, models.RoleHR); err != nil {
			return err
		}
		if !existing.IsActive {
			if err := users.SetActive(ctx, existing.ID, true); err != nil {
				return err
			}
		}
		logger.Info("promoted existing user to HR admin", zap.String("email", email))
		audit.HRAdminBootstrapped(ctx, existing.ID, email, false)
		return nil
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	types, err := registry.ListActive(ctx)
	if err != nil {
		return err
	}
	balances := make(map[string]int, len(types))
	for _, lt := range types {
		balances[lt.Name] = lt.DefaultDays
	}

	u := models.User{
		FullName:      strings.TrimSpace(admin.Name),
		Email:         email,
		Role:          models.RoleHR,
		Department:    "HR",
		LeaveBalances: balances,
		IsActive:      true,
	}
	if u.FullName == "" {
		u.FullName = "HR Admin"
	}
	if admin.Password != "" {
		hash, err := authutil.HashPassword(admin.Password)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
	}

	created, err := users.Create(ctx, u)
	if err != nil {
		return err
	}
	logger.Info("created HR admin", zap.String("email", email), zap.Bool("has_password", admin.Password != ""))
	audit.HRAdminBootstrapped(ctx, created.ID, email, true)
	return nil
}

// newAuditLogger builds the audit logger. Memory mode logs to zap only.
func newAuditLogger(appCfg AppConfig, deps DBDeps, logger *zap.Logger) *auditlog.Logger {
	cfg := auditlog.Config{
		Auth:  appCfg.AuditLogAuth,
		Leave: appCfg.AuditLogLeave,
		Admin: appCfg.AuditLogAdmin,
	}
	if deps.Audit == nil {
		return auditlog.New(nil, logger, cfg)
	}
	return auditlog.New(deps.Audit, logger, cfg)
}
