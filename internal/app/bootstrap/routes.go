// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	auditlogfeature "github.com/dalemusser/leavedesk/internal/app/features/auditlog"
	balancesfeature "github.com/dalemusser/leavedesk/internal/app/features/balances"
	errorsfeature "github.com/dalemusser/leavedesk/internal/app/features/errors"
	healthfeature "github.com/dalemusser/leavedesk/internal/app/features/health"
	leavetypesfeature "github.com/dalemusser/leavedesk/internal/app/features/leavetypes"
	livefeature "github.com/dalemusser/leavedesk/internal/app/features/live"
	loginfeature "github.com/dalemusser/leavedesk/internal/app/features/login"
	logoutfeature "github.com/dalemusser/leavedesk/internal/app/features/logout"
	mefeature "github.com/dalemusser/leavedesk/internal/app/features/me"
	profilefeature "github.com/dalemusser/leavedesk/internal/app/features/profile"
	requestsfeature "github.com/dalemusser/leavedesk/internal/app/features/requests"
	"github.com/dalemusser/leavedesk/internal/app/leave"
	userstore "github.com/dalemusser/leavedesk/internal/app/store/users"
	"github.com/dalemusser/leavedesk/internal/app/system/auditlog"
	"github.com/dalemusser/leavedesk/internal/app/system/auth"
	"github.com/dalemusser/leavedesk/internal/app/system/notify"
	"github.com/dalemusser/leavedesk/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. At this point you have access to:
//   - coreCfg: WAFFLE core configuration (ports, env, timeouts, etc.)
//   - appCfg: app-specific configuration defined in AppConfig
//   - deps: the store backend and the leave service bundled in DBDeps
//   - logger: the fully configured zap.Logger for this app
//
// LeaveDesk applies CORS, audit client capture and session middleware, starts
// the live update hub, and mounts the JSON feature routers.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	users := deps.users()

	// Fetch fresh user data on each request so role changes and disabled
	// accounts take effect immediately.
	sessionMgr.SetUserFetcher(userstore.NewFetcher(users))

	auditLogger := newAuditLogger(appCfg, deps, logger)

	bg := deps.backgroundContext()

	hub := notify.NewHub(deps.Leave.Gate(), appCfg.CORSAllowedOrigins, logger)
	go hub.Run(bg)

	deps.Leave.SetListener(leave.Listeners{auditLogger, hub})

	limiter := ratelimit.NewLoginLimiter()
	go limiter.Run(bg)

	r := chi.NewRouter()

	if len(appCfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   appCfg.CORSAllowedOrigins,
			AllowCredentials: true,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			MaxAge:           300,
		}))
	}

	// Capture client IP and user agent for audit events.
	r.Use(auditlog.Middleware)

	// Global auth middleware: loads SessionUser into context if logged in.
	r.Use(sessionMgr.LoadSessionUser)

	errorsHandler := errorsfeature.NewHandler()
	r.NotFound(errorsHandler.NotFound)
	r.MethodNotAllowed(errorsHandler.MethodNotAllowed)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.LeaveDeskMongoClient, hub, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Authentication
	loginHandler := loginfeature.NewHandler(users, sessionMgr, auditLogger, limiter, logger)
	r.Mount("/login", loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, auditLogger, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler))

	meHandler := mefeature.NewHandler(users, deps.Leave, logger)
	r.Mount("/me", mefeature.Routes(meHandler, sessionMgr))

	profileHandler := profilefeature.NewHandler(users, auditLogger, logger)
	r.Mount("/profile", profilefeature.Routes(profileHandler, sessionMgr))

	// Leave type registry and balances
	leaveTypesHandler := leavetypesfeature.NewHandler(deps.Leave, logger)
	r.Mount("/leave-types", leavetypesfeature.Routes(leaveTypesHandler, sessionMgr))

	balancesHandler := balancesfeature.NewHandler(deps.Leave, logger)
	r.Mount("/balances", balancesfeature.Routes(balancesHandler, sessionMgr))

	// Leave requests and approvals
	var (
		history    requestsfeature.History
		auditStore auditlogfeature.Store
	)
	if deps.Audit != nil {
		history = deps.Audit
		auditStore = deps.Audit
	}
	requestsHandler := requestsfeature.NewHandler(deps.Leave, users, history, logger)
	r.Mount("/requests", requestsfeature.Routes(requestsHandler, sessionMgr))

	// Audit trail (HR)
	auditHandler := auditlogfeature.NewHandler(auditStore, logger)
	r.Mount("/audit", auditlogfeature.Routes(auditHandler, sessionMgr))

	// Live updates over websocket
	r.Mount("/live", livefeature.Routes(hub, sessionMgr))

	return r, nil
}
