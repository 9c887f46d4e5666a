// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/leavedesk/internal/app/system/auditlog"
	"github.com/dalemusser/leavedesk/internal/app/system/authutil"
	"github.com/dalemusser/leavedesk/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for LeaveDesk.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: LEAVEDESK_MONGO_URI, LEAVEDESK_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "store_backend", Default: BackendMongo, Desc: "Document store: 'mongo' or 'memory' (memory loses data on restart)"},
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "leavedesk", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "leavedesk-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "24h", Desc: "Session cookie lifetime (e.g., 8h, 24h)"},

	// Leave rules
	{Name: "time_zone", Default: "UTC", Desc: "IANA time zone used to decide today's date for the past-date rule"},
	{Name: "department_fallback", Default: true, Desc: "Managers may act on requests from their own department"},
	{Name: "manager_email_match", Default: false, Desc: "Managers may act on requests whose manager email matches theirs"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: auditlog.All, Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_leave", Default: auditlog.All, Desc: "Leave request event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: auditlog.All, Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_retention", Default: "0s", Desc: "Delete audit events older than this (e.g., 8760h); 0 keeps them forever"},
	{Name: "audit_retention_interval", Default: "1h", Desc: "How often the audit retention worker runs"},

	// CORS
	{Name: "cors_allowed_origins", Default: "", Desc: "Comma-separated browser origins allowed to call the API (blank disables CORS)"},

	// HR admin bootstrap
	{Name: "hr_admin_email", Default: "", Desc: "Email of the HR admin (promotes/creates on startup)"},
	{Name: "hr_admin_name", Default: "HR Admin", Desc: "Full name used when the HR admin is created"},
	{Name: "hr_admin_password", Default: "", Desc: "Initial password when the HR admin is created"},

	// Store deadlines
	{Name: "timeout_ping", Default: "2s", Desc: "Health check deadline"},
	{Name: "timeout_short", Default: "5s", Desc: "Single-document read deadline"},
	{Name: "timeout_medium", Default: "10s", Desc: "List and single-write deadline"},
	{Name: "timeout_long", Default: "20s", Desc: "Approval and cancellation deadline"},
	{Name: "timeout_batch", Default: "60s", Desc: "Balance reset and seeding deadline"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, LEAVEDESK_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "LEAVEDESK", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		StoreBackend:     strings.ToLower(strings.TrimSpace(appValues.String("store_backend"))),
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 24*time.Hour),

		// Leave rules
		TimeZone:           appValues.String("time_zone"),
		DepartmentFallback: appValues.Bool("department_fallback"),
		ManagerEmailMatch:  appValues.Bool("manager_email_match"),

		// Audit logging
		AuditLogAuth:  appValues.String("audit_log_auth"),
		AuditLogLeave: appValues.String("audit_log_leave"),
		AuditLogAdmin: appValues.String("audit_log_admin"),

		AuditRetention:         appValues.Duration("audit_retention", 0),
		AuditRetentionInterval: appValues.Duration("audit_retention_interval", time.Hour),

		CORSAllowedOrigins: splitList(appValues.String("cors_allowed_origins")),

		// HR admin
		HRAdminEmail:    appValues.String("hr_admin_email"),
		HRAdminName:     appValues.String("hr_admin_name"),
		HRAdminPassword: appValues.String("hr_admin_password"),

		// Deadlines
		TimeoutPing:   appValues.Duration("timeout_ping", timeouts.DefaultPing),
		TimeoutShort:  appValues.Duration("timeout_short", timeouts.DefaultShort),
		TimeoutMedium: appValues.Duration("timeout_medium", timeouts.DefaultMedium),
		TimeoutLong:   appValues.Duration("timeout_long", timeouts.DefaultLong),
		TimeoutBatch:  appValues.Duration("timeout_batch", timeouts.DefaultBatch),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation and resolves the
// configured time zone.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.StoreBackend {
	case BackendMongo:
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if strings.TrimSpace(appCfg.MongoDatabase) == "" {
			return fmt.Errorf("mongo_database is required")
		}
	case BackendMemory:
		if coreCfg != nil && coreCfg.Env == "prod" {
			logger.Warn("memory store backend in prod: all data is lost on restart")
		}
	default:
		return fmt.Errorf("store_backend must be %q or %q, got %q", BackendMongo, BackendMemory, appCfg.StoreBackend)
	}

	if _, err := resolveLocation(appCfg.TimeZone); err != nil {
		return err
	}

	for name, v := range map[string]string{
		"audit_log_auth":  appCfg.AuditLogAuth,
		"audit_log_leave": appCfg.AuditLogLeave,
		"audit_log_admin": appCfg.AuditLogAdmin,
	} {
		switch v {
		case "", auditlog.All, auditlog.DB, auditlog.Log, auditlog.Off:
		default:
			return fmt.Errorf("%s must be one of all|db|log|off, got %q", name, v)
		}
	}

	if appCfg.AuditRetention < 0 {
		return fmt.Errorf("audit_retention must not be negative")
	}
	if appCfg.AuditRetention > 0 && appCfg.AuditRetentionInterval <= 0 {
		return fmt.Errorf("audit_retention_interval must be positive when audit_retention is set")
	}

	if appCfg.HRAdminPassword != "" {
		if err := authutil.ValidatePassword(appCfg.HRAdminPassword); err != nil {
			return fmt.Errorf("hr_admin_password: %w", err)
		}
	}
	return nil
}

func resolveLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid time_zone %q: %w", name, err)
	}
	return loc, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// configureTimeouts installs the configured deadlines.
func configureTimeouts(appCfg AppConfig) {
	timeouts.Configure(timeouts.Config{
		Ping:   appCfg.TimeoutPing,
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
		Batch:  appCfg.TimeoutBatch,
	})
}
