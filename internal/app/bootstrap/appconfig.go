// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// Store backends.
const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings (ports, TLS, log level, body limits).
type AppConfig struct {
	// Store selection and MongoDB connection
	StoreBackend     string // "mongo" or "memory"
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management
	SessionKey    string        // Secret key for signing session cookies
	SessionName   string        // Cookie name (default: leavedesk-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime

	// Leave rules
	TimeZone           string         // IANA zone deciding which day "today" is
	Location           *time.Location // resolved from TimeZone in ValidateConfig
	DepartmentFallback bool           // managers also own requests from their department
	ManagerEmailMatch  bool           // managers also own requests naming their email

	// Audit logging: "all", "db", "log" or "off"
	AuditLogAuth  string
	AuditLogLeave string
	AuditLogAdmin string

	// Audit events older than AuditRetention are pruned every
	// AuditRetentionInterval; zero retention keeps everything.
	AuditRetention         time.Duration
	AuditRetentionInterval time.Duration

	// Browser origins allowed to call the API and open /live
	CORSAllowedOrigins []string

	// HR admin bootstrap
	HRAdminEmail    string
	HRAdminName     string
	HRAdminPassword string

	// Per-operation store deadlines
	TimeoutPing   time.Duration
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration
	TimeoutBatch  time.Duration
}
