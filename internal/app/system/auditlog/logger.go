// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/leavedesk/internal/app/leave"
	"github.com/dalemusser/leavedesk/internal/app/store/audit"
	"github.com/dalemusser/leavedesk/internal/app/system/authz"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Destination settings for each category.
const (
	All = "all" // MongoDB + zap
	DB  = "db"  // MongoDB only
	Log = "log" // zap only
	Off = "off" // disabled
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for sign-in and sign-out.
	Auth string
	// Leave controls logging for leave request transitions.
	Leave string
	// Admin controls logging for leave type changes and balance resets.
	Admin string
}

// Sink persists audit events. *audit.Store satisfies it.
type Sink interface {
	Log(ctx context.Context, event audit.Event) error
}

// Logger records audit events to a Sink and to zap. It also implements
// leave.Listener so every request transition is recorded.
type Logger struct {
	sink   Sink
	zapLog *zap.Logger
	config Config
}

var _ leave.Listener = (*Logger)(nil)

// New creates a new audit Logger. A nil sink downgrades "all" and "db" to
// zap only.
func New(sink Sink, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	return &Logger{sink: sink, zapLog: zapLog, config: config}
}

type clientKey struct{}

type client struct {
	ip        string
	userAgent string
}

// Middleware stores the caller's IP and user agent in the request context
// so events raised deeper in the stack can carry them.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientKey{}, client{ip: ClientIP(r), userAgent: r.UserAgent()})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP extracts the client IP from the request.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (l *Logger) setting(category string) string {
	var s string
	switch category {
	case audit.CategoryAuth:
		s = l.config.Auth
	case audit.CategoryLeave:
		s = l.config.Leave
	case audit.CategoryAdmin:
		s = l.config.Admin
	}
	if s == "" {
		s = All
	}
	return s
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.RequestID != nil {
		fields = append(fields, zap.String("request_id", event.RequestID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// A nil Logger is a no-op.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}
	setting := l.setting(event.Category)
	if setting == Off {
		return
	}
	if c, ok := ctx.Value(clientKey{}).(client); ok {
		if event.IP == "" {
			event.IP = c.ip
		}
		if event.UserAgent == "" {
			event.UserAgent = c.userAgent
		}
	}

	if setting == All || setting == Log || l.sink == nil {
		l.logToZap(event)
	}
	if (setting == All || setting == DB) && l.sink != nil {
		if err := l.sink.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType))
		}
	}
}

// --- Authentication Events ---

// LoginSuccess logs a successful sign-in.
func (l *Logger) LoginSuccess(ctx context.Context, userID primitive.ObjectID, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"email": email},
	})
}

// LoginFailed logs a failed sign-in. userID is nil when no account matched.
func (l *Logger) LoginFailed(ctx context.Context, eventType string, userID *primitive.ObjectID, email, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     eventType,
		UserID:        userID,
		Success:       false,
		FailureReason: reason,
		Details:       map[string]string{"email": email},
	})
}

// PasswordChanged logs a self-service password change.
func (l *Logger) PasswordChanged(ctx context.Context, userID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventPasswordChanged,
		UserID:    &userID,
		Success:   true,
	})
}

// Logout logs a sign-out.
func (l *Logger) Logout(ctx context.Context, userIDStr string) {
	event := audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		Success:   true,
	}
	if oid, err := primitive.ObjectIDFromHex(userIDStr); err == nil {
		event.UserID = &oid
	}
	l.Log(ctx, event)
}

// --- Leave Events ---

var leaveEventTypes = map[leave.Action]string{
	leave.ActionSubmitted:       audit.EventLeaveSubmitted,
	leave.ActionEdited:          audit.EventLeaveEdited,
	leave.ActionManagerApproved: audit.EventLeaveManagerApproved,
	leave.ActionManagerRejected: audit.EventLeaveManagerRejected,
	leave.ActionHRApproved:      audit.EventLeaveHRApproved,
	leave.ActionHRRejected:      audit.EventLeaveHRRejected,
	leave.ActionCancelled:       audit.EventLeaveCancelled,
}

// RequestChanged records one request transition.
func (l *Logger) RequestChanged(ctx context.Context, ev leave.RequestEvent) {
	if l == nil {
		return
	}
	eventType, ok := leaveEventTypes[ev.Action]
	if !ok {
		eventType = "leave_" + string(ev.Action)
	}
	r := ev.Request
	details := map[string]string{
		"leave_type": r.LeaveType,
		"days":       strconv.Itoa(r.Days),
		"start_date": r.StartDate.Format("2006-01-02"),
		"end_date":   r.EndDate.Format("2006-01-02"),
		"status":     string(r.Status),
	}
	if ev.From != "" {
		details["from"] = string(ev.From)
	}
	if r.RejectionReason != "" && r.Status == models.StatusRejected {
		details["rejection_reason"] = r.RejectionReason
	}
	if r.CancellationReason != "" && r.Status == models.StatusCancelled {
		details["cancellation_reason"] = r.CancellationReason
	}
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryLeave,
		EventType: eventType,
		UserID:    &r.UserID,
		ActorID:   actorID(ev.Actor),
		RequestID: &r.ID,
		Success:   true,
		Details:   details,
	})
}

// --- Admin Events ---

// LeaveTypeChanged records a registry change. action is one of
// "upserted", "activated" or "deactivated".
func (l *Logger) LeaveTypeChanged(ctx context.Context, actor authz.Actor, lt models.LeaveType, action string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: "leave_type_" + action,
		ActorID:   actorID(actor),
		Success:   true,
		Details: map[string]string{
			"name":         lt.Name,
			"label":        lt.Label,
			"default_days": strconv.Itoa(lt.DefaultDays),
			"is_active":    strconv.FormatBool(lt.IsActive),
		},
	})
}

// BalancesReset records an HR bulk reset.
func (l *Logger) BalancesReset(ctx context.Context, actor authz.Actor, users int, types []string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventBalancesReset,
		ActorID:   actorID(actor),
		Success:   true,
		Details: map[string]string{
			"users": strconv.Itoa(users),
			"types": strings.Join(types, ","),
		},
	})
}

// HRAdminBootstrapped records the startup creation or promotion of the
// configured HR administrator.
func (l *Logger) HRAdminBootstrapped(ctx context.Context, userID primitive.ObjectID, email string, created bool) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventHRAdminBootstrapped,
		UserID:    &userID,
		Success:   true,
		Details: map[string]string{
			"email":   email,
			"created": strconv.FormatBool(created),
		},
	})
}

func actorID(a authz.Actor) *primitive.ObjectID {
	if a.ID.IsZero() {
		return nil
	}
	id := a.ID
	return &id
}
