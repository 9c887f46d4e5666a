// internal/app/features/login/handler.go
package login

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/app/store/audit"
	"github.com/dalemusser/leavedesk/internal/app/system/apierr"
	"github.com/dalemusser/leavedesk/internal/app/system/auditlog"
	"github.com/dalemusser/leavedesk/internal/app/system/auth"
	"github.com/dalemusser/leavedesk/internal/app/system/authutil"
	"github.com/dalemusser/leavedesk/internal/app/system/ratelimit"
	"github.com/dalemusser/leavedesk/internal/app/system/timeouts"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.uber.org/zap"
)

// UserLookup finds a user by email. Both the Mongo store and the memory
// backend satisfy it.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type Handler struct {
	Users      UserLookup
	SessionMgr *auth.SessionManager
	AuditLog   *auditlog.Logger
	Limiter    *ratelimit.LoginLimiter
	Log        *zap.Logger
}

func NewHandler(users UserLookup, sessionMgr *auth.SessionManager, audit *auditlog.Logger, limiter *ratelimit.LoginLimiter, logger *zap.Logger) *Handler {
	return &Handler{
		Users:      users,
		SessionMgr: sessionMgr,
		AuditLog:   audit,
		Limiter:    limiter,
		Log:        logger,
	}
}

type loginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User models.User `json:"user"`
}

const msgBadCredentials = "Invalid email or password."

/*─────────────────────────────────────────────────────────────────────────────*
| POST /login                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleLoginPost(w http.ResponseWriter, r *http.Request) {
	var in loginInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apierr.BadRequest(w, "Request body must be JSON.")
		return
	}
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		fields := map[string]string{}
		if email == "" {
			fields["email"] = "email is required"
		}
		if in.Password == "" {
			fields["password"] = "password is required"
		}
		apierr.WriteDetail(w, http.StatusUnprocessableEntity, apierr.Detail{
			Code:    apierr.CodeValidation,
			Message: "Email and password are required.",
			Fields:  fields,
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	/*── throttle ──────────────────────────────────────────────────────────*/

	if h.Limiter != nil {
		if ok, reason := h.Limiter.Check(auditlog.ClientIP(r), email); !ok {
			h.AuditLog.LoginFailed(ctx, audit.EventLoginFailedRateLimit, nil, email, "rate limited")
			apierr.Write(w, http.StatusTooManyRequests, apierr.CodeTooManyRequests, reason)
			return
		}
	}

	/*── look-up user by normalized email ──────────────────────────────────*/

	u, err := h.Users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.AuditLog.LoginFailed(ctx, audit.EventLoginFailedUserNotFound, nil, email, "no such user")
		apierr.Write(w, http.StatusUnauthorized, apierr.CodeUnauthorized, msgBadCredentials)
		return
	case err != nil:
		h.Log.Error("login: find user", zap.Error(err))
		apierr.Write(w, http.StatusServiceUnavailable, apierr.CodeServiceUnavailable,
			"The service is temporarily unavailable. Please try again.")
		return
	}

	/*── check password, then status ───────────────────────────────────────*/

	if !authutil.CheckPassword(in.Password, u.PasswordHash) {
		h.AuditLog.LoginFailed(ctx, audit.EventLoginFailedWrongPassword, &u.ID, email, "wrong password")
		apierr.Write(w, http.StatusUnauthorized, apierr.CodeUnauthorized, msgBadCredentials)
		return
	}
	if !u.IsActive {
		h.AuditLog.LoginFailed(ctx, audit.EventLoginFailedUserDisabled, &u.ID, email, "user inactive")
		apierr.Write(w, http.StatusForbidden, apierr.CodeForbidden,
			"Your account is inactive. Please contact HR.")
		return
	}

	/*── establish session ─────────────────────────────────────────────────*/

	if err := h.SessionMgr.SignIn(w, r, u.ID.Hex()); err != nil {
		h.Log.Error("login: save session", zap.Error(err))
		apierr.Write(w, http.StatusInternalServerError, apierr.CodeInternal, "Could not start a session.")
		return
	}
	if h.Limiter != nil {
		h.Limiter.ResetEmail(email)
	}
	h.AuditLog.LoginSuccess(ctx, u.ID, u.Email)
	h.Log.Info("user signed in", zap.String("user_id", u.ID.Hex()), zap.String("role", u.Role))

	apierr.JSON(w, http.StatusOK, loginResponse{User: *u})
}
