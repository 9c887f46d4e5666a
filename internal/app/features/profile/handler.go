// internal/app/features/profile/handler.go
package profile

import (
	"context"
	"errors"
	"net/http"

	uierrors "github.com/dalemusser/leavedesk/internal/app/features/errors"
	"github.com/dalemusser/leavedesk/internal/app/features/shared"
	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/app/system/apierr"
	"github.com/dalemusser/leavedesk/internal/app/system/auditlog"
	"github.com/dalemusser/leavedesk/internal/app/system/authutil"
	"github.com/dalemusser/leavedesk/internal/app/system/timeouts"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Users is the slice of the users store the profile handlers need.
type Users interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	UpdatePassword(ctx context.Context, id primitive.ObjectID, hash string) error
}

// Handler owns the self-service profile handlers.
type Handler struct {
	Users    Users
	AuditLog *auditlog.Logger
	Log      *zap.Logger
}

func NewHandler(users Users, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{Users: users, AuditLog: audit, Log: logger}
}

type passwordInput struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type rulesResponse struct {
	PasswordRules string `json:"password_rules"`
	MinLength     int    `json:"min_length"`
	MaxLength     int    `json:"max_length"`
}

// ServeRules handles GET /profile/password.
func (h *Handler) ServeRules(w http.ResponseWriter, r *http.Request) {
	apierr.JSON(w, http.StatusOK, rulesResponse{
		PasswordRules: authutil.PasswordRules(),
		MinLength:     authutil.MinPasswordLength,
		MaxLength:     authutil.MaxPasswordLength,
	})
}

// HandleChangePassword handles POST /profile/password.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Actor(w, r)
	if !ok {
		return
	}
	var in passwordInput
	if !shared.DecodeJSON(w, r, &in) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	user, err := h.Users.GetByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apierr.Unauthorized(w)
			return
		}
		uierrors.Write(w, h.Log, "profile: load user", err)
		return
	}

	if !authutil.CheckPassword(in.CurrentPassword, user.PasswordHash) {
		invalid(w, "current_password", "Current password is incorrect.")
		return
	}
	if err := authutil.ValidatePassword(in.NewPassword); err != nil {
		invalid(w, "new_password", err.Error())
		return
	}
	if in.NewPassword != in.ConfirmPassword {
		invalid(w, "confirm_password", "New passwords do not match.")
		return
	}
	if authutil.CheckPassword(in.NewPassword, user.PasswordHash) {
		invalid(w, "new_password", "New password cannot be the same as your current password.")
		return
	}

	hash, err := authutil.HashPassword(in.NewPassword)
	if err != nil {
		h.Log.Error("profile: hash password", zap.Error(err))
		apierr.Write(w, http.StatusInternalServerError, apierr.CodeInternal, "Failed to update password.")
		return
	}
	if err := h.Users.UpdatePassword(ctx, user.ID, hash); err != nil {
		uierrors.Write(w, h.Log, "profile: update password", err)
		return
	}

	h.AuditLog.PasswordChanged(ctx, user.ID)
	w.WriteHeader(http.StatusNoContent)
}

func invalid(w http.ResponseWriter, field, msg string) {
	apierr.WriteDetail(w, http.StatusUnprocessableEntity, apierr.Detail{
		Code:    apierr.CodeValidation,
		Message: msg,
		Fields:  map[string]string{field: msg},
	})
}
