// internal/app/features/errors/errors.go
package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/dalemusser/leavedesk/internal/app/leave"
	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/app/system/apierr"
	"go.uber.org/zap"
)

// Handler answers requests the router cannot match.
type Handler struct{}

// NewHandler constructs an errors Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// NotFound answers 404 for unknown routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	apierr.NotFound(w, "No such endpoint.")
}

// MethodNotAllowed answers 405 for known routes hit with the wrong verb.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	apierr.Write(w, http.StatusMethodNotAllowed, apierr.CodeMethodNotAllowed, "Method not allowed.")
}

// Write maps err from the leave service or a store onto an HTTP response. Unexpected
// errors are logged with op and answered 500 without detail.
func Write(w http.ResponseWriter, log *zap.Logger, op string, err error) {
	var (
		fe  *leave.FieldError
		ibe *leave.InsufficientBalanceError
		ite *leave.InvalidTransitionError
	)
	switch {
	case stderrors.As(err, &ibe):
		apierr.WriteDetail(w, http.StatusUnprocessableEntity, apierr.Detail{
			Code:    apierr.CodeInsufficient,
			Message: ibe.Error(),
			Meta: map[string]any{
				"leave_type": ibe.LeaveType,
				"available":  ibe.Available,
				"requested":  ibe.Requested,
			},
		})
	case stderrors.As(err, &fe):
		apierr.WriteDetail(w, http.StatusUnprocessableEntity, apierr.Detail{
			Code:    apierr.CodeValidation,
			Message: fe.Error(),
			Fields:  map[string]string{fe.Field: fe.Error()},
		})
	case stderrors.Is(err, leave.ErrValidation):
		apierr.Write(w, http.StatusUnprocessableEntity, apierr.CodeValidation, err.Error())
	case stderrors.As(err, &ite):
		apierr.WriteDetail(w, http.StatusConflict, apierr.Detail{
			Code:    apierr.CodeInvalidTransition,
			Message: ite.Error(),
			Meta:    map[string]any{"status": ite.From},
		})
	case stderrors.Is(err, leave.ErrInvalidTransition):
		apierr.Write(w, http.StatusConflict, apierr.CodeInvalidTransition, err.Error())
	case stderrors.Is(err, leave.ErrNotEditable):
		apierr.Write(w, http.StatusConflict, apierr.CodeNotEditable, err.Error())
	case stderrors.Is(err, leave.ErrUserInactive):
		apierr.Write(w, http.StatusConflict, apierr.CodeUserInactive, "The requesting user is no longer active.")
	case stderrors.Is(err, leave.ErrForbidden):
		apierr.Forbidden(w)
	case stderrors.Is(err, leave.ErrNotFound), stderrors.Is(err, store.ErrNotFound):
		apierr.NotFound(w, "")
	case stderrors.Is(err, leave.ErrStoreUnavailable),
		stderrors.Is(err, store.ErrUnavailable),
		stderrors.Is(err, context.DeadlineExceeded):
		log.Warn("store unavailable", zap.String("op", op), zap.Error(err))
		apierr.Write(w, http.StatusServiceUnavailable, apierr.CodeServiceUnavailable,
			"The service is temporarily unavailable. Please try again.")
	case stderrors.Is(err, context.Canceled):
		// client went away
	default:
		log.Error("unexpected error", zap.String("op", op), zap.Error(err))
		apierr.Write(w, http.StatusInternalServerError, apierr.CodeInternal, "Something went wrong.")
	}
}

