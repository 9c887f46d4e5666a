// internal/app/features/requests/handler.go
package requests

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	uierrors "github.com/dalemusser/leavedesk/internal/app/features/errors"
	"github.com/dalemusser/leavedesk/internal/app/features/shared"
	"github.com/dalemusser/leavedesk/internal/app/leave"
	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/app/store/audit"
	"github.com/dalemusser/leavedesk/internal/app/system/apierr"
	"github.com/dalemusser/leavedesk/internal/app/system/authz"
	"github.com/dalemusser/leavedesk/internal/app/system/htmlsanitize"
	"github.com/dalemusser/leavedesk/internal/app/system/paging"
	"github.com/dalemusser/leavedesk/internal/app/system/timeouts"
	"github.com/dalemusser/leavedesk/internal/app/system/workdays"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// UserGetter loads the submitter's stored record.
type UserGetter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// History returns the audit trail of one request. Nil disables the
// history endpoint's data (it then answers an empty list).
type History interface {
	GetByRequest(ctx context.Context, requestID primitive.ObjectID, limit int64) ([]audit.Event, error)
}

type Handler struct {
	Leave   *leave.Service
	Users   UserGetter
	History History
	Log     *zap.Logger
}

func NewHandler(svc *leave.Service, users UserGetter, history History, logger *zap.Logger) *Handler {
	return &Handler{Leave: svc, Users: users, History: history, Log: logger}
}

const (
	historyLimit = 200
)

/*─────────────────────────────────────────────────────────────────────────────*
| Input shapes                                                                |
*─────────────────────────────────────────────────────────────────────────────*/

type createInput struct {
	LeaveType   string              `json:"leave_type"`
	StartDate   string              `json:"start_date"`
	EndDate     string              `json:"end_date"`
	Reason      string              `json:"reason"`
	Attachments []models.Attachment `json:"attachments"`
}

type editInput struct {
	LeaveType   *string              `json:"leave_type"`
	StartDate   *string              `json:"start_date"`
	EndDate     *string              `json:"end_date"`
	Reason      *string              `json:"reason"`
	Attachments *[]models.Attachment `json:"attachments"`
}

type decisionInput struct {
	Decision string `json:"decision"`
	Comments string `json:"comments"`
}

type cancelInput struct {
	Reason string `json:"reason"`
}

type listResponse struct {
	Requests   []models.LeaveRequest `json:"requests"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

type historyResponse struct {
	Events []audit.Event `json:"events"`
}

func parseDate(field, s string) (time.Time, error) {
	t, err := workdays.Parse(s)
	if err != nil {
		return time.Time{}, &leave.FieldError{Kind: leave.ErrValidation, Field: field, Message: err.Error()}
	}
	return t, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /requests                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Actor(w, r)
	if !ok {
		return
	}
	var in createInput
	if !shared.DecodeJSON(w, r, &in) {
		return
	}
	start, err := parseDate("start_date", in.StartDate)
	if err != nil {
		uierrors.Write(w, h.Log, "requests: create", err)
		return
	}
	end, err := parseDate("end_date", in.EndDate)
	if err != nil {
		uierrors.Write(w, h.Log, "requests: create", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	user, err := h.Users.GetByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apierr.Unauthorized(w)
			return
		}
		uierrors.Write(w, h.Log, "requests: load user", leave.ErrStoreUnavailable)
		return
	}

	req, err := h.Leave.CreateRequest(ctx, *user, leave.Draft{
		LeaveType:   in.LeaveType,
		StartDate:   start,
		EndDate:     end,
		Reason:      htmlsanitize.PlainText(in.Reason),
		Attachments: in.Attachments,
	})
	if err != nil {
		uierrors.Write(w, h.Log, "requests: create", err)
		return
	}
	apierr.JSON(w, http.StatusCreated, req)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /requests                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Actor(w, r)
	if !ok {
		return
	}
	q, err := parseListQuery(r)
	if err != nil {
		apierr.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	page, err := h.Leave.ListPage(ctx, actor, q)
	if err != nil {
		uierrors.Write(w, h.Log, "requests: list", err)
		return
	}
	resp := listResponse{Requests: page.Requests}
	if resp.Requests == nil {
		resp.Requests = []models.LeaveRequest{}
	}
	if page.Next != nil {
		resp.NextCursor = page.Next.Encode()
	}
	apierr.JSON(w, http.StatusOK, resp)
}

func parseListQuery(r *http.Request) (leave.ListQuery, error) {
	v := r.URL.Query()
	q := leave.ListQuery{LeaveType: v.Get("leave_type")}

	switch scope := strings.ToLower(strings.TrimSpace(v.Get("scope"))); scope {
	case "", "all":
		q.Scope = leave.ScopeVisible
	case string(leave.ScopeMine), string(leave.ScopeTeam):
		q.Scope = leave.Scope(scope)
	default:
		return q, errors.New(`scope must be "mine", "team" or "all"`)
	}

	if raw := v.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			s := models.LeaveStatus(strings.ToLower(strings.TrimSpace(part)))
			if !s.IsValid() {
				return q, errors.New("unknown status " + strconv.Quote(part))
			}
			q.Statuses = append(q.Statuses, s)
		}
	}

	limit, err := paging.ParseLimit(v.Get("limit"))
	if err != nil {
		return q, err
	}
	q.Limit = limit

	if raw := v.Get("cursor"); raw != "" {
		c, ok := paging.Decode(raw)
		if !ok {
			return q, errors.New("cursor is not valid")
		}
		q.Before = &c
	}
	return q, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /requests/{id}                                                          |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Actor(w, r)
	if !ok {
		return
	}
	id, ok := shared.ObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	req, err := h.Leave.Get(ctx, actor, id)
	if err != nil {
		uierrors.Write(w, h.Log, "requests: get", err)
		return
	}
	apierr.JSON(w, http.StatusOK, req)
}

/*─────────────────────────────────────────────────────────────────────────────*
| PATCH /requests/{id}                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Actor(w, r)
	if !ok {
		return
	}
	id, ok := shared.ObjectID(w, r, "id")
	if !ok {
		return
	}
	var in editInput
	if !shared.DecodeJSON(w, r, &in) {
		return
	}

	ch := leave.Changes{LeaveType: in.LeaveType, Attachments: in.Attachments}
	if in.StartDate != nil {
		t, err := parseDate("start_date", *in.StartDate)
		if err != nil {
			uierrors.Write(w, h.Log, "requests: edit", err)
			return
		}
		ch.StartDate = &t
	}
	if in.EndDate != nil {
		t, err := parseDate("end_date", *in.EndDate)
		if err != nil {
			uierrors.Write(w, h.Log, "requests: edit", err)
			return
		}
		ch.EndDate = &t
	}
	if in.Reason != nil {
		reason := htmlsanitize.PlainText(*in.Reason)
		ch.Reason = &reason
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	req, err := h.Leave.EditRequest(ctx, actor, id, ch)
	if err != nil {
		uierrors.Write(w, h.Log, "requests: edit", err)
		return
	}
	apierr.JSON(w, http.StatusOK, req)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Decisions & cancel                                                          |
*─────────────────────────────────────────────────────────────────────────────*/

type decideFunc func(ctx context.Context, actor authz.Actor, id primitive.ObjectID, d leave.Decision, comments string) (models.LeaveRequest, error)

// HandleManagerDecision handles POST /requests/{id}/manager-decision.
func (h *Handler) HandleManagerDecision(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "requests: manager decision", h.Leave.ManagerDecide)
}

// HandleHRDecision handles POST /requests/{id}/hr-decision.
func (h *Handler) HandleHRDecision(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "requests: hr decision", h.Leave.HRConfirm)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, op string, fn decideFunc) {
	actor, ok := shared.Actor(w, r)
	if !ok {
		return
	}
	id, ok := shared.ObjectID(w, r, "id")
	if !ok {
		return
	}
	var in decisionInput
	if !shared.DecodeJSON(w, r, &in) {
		return
	}
	d, err := leave.ParseDecision(in.Decision)
	if err != nil {
		uierrors.Write(w, h.Log, op, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	req, err := fn(ctx, actor, id, d, htmlsanitize.PlainText(in.Comments))
	if err != nil {
		uierrors.Write(w, h.Log, op, err)
		return
	}
	apierr.JSON(w, http.StatusOK, req)
}

// HandleCancel handles POST /requests/{id}/cancel. The body is optional:
// {"reason": "..."}.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Actor(w, r)
	if !ok {
		return
	}
	id, ok := shared.ObjectID(w, r, "id")
	if !ok {
		return
	}
	var in cancelInput
	if !shared.DecodeJSON(w, r, &in) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	req, err := h.Leave.Cancel(ctx, actor, id, htmlsanitize.PlainText(in.Reason))
	if err != nil {
		uierrors.Write(w, h.Log, "requests: cancel", err)
		return
	}
	apierr.JSON(w, http.StatusOK, req)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /requests/{id}/history                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.Actor(w, r)
	if !ok {
		return
	}
	id, ok := shared.ObjectID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	// visibility follows the request itself
	if _, err := h.Leave.Get(ctx, actor, id); err != nil {
		uierrors.Write(w, h.Log, "requests: history", err)
		return
	}

	events := []audit.Event{}
	if h.History != nil {
		got, err := h.History.GetByRequest(ctx, id, historyLimit)
		if err != nil {
			uierrors.Write(w, h.Log, "requests: history", leave.ErrStoreUnavailable)
			return
		}
		if got != nil {
			events = got
		}
	}
	apierr.JSON(w, http.StatusOK, historyResponse{Events: events})
}
