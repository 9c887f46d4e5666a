// internal/app/features/auditlog/handler.go
package auditlog

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	uierrors "github.com/dalemusser/leavedesk/internal/app/features/errors"
	"github.com/dalemusser/leavedesk/internal/app/store/audit"
	"github.com/dalemusser/leavedesk/internal/app/system/apierr"
	"github.com/dalemusser/leavedesk/internal/app/system/paging"
	"github.com/dalemusser/leavedesk/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Store reads recorded audit events.
type Store interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	CountByFilter(ctx context.Context, filter audit.QueryFilter) (int64, error)
	GetFailedLogins(ctx context.Context, since time.Time, limit int64) ([]audit.Event, error)
}

// Handler serves the HR audit trail. A nil Store (memory backend, where
// events only reach the log) answers empty pages.
type Handler struct {
	Store Store
	Log   *zap.Logger
}

func NewHandler(store Store, logger *zap.Logger) *Handler {
	return &Handler{Store: store, Log: logger}
}

const (
	defaultPageSize  = 50
	failedLoginLimit = 200
	maxFailedHours   = 24 * 30
)

type listResponse struct {
	Events []audit.Event `json:"events"`
	Page   int           `json:"page"`
	Limit  int           `json:"limit"`
	Total  int64         `json:"total"`
}

// ServeList handles GET /audit with optional category, event_type, user_id,
// request_id, start_date, end_date (YYYY-MM-DD), page and limit.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	filter, page, limit, err := parseFilter(r)
	if err != nil {
		apierr.BadRequest(w, err.Error())
		return
	}
	resp := listResponse{Events: []audit.Event{}, Page: page, Limit: limit}
	if h.Store == nil {
		apierr.JSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "audit log list")
	defer cancel()

	events, err := h.Store.Query(ctx, filter)
	if err != nil {
		uierrors.Write(w, h.Log, "audit: query", err)
		return
	}
	total, err := h.Store.CountByFilter(ctx, filter)
	if err != nil {
		uierrors.Write(w, h.Log, "audit: count", err)
		return
	}
	resp.Events = events
	resp.Total = total
	apierr.JSON(w, http.StatusOK, resp)
}

func parseFilter(r *http.Request) (audit.QueryFilter, int, int, error) {
	v := r.URL.Query()
	var f audit.QueryFilter

	switch c := strings.TrimSpace(v.Get("category")); c {
	case "", audit.CategoryAuth, audit.CategoryLeave, audit.CategoryAdmin:
		f.Category = c
	default:
		return f, 0, 0, errors.New(`category must be "auth", "leave" or "admin"`)
	}
	f.EventType = strings.TrimSpace(v.Get("event_type"))

	for param, dst := range map[string]**primitive.ObjectID{"user_id": &f.UserID, "request_id": &f.RequestID} {
		raw := strings.TrimSpace(v.Get(param))
		if raw == "" {
			continue
		}
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return f, 0, 0, errors.New(param + " is not a valid id")
		}
		*dst = &id
	}

	if raw := strings.TrimSpace(v.Get("start_date")); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return f, 0, 0, errors.New("start_date must be YYYY-MM-DD")
		}
		f.StartTime = &t
	}
	if raw := strings.TrimSpace(v.Get("end_date")); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return f, 0, 0, errors.New("end_date must be YYYY-MM-DD")
		}
		endOfDay := t.Add(24*time.Hour - time.Nanosecond)
		f.EndTime = &endOfDay
	}
	if f.StartTime != nil && f.EndTime != nil && f.EndTime.Before(*f.StartTime) {
		return f, 0, 0, errors.New("end_date is before start_date")
	}

	limit := defaultPageSize
	if raw := v.Get("limit"); raw != "" {
		n, err := paging.ParseLimit(raw)
		if err != nil {
			return f, 0, 0, err
		}
		limit = n
	}

	page := 1
	if raw := v.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return f, 0, 0, errors.New("page must be a positive integer")
		}
		page = n
	}

	f.Limit = int64(limit)
	f.Offset = int64((page - 1) * limit)
	return f, page, limit, nil
}

type failedLoginsResponse struct {
	Since  time.Time     `json:"since"`
	Events []audit.Event `json:"events"`
}

// ServeFailedLogins handles GET /audit/failed-logins?hours=N (default 24).
func (h *Handler) ServeFailedLogins(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxFailedHours {
			apierr.BadRequest(w, "hours must be between 1 and "+strconv.Itoa(maxFailedHours))
			return
		}
		hours = n
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	resp := failedLoginsResponse{Since: since, Events: []audit.Event{}}
	if h.Store == nil {
		apierr.JSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	events, err := h.Store.GetFailedLogins(ctx, since, failedLoginLimit)
	if err != nil {
		uierrors.Write(w, h.Log, "audit: failed logins", err)
		return
	}
	resp.Events = events
	apierr.JSON(w, http.StatusOK, resp)
}
