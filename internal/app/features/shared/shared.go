// Package shared holds request helpers used by every JSON feature.
package shared

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/dalemusser/leavedesk/internal/app/system/apierr"
	"github.com/dalemusser/leavedesk/internal/app/system/authz"
	"github.com/dalemusser/leavedesk/internal/app/system/limits"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Actor returns the signed-in actor or answers 401.
func Actor(w http.ResponseWriter, r *http.Request) (authz.Actor, bool) {
	a, ok := authz.ActorFromRequest(r)
	if !ok {
		apierr.Unauthorized(w)
	}
	return a, ok
}

// ObjectID parses the named URL parameter or answers 404.
func ObjectID(w http.ResponseWriter, r *http.Request, param string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, param))
	if err != nil {
		apierr.NotFound(w, "Leave request not found.")
		return primitive.NilObjectID, false
	}
	return id, true
}

// DecodeJSON reads the body into v or answers 400. An empty body decodes
// to the zero value.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limits.MaxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		apierr.BadRequest(w, "Request body must be valid JSON: "+err.Error())
		return false
	}
	return true
}
