package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openfroyo/descriptions/pkg/editable"
	"github.com/openfroyo/descriptions/pkg/fetch"
	"github.com/openfroyo/descriptions/pkg/form"
	"github.com/openfroyo/descriptions/pkg/policy"
	"github.com/openfroyo/descriptions/pkg/stores"
)

// Request headers naming the subject a view is rendered for.
const (
	HeaderUser  = "X-User"
	HeaderRoles = "X-Roles"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
	Rule  string `json:"rule,omitempty"`

	Violations []policy.PolicyViolation `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// subjectFrom reads the subject from the request headers. Roles are comma
// separated.
func subjectFrom(r *http.Request) policy.Subject {
	s := policy.Subject{User: r.Header.Get(HeaderUser)}
	for _, role := range strings.Split(r.Header.Get(HeaderRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			s.Roles = append(s.Roles, role)
		}
	}
	return s
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// errorToHTTP maps domain errors to responses. It returns the error class
// recorded in metrics.
func errorToHTTP(w http.ResponseWriter, logger zerolog.Logger, err error) string {
	var ve *form.ValidationError
	var de *policy.DeniedError
	var re *fetch.RequestError

	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: ve.Message, Code: "VALIDATION_ERROR", Field: ve.Key.String(), Rule: ve.Rule,
		})
		return "validation"
	case errors.As(err, &de):
		writeJSON(w, http.StatusForbidden, ErrorResponse{
			Error: err.Error(), Code: "POLICY_DENIED", Field: de.Field, Violations: de.Violations,
		})
		return "policy"
	case errors.Is(err, ErrViewNotFound):
		writeError(w, http.StatusNotFound, "VIEW_NOT_FOUND", err.Error())
		return "not_found"
	case errors.Is(err, stores.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return "not_found"
	case errors.Is(err, editable.ErrUnknownField):
		writeError(w, http.StatusNotFound, "UNKNOWN_FIELD", err.Error())
		return "not_found"
	case errors.Is(err, stores.ErrVersionConflict):
		writeError(w, http.StatusConflict, "VERSION_CONFLICT", err.Error())
		return "conflict"
	case errors.Is(err, editable.ErrNotEditable), errors.Is(err, editable.ErrNoPath):
		writeError(w, http.StatusConflict, "NOT_EDITABLE", err.Error())
		return "conflict"
	case errors.Is(err, editable.ErrEditLimit), errors.Is(err, editable.ErrNotEditing), errors.Is(err, editable.ErrKeyBusy):
		writeError(w, http.StatusConflict, "EDIT_STATE", err.Error())
		return "conflict"
	case errors.As(err, &re):
		writeError(w, http.StatusBadGateway, "REQUEST_FAILED", err.Error())
		return "request"
	}

	logger.Error().Err(err).Msg("Internal error")
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	return "internal"
}
