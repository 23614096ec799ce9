package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/koustreak/arcforge/internal/errs"
	"github.com/koustreak/arcforge/internal/logger"
)

// errorBody is the envelope for every non-validation failure.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// validationBody mirrors errs.ValidationError for clients.
type validationBody struct {
	Message   string `json:"message"`
	FieldType string `json:"field_type"`
	Value     any    `json:"value"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindInvalidInput, errs.ErrKindUnknownField, errs.ErrKindTypeMismatch, errs.ErrKindMissingID:
		return http.StatusBadRequest
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindConflict:
		return http.StatusConflict
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindConnectionFailed:
		return http.StatusServiceUnavailable
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// renderError writes err as JSON. Failures the client cannot act on are
// logged with the request's logger so the request_id ties them to the
// access log line.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		renderJSON(w, http.StatusBadRequest, validationBody{Message: ve.Message, FieldType: ve.FieldType, Value: ve.Value})
		return
	}

	kind := errs.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorWith("request failed", err, map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": status,
		})
	}
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	renderMessage(w, status, kind.String(), msg)
}

func renderMessage(w http.ResponseWriter, status int, code, msg string) {
	renderJSON(w, status, errorBody{Error: code, Message: msg})
}

func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
