package web

// errors.go turns handler errors into responses: the technical error is
// logged with the request id, the client gets core.MapError's message as
// JSON or, for HTMX requests, as an alert fragment.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/localfinder/internal/core"
	"github.com/JonMunkholm/localfinder/internal/logging"
	"github.com/JonMunkholm/localfinder/internal/web/templates"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

type statusRule struct {
	target error
	status int
}

// statusRules are checked in order with errors.Is.
var statusRules = []statusRule{
	{core.ErrUnknownCategory, http.StatusNotFound},
	{core.ErrNotFound, http.StatusNotFound},
	{core.ErrNoImportSession, http.StatusNotFound},
	{core.ErrImportInProgress, http.StatusConflict},
	{core.ErrInvalidState, http.StatusConflict},
	{core.ErrMappingIncomplete, http.StatusUnprocessableEntity},
	{core.ErrUnknownHeader, http.StatusBadRequest},
	{core.ErrUnknownField, http.StatusBadRequest},
	{core.ErrKindMismatch, http.StatusBadRequest},
	{core.ErrUnknownKind, http.StatusBadRequest},
	{core.ErrEmptySpreadsheet, http.StatusBadRequest},
	{core.ErrConfirmationRequired, http.StatusPreconditionRequired},
	{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
	{core.ErrTooManyImports, http.StatusTooManyRequests},
	{core.ErrStoreUnavailable, http.StatusServiceUnavailable},
	{core.ErrFeedClosed, http.StatusServiceUnavailable},
	{context.DeadlineExceeded, http.StatusGatewayTimeout},
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity
	}
	var perr *core.ParseError
	if errors.As(err, &perr) {
		return http.StatusBadRequest
	}
	var berr *badRequestError
	if errors.As(err, &berr) {
		return http.StatusBadRequest
	}
	for _, rule := range statusRules {
		if errors.Is(err, rule.target) {
			return rule.status
		}
	}
	return http.StatusInternalServerError
}

// badRequestError marks malformed input the core never sees.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

// respondError logs err and writes the mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)
	var berr *badRequestError
	if errors.As(err, &berr) && !core.IsUserFacing(err) {
		userMsg = core.UserMessage{Message: berr.msg, Action: "Check the request and try again", Code: "REQ000"}
	}

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request rejected", attrs...)
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = templates.ErrorAlert(userMsg.Message, userMsg.Action, userMsg.Code).Render(r.Context(), w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
