package core

// error_messages.go turns internal errors into operator-facing messages with
// a stable code that can be quoted to support.
//
// Codes are grouped by family:
//
//	CAT - category and record type problems
//	STO - record store failures
//	IMP - spreadsheet import
//	VAL - manual form validation
//	REQ - request lifecycle (cancelled, timed out, unconfirmed)
//	ERR000 - fallback; check the server log for the technical error
//
// Known error values are matched with errors.Is / errors.As first. Errors
// that only carry text (driver errors, wrapped strings) fall back to
// case-insensitive substring patterns, first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrConfirmationRequired is returned when a delete arrives without the
// operator's confirmation.
var ErrConfirmationRequired = errors.New("delete requires confirmation")

// ErrFileTooLarge is returned when an upload exceeds the configured limit.
var ErrFileTooLarge = errors.New("file too large")

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

type errorTarget struct {
	target error
	msg    UserMessage
}

// errorTargets are checked in order with errors.Is.
var errorTargets = []errorTarget{
	{ErrUnknownCategory, UserMessage{"Category not found", "Pick one of the listed categories", "CAT001"}},
	{ErrUnknownKind, UserMessage{"Unknown record type", "Use switch, cftv or embarcados", "CAT002"}},
	{ErrKindMismatch, UserMessage{"Record does not belong to this category", "Open the record from its own category", "CAT003"}},

	{ErrNotFound, UserMessage{"Record not found", "It may have been deleted already; refresh the list", "STO002"}},
	{ErrFeedClosed, UserMessage{"Live updates stopped", "Reload the page to reconnect", "STO003"}},
	{ErrStoreUnavailable, UserMessage{"Unable to reach the record store", "Please try again in a few moments", "STO001"}},

	{ErrEmptySpreadsheet, UserMessage{"The spreadsheet is empty", "Upload a file with a header row", "IMP002"}},
	{ErrMappingIncomplete, UserMessage{"Required fields are not mapped", "Map every required field to a column", "IMP003"}},
	{ErrImportInProgress, UserMessage{"An import is already running for this category", "Wait for it to finish or cancel it", "IMP004"}},
	{ErrNoImportSession, UserMessage{"No import in progress", "Upload a spreadsheet to start an import", "IMP005"}},
	{ErrTooManyImports, UserMessage{"System is busy with other imports", "Please wait a moment and try again", "IMP006"}},
	{ErrInvalidState, UserMessage{"The import is not at the right step for this action", "Refresh the import status and try again", "IMP007"}},
	{ErrUnknownHeader, UserMessage{"Column not found in the spreadsheet", "Choose one of the uploaded headers", "IMP008"}},
	{ErrUnknownField, UserMessage{"Unknown field", "Choose one of the category's fields", "IMP011"}},
	{ErrFileTooLarge, UserMessage{"File exceeds the maximum upload size", "Split the spreadsheet into smaller files", "IMP009"}},

	{ErrConfirmationRequired, UserMessage{"Delete was not confirmed", "Confirm the delete to continue", "REQ003"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Please try again", "REQ001"}},
	{context.DeadlineExceeded, UserMessage{"Request timed out", "Please try again", "REQ002"}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catch driver and transport errors that arrive as text.
var errorPatterns = []errorPattern{
	{"connection refused", UserMessage{"Unable to reach the record store", "Please try again in a few moments", "STO001"}},
	{"connection reset", UserMessage{"Record store connection was interrupted", "Please try again", "STO004"}},
	{"timeout", UserMessage{"Operation timed out", "Please try again", "REQ002"}},
	{"no file provided", UserMessage{"No file was selected", "Select a spreadsheet to upload", "IMP010"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "REQ004"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return UserMessage{
			Message: "Required fields are empty: " + strings.Join(verr.Missing, ", "),
			Action:  "Fill in every required field and submit again",
			Code:    "VAL001",
		}
	}
	var perr *ParseError
	if errors.As(err, &perr) && !errors.Is(err, ErrEmptySpreadsheet) {
		return UserMessage{
			Message: "The spreadsheet could not be read",
			Action:  "Upload an .xlsx or .csv file",
			Code:    "IMP001",
		}
	}

	for _, t := range errorTargets {
		if errors.Is(err, t.target) {
			return t.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
