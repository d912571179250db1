package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownKind       = errors.New("unknown record type")
	ErrUnknownCategory   = errors.New("unknown category")
	ErrKindMismatch      = errors.New("record type mismatch")
	ErrNotFound          = errors.New("record not found")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrFeedClosed        = errors.New("subscription feed closed")
	ErrMappingIncomplete = errors.New("required fields are not mapped")
	ErrInvalidState      = errors.New("import session is not in the expected state")
	ErrImportInProgress  = errors.New("an import is already running for this category")
	ErrNoImportSession   = errors.New("no import session for this category")
	ErrUnknownHeader     = errors.New("header not found in spreadsheet")
	ErrUnknownField      = errors.New("unknown field")
)

// StoreError reports a failed store operation.
type StoreError struct {
	Op       string // "subscribe", "insert", "delete"
	Category string
	ID       string
	Err      error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store %s %s/%s: %v", e.Op, e.Category, e.ID, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Category, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ParseError reports a spreadsheet that could not be read.
type ParseError struct {
	FileName string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse spreadsheet %q: %v", e.FileName, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RowCommitError reports one import row that could not be committed.
// Line is the 1-based spreadsheet line, counting the header as line 1.
type RowCommitError struct {
	Line int
	Err  error
}

func (e *RowCommitError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Line, e.Err)
}

func (e *RowCommitError) Unwrap() error { return e.Err }

// ValidationError lists required fields left blank on a manual create.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}
