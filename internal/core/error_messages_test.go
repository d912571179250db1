package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "wrapped unknown category",
			err:      fmt.Errorf("load: %w", ErrUnknownCategory),
			wantCode: "CAT001",
		},
		{
			name:     "store error wrapping not found",
			err:      &StoreError{Op: "delete", Category: "telecom", ID: "x", Err: ErrNotFound},
			wantCode: "STO002",
		},
		{
			name:     "store error wrapping unavailable",
			err:      &StoreError{Op: "insert", Category: "telecom", Err: ErrStoreUnavailable},
			wantCode: "STO001",
		},
		{
			name:     "unreadable spreadsheet",
			err:      &ParseError{FileName: "a.xlsx", Err: errors.New("zip: not a valid zip file")},
			wantCode: "IMP001",
		},
		{
			name:     "empty spreadsheet",
			err:      &ParseError{FileName: "a.csv", Err: ErrEmptySpreadsheet},
			wantCode: "IMP002",
		},
		{
			name:     "mapping gate",
			err:      fmt.Errorf("%w: [TAG]", ErrMappingIncomplete),
			wantCode: "IMP003",
		},
		{
			name:     "gate busy",
			err:      ErrTooManyImports,
			wantCode: "IMP006",
		},
		{
			name:     "unknown header",
			err:      fmt.Errorf("%w: %q", ErrUnknownHeader, "col z"),
			wantCode: "IMP008",
		},
		{
			name:     "unknown field",
			err:      fmt.Errorf("%w: %q", ErrUnknownField, "nope"),
			wantCode: "IMP011",
		},
		{
			name:     "unsupported format",
			err:      &ParseError{FileName: "a.xls", Err: ErrUnsupportedFormat},
			wantCode: "IMP001",
		},
		{
			name:     "validation error",
			err:      &ValidationError{Missing: []string{"Endereço IP"}},
			wantCode: "VAL001",
		},
		{
			name:     "deadline exceeded",
			err:      fmt.Errorf("insert: %w", context.DeadlineExceeded),
			wantCode: "REQ002",
		},
		{
			name:     "driver text falls back to patterns",
			err:      errors.New("dial tcp 127.0.0.1:5432: connect: Connection Refused"),
			wantCode: "STO001",
		},
		{
			name:     "unknown error returns default",
			err:      errors.New("some random internal error"),
			wantCode: "ERR000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Error("MapError() message is empty")
			}
		})
	}
}

func TestMapError_ValidationListsFields(t *testing.T) {
	got := MapError(&ValidationError{Missing: []string{"TAG do Switch", "Endereço IP"}})
	want := "Required fields are empty: TAG do Switch, Endereço IP"
	if got.Message != want {
		t.Errorf("Message = %q, want %q", got.Message, want)
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrNotFound)

	expected := "Record not found (Code: STO002). It may have been deleted already; refresh the list"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", ErrImportInProgress, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}
