package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionRecordCreate AuditAction = "record_create"
	ActionRecordDelete AuditAction = "record_delete"
	ActionImportCommit AuditAction = "import_commit"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID            string        `json:"id"`
	Action        AuditAction   `json:"action"`
	Severity      AuditSeverity `json:"severity"`
	CategoryID    string        `json:"categoryId"`
	RecordID      string        `json:"recordId,omitempty"`
	OperatorID    string        `json:"operatorId,omitempty"`
	OperatorEmail string        `json:"operatorEmail,omitempty"`
	IPAddress     string        `json:"ipAddress,omitempty"`
	RowsAffected  int           `json:"rowsAffected,omitempty"`
	RowsFailed    int           `json:"rowsFailed,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// AuditSink persists audit entries.
type AuditSink interface {
	WriteAudit(ctx context.Context, entry AuditEntry) error
	RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error)
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionRecordDelete, ActionImportCommit:
		return SeverityHigh
	case ActionRecordCreate:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// newAuditEntry stamps an entry with id, severity, operator and client IP.
func newAuditEntry(ctx context.Context, action AuditAction, categoryID string) AuditEntry {
	op := OperatorFromContext(ctx)
	return AuditEntry{
		ID:            uuid.NewString(),
		Action:        action,
		Severity:      determineSeverity(action),
		CategoryID:    categoryID,
		OperatorID:    op.ID,
		OperatorEmail: op.Email,
		IPAddress:     GetIPAddressFromContext(ctx),
		CreatedAt:     time.Now().UTC(),
	}
}

// writeAudit records entry on sink. Failures are logged and not returned.
func writeAudit(ctx context.Context, sink AuditSink, entry AuditEntry) {
	if sink == nil {
		return
	}
	if err := sink.WriteAudit(ctx, entry); err != nil {
		slog.Warn("audit write failed",
			"action", entry.Action,
			"category", entry.CategoryID,
			"error", err,
		)
	}
}
