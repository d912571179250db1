package core

import "context"

type contextKey string

const (
	ctxKeyOperator  contextKey = "operator"
	ctxKeyIPAddress contextKey = "audit_ip"
)

// Operator is the authenticated user on whose behalf records are written.
// Identity is supplied by the authentication layer in front of this service.
type Operator struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ContextWithOperator attaches the current operator to ctx.
func ContextWithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, ctxKeyOperator, op)
}

// OperatorFromContext returns the operator stored in ctx, or the zero value.
func OperatorFromContext(ctx context.Context) Operator {
	if v, ok := ctx.Value(ctxKeyOperator).(Operator); ok {
		return v
	}
	return Operator{}
}

// ContextWithIPAddress adds the client IP to context for audit logging.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// GetIPAddressFromContext extracts the client IP from context.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}
