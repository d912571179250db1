package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/JonMunkholm/localfinder/internal/core"
)

// Identity headers set by the authenticating proxy in front of the service.
const (
	HeaderOperatorID    = "X-Operator-Id"
	HeaderOperatorEmail = "X-Operator-Email"
)

// Operator stores the proxy-supplied identity and the client IP in the
// request context for record stamping and audit entries. With required set,
// requests that change data must carry an operator id.
func Operator(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op := core.Operator{
				ID:    strings.TrimSpace(r.Header.Get(HeaderOperatorID)),
				Email: strings.TrimSpace(r.Header.Get(HeaderOperatorEmail)),
			}

			if required && op.ID == "" && !isReadOnly(r.Method) {
				slog.Warn("auth: missing operator identity",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"missing operator identity","code":"AUTH001"}`))
				return
			}

			ctx := r.Context()
			if op.ID != "" || op.Email != "" {
				ctx = core.ContextWithOperator(ctx, op)
			}
			ctx = core.ContextWithIPAddress(ctx, clientIP(r.RemoteAddr))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isReadOnly(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// clientIP strips the port from a RemoteAddr value.
func clientIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
