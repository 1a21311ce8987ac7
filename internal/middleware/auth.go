package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mtlprog/humantask/internal/domain"
)

type contextKey string

const (
	// ContextKeyRequest is the key for storing the caller identity in request context.
	ContextKeyRequest contextKey = "request_context"

	// HeaderTenantID carries the tenant of the caller.
	HeaderTenantID = "X-Tenant-ID"
	// HeaderUserID carries the acting user. Optional for system callers.
	HeaderUserID = "X-User-ID"
)

// Identity builds the caller's RequestContext from trusted gateway headers.
// Requests without a tenant are rejected.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(HeaderTenantID))
		if tenantID == "" {
			http.Error(w, "missing tenant header", http.StatusUnauthorized)
			return
		}

		rc := domain.RequestContext{
			TenantID:  tenantID,
			ClientIP:  clientIP(r),
			UserAgent: r.UserAgent(),
		}
		if userID := strings.TrimSpace(r.Header.Get(HeaderUserID)); userID != "" {
			rc.UserID = &userID
		}

		ctx := context.WithValue(r.Context(), ContextKeyRequest, rc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestContext retrieves the caller identity from request context.
func GetRequestContext(ctx context.Context) (domain.RequestContext, bool) {
	rc, ok := ctx.Value(ContextKeyRequest).(domain.RequestContext)
	return rc, ok
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
