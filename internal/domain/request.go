package domain

import "fmt"

// RequestContext identifies the caller of a lifecycle operation.
type RequestContext struct {
	TenantID  string
	UserID    *string
	ClientIP  string
	UserAgent string
}

// SystemContext returns a request context for tenant-scoped system actions
// such as the escalation sweep.
func SystemContext(tenantID string) RequestContext {
	return RequestContext{TenantID: tenantID}
}

// RequireTenant fails when the tenant is missing.
func (rc RequestContext) RequireTenant() error {
	if rc.TenantID == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	return nil
}

// RequireUser returns the caller's user id or ErrUnauthenticated.
func (rc RequestContext) RequireUser() (string, error) {
	if rc.UserID == nil || *rc.UserID == "" {
		return "", ErrUnauthenticated
	}
	return *rc.UserID, nil
}

// AuditData returns the request metadata recorded alongside history entries.
func (rc RequestContext) AuditData() map[string]any {
	data := make(map[string]any, 2)
	if rc.ClientIP != "" {
		data["client_ip"] = rc.ClientIP
	}
	if rc.UserAgent != "" {
		data["user_agent"] = rc.UserAgent
	}
	return data
}
