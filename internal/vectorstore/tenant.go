package vectorstore

import (
	"context"
	"errors"
)

// Tenant isolation errors - fail closed security model.
var (
	// ErrMissingTenant is returned when tenant info is missing from
	// context. No empty results, just errors.
	ErrMissingTenant = errors.New("tenant info missing from context")

	// ErrInvalidTenant is returned when the tenant identifier is invalid.
	ErrInvalidTenant = errors.New("invalid tenant identifier")
)

// tenantContextKey is the context key for TenantInfo.
type tenantContextKey struct{}

// TenantInfo holds the tenant context for filtering and isolation.
//
// The tenant is the isolation boundary for a customer's data; every
// document and query carries the tenant identifier.
type TenantInfo struct {
	// TenantID is the customer identifier (required).
	TenantID string
}

// Validate checks that the tenant identifier is present.
func (t *TenantInfo) Validate() error {
	if t.TenantID == "" {
		return ErrInvalidTenant
	}
	return nil
}

// Metadata returns tenant info as document metadata.
func (t *TenantInfo) Metadata() map[string]interface{} {
	return map[string]interface{}{"tenant_id": t.TenantID}
}

// Filter returns the query filter matching this tenant's scope.
func (t *TenantInfo) Filter() map[string]interface{} {
	return map[string]interface{}{"tenant_id": t.TenantID}
}

// ContextWithTenant adds TenantInfo to a context.
func ContextWithTenant(ctx context.Context, tenant *TenantInfo) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenant)
}

// TenantFromContext extracts TenantInfo from a context.
// Returns ErrMissingTenant if not present - fail closed.
func TenantFromContext(ctx context.Context) (*TenantInfo, error) {
	val := ctx.Value(tenantContextKey{})
	if val == nil {
		return nil, ErrMissingTenant
	}
	tenant, ok := val.(*TenantInfo)
	if !ok || tenant == nil {
		return nil, ErrMissingTenant
	}
	return tenant, nil
}

// HasTenant checks if TenantInfo is present in context without error.
func HasTenant(ctx context.Context) bool {
	_, err := TenantFromContext(ctx)
	return err == nil
}
