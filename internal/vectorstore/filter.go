package vectorstore

import "errors"

// ErrTenantFilterInUserFilters indicates a user filter tried to set the
// tenant field directly.
var ErrTenantFilterInUserFilters = errors.New("user filters cannot contain tenant fields")

// tenantFilterKey cannot appear in user-supplied filters; the isolation
// layer owns it.
const tenantFilterKey = "tenant_id"

// ApplyTenantFilter merges user filters with the tenant filter, enforcing
// that the tenant filter always wins and rejecting injection attempts.
//
// Returns ErrTenantFilterInUserFilters if userFilters contains tenant_id.
func ApplyTenantFilter(userFilters map[string]interface{}, tenant *TenantInfo) (map[string]interface{}, error) {
	if tenant == nil {
		return nil, ErrMissingTenant
	}
	if err := tenant.Validate(); err != nil {
		return nil, err
	}

	if userFilters == nil {
		return tenant.Filter(), nil
	}

	if _, exists := userFilters[tenantFilterKey]; exists {
		return nil, ErrTenantFilterInUserFilters
	}

	result := make(map[string]interface{}, len(userFilters)+1)
	for k, v := range userFilters {
		result[k] = v
	}
	result[tenantFilterKey] = tenant.TenantID
	return result, nil
}

// MergeFilters combines two filter maps, with override taking precedence.
func MergeFilters(base, override map[string]interface{}) map[string]interface{} {
	if base == nil && override == nil {
		return nil
	}
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	result := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		result[k] = v
	}
	return result
}

// FilterBuilder provides a fluent interface for building query filters.
type FilterBuilder struct {
	filters map[string]interface{}
}

// NewFilterBuilder creates a new FilterBuilder.
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{filters: make(map[string]interface{})}
}

// With adds a key-value pair to the filter.
func (b *FilterBuilder) With(key string, value interface{}) *FilterBuilder {
	b.filters[key] = value
	return b
}

// WithAny adds a match-any condition over the given values.
// Empty values are dropped.
func (b *FilterBuilder) WithAny(key string, values []string) *FilterBuilder {
	if len(values) > 0 {
		b.filters[key] = values
	}
	return b
}

// WithTenant adds the tenant filter from TenantInfo.
func (b *FilterBuilder) WithTenant(tenant *TenantInfo) *FilterBuilder {
	if tenant == nil {
		return b
	}
	for k, v := range tenant.Filter() {
		b.filters[k] = v
	}
	return b
}

// Build returns the constructed filter map, nil when empty.
func (b *FilterBuilder) Build() map[string]interface{} {
	if len(b.filters) == 0 {
		return nil
	}
	return b.filters
}
