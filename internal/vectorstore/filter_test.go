package vectorstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftorhq/driftor/internal/vectorstore"
)

func TestApplyTenantFilter(t *testing.T) {
	tenant := &vectorstore.TenantInfo{TenantID: "acme"}

	t.Run("nil user filters", func(t *testing.T) {
		got, err := vectorstore.ApplyTenantFilter(nil, tenant)
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"tenant_id": "acme"}, got)
	})

	t.Run("merges user filters", func(t *testing.T) {
		got, err := vectorstore.ApplyTenantFilter(map[string]interface{}{"component": "auth"}, tenant)
		require.NoError(t, err)
		assert.Equal(t, "auth", got["component"])
		assert.Equal(t, "acme", got["tenant_id"])
	})

	t.Run("rejects tenant injection", func(t *testing.T) {
		_, err := vectorstore.ApplyTenantFilter(map[string]interface{}{"tenant_id": "other"}, tenant)
		assert.ErrorIs(t, err, vectorstore.ErrTenantFilterInUserFilters)
	})

	t.Run("nil tenant", func(t *testing.T) {
		_, err := vectorstore.ApplyTenantFilter(nil, nil)
		assert.ErrorIs(t, err, vectorstore.ErrMissingTenant)
	})

	t.Run("empty tenant id", func(t *testing.T) {
		_, err := vectorstore.ApplyTenantFilter(nil, &vectorstore.TenantInfo{})
		assert.ErrorIs(t, err, vectorstore.ErrInvalidTenant)
	})

	t.Run("does not mutate user filters", func(t *testing.T) {
		user := map[string]interface{}{"component": "auth"}
		_, err := vectorstore.ApplyTenantFilter(user, tenant)
		require.NoError(t, err)
		assert.NotContains(t, user, "tenant_id")
	})
}

func TestMergeFilters(t *testing.T) {
	tests := []struct {
		name     string
		base     map[string]interface{}
		override map[string]interface{}
		want     map[string]interface{}
	}{
		{name: "both nil", base: nil, override: nil, want: nil},
		{
			name:     "base nil",
			override: map[string]interface{}{"a": 1},
			want:     map[string]interface{}{"a": 1},
		},
		{
			name: "override nil",
			base: map[string]interface{}{"a": 1},
			want: map[string]interface{}{"a": 1},
		},
		{
			name:     "override wins",
			base:     map[string]interface{}{"a": 1, "b": 2},
			override: map[string]interface{}{"b": 3},
			want:     map[string]interface{}{"a": 1, "b": 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, vectorstore.MergeFilters(tt.base, tt.override))
		})
	}
}

func TestFilterBuilder(t *testing.T) {
	t.Run("empty builds nil", func(t *testing.T) {
		assert.Nil(t, vectorstore.NewFilterBuilder().Build())
	})

	t.Run("chained conditions", func(t *testing.T) {
		filter := vectorstore.NewFilterBuilder().
			With("component", "auth").
			WithAny("doc_type", []string{"runbook", "faq"}).
			WithTenant(&vectorstore.TenantInfo{TenantID: "acme"}).
			Build()

		assert.Equal(t, "auth", filter["component"])
		assert.Equal(t, []string{"runbook", "faq"}, filter["doc_type"])
		assert.Equal(t, "acme", filter["tenant_id"])
	})

	t.Run("empty WithAny dropped", func(t *testing.T) {
		filter := vectorstore.NewFilterBuilder().WithAny("doc_type", nil).Build()
		assert.Nil(t, filter)
	})
}
