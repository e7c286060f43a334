package rbac

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCatalogNoDuplicates(t *testing.T) {
	catalog := NewCatalog()
	require.Equal(t, len(grants), catalog.Size())

	seen := make(map[string]struct{})
	for _, grant := range catalog.All() {
		key := grant.Key.String()
		_, dup := seen[key]
		require.False(t, dup, "duplicate key %s", key)
		seen[key] = struct{}{}
		require.NotEmpty(t, grant.Description, key)
	}
}

func TestCatalogKeysSorted(t *testing.T) {
	catalog := NewCatalog()
	keys := catalog.Keys()
	require.True(t, sort.StringsAreSorted(keys))
	require.Len(t, keys, catalog.Size())
}

func TestCatalogExists(t *testing.T) {
	catalog := NewCatalog()
	require.True(t, catalog.Exists(PermRolesManageAll))
	require.True(t, catalog.Exists(PermTimesheetsViewOwn))

	// Grammatically valid, deliberately not granted.
	require.False(t, catalog.Exists(NewKey(ResourceAudit, ActionDelete, ScopeAll)))
	require.False(t, catalog.Exists(Key{}))
}

func TestCatalogLookup(t *testing.T) {
	catalog := NewCatalog()
	grant, ok := catalog.Lookup(PermAuditViewAll)
	require.True(t, ok)
	require.Equal(t, PermAuditViewAll, grant.Key)
	require.NotEmpty(t, grant.Description)

	_, ok = catalog.Lookup(NewKey(ResourceLeads, ActionApprove, ScopeAll))
	require.False(t, ok)
}

func TestEveryGrantParsesBack(t *testing.T) {
	catalog := NewCatalog()
	for _, raw := range catalog.Keys() {
		key, err := ParseKey(raw)
		require.NoError(t, err, raw)
		require.True(t, catalog.Exists(key), raw)
	}
}
