package objectstore_test

import (
	"testing"

	"github.com/keboola/go-utils/pkg/orderedmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/dbsnap/internal/pkg/objectstore"
)

func TestKeyFromPath(t *testing.T) {
	t.Parallel()

	value := orderedmap.New()
	value.Set("id", 5)
	value.Set("meta", map[string]any{"slug": "john"})

	k, err := objectstore.KeyFromPath(value, "id")
	require.NoError(t, err)
	assert.Equal(t, float64(5), k)

	k, err = objectstore.KeyFromPath(value, "meta.slug")
	require.NoError(t, err)
	assert.Equal(t, "john", k)

	_, err = objectstore.KeyFromPath(value, "meta.missing")
	require.Error(t, err)
	assert.Equal(t, `key path "meta.missing" not found in the value`, err.Error())

	_, err = objectstore.KeyFromPath(map[string]any{"id": true}, "id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid key at path "id"`)
}

func TestPutKey(t *testing.T) {
	t.Parallel()

	inline := objectstore.StoreInfo{Name: "users", KeyPath: "id"}
	explicit := objectstore.StoreInfo{Name: "settings"}

	k, err := objectstore.PutKey(inline, map[string]any{"id": int64(1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(1), k)

	_, err = objectstore.PutKey(inline, map[string]any{"id": 1}, 1)
	assert.Error(t, err)

	k, err = objectstore.PutKey(explicit, "dark", "theme")
	require.NoError(t, err)
	assert.Equal(t, "theme", k)

	_, err = objectstore.PutKey(explicit, "dark", nil)
	assert.Error(t, err)
}

func TestResolveVersion(t *testing.T) {
	t.Parallel()

	cases := []struct {
		current, requested int64
		version            int64
		upgrade            bool
		err                string
	}{
		{current: 0, requested: 0, version: 1, upgrade: true},
		{current: 3, requested: 0, version: 3},
		{current: 3, requested: 3, version: 3},
		{current: 3, requested: 4, version: 4, upgrade: true},
		{current: 0, requested: 2, version: 2, upgrade: true},
		{current: 3, requested: 2, err: `database "app" has version 3, the requested version 2 is lower`},
		{current: 0, requested: -1, err: `invalid version -1 of the database "app"`},
	}

	for _, tc := range cases {
		version, upgrade, err := objectstore.ResolveVersion("app", tc.current, tc.requested)
		if tc.err != "" {
			require.Error(t, err)
			assert.Equal(t, tc.err, err.Error())
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.version, version)
		assert.Equal(t, tc.upgrade, upgrade)
	}
}

func TestValidateStoreInfo(t *testing.T) {
	t.Parallel()

	require.NoError(t, objectstore.ValidateStoreInfo(objectstore.StoreInfo{Name: "users"}, []string{"posts"}))
	assert.Error(t, objectstore.ValidateStoreInfo(objectstore.StoreInfo{Name: " "}, nil))
	assert.Error(t, objectstore.ValidateStoreInfo(objectstore.StoreInfo{Name: "users"}, []string{"users"}))
}
