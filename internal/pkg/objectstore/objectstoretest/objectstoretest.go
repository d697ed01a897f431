// Package objectstoretest contains test cases shared by all objectstore backends.
package objectstoretest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	svcerrors "github.com/keboola/dbsnap/internal/pkg/service/common/errors"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// ProviderFactory creates a new empty provider, values must be encoded by the default codec.
type ProviderFactory func(t *testing.T) objectstore.Provider

// Run all test cases against the backend.
func Run(t *testing.T, factory ProviderFactory) {
	t.Helper()

	cases := map[string]func(t *testing.T, p objectstore.Provider){
		"OpenAndUpgrade":     DoTestOpenAndUpgrade,
		"UpgradeError":       DoTestUpgradeError,
		"DatabasesAndDelete": DoTestDatabasesAndDelete,
		"GetPutDelete":       DoTestGetPutDelete,
		"KeyPath":            DoTestKeyPath,
		"Cursor":             DoTestCursor,
		"DateKeys":           DoTestDateKeys,
		"UpdateRollback":     DoTestUpdateRollback,
		"StoreNotFound":      DoTestStoreNotFound,
		"Closed":             DoTestClosed,
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := factory(t)
			fn(t, p)
		})
	}
}

// CreateStores returns an upgrade callback which creates the stores.
func CreateStores(stores ...objectstore.StoreInfo) objectstore.UpgradeFunc {
	return func(ctx context.Context, schema objectstore.Schema, oldVersion, newVersion int64) error {
		for _, store := range stores {
			if err := schema.CreateStore(store); err != nil {
				return err
			}
		}
		return nil
	}
}

func DoTestOpenAndUpgrade(t *testing.T, p objectstore.Provider) {
	t.Helper()
	ctx := context.Background()

	var calls []string
	upgrade := func(ctx context.Context, schema objectstore.Schema, oldVersion, newVersion int64) error {
		calls = append(calls, fmt.Sprintf("%d->%d", oldVersion, newVersion))
		switch oldVersion {
		case 0:
			require.NoError(t, schema.CreateStore(objectstore.StoreInfo{Name: "users", KeyPath: "id"}))
			require.NoError(t, schema.CreateStore(objectstore.StoreInfo{Name: "settings"}))
			require.NoError(t, schema.CreateStore(objectstore.StoreInfo{Name: "logs"}))
			assert.Error(t, schema.CreateStore(objectstore.StoreInfo{Name: "logs"}))
		case 1:
			require.NoError(t, schema.DeleteStore("logs"))
		}
		return nil
	}

	// Create
	db, err := p.Open(ctx, "app", 0, upgrade)
	require.NoError(t, err)
	assert.Equal(t, "app", db.Name())
	assert.Equal(t, int64(1), db.Version())
	assert.Equal(t, []string{"logs", "settings", "users"}, db.StoreNames())
	info, found := db.Store("users")
	assert.True(t, found)
	assert.Equal(t, objectstore.StoreInfo{Name: "users", KeyPath: "id"}, info)
	_, found = db.Store("missing")
	assert.False(t, found)
	require.NoError(t, db.Close(ctx))

	// Reopen, no upgrade
	db, err = p.Open(ctx, "app", 0, upgrade)
	require.NoError(t, err)
	assert.Equal(t, int64(1), db.Version())
	require.NoError(t, db.Close(ctx))

	// Upgrade
	db, err = p.Open(ctx, "app", 2, upgrade)
	require.NoError(t, err)
	assert.Equal(t, int64(2), db.Version())
	assert.Equal(t, []string{"settings", "users"}, db.StoreNames())
	require.NoError(t, db.Close(ctx))

	// Lower version
	_, err = p.Open(ctx, "app", 1, upgrade)
	var versionErr objectstore.VersionError
	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, int64(2), versionErr.Current)

	assert.Equal(t, []string{"0->1", "1->2"}, calls)
}

func DoTestUpgradeError(t *testing.T, p objectstore.Provider) {
	t.Helper()
	ctx := context.Background()

	_, err := p.Open(ctx, "app", 3, func(ctx context.Context, schema objectstore.Schema, oldVersion, newVersion int64) error {
		require.NoError(t, schema.CreateStore(objectstore.StoreInfo{Name: "users"}))
		return errors.New("upgrade failed")
	})
	require.Error(t, err)
	assert.Equal(t, "upgrade failed", err.Error())

	// Nothing has been created
	dbs, err := p.Databases(ctx)
	require.NoError(t, err)
	assert.Empty(t, dbs)
}

func DoTestDatabasesAndDelete(t *testing.T, p objectstore.Provider) {
	t.Helper()
	ctx := context.Background()

	for _, name := range []string{"b", "a"} {
		db, err := p.Open(ctx, name, 2, CreateStores(objectstore.StoreInfo{Name: "posts"}, objectstore.StoreInfo{Name: "authors", KeyPath: "id"}))
		require.NoError(t, err)
		require.NoError(t, db.Close(ctx))
	}

	dbs, err := p.Databases(ctx)
	require.NoError(t, err)
	stores := []objectstore.StoreInfo{{Name: "authors", KeyPath: "id"}, {Name: "posts"}}
	assert.Equal(t, []objectstore.DatabaseInfo{
		{Name: "a", Version: 2, Stores: stores},
		{Name: "b", Version: 2, Stores: stores},
	}, dbs)

	require.NoError(t, p.Delete(ctx, "a"))
	require.NoError(t, p.Delete(ctx, "missing"))

	dbs, err = p.Databases(ctx)
	require.NoError(t, err)
	require.Len(t, dbs, 1)
	assert.Equal(t, "b", dbs[0].Name)

	// A deleted database is created again from scratch
	db, err := p.Open(ctx, "a", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), db.Version())
	assert.Empty(t, db.StoreNames())
	require.NoError(t, db.Close(ctx))
}

func DoTestGetPutDelete(t *testing.T, p objectstore.Provider) {
	t.Helper()
	ctx := context.Background()

	db, err := p.Open(ctx, "app", 1, CreateStores(objectstore.StoreInfo{Name: "settings"}))
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close(ctx)) }()

	// Missing key
	require.NoError(t, db.View(ctx, "settings", func(tx objectstore.ReadTx) error {
		value, found, err := tx.Get(ctx, "theme")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)
		return nil
	}))

	// Put
	require.NoError(t, db.Update(ctx, "settings", func(tx objectstore.WriteTx) error {
		k, err := tx.Put(ctx, "dark", "theme")
		require.NoError(t, err)
		assert.Equal(t, "theme", k)

		k, err = tx.Put(ctx, map[string]any{"enabled": true, "size": int64(12)}, 1)
		require.NoError(t, err)
		assert.Equal(t, float64(1), k)

		_, err = tx.Put(ctx, "value", nil)
		assert.Error(t, err)

		_, err = tx.Put(ctx, "value", true)
		assert.Error(t, err)
		return nil
	}))

	// Get, overwrite
	require.NoError(t, db.Update(ctx, "settings", func(tx objectstore.WriteTx) error {
		value, found, err := tx.Get(ctx, 1.0)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, map[string]any{"enabled": true, "size": int64(12)}, value)

		_, err = tx.Put(ctx, "light", "theme")
		require.NoError(t, err)
		return nil
	}))

	count, err := objectstore.Count(ctx, db, "settings")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, db.View(ctx, "settings", func(tx objectstore.ReadTx) error {
		value, found, err := tx.Get(ctx, "theme")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "light", value)
		return nil
	}))

	// Delete
	require.NoError(t, db.Update(ctx, "settings", func(tx objectstore.WriteTx) error {
		require.NoError(t, tx.Delete(ctx, "theme"))
		require.NoError(t, tx.Delete(ctx, "missing"))
		return nil
	}))
	count, err = objectstore.Count(ctx, db, "settings")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Clear
	require.NoError(t, db.Update(ctx, "settings", func(tx objectstore.WriteTx) error {
		return tx.Clear(ctx)
	}))
	count, err = objectstore.Count(ctx, db, "settings")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func DoTestKeyPath(t *testing.T, p objectstore.Provider) {
	t.Helper()
	ctx := context.Background()

	db, err := p.Open(ctx, "app", 1, CreateStores(objectstore.StoreInfo{Name: "users", KeyPath: "id"}))
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close(ctx)) }()

	require.NoError(t, db.Update(ctx, "users", func(tx objectstore.WriteTx) error {
		k, err := tx.Put(ctx, map[string]any{"id": int64(2), "name": "Jane"}, nil)
		require.NoError(t, err)
		assert.Equal(t, float64(2), k)

		_, err = tx.Put(ctx, map[string]any{"id": int64(1), "name": "John"}, nil)
		require.NoError(t, err)

		// Explicit key is not allowed
		_, err = tx.Put(ctx, map[string]any{"id": int64(3)}, 3)
		assert.Error(t, err)

		// Missing key
		_, err = tx.Put(ctx, map[string]any{"name": "Nobody"}, nil)
		assert.Error(t, err)
		return nil
	}))

	var names []any
	require.NoError(t, db.View(ctx, "users", func(tx objectstore.ReadTx) error {
		c := tx.Cursor(ctx, nil)
		defer c.Close()
		for c.Next() {
			names = append(names, c.Value().(map[string]any)["name"])
		}
		return c.Err()
	}))
	assert.Equal(t, []any{"John", "Jane"}, names)
}

func DoTestDateKeys(t *testing.T, p objectstore.Provider) {
	t.Helper()
	ctx := context.Background()

	db, err := p.Open(ctx, "app", 1, CreateStores(objectstore.StoreInfo{Name: "events"}))
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close(ctx)) }()

	early := time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC)
	middle := time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC)
	require.NoError(t, db.Update(ctx, "events", func(tx objectstore.WriteTx) error {
		for _, k := range []time.Time{late, early, middle} {
			if _, err := tx.Put(ctx, k.Format(time.RFC3339Nano), k); err != nil {
				return err
			}
		}
		return nil
	}))

	var keys, values []any
	require.NoError(t, db.View(ctx, "events", func(tx objectstore.ReadTx) error {
		c := tx.Cursor(ctx, early)
		defer c.Close()
		for c.Next() {
			keys = append(keys, c.Key())
			values = append(values, c.Value())
		}
		return c.Err()
	}))
	assert.Equal(t, []any{middle, late}, keys)
	assert.Equal(t, []any{"3000-01-01T00:00:00Z", "9999-12-31T23:59:59.999999999Z"}, values)
}

func DoTestCursor(t *testing.T, p objectstore.Provider) {
	t.Helper()
	ctx := context.Background()

	db, err := p.Open(ctx, "app", 1, CreateStores(objectstore.StoreInfo{Name: "items"}, objectstore.StoreInfo{Name: "empty"}))
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close(ctx)) }()

	// Keys are inserted in descending order, more items than one internal page
	const n = 150
	require.NoError(t, db.Update(ctx, "items", func(tx objectstore.WriteTx) error {
		for i := n; i > 0; i-- {
			if _, err := tx.Put(ctx, fmt.Sprintf("value %03d", i), i); err != nil {
				return err
			}
		}
		// Mixed key types are sorted by type
		for _, k := range []any{[]any{"a"}, []byte("b"), "c"} {
			if _, err := tx.Put(ctx, "mixed", k); err != nil {
				return err
			}
		}
		return nil
	}))

	collect := func(store string, after any) (keys []any, values []any) {
		require.NoError(t, db.View(ctx, store, func(tx objectstore.ReadTx) error {
			c := tx.Cursor(ctx, after)
			defer c.Close()
			for c.Next() {
				keys = append(keys, c.Key())
				values = append(values, c.Value())
			}
			return c.Err()
		}))
		return keys, values
	}

	keys, values := collect("items", nil)
	require.Len(t, keys, n+3)
	for i := 0; i < n; i++ {
		assert.Equal(t, float64(i+1), keys[i])
		assert.Equal(t, fmt.Sprintf("value %03d", i+1), values[i])
	}
	assert.Equal(t, []any{"c", []byte("b"), []any{"a"}}, keys[n:])

	// After is exclusive
	keys, _ = collect("items", 148)
	assert.Equal(t, []any{float64(149), float64(150), "c", []byte("b"), []any{"a"}}, keys)

	// After a key which does not exist
	keys, _ = collect("items", 149.5)
	assert.Equal(t, []any{float64(150), "c", []byte("b"), []any{"a"}}, keys)

	// After the last key
	keys, _ = collect("items", []any{"a"})
	assert.Empty(t, keys)

	// Empty store
	keys, _ = collect("empty", nil)
	assert.Empty(t, keys)

	// Cancelled context
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = db.View(ctx, "items", func(tx objectstore.ReadTx) error {
		c := tx.Cursor(cancelled, nil)
		defer c.Close()
		for c.Next() {
			assert.Fail(t, "unexpected item")
		}
		return c.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func DoTestUpdateRollback(t *testing.T, p objectstore.Provider) {
	t.Helper()
	ctx := context.Background()

	db, err := p.Open(ctx, "app", 1, CreateStores(objectstore.StoreInfo{Name: "settings"}))
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close(ctx)) }()

	err = db.Update(ctx, "settings", func(tx objectstore.WriteTx) error {
		if _, err := tx.Put(ctx, "dark", "theme"); err != nil {
			return err
		}
		return errors.New("something went wrong")
	})
	require.Error(t, err)
	assert.Equal(t, "something went wrong", err.Error())

	count, err := objectstore.Count(ctx, db, "settings")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func DoTestStoreNotFound(t *testing.T, p objectstore.Provider) {
	t.Helper()
	ctx := context.Background()

	db, err := p.Open(ctx, "app", 1, CreateStores(objectstore.StoreInfo{Name: "settings"}))
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close(ctx)) }()

	err = db.View(ctx, "users", func(tx objectstore.ReadTx) error {
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, svcerrors.CodeStoreNotFound, svcerrors.Code(err))
	assert.Equal(t, `store "users" not found in database "app"`, err.Error())

	err = db.Update(ctx, "users", func(tx objectstore.WriteTx) error {
		return nil
	})
	assert.Equal(t, svcerrors.CodeStoreNotFound, svcerrors.Code(err))
}

func DoTestClosed(t *testing.T, p objectstore.Provider) {
	t.Helper()
	ctx := context.Background()

	db, err := p.Open(ctx, "app", 1, CreateStores(objectstore.StoreInfo{Name: "settings"}))
	require.NoError(t, err)
	require.NoError(t, db.Close(ctx))

	err = db.View(ctx, "settings", func(tx objectstore.ReadTx) error {
		return nil
	})
	assert.ErrorIs(t, err, objectstore.ErrClosed)

	require.NoError(t, p.Close(ctx))
	_, err = p.Open(ctx, "app", 0, nil)
	assert.ErrorIs(t, err, objectstore.ErrClosed)
}
