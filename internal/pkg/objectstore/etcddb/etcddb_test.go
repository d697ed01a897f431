package etcddb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/objectstore/etcddb"
	"github.com/keboola/dbsnap/internal/pkg/objectstore/objectstoretest"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/codec"
	"github.com/keboola/dbsnap/internal/pkg/utils/etcdhelper"
)

func TestProvider(t *testing.T) {
	t.Parallel()
	objectstoretest.Run(t, func(t *testing.T) objectstore.Provider {
		t.Helper()
		return etcddb.New(etcdhelper.ClientForTest(t), codec.New(), log.NewNopLogger())
	})
}

func TestProvider_SharedClient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := etcdhelper.ClientForTest(t)
	logger := log.NewDebugLogger()

	// Two providers on the same etcd namespace, for example two processes
	p1 := etcddb.New(client, codec.New(), logger)
	p2 := etcddb.New(client, codec.New(), logger)

	db1, err := p1.Open(ctx, "app", 1, objectstoretest.CreateStores(objectstore.StoreInfo{Name: "users", KeyPath: "id"}))
	require.NoError(t, err)
	objectstoretest.Put(t, db1, "users", objectstoretest.Record{Value: map[string]any{"id": int64(1), "name": "John"}})

	db2, err := p2.Open(ctx, "app", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), db2.Version())
	info, found := db2.Store("users")
	require.True(t, found)
	assert.Equal(t, "id", info.KeyPath)
	assert.Equal(t, []objectstoretest.Record{
		{Key: float64(1), Value: map[string]any{"id": int64(1), "name": "John"}},
	}, objectstoretest.Dump(t, db2, "users"))

	// The upgrade is visible to the other provider
	db2, err = p2.Open(ctx, "app", 2, func(ctx context.Context, schema objectstore.Schema, oldVersion, newVersion int64) error {
		return schema.DeleteStore("users")
	})
	require.NoError(t, err)
	assert.Empty(t, db2.StoreNames())

	dbs, err := p1.Databases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []objectstore.DatabaseInfo{{Name: "app", Version: 2, Stores: []objectstore.StoreInfo{}}}, dbs)

	logger.AssertJSONMessages(t, `
{"level":"debug","message":"Database \"app\" upgraded from version 0 to 1."}
{"level":"debug","message":"Database \"app\" upgraded from version 1 to 2."}
`)
}

func TestProvider_EscapedNames(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := etcddb.New(etcdhelper.ClientForTest(t), codec.New(), log.NewNopLogger())

	// Store "a" must not see entries of store "a/b"
	db, err := p.Open(ctx, "my/app", 1, objectstoretest.CreateStores(objectstore.StoreInfo{Name: "a"}, objectstore.StoreInfo{Name: "a/b"}))
	require.NoError(t, err)
	objectstoretest.Put(t, db, "a/b", objectstoretest.Record{Key: "x", Value: "in a/b"})
	objectstoretest.Put(t, db, "a", objectstoretest.Record{Key: "y", Value: "in a"})

	assert.Equal(t, []objectstoretest.Record{{Key: "y", Value: "in a"}}, objectstoretest.Dump(t, db, "a"))
	assert.Equal(t, []objectstoretest.Record{{Key: "x", Value: "in a/b"}}, objectstoretest.Dump(t, db, "a/b"))

	dbs, err := p.Databases(ctx)
	require.NoError(t, err)
	require.Len(t, dbs, 1)
	assert.Equal(t, "my/app", dbs[0].Name)
}

func TestProvider_Delete_RemovesAllKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := etcdhelper.ClientForTest(t)
	p := etcddb.New(client, codec.New(), log.NewNopLogger())

	db, err := p.Open(ctx, "app", 1, objectstoretest.CreateStores(objectstore.StoreInfo{Name: "users"}))
	require.NoError(t, err)
	objectstoretest.Put(t, db, "users",
		objectstoretest.Record{Key: "a", Value: "John"},
		objectstoretest.Record{Key: "b", Value: "Jane"},
	)
	require.NoError(t, db.Close(ctx))

	keys, err := etcdhelper.DumpAllKeys(ctx, client)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
	assert.Equal(t, "database/app", keys[0])

	require.NoError(t, p.Delete(ctx, "app"))
	keys, err = etcdhelper.DumpAllKeys(ctx, client)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
