package sqlitedb_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/objectstore/objectstoretest"
	"github.com/keboola/dbsnap/internal/pkg/objectstore/sqlitedb"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/codec"
)

func TestProvider(t *testing.T) {
	t.Parallel()
	objectstoretest.Run(t, func(t *testing.T) objectstore.Provider {
		t.Helper()
		p, err := sqlitedb.Open(context.Background(), filepath.Join(t.TempDir(), "db.sqlite"), codec.New(), log.NewNopLogger())
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = p.Close(context.Background())
		})
		return p
	})
}

func TestProvider_Persistence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "db.sqlite")
	logger := log.NewDebugLogger()

	// Write
	p, err := sqlitedb.Open(ctx, path, codec.New(), logger)
	require.NoError(t, err)
	db, err := p.Open(ctx, "app", 2, objectstoretest.CreateStores(objectstore.StoreInfo{Name: "users", KeyPath: "id"}))
	require.NoError(t, err)
	objectstoretest.Put(t, db, "users", objectstoretest.Record{Value: map[string]any{"id": "john", "age": 18}})
	require.NoError(t, db.Close(ctx))
	require.NoError(t, p.Close(ctx))

	// Read again
	p, err = sqlitedb.Open(ctx, path, codec.New(), logger)
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close(ctx)) }()

	db, err = p.Open(ctx, "app", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), db.Version())
	info, found := db.Store("users")
	require.True(t, found)
	assert.Equal(t, "id", info.KeyPath)
	assert.Equal(t, []objectstoretest.Record{
		{Key: "john", Value: map[string]any{"id": "john", "age": int64(18)}},
	}, objectstoretest.Dump(t, db, "users"))

	logger.AssertJSONMessages(t, `
{"level":"debug","message":"Opened SQLite file \"%s/nested/db.sqlite\"."}
{"level":"debug","message":"Database \"app\" upgraded from version 0 to 2."}
{"level":"debug","message":"Closing SQLite file \"%s/nested/db.sqlite\"."}
`)
}
