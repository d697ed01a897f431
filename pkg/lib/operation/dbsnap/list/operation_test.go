package list_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/objectstore/objectstoretest"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/dependencies"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/model"
	"github.com/keboola/dbsnap/pkg/lib/operation/dbsnap/list"
)

func TestRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	app := objectstoretest.CreateDatabase(t, d.ObjectStore(), "app", objectstore.StoreInfo{Name: "users"}, objectstore.StoreInfo{Name: "settings"})
	objectstoretest.Put(t, app, "users",
		objectstoretest.Record{Key: 1, Value: "John"},
		objectstoretest.Record{Key: 2, Value: "Jane"},
	)
	objectstoretest.CreateDatabase(t, d.ObjectStore(), "blank")

	databases, err := list.Run(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, []list.Database{
		{Name: "app", Version: 1, Stores: []model.StoreMeta{{Name: "settings", Count: 0}, {Name: "users", Count: 2}}},
		{Name: "blank", Version: 1},
	}, databases)

	d.DebugLogger().AssertJSONMessages(t, `
{"level":"info","message":"Database \"app\", version 1:"}
{"level":"info","message":"  store \"settings\": 0 records"}
{"level":"info","message":"  store \"users\": 2 records"}
{"level":"info","message":"Database \"blank\", version 1:"}
{"level":"info","message":"  no store"}
`)
}

func TestRun_NoDatabase(t *testing.T) {
	t.Parallel()
	d := dependencies.NewMocked(t)

	databases, err := list.Run(context.Background(), d)
	require.NoError(t, err)
	assert.Empty(t, databases)
	d.DebugLogger().AssertJSONMessages(t, `{"level":"info","message":"No database found."}`)
}
