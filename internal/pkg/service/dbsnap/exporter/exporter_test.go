package exporter_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/objectstore/objectstoretest"
	svcerrors "github.com/keboola/dbsnap/internal/pkg/service/common/errors"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/blob"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/dependencies"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/exporter"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/model"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/stream"
)

func TestExporter_Export(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	db := objectstoretest.CreateDatabase(t, d.ObjectStore(), "app",
		objectstore.StoreInfo{Name: "users"},
		objectstore.StoreInfo{Name: "empty"},
	)
	objectstoretest.Put(t, db, "users",
		objectstoretest.Record{Key: 2, Value: map[string]any{"name": "Jane", "age": 20}},
		objectstoretest.Record{Key: 1, Value: map[string]any{"name": "John", "age": 18}},
	)

	var events []model.ProgressEvent
	result, err := exporter.New(d).Export(ctx, "app", exporter.WithOnProgress(func(event model.ProgressEvent) {
		events = append(events, event)
	}))
	require.NoError(t, err)

	text, err := result.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, blob.TextMediaType, result.Type())
	assert.Equal(t, strings.TrimLeft(`
{"name":"app","stores":[{"count":0,"name":"empty"},{"count":2,"name":"users"}],"version":1}
{"key":1.0,"storeName":"users","value":{"age":18,"name":"John"}}
{"key":2.0,"storeName":"users","value":{"age":20,"name":"Jane"}}
`, "\n"), text)

	// Progress
	expectedMeta := model.ExportMeta{Name: "app", Version: 1, Stores: []model.StoreMeta{{Name: "empty", Count: 0}, {Name: "users", Count: 2}}}
	assert.Equal(t, []model.ProgressEvent{
		{Meta: expectedMeta, Progress: model.Progress{Current: 1, Total: 2}},
		{Meta: expectedMeta, Progress: model.Progress{Current: 2, Total: 2}},
	}, events)

	// Source database is not modified
	assert.Equal(t, int64(1), db.Version())
	assert.Len(t, objectstoretest.Dump(t, db, "users"), 2)

	// Logs
	d.DebugLogger().AssertJSONMessages(t, `
{"level":"info","message":"Exporting database \"app\".","component":"exporter","db.name":"app"}
{"level":"debug","message":"Exported store \"empty\", 0 records in 1 batches.","component":"exporter","db.store":"empty"}
{"level":"debug","message":"Exported store \"users\", 2 records in 1 batches.","component":"exporter","db.store":"users"}
{"level":"debug","message":"sink sealed, %d bytes in 3 chunks","component":"exporter.sink"}
{"level":"info","message":"Exported 2 records from database \"app\".","component":"exporter","duration":"0s"}
`)

	// Telemetry
	assert.Equal(t, int64(2), d.TestTelemetry().Int64Sum(t, "dbsnap.export.records"))
	assert.Contains(t, d.TestTelemetry().SpanNames(), "dbsnap.export")
}

func TestExporter_Export_Stores(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	db := objectstoretest.CreateDatabase(t, d.ObjectStore(), "app",
		objectstore.StoreInfo{Name: "a"},
		objectstore.StoreInfo{Name: "b"},
		objectstore.StoreInfo{Name: "c"},
	)
	objectstoretest.Put(t, db, "a", objectstoretest.Record{Key: "a1", Value: "A"})
	objectstoretest.Put(t, db, "c", objectstoretest.Record{Key: "c1", Value: "C"})

	result, err := exporter.New(d).Export(ctx, "app", exporter.WithStores("c", "a"))
	require.NoError(t, err)

	text, err := result.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimLeft(`
{"name":"app","stores":[{"count":1,"name":"c"},{"count":1,"name":"a"}],"version":1}
{"key":"c1","storeName":"c","value":"C"}
{"key":"a1","storeName":"a","value":"A"}
`, "\n"), text)

	// Duplicate store
	_, err = exporter.New(d).Export(ctx, "app", exporter.WithStores("a", "a"))
	require.Error(t, err)
	assert.Equal(t, `store "a" is specified twice`, err.Error())
}

func TestExporter_Export_StoreNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	objectstoretest.CreateDatabase(t, d.ObjectStore(), "app", objectstore.StoreInfo{Name: "users"})

	_, err := exporter.New(d).Export(ctx, "app", exporter.WithStores("users", "orders"))
	require.Error(t, err)
	assert.Equal(t, svcerrors.CodeStoreNotFound, svcerrors.Code(err))
	assert.Equal(t, `store "orders" not found in database "app"`, err.Error())
}

func TestExporter_Export_DatabaseNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	_, err := exporter.New(d).Export(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, `database "missing" not found`, err.Error())
	assert.False(t, svcerrors.IsExpected(err))
	var notFoundErr objectstore.DatabaseNotFoundError
	require.ErrorAs(t, err, &notFoundErr)
	assert.Equal(t, "missing", notFoundErr.Database)
	assert.Equal(t, `Database "missing" not found.`, svcerrors.UserMessage(err))

	// No database has been created
	databases, err := d.ObjectStore().Databases(ctx)
	require.NoError(t, err)
	assert.Empty(t, databases)
}

func TestExporter_Export_Cancel(t *testing.T) {
	t.Parallel()
	d := dependencies.NewMocked(t)

	db := objectstoretest.CreateDatabase(t, d.ObjectStore(), "app", objectstore.StoreInfo{Name: "logs"})
	var records []objectstoretest.Record
	for i := range 30 {
		records = append(records, objectstoretest.Record{Key: i, Value: fmt.Sprintf("line %d", i)})
	}
	objectstoretest.Put(t, db, "logs", records...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	_, err := exporter.New(d).Export(ctx, "app", exporter.WithOnProgress(func(event model.ProgressEvent) {
		calls++
		cancel()
	}))
	require.Error(t, err)
	assert.Equal(t, svcerrors.CodeAborted, svcerrors.Code(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestExporter_Export_LargeVolume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	db := objectstoretest.CreateDatabase(t, d.ObjectStore(), "app", objectstore.StoreInfo{Name: "items", KeyPath: "id"})
	var records []objectstoretest.Record
	for i := range 1000 {
		records = append(records, objectstoretest.Record{Value: map[string]any{"id": i, "payload": strings.Repeat("x", i%50)}})
	}
	objectstoretest.Put(t, db, "items", records...)

	var last model.Progress
	calls := 0
	result, err := exporter.New(d).Export(ctx, "app",
		exporter.WithBatchSize(25),
		exporter.WithSink(stream.WithCapacity(4)),
		exporter.WithOnProgress(func(event model.ProgressEvent) {
			calls++
			assert.Equal(t, last.Current+1, event.Progress.Current)
			assert.LessOrEqual(t, event.Progress.Current, event.Progress.Total)
			last = event.Progress
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, 1000, calls)
	assert.Equal(t, model.Progress{Current: 1000, Total: 1000}, last)

	text, err := result.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1001, strings.Count(text, "\n"))
}

func TestExporter_Export_FileSpool(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	db := objectstoretest.CreateDatabase(t, d.ObjectStore(), "app", objectstore.StoreInfo{Name: "files"})
	objectstoretest.Put(t, db, "files", objectstoretest.Record{Key: "empty", Value: blob.FromBytes("", nil)})

	result, err := exporter.New(d).Export(ctx, "app", exporter.WithSink(stream.WithFileSpool(d.Fs(), "/out/app.idb")))
	require.NoError(t, err)
	assert.Equal(t, "/out/app.idb", result.Path())

	content, err := afero.ReadFile(d.Fs(), "/out/app.idb")
	require.NoError(t, err)
	assert.Equal(t, strings.TrimLeft(`
{"name":"app","stores":[{"count":1,"name":"files"}],"version":1}
{"key":"empty","storeName":"files","value":{"$Blob":["application/octet-stream",""]}}
`, "\n"), string(content))
}
