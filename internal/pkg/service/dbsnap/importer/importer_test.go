package importer_test

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/objectstore/objectstoretest"
	svcerrors "github.com/keboola/dbsnap/internal/pkg/service/common/errors"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/blob"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/dependencies"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/exporter"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/importer"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/model"
)

func TestImporter_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	db := objectstoretest.CreateDatabase(t, d.ObjectStore(), "app", objectstore.StoreInfo{Name: "users"})
	objectstoretest.Put(t, db, "users",
		objectstoretest.Record{Key: 1, Value: map[string]any{"name": "John", "age": 18}},
		objectstoretest.Record{Key: 2, Value: map[string]any{"name": "Jane", "age": 20}},
	)
	before := objectstoretest.Dump(t, db, "users")

	artifact, err := exporter.New(d).Export(ctx, "app")
	require.NoError(t, err)

	objectstoretest.Clear(t, db, "users")
	assert.Empty(t, objectstoretest.Dump(t, db, "users"))

	var events []model.ProgressEvent
	require.NoError(t, importer.New(d).Import(ctx, artifact, importer.WithOnProgress(func(event model.ProgressEvent) {
		events = append(events, event)
	})))

	after := objectstoretest.Dump(t, db, "users")
	assert.Equal(t, []objectstoretest.Record{
		{Key: float64(1), Value: map[string]any{"name": "John", "age": int64(18)}},
		{Key: float64(2), Value: map[string]any{"name": "Jane", "age": int64(20)}},
	}, after)
	assert.Equal(t, before, after)

	expectedMeta := model.ExportMeta{Name: "app", Version: 1, Stores: []model.StoreMeta{{Name: "users", Count: 2}}}
	assert.Equal(t, []model.ProgressEvent{
		{Meta: expectedMeta, Progress: model.Progress{Current: 1, Total: 2}},
		{Meta: expectedMeta, Progress: model.Progress{Current: 2, Total: 2}},
	}, events)

	d.DebugLogger().AssertJSONMessages(t, `
{"level":"info","message":"Importing 2 records to database \"app\".","component":"importer","db.name":"app"}
{"level":"info","message":"Imported 2 records to database \"app\".","component":"importer","duration":"0s"}
`)
	assert.Equal(t, int64(2), d.TestTelemetry().Int64Sum(t, "dbsnap.import.records"))
	assert.Contains(t, d.TestTelemetry().SpanNames(), "dbsnap.import")
}

func TestImporter_RoundTrip_ExtendedValues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	db := objectstoretest.CreateDatabase(t, d.ObjectStore(), "app",
		objectstore.StoreInfo{Name: "docs", KeyPath: "meta.id"},
		objectstore.StoreInfo{Name: "values"},
	)
	objectstoretest.Put(t, db, "docs",
		objectstoretest.Record{Value: map[string]any{
			"meta":    map[string]any{"id": "doc-1", "$type": "note"},
			"created": time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC),
			"body":    blob.FromString("text/markdown", "# Title\n\nline 2"),
			"empty":   blob.FromBytes("", nil),
			"tags":    []any{"a", nil, true, 1.5},
		}},
	)
	objectstoretest.Put(t, db, "values",
		objectstoretest.Record{Key: "negativeZero", Value: math.Copysign(0, -1)},
		objectstoretest.Record{Key: "zero", Value: 0.0},
		objectstoretest.Record{Key: "inf", Value: math.Inf(1)},
		objectstoretest.Record{Key: "-inf", Value: math.Inf(-1)},
		objectstoretest.Record{Key: "bytes", Value: []byte{0, 1, 2, 255}},
		objectstoretest.Record{Key: "floats", Value: []float32{1.5, -2}},
		objectstoretest.Record{Key: "pattern", Value: regexp.MustCompile(`^[a-z]+\d*$`)},
		objectstoretest.Record{Key: []any{"compound", 1}, Value: nil},
		objectstoretest.Record{Key: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Value: "by date"},
	)
	beforeDocs := objectstoretest.Dump(t, db, "docs")
	beforeValues := objectstoretest.Dump(t, db, "values")

	artifact, err := exporter.New(d).Export(ctx, "app")
	require.NoError(t, err)

	objectstoretest.Clear(t, db, "docs")
	objectstoretest.Clear(t, db, "values")
	require.NoError(t, importer.New(d).Import(ctx, artifact))

	afterDocs := objectstoretest.Dump(t, db, "docs")
	afterValues := objectstoretest.Dump(t, db, "values")
	require.Len(t, afterDocs, 1)
	require.Len(t, afterValues, len(beforeValues))

	// Blobs are compared by the content
	beforeDoc := beforeDocs[0].Value.(map[string]any)
	afterDoc := afterDocs[0].Value.(map[string]any)
	for _, field := range []string{"body", "empty"} {
		equal, err := blob.Equal(ctx, beforeDoc[field].(*blob.Blob), afterDoc[field].(*blob.Blob))
		require.NoError(t, err)
		assert.True(t, equal, field)
		delete(beforeDoc, field)
		delete(afterDoc, field)
	}
	assert.Equal(t, beforeDocs, afterDocs)
	assert.Equal(t, "doc-1", afterDocs[0].Key)

	// Regexp is compared by the pattern
	values := make(map[string]any)
	for _, r := range afterValues {
		if k, ok := r.Key.(string); ok {
			values[k] = r.Value
		}
	}
	assert.True(t, math.Signbit(values["negativeZero"].(float64)))
	assert.False(t, math.Signbit(values["zero"].(float64)))
	assert.Equal(t, math.Inf(1), values["inf"])
	assert.Equal(t, math.Inf(-1), values["-inf"])
	assert.Equal(t, []byte{0, 1, 2, 255}, values["bytes"])
	assert.Equal(t, []float32{1.5, -2}, values["floats"])
	assert.Equal(t, `^[a-z]+\d*$`, values["pattern"].(*regexp.Regexp).String())

	// Keys of all types
	var keys []any
	for _, r := range afterValues {
		keys = append(keys, r.Key)
	}
	var expectedKeys []any
	for _, r := range beforeValues {
		expectedKeys = append(expectedKeys, r.Key)
	}
	assert.Equal(t, expectedKeys, keys)
}

func TestImporter_LargeVolume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	db := objectstoretest.CreateDatabase(t, d.ObjectStore(), "app", objectstore.StoreInfo{Name: "items", KeyPath: "id"})
	var records []objectstoretest.Record
	for i := range 1000 {
		records = append(records, objectstoretest.Record{Value: map[string]any{"id": i, "name": fmt.Sprintf("item %04d", i)}})
	}
	objectstoretest.Put(t, db, "items", records...)

	exportCalls := 0
	artifact, err := exporter.New(d).Export(ctx, "app", exporter.WithOnProgress(func(model.ProgressEvent) {
		exportCalls++
	}))
	require.NoError(t, err)
	assert.Equal(t, 1000, exportCalls)

	objectstoretest.Clear(t, db, "items")

	var last model.Progress
	importCalls := 0
	require.NoError(t, importer.New(d).Import(ctx, artifact, importer.WithReadBufferSize(1024), importer.WithOnProgress(func(event model.ProgressEvent) {
		importCalls++
		assert.Equal(t, last.Current+1, event.Progress.Current)
		assert.LessOrEqual(t, event.Progress.Current, event.Progress.Total)
		last = event.Progress
	})))
	assert.Equal(t, 1000, importCalls)

	count, err := objectstore.Count(ctx, db, "items")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), count)
}

func TestImporter_Cancel(t *testing.T) {
	t.Parallel()
	d := dependencies.NewMocked(t)

	db := objectstoretest.CreateDatabase(t, d.ObjectStore(), "app", objectstore.StoreInfo{Name: "logs"})
	artifact := blob.FromString(blob.TextMediaType, strings.TrimLeft(`
{"name":"app","stores":[{"count":3,"name":"logs"}],"version":1}
{"key":1,"storeName":"logs","value":"first"}
{"key":2,"storeName":"logs","value":"second"}
{"key":3,"storeName":"logs","value":"third"}
`, "\n"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	err := importer.New(d).Import(ctx, artifact, importer.WithOnProgress(func(model.ProgressEvent) {
		calls++
		cancel()
	}))
	require.Error(t, err)
	assert.Equal(t, svcerrors.CodeAborted, svcerrors.Code(err))
	assert.Equal(t, 1, calls)

	// The import is not atomic, the first record stays
	assert.Equal(t, []objectstoretest.Record{{Key: float64(1), Value: "first"}}, objectstoretest.Dump(t, db, "logs"))
}

func TestImporter_EmptyDatabase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	artifact := blob.FromString(blob.TextMediaType, strings.TrimLeft(`
{"name":"fresh","stores":[{"count":1,"name":"users"}],"version":1}
{"key":1,"storeName":"users","value":"John"}
`, "\n"))

	err := importer.New(d).Import(ctx, artifact)
	require.Error(t, err)
	assert.Equal(t, svcerrors.CodeEmptyDB, svcerrors.Code(err))
}

func TestImporter_CreateStores(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	artifact := blob.FromString(blob.TextMediaType, strings.TrimLeft(`
{"name":"fresh","stores":[{"count":1,"name":"users"},{"count":0,"name":"empty"}],"version":3}
{"key":1,"storeName":"users","value":"John"}
`, "\n"))

	require.NoError(t, importer.New(d).Import(ctx, artifact, importer.WithCreateStores()))

	db, err := d.ObjectStore().Open(ctx, "fresh", 0, nil)
	require.NoError(t, err)
	defer db.Close(ctx)
	assert.Equal(t, int64(3), db.Version())
	assert.Equal(t, []string{"empty", "users"}, db.StoreNames())
	assert.Equal(t, []objectstoretest.Record{{Key: float64(1), Value: "John"}}, objectstoretest.Dump(t, db, "users"))
}

func TestImporter_StoreNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	db := objectstoretest.CreateDatabase(t, d.ObjectStore(), "app", objectstore.StoreInfo{Name: "users"})
	artifact := blob.FromString(blob.TextMediaType, strings.TrimLeft(`
{"name":"app","stores":[{"count":1,"name":"users"},{"count":1,"name":"orders"}],"version":1}
{"key":1,"storeName":"users","value":"John"}
{"key":1,"storeName":"orders","value":"order"}
`, "\n"))

	err := importer.New(d).Import(ctx, artifact)
	require.Error(t, err)
	assert.Equal(t, svcerrors.CodeStoreNotFound, svcerrors.Code(err))
	assert.Equal(t, `store "orders" not found in database "app"`, err.Error())

	// Records before the failure stay
	assert.Len(t, objectstoretest.Dump(t, db, "users"), 1)
}

func TestImporter_BlankLines(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	db := objectstoretest.CreateDatabase(t, d.ObjectStore(), "app", objectstore.StoreInfo{Name: "users"})
	artifact := blob.FromString(blob.TextMediaType, "\n  \n"+
		`{"name":"app","stores":[{"count":2,"name":"users"}],"version":1}`+"\r\n\r\n"+
		`{"key":1,"storeName":"users","value":"John"}`+"\n \t\n"+
		`{"key":2,"storeName":"users","value":"Jane"}`)

	require.NoError(t, importer.New(d).Import(ctx, artifact))
	assert.Len(t, objectstoretest.Dump(t, db, "users"), 2)
}

func TestImporter_DataError(t *testing.T) {
	t.Parallel()

	meta := `{"name":"app","stores":[{"count":1,"name":"users"}],"version":1}`
	cases := []struct {
		name     string
		artifact string
		line     int
		message  string
	}{
		{name: "empty", artifact: "", message: "invalid data: the artifact is empty, the metadata line is missing"},
		{name: "blank lines only", artifact: "\n \n\n", message: "invalid data: the artifact is empty, the metadata line is missing"},
		{name: "invalid meta JSON", artifact: "{foo\n", line: 1},
		{name: "invalid meta", artifact: `{"name":"app","stores":[],"version":0}`, line: 1},
		{name: "meta not an object", artifact: `[1,2,3]`, line: 1},
		{name: "invalid item JSON", artifact: meta + "\n\n{\"key\":1,", line: 3},
		{name: "missing value", artifact: meta + "\n" + `{"key":1,"storeName":"users"}`, line: 2},
		{name: "unknown extended type", artifact: meta + "\n" + `{"key":1,"storeName":"users","value":{"$Foo":1}}`, line: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := dependencies.NewMocked(t)
			objectstoretest.CreateDatabase(t, d.ObjectStore(), "app", objectstore.StoreInfo{Name: "users"})

			err := importer.New(d).Import(context.Background(), blob.FromString(blob.TextMediaType, tc.artifact))
			require.Error(t, err)
			assert.Equal(t, svcerrors.CodeDataError, svcerrors.Code(err), err.Error())

			var dataErr svcerrors.DataError
			require.ErrorAs(t, err, &dataErr)
			assert.Equal(t, tc.line, dataErr.Line())
			if tc.message != "" {
				assert.Equal(t, tc.message, err.Error())
			} else {
				assert.True(t, strings.HasPrefix(err.Error(), fmt.Sprintf("invalid data at line %d: ", tc.line)), err.Error())
			}
		})
	}
}
