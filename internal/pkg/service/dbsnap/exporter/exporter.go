// Package exporter streams all records of a database to one line-delimited artifact.
//
// The first line is the export metadata: the database name, version and record count of each store.
// Each following line is one record, stores are exported in the metadata order.
// Records are read in small batches, so the whole database is never loaded into memory.
package exporter

import (
	"context"
	"slices"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/keboola/dbsnap/internal/pkg/ctxattr"
	"github.com/keboola/dbsnap/internal/pkg/idgenerator"
	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	svcerrors "github.com/keboola/dbsnap/internal/pkg/service/common/errors"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/blob"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/codec"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/model"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/storereader"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/stream"
	"github.com/keboola/dbsnap/internal/pkg/telemetry"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

type dependencies interface {
	Logger() log.Logger
	Telemetry() telemetry.Telemetry
	Clock() clockwork.Clock
	Codec() *codec.Codec
	ObjectStore() objectstore.Provider
}

type Exporter struct {
	logger    log.Logger
	telemetry telemetry.Telemetry
	clock     clockwork.Clock
	codec     *codec.Codec
	provider  objectstore.Provider
	records   metric.Int64Counter
}

type config struct {
	batchSize  int
	stores     []string
	onProgress model.ProgressFunc
	sinkOpts   []stream.Option
}

type Option func(c *config)

// WithBatchSize sets the number of records read in one read transaction.
func WithBatchSize(n int) Option {
	return func(c *config) {
		c.batchSize = n
	}
}

// WithStores limits the export to the stores, in the specified order.
// By default, all stores are exported in ascending name order.
func WithStores(stores ...string) Option {
	return func(c *config) {
		c.stores = append(c.stores, stores...)
	}
}

// WithOnProgress sets a callback invoked after each record is written.
func WithOnProgress(fn model.ProgressFunc) Option {
	return func(c *config) {
		c.onProgress = fn
	}
}

// WithSink configures the output, for example its capacity or a file spool.
func WithSink(opts ...stream.Option) Option {
	return func(c *config) {
		c.sinkOpts = append(c.sinkOpts, opts...)
	}
}

func New(d dependencies) *Exporter {
	return &Exporter{
		logger:    d.Logger().WithComponent("exporter"),
		telemetry: d.Telemetry(),
		clock:     d.Clock(),
		codec:     d.Codec(),
		provider:  d.ObjectStore(),
		records:   d.Telemetry().Meter().Counter("dbsnap.export.records", "Number of exported records.", ""),
	}
}

// Export writes the database to a text artifact.
//
// The source database is only read, its version is not changed.
// Store counts are captured before the records are streamed,
// so concurrent writes to the source may cause the progress to differ from the total.
func (e *Exporter) Export(ctx context.Context, name string, opts ...Option) (result *blob.Blob, err error) {
	cfg := config{batchSize: storereader.DefaultBatchSize}
	for _, o := range opts {
		o(&cfg)
	}

	ctx = ctxattr.ContextWith(ctx, attribute.String("db.name", name), attribute.String("operation.id", idgenerator.OperationId()))
	ctx, span := e.telemetry.Tracer().Start(ctx, "dbsnap.export")
	defer span.End(&err)

	defer func() {
		err = abortedOnCancel(ctx, err)
	}()

	startTime := e.clock.Now()
	e.logger.Info(ctx, `Exporting database "<db.name>".`)

	if err := e.checkExists(ctx, name); err != nil {
		return nil, err
	}

	db, err := e.provider.Open(ctx, name, 0, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := db.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	meta, err := e.meta(ctx, db, cfg)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("dbsnap.export.total", meta.Total()))

	w, err := stream.NewTextWriter(append([]stream.Option{stream.WithLogger(e.logger)}, cfg.sinkOpts...)...)
	if err != nil {
		return nil, err
	}

	if err := e.write(ctx, db, meta, w, cfg); err != nil {
		w.Abort(err)
		return nil, err
	}

	if err := w.Close(ctx); err != nil {
		w.Abort(err)
		return nil, err
	}

	result, err = w.Result(ctx)
	if err != nil {
		return nil, err
	}

	e.logger.WithDuration(e.clock.Since(startTime)).Infof(ctx, `Exported %d records from database "<db.name>".`, meta.Total())
	return result, nil
}

// checkExists prevents the creation of an empty database by the Open call.
func (e *Exporter) checkExists(ctx context.Context, name string) error {
	databases, err := e.provider.Databases(ctx)
	if err != nil {
		return err
	}
	for _, info := range databases {
		if info.Name == name {
			return nil
		}
	}
	return errors.WithStack(objectstore.DatabaseNotFoundError{Database: name})
}

func (e *Exporter) meta(ctx context.Context, db objectstore.DB, cfg config) (model.ExportMeta, error) {
	stores := cfg.stores
	if len(stores) == 0 {
		stores = db.StoreNames()
	}

	meta := model.ExportMeta{Name: db.Name(), Version: db.Version()}
	for _, store := range stores {
		if slices.ContainsFunc(meta.Stores, func(s model.StoreMeta) bool { return s.Name == store }) {
			return model.ExportMeta{}, errors.Errorf(`store "%s" is specified twice`, store)
		}

		count, err := objectstore.Count(ctx, db, store)
		if err != nil {
			return model.ExportMeta{}, err
		}
		meta.Stores = append(meta.Stores, model.StoreMeta{Name: store, Count: count})
	}
	return meta, nil
}

func (e *Exporter) write(ctx context.Context, db objectstore.DB, meta model.ExportMeta, w *stream.TextWriter, cfg config) error {
	line, err := e.codec.EncodeString(ctx, meta.ToValue())
	if err != nil {
		return err
	}
	if err := w.WriteLine(ctx, line); err != nil {
		return err
	}

	progress := model.Progress{Total: meta.Total()}
	for _, store := range meta.Stores {
		storeCtx := ctxattr.ContextWith(ctx, attribute.String("db.store", store.Name))
		reader, err := storereader.New(storeCtx, db, store.Name, storereader.WithBatchSize(cfg.batchSize))
		if err != nil {
			return err
		}

		var exported int64
		err = reader.ForEach(func(entry storereader.Entry) error {
			item := model.ExportItem{StoreName: store.Name, Key: entry.Key, Value: entry.Value}
			line, err := e.codec.EncodeString(storeCtx, item.ToValue())
			if err != nil {
				return errors.PrefixErrorf(err, `cannot export record of the store "%s"`, store.Name)
			}
			if err := w.WriteLine(storeCtx, line); err != nil {
				return err
			}

			exported++
			progress.Current++
			e.records.Add(storeCtx, 1)
			if cfg.onProgress != nil {
				cfg.onProgress(model.ProgressEvent{Meta: meta, Progress: progress})
			}
			return nil
		})
		if err != nil {
			return err
		}

		e.logger.Debugf(storeCtx, `Exported store "<db.store>", %d records in %d batches.`, exported, reader.Batches())
	}

	return nil
}

// abortedOnCancel converts an error caused by the cancellation to the AbortedError.
func abortedOnCancel(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil {
		return err
	}
	if svcerrors.Code(err) == svcerrors.CodeAborted {
		return err
	}
	return errors.WithStack(svcerrors.NewAbortedError(ctx))
}
