// Package importer restores records from an artifact created by the exporter.
//
// The artifact is read line by line, each record is written in its own write transaction.
// The import is not atomic: on failure or cancellation, already written records stay in the database.
package importer

import (
	"context"
	"slices"

	"github.com/c2h5oh/datasize"
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

type Importer struct {
	logger    log.Logger
	telemetry telemetry.Telemetry
	clock     clockwork.Clock
	codec     *codec.Codec
	provider  objectstore.Provider
	records   metric.Int64Counter
}

type config struct {
	onProgress     model.ProgressFunc
	readBufferSize datasize.ByteSize
	createStores   bool
}

type Option func(c *config)

// WithOnProgress sets a callback invoked after each record is written.
func WithOnProgress(fn model.ProgressFunc) Option {
	return func(c *config) {
		c.onProgress = fn
	}
}

func WithReadBufferSize(v datasize.ByteSize) Option {
	return func(c *config) {
		c.readBufferSize = v
	}
}

// WithCreateStores creates stores listed in the metadata, if the target database does not exist yet.
// The stores are created without a key path, keys are taken from the artifact.
// Without the option, the target database must be initialized before the import.
func WithCreateStores() Option {
	return func(c *config) {
		c.createStores = true
	}
}

func New(d dependencies) *Importer {
	return &Importer{
		logger:    d.Logger().WithComponent("importer"),
		telemetry: d.Telemetry(),
		clock:     d.Clock(),
		codec:     d.Codec(),
		provider:  d.ObjectStore(),
		records:   d.Telemetry().Meter().Counter("dbsnap.import.records", "Number of imported records.", ""),
	}
}

// Import writes all records from the artifact to the database named in the artifact metadata.
// Whitespace-only lines are skipped.
func (i *Importer) Import(ctx context.Context, artifact *blob.Blob, opts ...Option) (err error) {
	cfg := config{readBufferSize: stream.DefaultReadBufferSize}
	for _, o := range opts {
		o(&cfg)
	}

	ctx = ctxattr.ContextWith(ctx, attribute.String("operation.id", idgenerator.OperationId()))
	ctx, span := i.telemetry.Tracer().Start(ctx, "dbsnap.import")
	defer span.End(&err)

	defer func() {
		err = abortedOnCancel(ctx, err)
	}()

	startTime := i.clock.Now()

	r, err := NewReader(ctx, i.codec, artifact, cfg.readBufferSize)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := r.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	meta := r.Meta()
	ctx = ctxattr.ContextWith(ctx, attribute.String("db.name", meta.Name))
	span.SetAttributes(attribute.String("db.name", meta.Name), attribute.Int64("dbsnap.import.total", meta.Total()))
	i.logger.Infof(ctx, `Importing %d records to database "<db.name>".`, meta.Total())

	db, err := i.open(ctx, meta, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if len(db.StoreNames()) == 0 {
		return errors.WithStack(svcerrors.NewEmptyDatabaseError(meta.Name))
	}

	// Records
	progress := model.Progress{Total: meta.Total()}
	for r.Next() {
		if err := i.put(ctx, db, r.Item()); err != nil {
			return err
		}

		progress.Current++
		i.records.Add(ctx, 1)
		if cfg.onProgress != nil {
			cfg.onProgress(model.ProgressEvent{Meta: meta, Progress: progress})
		}

		if ctx.Err() != nil {
			return errors.WithStack(svcerrors.NewAbortedError(ctx))
		}
	}
	if err := r.Err(); err != nil {
		return err
	}

	i.logger.WithDuration(i.clock.Since(startTime)).Infof(ctx, `Imported %d records to database "<db.name>".`, progress.Current)
	return nil
}

func (i *Importer) open(ctx context.Context, meta model.ExportMeta, cfg config) (objectstore.DB, error) {
	var upgrade objectstore.UpgradeFunc
	if cfg.createStores {
		upgrade = func(ctx context.Context, schema objectstore.Schema, oldVersion, newVersion int64) error {
			existing := schema.StoreNames()
			for _, store := range meta.Stores {
				if slices.Contains(existing, store.Name) {
					continue
				}
				if err := schema.CreateStore(objectstore.StoreInfo{Name: store.Name}); err != nil {
					return err
				}
				i.logger.Debugf(ctx, `Created store "%s".`, store.Name)
			}
			return nil
		}
	}
	return i.provider.Open(ctx, meta.Name, meta.Version, upgrade)
}

func (i *Importer) put(ctx context.Context, db objectstore.DB, item model.ExportItem) error {
	info, found := db.Store(item.StoreName)
	if !found {
		return objectstore.StoreNotFound(db.Name(), item.StoreName)
	}

	// Key-path stores derive the key from the value
	key := item.Key
	if info.HasKeyPath() {
		key = nil
	}

	return db.Update(ctx, item.StoreName, func(tx objectstore.WriteTx) error {
		_, err := tx.Put(ctx, item.Value, key)
		return err
	})
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
