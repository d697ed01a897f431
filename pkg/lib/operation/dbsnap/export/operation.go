// Package export contains the implementation of the "dbsnap export" command.
package export

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/codec"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/exporter"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/model"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/stream"
	"github.com/keboola/dbsnap/internal/pkg/telemetry"
)

// FileExtension of the export artifact.
const FileExtension = ".idb"

type dependencies interface {
	Logger() log.Logger
	Telemetry() telemetry.Telemetry
	Clock() clockwork.Clock
	Fs() afero.Fs
	Codec() *codec.Codec
	ObjectStore() objectstore.Provider
}

type Options struct {
	Database string
	// Output is the artifact path, "<database>.idb" by default.
	Output          string
	Stores          []string
	BatchSize       int
	ChannelCapacity int
	OnProgress      model.ProgressFunc
}

type Result struct {
	Path  string
	Bytes int64
}

func (o Options) OutputPath() string {
	if o.Output != "" {
		return o.Output
	}
	return o.Database + FileExtension
}

func Run(ctx context.Context, o Options, d dependencies) (result Result, err error) {
	ctx, span := d.Telemetry().Tracer().Start(ctx, "dbsnap.lib.operation.export")
	defer span.End(&err)

	path := o.OutputPath()

	opts := []exporter.Option{
		exporter.WithSink(stream.WithCapacity(o.ChannelCapacity), stream.WithFileSpool(d.Fs(), path)),
	}
	if o.BatchSize > 0 {
		opts = append(opts, exporter.WithBatchSize(o.BatchSize))
	}
	if len(o.Stores) > 0 {
		opts = append(opts, exporter.WithStores(o.Stores...))
	}
	if o.OnProgress != nil {
		opts = append(opts, exporter.WithOnProgress(o.OnProgress))
	}

	artifact, err := exporter.New(d).Export(ctx, o.Database, opts...)
	if err != nil {
		// The temporary file is already removed, an existing file at the path is untouched
		return Result{}, err
	}

	d.Logger().Infof(ctx, `Database "%s" exported to "%s".`, o.Database, path)
	return Result{Path: path, Bytes: artifact.Size()}, nil
}
