// Package dbimport contains the implementation of the "dbsnap import" command.
package dbimport

import (
	"context"

	"github.com/c2h5oh/datasize"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/blob"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/codec"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/importer"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/model"
	"github.com/keboola/dbsnap/internal/pkg/telemetry"
)

type dependencies interface {
	Logger() log.Logger
	Telemetry() telemetry.Telemetry
	Clock() clockwork.Clock
	Fs() afero.Fs
	Codec() *codec.Codec
	ObjectStore() objectstore.Provider
}

type Options struct {
	Input          string
	ReadBufferSize datasize.ByteSize
	// CreateStores initializes a missing target database from the artifact metadata.
	CreateStores bool
	OnProgress   model.ProgressFunc
}

func Run(ctx context.Context, o Options, d dependencies) (err error) {
	ctx, span := d.Telemetry().Tracer().Start(ctx, "dbsnap.lib.operation.import")
	defer span.End(&err)

	artifact, err := blob.FromFile(d.Fs(), o.Input, blob.TextMediaType)
	if err != nil {
		return err
	}

	var opts []importer.Option
	if o.ReadBufferSize > 0 {
		opts = append(opts, importer.WithReadBufferSize(o.ReadBufferSize))
	}
	if o.CreateStores {
		opts = append(opts, importer.WithCreateStores())
	}
	if o.OnProgress != nil {
		opts = append(opts, importer.WithOnProgress(o.OnProgress))
	}

	if err := importer.New(d).Import(ctx, artifact, opts...); err != nil {
		return err
	}

	d.Logger().Infof(ctx, `File "%s" imported.`, o.Input)
	return nil
}
