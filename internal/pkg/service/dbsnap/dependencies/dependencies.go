// Package dependencies provides dependencies for the dbsnap CLI and its operations.
//
// # Dependency Containers
//
// The ServiceScope is created once per CLI command, it opens the configured object store backend.
// Operations in "pkg/lib/operation/dbsnap" declare a private dependencies interface,
// the ServiceScope, or the Mocked scope in tests, satisfies it.
package dependencies

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/objectstore/etcddb"
	"github.com/keboola/dbsnap/internal/pkg/objectstore/memdb"
	"github.com/keboola/dbsnap/internal/pkg/objectstore/sqlitedb"
	"github.com/keboola/dbsnap/internal/pkg/service/common/etcdclient"
	"github.com/keboola/dbsnap/internal/pkg/service/common/servicectx"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/codec"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/config"
	"github.com/keboola/dbsnap/internal/pkg/telemetry"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

type ServiceScope interface {
	Logger() log.Logger
	Telemetry() telemetry.Telemetry
	Clock() clockwork.Clock
	Fs() afero.Fs
	Process() *servicectx.Process
	Config() config.Config
	Codec() *codec.Codec
	ObjectStore() objectstore.Provider
}

// serviceScope implements ServiceScope interface.
type serviceScope struct {
	logger      log.Logger
	telemetry   telemetry.Telemetry
	clock       clockwork.Clock
	fs          afero.Fs
	process     *servicectx.Process
	config      config.Config
	codec       *codec.Codec
	objectStore objectstore.Provider
}

func NewServiceScope(
	ctx context.Context,
	cfg config.Config,
	proc *servicectx.Process,
	logger log.Logger,
	tel telemetry.Telemetry,
	fs afero.Fs,
	clock clockwork.Clock,
) (v ServiceScope, err error) {
	ctx, span := tel.Tracer().Start(ctx, "dbsnap.dependencies.NewServiceScope")
	defer span.End(&err)

	d := &serviceScope{
		logger:    logger,
		telemetry: tel,
		clock:     clock,
		fs:        fs,
		process:   proc,
		config:    cfg,
		codec:     codec.New(),
	}

	d.objectStore, err = newObjectStore(ctx, d)
	if err != nil {
		return nil, err
	}

	proc.OnShutdown(func(ctx context.Context) {
		if err := d.objectStore.Close(ctx); err != nil {
			logger.Errorf(ctx, `cannot close object store: %s`, err)
		}
	})

	return d, nil
}

func newObjectStore(ctx context.Context, d *serviceScope) (objectstore.Provider, error) {
	logger := d.logger.WithComponent("objectstore")
	switch d.config.Backend {
	case config.BackendMemory:
		return memdb.New(d.codec), nil
	case config.BackendSQLite:
		return sqlitedb.Open(ctx, d.config.SQLite.Path, d.codec, logger)
	case config.BackendEtcd:
		client, err := etcdclient.New(ctx, d.process, d.telemetry, d.logger, d.config.Etcd)
		if err != nil {
			return nil, err
		}
		return etcddb.New(client, d.codec, logger), nil
	default:
		return nil, errors.Errorf(`unexpected backend "%s"`, d.config.Backend)
	}
}

func (v *serviceScope) Logger() log.Logger {
	return v.logger
}

func (v *serviceScope) Telemetry() telemetry.Telemetry {
	return v.telemetry
}

func (v *serviceScope) Clock() clockwork.Clock {
	return v.clock
}

func (v *serviceScope) Fs() afero.Fs {
	return v.fs
}

func (v *serviceScope) Process() *servicectx.Process {
	return v.process
}

func (v *serviceScope) Config() config.Config {
	return v.config
}

func (v *serviceScope) Codec() *codec.Codec {
	return v.codec
}

func (v *serviceScope) ObjectStore() objectstore.Provider {
	return v.objectStore
}
