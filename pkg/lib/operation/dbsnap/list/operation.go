// Package list contains the implementation of the "dbsnap list" command.
package list

import (
	"context"

	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/model"
	"github.com/keboola/dbsnap/internal/pkg/telemetry"
)

type dependencies interface {
	Logger() log.Logger
	Telemetry() telemetry.Telemetry
	ObjectStore() objectstore.Provider
}

// Database is the same structure as the export metadata, store counts are current.
type Database = model.ExportMeta

func Run(ctx context.Context, d dependencies) (out []Database, err error) {
	ctx, span := d.Telemetry().Tracer().Start(ctx, "dbsnap.lib.operation.list")
	defer span.End(&err)

	databases, err := d.ObjectStore().Databases(ctx)
	if err != nil {
		return nil, err
	}

	logger := d.Logger()
	if len(databases) == 0 {
		logger.Info(ctx, "No database found.")
		return nil, nil
	}

	for _, info := range databases {
		db, err := count(ctx, d.ObjectStore(), info)
		if err != nil {
			return nil, err
		}
		out = append(out, db)

		logger.Infof(ctx, `Database "%s", version %d:`, db.Name, db.Version)
		if len(db.Stores) == 0 {
			logger.Info(ctx, "  no store")
		}
		for _, s := range db.Stores {
			logger.Infof(ctx, `  store "%s": %d records`, s.Name, s.Count)
		}
	}

	return out, nil
}

func count(ctx context.Context, provider objectstore.Provider, info objectstore.DatabaseInfo) (out Database, err error) {
	db, err := provider.Open(ctx, info.Name, info.Version, nil)
	if err != nil {
		return Database{}, err
	}
	defer func() {
		if closeErr := db.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	out = Database{Name: info.Name, Version: info.Version}
	for _, store := range info.Stores {
		n, err := objectstore.Count(ctx, db, store.Name)
		if err != nil {
			return Database{}, err
		}
		out.Stores = append(out.Stores, model.StoreMeta{Name: store.Name, Count: n})
	}
	return out, nil
}
