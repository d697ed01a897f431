// Package config contains the configuration of the dbsnap CLI.
//
// Values are bound from flags, ENVs and config files by the configmap package.
package config

import (
	"strings"

	"github.com/c2h5oh/datasize"

	"github.com/keboola/dbsnap/internal/pkg/service/common/configmap"
	"github.com/keboola/dbsnap/internal/pkg/service/common/etcdclient"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/storereader"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/stream"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const (
	EnvPrefix = "DBSNAP_"

	MinReadBufferSize = 16 * datasize.B
	MaxReadBufferSize = 64 * datasize.MB

	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendEtcd   = "etcd"

	DefaultSQLitePath = "dbsnap.sqlite"
)

type Config struct {
	DebugLog  bool              `configKey:"debugLog" configUsage:"Enable debug log level."`
	LogFile   string            `configKey:"logFile" configUsage:"Path to a log file, all levels are written to it in JSON."`
	LogFormat string            `configKey:"logFormat" configUsage:"Log format: console or json." validate:"required,oneof=console json"`
	Backend   string            `configKey:"backend" configUsage:"Object store backend: memory, sqlite or etcd." validate:"required,oneof=memory sqlite etcd"`
	SQLite    SQLiteConfig      `configKey:"sqlite"`
	Etcd      etcdclient.Config `configKey:"etcd"`
	Export    ExportConfig      `configKey:"export"`
	Import    ImportConfig      `configKey:"import"`
}

type SQLiteConfig struct {
	Path string `configKey:"path" configUsage:"Path to the SQLite file with databases."`
}

type ExportConfig struct {
	BatchSize       int `configKey:"batchSize" configUsage:"Number of records read in one transaction." validate:"min=1,max=10000"`
	ChannelCapacity int `configKey:"channelCapacity" configUsage:"Number of buffered chunks between the exporter and the output." validate:"min=0,max=1000"`
}

type ImportConfig struct {
	ReadBufferSize datasize.ByteSize `configKey:"readBufferSize" configUsage:"Size of the artifact read buffer." validate:"required"`
}

func New() Config {
	return Config{
		LogFormat: "console",
		Backend:   BackendSQLite,
		SQLite: SQLiteConfig{
			Path: DefaultSQLitePath,
		},
		Etcd: etcdclient.NewConfig(),
		Export: ExportConfig{
			BatchSize: storereader.DefaultBatchSize,
		},
		Import: ImportConfig{
			ReadBufferSize: stream.DefaultReadBufferSize,
		},
	}
}

func (c *Config) Normalize() {
	c.LogFile = strings.TrimSpace(c.LogFile)
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.SQLite.Path = strings.TrimSpace(c.SQLite.Path)
	c.Etcd.Normalize()
}

// Validate checks rules which cannot be expressed by the "validate" tags.
func (c *Config) Validate() error {
	errs := errors.NewMultiError()
	if err := configmap.ValidateStruct(c); err != nil {
		errs.Append(err)
	}
	if size := c.Import.ReadBufferSize; size < MinReadBufferSize || size > MaxReadBufferSize {
		errs.Append(errors.Errorf(`"import.readBufferSize" must be between %s and %s, found %s`, MinReadBufferSize, MaxReadBufferSize, size))
	}
	switch c.Backend {
	case BackendSQLite:
		if c.SQLite.Path == "" {
			errs.Append(errors.New(`"sqlite.path" must be set for the sqlite backend`))
		}
	case BackendEtcd:
		if err := c.Etcd.Validate(); err != nil {
			errs.Append(err)
		}
	}
	return errs.ErrorOrNil()
}
