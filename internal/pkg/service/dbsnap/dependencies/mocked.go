package dependencies

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/objectstore/memdb"
	"github.com/keboola/dbsnap/internal/pkg/service/common/servicectx"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/codec"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/config"
	"github.com/keboola/dbsnap/internal/pkg/telemetry"
)

// Mocked dependencies for tests, the object store is in memory.
type Mocked interface {
	ServiceScope
	DebugLogger() log.DebugLogger
	TestTelemetry() telemetry.ForTest
	TestClock() *clockwork.FakeClock
}

// mocked dependencies container implements Mocked interface.
type mocked struct {
	*serviceScope
	config *MockedConfig
}

type MockedConfig struct {
	clock       *clockwork.FakeClock
	telemetry   telemetry.ForTest
	debugLogger log.DebugLogger
	fs          afero.Fs
	objectStore objectstore.Provider
	codecOpts   []codec.Option
	modifyCfg   []func(cfg *config.Config)
}

type MockedOption func(c *MockedConfig)

func WithClock(v *clockwork.FakeClock) MockedOption {
	return func(c *MockedConfig) {
		c.clock = v
	}
}

func WithDebugLogger(v log.DebugLogger) MockedOption {
	return func(c *MockedConfig) {
		c.debugLogger = v
	}
}

func WithTelemetry(v telemetry.ForTest) MockedOption {
	return func(c *MockedConfig) {
		c.telemetry = v
	}
}

func WithFs(v afero.Fs) MockedOption {
	return func(c *MockedConfig) {
		c.fs = v
	}
}

// WithObjectStore replaces the default in-memory provider.
func WithObjectStore(v objectstore.Provider) MockedOption {
	return func(c *MockedConfig) {
		c.objectStore = v
	}
}

func WithCodecOptions(opts ...codec.Option) MockedOption {
	return func(c *MockedConfig) {
		c.codecOpts = append(c.codecOpts, opts...)
	}
}

func WithConfig(fn func(cfg *config.Config)) MockedOption {
	return func(c *MockedConfig) {
		c.modifyCfg = append(c.modifyCfg, fn)
	}
}

func NewMocked(t *testing.T, opts ...MockedOption) Mocked {
	t.Helper()

	cfg := &MockedConfig{
		clock:       clockwork.NewFakeClockAt(time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)),
		telemetry:   telemetry.NewForTest(t),
		debugLogger: log.NewDebugLogger(),
		fs:          afero.NewMemMapFs(),
	}
	for _, o := range opts {
		o(cfg)
	}

	appCfg := config.New()
	appCfg.Backend = config.BackendMemory
	for _, fn := range cfg.modifyCfg {
		fn(&appCfg)
	}

	d := &serviceScope{
		logger:    cfg.debugLogger,
		telemetry: cfg.telemetry,
		clock:     cfg.clock,
		fs:        cfg.fs,
		process:   servicectx.NewForTest(t),
		config:    appCfg,
		codec:     codec.New(cfg.codecOpts...),
	}

	d.objectStore = cfg.objectStore
	if d.objectStore == nil {
		d.objectStore = memdb.New(d.codec)
	}

	t.Cleanup(func() {
		_ = d.objectStore.Close(context.Background())
	})

	return &mocked{serviceScope: d, config: cfg}
}

func (v *mocked) DebugLogger() log.DebugLogger {
	return v.config.debugLogger
}

func (v *mocked) TestTelemetry() telemetry.ForTest {
	return v.config.telemetry
}

func (v *mocked) TestClock() *clockwork.FakeClock {
	return v.config.clock
}
