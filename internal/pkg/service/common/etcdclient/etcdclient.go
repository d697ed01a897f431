package etcdclient

import (
	"context"
	"strings"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	etcdNamespace "go.etcd.io/etcd/client/v3/namespace"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"         //nolint: depguard
	"go.uber.org/zap/zapcore" //nolint: depguard
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"

	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/service/common/servicectx"
	"github.com/keboola/dbsnap/internal/pkg/telemetry"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// UseNamespace prefixes all KV operations of the client.
func UseNamespace(c *etcd.Client, prefix string) {
	c.KV = etcdNamespace.NewKV(c.KV, prefix)
	c.Lease = etcdNamespace.NewLease(c.Lease, prefix)
}

// New creates new etcd client.
// The client is closed on the process shutdown, if the proc is not nil.
func New(ctx context.Context, proc *servicectx.Process, tel telemetry.Telemetry, logger log.Logger, cfg Config) (c *etcd.Client, err error) {
	ctx, span := tel.Tracer().Start(ctx, "dbsnap.etcd.connect")
	defer span.End(&err)

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger = logger.WithComponent("etcd.client")

	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer connectCancel()

	startTime := time.Now()
	logger.Infof(ctx, "Connecting to etcd, connectTimeout=%s, keepAliveTimeout=%s, keepAliveInterval=%s.", cfg.ConnectTimeout, cfg.KeepAliveTimeout, cfg.KeepAliveInterval)
	c, err = etcd.New(etcd.Config{
		Context:              context.Background(), // the client lives as long as the process
		Endpoints:            []string{cfg.Endpoint},
		DialTimeout:          cfg.ConnectTimeout,
		DialKeepAliveTimeout: cfg.KeepAliveTimeout,
		DialKeepAliveTime:    cfg.KeepAliveInterval,
		Username:             cfg.Username, // optional
		Password:             cfg.Password, // optional
		Logger:               zapLogger(logger),
		PermitWithoutStream:  true,
		DialOptions: []grpc.DialOption{
			grpc.WithChainUnaryInterceptor(otelgrpc.UnaryClientInterceptor(otelgrpc.WithTracerProvider(tel.TracerProvider()), otelgrpc.WithMeterProvider(tel.MeterProvider()))),
			grpc.WithChainStreamInterceptor(otelgrpc.StreamClientInterceptor(otelgrpc.WithTracerProvider(tel.TracerProvider()), otelgrpc.WithMeterProvider(tel.MeterProvider()))),
			grpc.WithBlock(), // wait for the connection
			grpc.WithReturnConnectionError(),
			grpc.WithConnectParams(grpc.ConnectParams{
				Backoff: backoff.Config{
					BaseDelay:  100 * time.Millisecond,
					Multiplier: 1.5,
					Jitter:     0.2,
					MaxDelay:   15 * time.Second,
				},
			}),
		},
	})
	if err != nil {
		return nil, errors.Errorf("cannot create etcd client: cannot connect: %w", err)
	}

	UseNamespace(c, cfg.Namespace)

	// Connection check
	if _, err := c.MemberList(connectCtx); err != nil {
		_ = c.Close()
		return nil, errors.Errorf("cannot create etcd client: cannot get cluster members: %w", err)
	}

	if proc != nil {
		proc.OnShutdown(func(ctx context.Context) {
			logger.Info(ctx, "Closing etcd connection.")
			if err := c.Close(); err != nil {
				logger.Warnf(ctx, "Cannot close etcd connection: %s", err)
			}
		})
	}

	logger.Infof(ctx, `Connected to etcd cluster "%s" | %s`, strings.Join(c.Endpoints(), ";"), time.Since(startTime))
	return c, nil
}

// zapLogger forwards warnings and errors of the etcd client to the logger core, debug noise is skipped.
func zapLogger(logger log.Logger) *zap.Logger {
	withCore, ok := logger.(log.LoggerWithZapCore)
	if !ok {
		return zap.NewNop()
	}
	core, err := zapcore.NewIncreaseLevelCore(withCore.ZapCore(), zapcore.WarnLevel)
	if err != nil {
		return zap.NewNop()
	}
	return zap.New(core).With(zap.String("component", "etcd.client"))
}
