package etcdhelper

import (
	"context"
	"fmt"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"

	"github.com/keboola/dbsnap/internal/pkg/env"
	"github.com/keboola/dbsnap/internal/pkg/idgenerator"
)

type testOrBenchmark interface {
	Cleanup(f func())
	Skipf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// ClientForTest returns a client with a unique namespace, the namespace is deleted after the test.
// The test is skipped if the UNIT_ETCD_ENDPOINT ENV is not set.
func ClientForTest(t testOrBenchmark) *etcd.Client {
	ctx := context.Background()
	envs, err := env.FromOs()
	if err != nil {
		t.Fatalf("cannot get envs: %s", err)
	}

	if envs.Get("UNIT_ETCD_ENABLED") == "false" {
		t.Skipf("etcd test is disabled by UNIT_ETCD_ENABLED=false")
	}

	endpoint := envs.Get("UNIT_ETCD_ENDPOINT")
	if endpoint == "" {
		t.Skipf(`etcd test is skipped, UNIT_ETCD_ENDPOINT is not set`)
	}

	etcdClient, err := etcd.New(etcd.Config{
		Context:              ctx,
		Endpoints:            []string{endpoint},
		DialTimeout:          2 * time.Second,
		DialKeepAliveTimeout: 2 * time.Second,
		DialKeepAliveTime:    10 * time.Second,
		Username:             envs.Get("UNIT_ETCD_USERNAME"), // optional
		Password:             envs.Get("UNIT_ETCD_PASSWORD"), // optional
		DialOptions: []grpc.DialOption{
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
		t.Fatalf("cannot create etcd client: %s", err)
	}

	// Not namespaced client for the cleanup
	originalKV := etcdClient.KV
	prefix := fmt.Sprintf("unit-%s/", idgenerator.EtcdNamespaceForTest())
	etcdClient.KV = namespace.NewKV(etcdClient.KV, prefix)
	etcdClient.Lease = namespace.NewLease(etcdClient.Lease, prefix)

	t.Cleanup(func() {
		if _, err := originalKV.Delete(ctx, prefix, etcd.WithPrefix()); err != nil {
			t.Fatalf(`cannot clear etcd namespace "%s" after test: %s`, prefix, err)
		}
		_ = etcdClient.Close()
	})

	return etcdClient
}
