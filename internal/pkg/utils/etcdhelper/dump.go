package etcdhelper

import (
	"context"

	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// DumpAllKeys returns all keys in the client namespace, sorted.
func DumpAllKeys(ctx context.Context, client etcd.KV) ([]string, error) {
	resp, err := client.Get(ctx, "", etcd.WithFromKey(), etcd.WithKeysOnly(), etcd.WithSort(etcd.SortByKey, etcd.SortAscend))
	if err != nil {
		return nil, errors.Errorf("cannot dump etcd keys: %w", err)
	}
	out := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, string(kv.Key))
	}
	return out, nil
}
