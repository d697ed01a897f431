// Package etcddb is an objectstore backend on top of etcd, usable as a store shared by more processes.
//
// Keys layout, relative to the client namespace:
//
//	database/<db>                  database metadata, JSON with the version and stores
//	entry/<db>/<store>/<key>       one entry, the key is the hex form of the order-preserving key encoding
//
// Database and store names are path-escaped, so a name cannot overlap another prefix.
// Schema changes are compare-and-swap transactions on the metadata key, retried on conflict.
package etcddb

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/dbsnap/internal/pkg/encoding/json"
	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/service/common/etcdop/iterator"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const (
	databasePrefix = "database/"
	entryPrefix    = "entry/"
	// maxTxnOps is the default "--max-txn-ops" limit of the etcd server.
	maxTxnOps = 128
	// pageSize of the cursor and the databases listing.
	pageSize = 100
)

// errConflict signals that the metadata has been modified by another client, the operation is retried.
var errConflict = errors.New("database metadata has been modified concurrently")

type Provider struct {
	client *etcd.Client
	codec  objectstore.ValueCodec
	logger log.Logger

	lock   sync.Mutex
	closed bool
}

// metadata is stored in the database key.
type metadata struct {
	Name    string                  `json:"name"`
	Version int64                   `json:"version"`
	Stores  []objectstore.StoreInfo `json:"stores"`
}

func New(client *etcd.Client, codec objectstore.ValueCodec, logger log.Logger) *Provider {
	return &Provider{client: client, codec: codec, logger: logger}
}

func (p *Provider) Open(ctx context.Context, name string, version int64, upgrade objectstore.UpgradeFunc) (objectstore.DB, error) {
	if p.isClosed() {
		return nil, objectstore.ErrClosed
	}

	var meta metadata
	op := func() error {
		var err error
		meta, err = p.open(ctx, name, version, upgrade)
		if errors.Is(err, errConflict) {
			p.logger.Debugf(ctx, `Database "%s" metadata conflict, retrying.`, name)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(newBackoff(), ctx)); err != nil {
		return nil, err
	}

	return newHandle(p, meta), nil
}

func (p *Provider) open(ctx context.Context, name string, version int64, upgrade objectstore.UpgradeFunc) (metadata, error) {
	metaKey := databaseKey(name)
	current, modRev, err := p.loadMetadata(ctx, metaKey)
	if err != nil {
		return metadata{}, err
	}

	newVersion, needsUpgrade, err := objectstore.ResolveVersion(name, current.Version, version)
	if err != nil {
		return metadata{}, err
	}

	if !needsUpgrade {
		return current, nil
	}

	s := newSchema(current.Stores)
	if upgrade != nil {
		if err := upgrade(ctx, s, current.Version, newVersion); err != nil {
			return metadata{}, err
		}
	}

	updated := metadata{Name: name, Version: newVersion, Stores: s.stores}
	encoded, err := json.Encode(updated, false)
	if err != nil {
		return metadata{}, err
	}

	ops := []etcd.Op{etcd.OpPut(metaKey, string(encoded))}
	for _, store := range s.deleted {
		ops = append(ops, etcd.OpDelete(storePrefix(name, store), etcd.WithPrefix()))
	}

	// ModRevision is 0 if the key does not exist
	r, err := p.client.Txn(ctx).
		If(etcd.Compare(etcd.ModRevision(metaKey), "=", modRev)).
		Then(ops...).
		Commit()
	if err != nil {
		return metadata{}, err
	}
	if !r.Succeeded {
		return metadata{}, errConflict
	}

	p.logger.Debugf(ctx, `Database "%s" upgraded from version %d to %d.`, name, current.Version, newVersion)
	return updated, nil
}

func (p *Provider) Databases(ctx context.Context) ([]objectstore.DatabaseInfo, error) {
	if p.isClosed() {
		return nil, objectstore.ErrClosed
	}

	var out []objectstore.DatabaseInfo
	err := iterator.New(databasePrefix, iterator.WithPageSize(pageSize)).Do(ctx, p.client.KV).ForEach(func(kv *iterator.KeyValue, _ *iterator.Header) error {
		var meta metadata
		if err := json.Decode(kv.Value, &meta); err != nil {
			return errors.PrefixErrorf(err, `invalid metadata "%s"`, string(kv.Key))
		}
		out = append(out, objectstore.DatabaseInfo{Name: meta.Name, Version: meta.Version, Stores: sortedStores(meta.Stores)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Escaped names can have a different order
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (p *Provider) Delete(ctx context.Context, name string) error {
	if p.isClosed() {
		return objectstore.ErrClosed
	}

	_, err := p.client.Txn(ctx).Then(
		etcd.OpDelete(databaseKey(name)),
		etcd.OpDelete(databaseEntryPrefix(name), etcd.WithPrefix()),
	).Commit()
	return err
}

// Close the provider, the etcd client is owned and closed by the caller.
func (p *Provider) Close(_ context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.closed = true
	return nil
}

func (p *Provider) isClosed() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.closed
}

func (p *Provider) loadMetadata(ctx context.Context, metaKey string) (metadata, int64, error) {
	r, err := p.client.Get(ctx, metaKey)
	if err != nil {
		return metadata{}, 0, err
	}
	if len(r.Kvs) == 0 {
		return metadata{}, 0, nil
	}

	kv := r.Kvs[0]
	var meta metadata
	if err := json.Decode(kv.Value, &meta); err != nil {
		return metadata{}, 0, errors.PrefixErrorf(err, `invalid metadata "%s"`, metaKey)
	}
	return meta, kv.ModRevision, nil
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	return b
}

func databaseKey(db string) string {
	return databasePrefix + url.PathEscape(db)
}

func databaseEntryPrefix(db string) string {
	return entryPrefix + url.PathEscape(db) + "/"
}

func storePrefix(db, store string) string {
	return databaseEntryPrefix(db) + url.PathEscape(store) + "/"
}

func sortedStores(stores []objectstore.StoreInfo) []objectstore.StoreInfo {
	out := make([]objectstore.StoreInfo, len(stores))
	copy(out, stores)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// schema modifies a copy of the stores list, the list is saved only if the upgrade succeeds.
type schema struct {
	stores  []objectstore.StoreInfo
	deleted []string
}

func newSchema(stores []objectstore.StoreInfo) *schema {
	s := &schema{stores: make([]objectstore.StoreInfo, len(stores))}
	copy(s.stores, stores)
	return s
}

func (s *schema) CreateStore(info objectstore.StoreInfo) error {
	if err := objectstore.ValidateStoreInfo(info, s.StoreNames()); err != nil {
		return err
	}
	s.stores = append(s.stores, info)
	return nil
}

func (s *schema) DeleteStore(name string) error {
	for i, info := range s.stores {
		if info.Name == name {
			s.stores = append(s.stores[:i], s.stores[i+1:]...)
			s.deleted = append(s.deleted, name)
			return nil
		}
	}
	return nil
}

func (s *schema) StoreNames() []string {
	out := make([]string, 0, len(s.stores))
	for _, info := range s.stores {
		out = append(out, info.Name)
	}
	sort.Strings(out)
	return out
}
