package etcddb

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"

	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/objectstore/key"
	"github.com/keboola/dbsnap/internal/pkg/service/common/etcdop/iterator"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// handle is a connection to one database, the schema is loaded when the database is opened.
type handle struct {
	provider *Provider
	name     string
	version  int64
	stores   map[string]objectstore.StoreInfo

	lock   sync.RWMutex
	closed bool
}

func newHandle(p *Provider, meta metadata) *handle {
	h := &handle{provider: p, name: meta.Name, version: meta.Version, stores: make(map[string]objectstore.StoreInfo)}
	for _, info := range meta.Stores {
		h.stores[info.Name] = info
	}
	return h
}

func (h *handle) Name() string {
	return h.name
}

func (h *handle) Version() int64 {
	return h.version
}

func (h *handle) StoreNames() []string {
	out := make([]string, 0, len(h.stores))
	for name := range h.stores {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (h *handle) Store(name string) (objectstore.StoreInfo, bool) {
	info, found := h.stores[name]
	return info, found
}

func (h *handle) View(ctx context.Context, store string, fn func(tx objectstore.ReadTx) error) error {
	info, err := h.begin(ctx, store)
	if err != nil {
		return err
	}
	return fn(h.newTx(info))
}

// Update buffers all writes and commits them when fn succeeds.
// Get sees the buffered writes. Count and Cursor read the committed state.
func (h *handle) Update(ctx context.Context, store string, fn func(tx objectstore.WriteTx) error) error {
	info, err := h.begin(ctx, store)
	if err != nil {
		return err
	}

	t := h.newTx(info)
	if err := fn(t); err != nil {
		return err
	}
	return t.commit(ctx)
}

func (h *handle) Close(_ context.Context) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.closed = true
	return nil
}

func (h *handle) begin(ctx context.Context, store string) (objectstore.StoreInfo, error) {
	h.lock.RLock()
	closed := h.closed
	h.lock.RUnlock()

	if closed || h.provider.isClosed() {
		return objectstore.StoreInfo{}, objectstore.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return objectstore.StoreInfo{}, err
	}

	info, found := h.stores[store]
	if !found {
		return objectstore.StoreInfo{}, objectstore.StoreNotFound(h.name, store)
	}
	return info, nil
}

func (h *handle) newTx(info objectstore.StoreInfo) *tx {
	return &tx{handle: h, info: info, prefix: storePrefix(h.name, info.Name), pending: make(map[string]*string)}
}

type tx struct {
	handle *handle
	info   objectstore.StoreInfo
	prefix string

	// cleared is set by Clear, all committed entries are deleted first
	cleared bool
	// pending writes by the etcd key, nil value means delete
	pending map[string]*string
	order   []string
}

func (t *tx) Get(ctx context.Context, k any) (any, bool, error) {
	etcdKey, err := t.etcdKey(k)
	if err != nil {
		return nil, false, err
	}

	var data []byte
	if v, ok := t.pending[etcdKey]; ok {
		if v == nil {
			return nil, false, nil
		}
		data = []byte(*v)
	} else if t.cleared {
		return nil, false, nil
	} else {
		r, err := t.handle.provider.client.Get(ctx, etcdKey)
		if err != nil {
			return nil, false, err
		}
		if len(r.Kvs) == 0 {
			return nil, false, nil
		}
		data = r.Kvs[0].Value
	}

	value, err := t.handle.provider.codec.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (t *tx) Count(ctx context.Context) (int64, error) {
	r, err := t.handle.provider.client.Get(ctx, t.prefix, etcd.WithPrefix(), etcd.WithCountOnly())
	if err != nil {
		return 0, err
	}
	return r.Count, nil
}

func (t *tx) Cursor(ctx context.Context, after any) objectstore.Cursor {
	c := &cursor{codec: t.handle.provider.codec, prefix: t.prefix}
	opts := []iterator.Option{iterator.WithPageSize(pageSize)}
	if after != nil {
		encoded, err := key.Encode(after)
		if err != nil {
			c.err = err
			return c
		}
		opts = append(opts, iterator.WithAfter(hex.EncodeToString(encoded)))
	}
	c.it = iterator.New(t.prefix, opts...).Do(ctx, t.handle.provider.client.KV)
	return c
}

func (t *tx) Put(ctx context.Context, value any, k any) (any, error) {
	normalized, err := objectstore.PutKey(t.info, value, k)
	if err != nil {
		return nil, err
	}

	encodedValue, err := t.handle.provider.codec.Encode(ctx, value)
	if err != nil {
		return nil, err
	}

	v := string(encodedValue)
	t.set(t.prefix+hex.EncodeToString(key.MustEncode(normalized)), &v)
	return normalized, nil
}

func (t *tx) Delete(_ context.Context, k any) error {
	etcdKey, err := t.etcdKey(k)
	if err != nil {
		return err
	}
	t.set(etcdKey, nil)
	return nil
}

func (t *tx) Clear(_ context.Context) error {
	t.cleared = true
	t.pending = make(map[string]*string)
	t.order = nil
	return nil
}

func (t *tx) set(etcdKey string, value *string) {
	if _, found := t.pending[etcdKey]; !found {
		t.order = append(t.order, etcdKey)
	}
	t.pending[etcdKey] = value
}

func (t *tx) etcdKey(k any) (string, error) {
	encoded, err := key.Encode(k)
	if err != nil {
		return "", err
	}
	return t.prefix + hex.EncodeToString(encoded), nil
}

// commit writes the buffered operations.
// etcd rejects a transaction with overlapping operations, so Clear is committed separately,
// and operations over the server limit are split into more transactions.
func (t *tx) commit(ctx context.Context) error {
	client := t.handle.provider.client

	if t.cleared {
		if _, err := client.Delete(ctx, t.prefix, etcd.WithPrefix()); err != nil {
			return err
		}
	}

	ops := make([]etcd.Op, 0, len(t.order))
	for _, etcdKey := range t.order {
		if v := t.pending[etcdKey]; v != nil {
			ops = append(ops, etcd.OpPut(etcdKey, *v))
		} else if !t.cleared {
			ops = append(ops, etcd.OpDelete(etcdKey))
		}
	}

	for len(ops) > 0 {
		n := min(len(ops), maxTxnOps)
		if _, err := client.Txn(ctx).Then(ops[:n]...).Commit(); err != nil {
			return err
		}
		ops = ops[n:]
	}
	return nil
}

type cursor struct {
	codec   objectstore.ValueCodec
	prefix  string
	it      *iterator.Iterator
	closed  bool
	err     error
	current struct {
		key   any
		value any
	}
}

func (c *cursor) Next() bool {
	if c.err != nil || c.closed {
		return false
	}

	if !c.it.Next() {
		c.err = c.it.Err()
		return false
	}

	kv := c.it.Value()
	encodedKey, err := hex.DecodeString(string(kv.Key[len(c.prefix):]))
	if err != nil {
		c.err = errors.PrefixErrorf(err, `invalid entry key "%s"`, string(kv.Key))
		return false
	}

	k, err := key.Decode(encodedKey)
	if err != nil {
		c.err = err
		return false
	}

	value, err := c.codec.Decode(kv.Value)
	if err != nil {
		c.err = err
		return false
	}

	c.current.key = k
	c.current.value = value
	return true
}

func (c *cursor) Key() any {
	return c.current.key
}

func (c *cursor) Value() any {
	return c.current.value
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close() error {
	c.closed = true
	return nil
}
