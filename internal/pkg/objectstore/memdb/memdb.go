// Package memdb is an in-process implementation of the objectstore.Provider, each store is a B-tree.
package memdb

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/btree"

	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/objectstore/key"
)

const (
	// bTreeDegree is the B-tree degree, the same as the memdb in cosmos-sdk.
	bTreeDegree = 32
	// cursorChunk is the number of items loaded by one cursor step.
	cursorChunk = 64
)

type Provider struct {
	codec     objectstore.ValueCodec
	lock      sync.Mutex
	closed    bool
	databases map[string]*database
}

type database struct {
	lock    sync.RWMutex
	name    string
	version int64
	stores  map[string]*store
	deleted bool
}

type store struct {
	info objectstore.StoreInfo
	tree *btree.BTreeG[item]
}

type item struct {
	key   []byte
	value []byte
}

func itemLess(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

func newStore(info objectstore.StoreInfo) *store {
	return &store{info: info, tree: btree.NewG[item](bTreeDegree, itemLess)}
}

func New(codec objectstore.ValueCodec) *Provider {
	return &Provider{codec: codec, databases: make(map[string]*database)}
}

func (p *Provider) Open(ctx context.Context, name string, version int64, upgrade objectstore.UpgradeFunc) (objectstore.DB, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return nil, objectstore.ErrClosed
	}

	db, found := p.databases[name]
	if !found {
		db = &database{name: name, stores: make(map[string]*store)}
	}

	db.lock.Lock()
	defer db.lock.Unlock()

	newVersion, needsUpgrade, err := objectstore.ResolveVersion(name, db.version, version)
	if err != nil {
		return nil, err
	}

	if needsUpgrade {
		schema := &schema{stores: make(map[string]*store, len(db.stores))}
		for k, v := range db.stores {
			schema.stores[k] = v
		}
		if upgrade != nil {
			if err := upgrade(ctx, schema, db.version, newVersion); err != nil {
				return nil, err
			}
		}
		db.stores = schema.stores
		db.version = newVersion
	}

	p.databases[name] = db
	return &handle{provider: p, db: db}, nil
}

func (p *Provider) Databases(_ context.Context) ([]objectstore.DatabaseInfo, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return nil, objectstore.ErrClosed
	}

	out := make([]objectstore.DatabaseInfo, 0, len(p.databases))
	for _, db := range p.databases {
		db.lock.RLock()
		info := objectstore.DatabaseInfo{Name: db.name, Version: db.version}
		for _, name := range db.storeNames() {
			info.Stores = append(info.Stores, db.stores[name].info)
		}
		db.lock.RUnlock()
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (p *Provider) Delete(_ context.Context, name string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return objectstore.ErrClosed
	}

	if db, found := p.databases[name]; found {
		db.lock.Lock()
		db.deleted = true
		db.lock.Unlock()
		delete(p.databases, name)
	}
	return nil
}

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

func (db *database) storeNames() []string {
	out := make([]string, 0, len(db.stores))
	for name := range db.stores {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type schema struct {
	stores map[string]*store
}

func (s *schema) CreateStore(info objectstore.StoreInfo) error {
	if err := objectstore.ValidateStoreInfo(info, s.StoreNames()); err != nil {
		return err
	}
	s.stores[info.Name] = newStore(info)
	return nil
}

func (s *schema) DeleteStore(name string) error {
	delete(s.stores, name)
	return nil
}

func (s *schema) StoreNames() []string {
	out := make([]string, 0, len(s.stores))
	for name := range s.stores {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// handle is one connection to a database.
type handle struct {
	provider *Provider
	db       *database
	lock     sync.Mutex
	closed   bool
}

func (h *handle) Name() string {
	return h.db.name
}

func (h *handle) Version() int64 {
	h.db.lock.RLock()
	defer h.db.lock.RUnlock()
	return h.db.version
}

func (h *handle) StoreNames() []string {
	h.db.lock.RLock()
	defer h.db.lock.RUnlock()
	return h.db.storeNames()
}

func (h *handle) Store(name string) (objectstore.StoreInfo, bool) {
	h.db.lock.RLock()
	defer h.db.lock.RUnlock()
	if s, found := h.db.stores[name]; found {
		return s.info, true
	}
	return objectstore.StoreInfo{}, false
}

func (h *handle) View(ctx context.Context, storeName string, fn func(tx objectstore.ReadTx) error) error {
	if err := h.check(ctx); err != nil {
		return err
	}

	h.db.lock.RLock()
	defer h.db.lock.RUnlock()

	s, err := h.store(storeName)
	if err != nil {
		return err
	}

	return fn(&tx{codec: h.provider.codec, store: s})
}

func (h *handle) Update(ctx context.Context, storeName string, fn func(tx objectstore.WriteTx) error) error {
	if err := h.check(ctx); err != nil {
		return err
	}

	h.db.lock.Lock()
	defer h.db.lock.Unlock()

	s, err := h.store(storeName)
	if err != nil {
		return err
	}

	// Changes are made on a copy-on-write clone, the tree is replaced only if fn succeeds.
	clone := &store{info: s.info, tree: s.tree.Clone()}
	if err := fn(&tx{codec: h.provider.codec, store: clone}); err != nil {
		return err
	}
	s.tree = clone.tree
	return nil
}

func (h *handle) Close(_ context.Context) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.closed = true
	return nil
}

func (h *handle) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.lock.Lock()
	closed := h.closed
	h.lock.Unlock()

	if closed || h.provider.isClosed() {
		return objectstore.ErrClosed
	}
	return nil
}

// store must be called under the database lock.
func (h *handle) store(name string) (*store, error) {
	if h.db.deleted {
		return nil, objectstore.ErrClosed
	}
	s, found := h.db.stores[name]
	if !found {
		return nil, objectstore.StoreNotFound(h.db.name, name)
	}
	return s, nil
}

type tx struct {
	codec objectstore.ValueCodec
	store *store
}

func (t *tx) Get(_ context.Context, k any) (any, bool, error) {
	encodedKey, err := key.Encode(k)
	if err != nil {
		return nil, false, err
	}

	found, ok := t.store.tree.Get(item{key: encodedKey})
	if !ok {
		return nil, false, nil
	}

	value, err := t.codec.Decode(found.value)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (t *tx) Count(_ context.Context) (int64, error) {
	return int64(t.store.tree.Len()), nil
}

func (t *tx) Cursor(ctx context.Context, after any) objectstore.Cursor {
	c := &cursor{ctx: ctx, codec: t.codec, tree: t.store.tree}
	if after != nil {
		encoded, err := key.Encode(after)
		if err != nil {
			c.err = err
			return c
		}
		c.from = afterKey(encoded)
	}
	return c
}

func (t *tx) Put(ctx context.Context, value any, k any) (any, error) {
	normalized, err := objectstore.PutKey(t.store.info, value, k)
	if err != nil {
		return nil, err
	}

	encodedValue, err := t.codec.Encode(ctx, value)
	if err != nil {
		return nil, err
	}

	t.store.tree.ReplaceOrInsert(item{key: key.MustEncode(normalized), value: encodedValue})
	return normalized, nil
}

func (t *tx) Delete(_ context.Context, k any) error {
	encodedKey, err := key.Encode(k)
	if err != nil {
		return err
	}
	t.store.tree.Delete(item{key: encodedKey})
	return nil
}

func (t *tx) Clear(_ context.Context) error {
	t.store.tree.Clear(false)
	return nil
}

// cursor loads items from the tree in chunks, the tree cannot change while the transaction is running.
type cursor struct {
	ctx     context.Context
	codec   objectstore.ValueCodec
	tree    *btree.BTreeG[item]
	from    []byte
	buffer  []item
	done    bool
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

	if err := c.ctx.Err(); err != nil {
		c.err = err
		return false
	}

	if len(c.buffer) == 0 && !c.done {
		c.load()
	}

	if len(c.buffer) == 0 {
		return false
	}

	next := c.buffer[0]
	c.buffer = c.buffer[1:]

	k, err := key.Decode(next.key)
	if err != nil {
		c.err = err
		return false
	}

	value, err := c.codec.Decode(next.value)
	if err != nil {
		c.err = err
		return false
	}

	c.current.key = k
	c.current.value = value
	return true
}

func (c *cursor) load() {
	fn := func(i item) bool {
		c.buffer = append(c.buffer, i)
		return len(c.buffer) < cursorChunk
	}

	if c.from == nil {
		c.tree.Ascend(fn)
	} else {
		c.tree.AscendGreaterOrEqual(item{key: c.from}, fn)
	}

	if len(c.buffer) < cursorChunk {
		c.done = true
	} else {
		c.from = afterKey(c.buffer[len(c.buffer)-1].key)
	}
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
	c.buffer = nil
	return nil
}

// afterKey returns the smallest encoded key greater than k.
func afterKey(k []byte) []byte {
	out := make([]byte, len(k)+1)
	copy(out, k)
	return out
}
