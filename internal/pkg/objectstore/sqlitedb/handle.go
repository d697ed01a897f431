package sqlitedb

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/objectstore/key"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const cursorChunk = 64

// handle is a connection to one database, the schema is loaded when the database is opened.
type handle struct {
	provider *Provider
	name     string
	version  int64
	stores   map[string]objectstore.StoreInfo

	lock   sync.RWMutex
	closed bool
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

	sqlTx, err := h.provider.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	return fn(&tx{handle: h, info: info, tx: sqlTx})
}

func (h *handle) Update(ctx context.Context, store string, fn func(tx objectstore.WriteTx) error) error {
	info, err := h.begin(ctx, store)
	if err != nil {
		return err
	}

	sqlTx, err := h.provider.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(&tx{handle: h, info: info, tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return sqlTx.Commit()
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

type tx struct {
	handle *handle
	info   objectstore.StoreInfo
	tx     *sql.Tx
}

func (t *tx) Get(ctx context.Context, k any) (any, bool, error) {
	encodedKey, err := key.Encode(k)
	if err != nil {
		return nil, false, err
	}

	var data []byte
	err = t.tx.QueryRowContext(ctx, `SELECT value FROM entries WHERE db = ? AND store = ? AND key = ?`, t.handle.name, t.info.Name, encodedKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}

	value, err := t.handle.provider.codec.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (t *tx) Count(ctx context.Context) (count int64, err error) {
	err = t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE db = ? AND store = ?`, t.handle.name, t.info.Name).Scan(&count)
	return count, err
}

func (t *tx) Cursor(ctx context.Context, after any) objectstore.Cursor {
	c := &cursor{ctx: ctx, tx: t, from: []byte{}}
	if after != nil {
		encoded, err := key.Encode(after)
		if err != nil {
			c.err = err
			return c
		}
		c.from = encoded
	}
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

	_, err = t.tx.ExecContext(
		ctx,
		`INSERT INTO entries (db, store, key, value) VALUES (?, ?, ?, ?) ON CONFLICT (db, store, key) DO UPDATE SET value = excluded.value`,
		t.handle.name, t.info.Name, key.MustEncode(normalized), encodedValue,
	)
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

func (t *tx) Delete(ctx context.Context, k any) error {
	encodedKey, err := key.Encode(k)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `DELETE FROM entries WHERE db = ? AND store = ? AND key = ?`, t.handle.name, t.info.Name, encodedKey)
	return err
}

func (t *tx) Clear(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM entries WHERE db = ? AND store = ?`, t.handle.name, t.info.Name)
	return err
}

type entry struct {
	key   []byte
	value []byte
}

// cursor loads entries in chunks, rows are not kept open between the Next calls.
type cursor struct {
	ctx     context.Context
	tx      *tx
	from    []byte
	buffer  []entry
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
		if err := c.load(); err != nil {
			c.err = err
			return false
		}
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

	value, err := c.tx.handle.provider.codec.Decode(next.value)
	if err != nil {
		c.err = err
		return false
	}

	c.current.key = k
	c.current.value = value
	return true
}

func (c *cursor) load() error {
	rows, err := c.tx.tx.QueryContext(
		c.ctx,
		`SELECT key, value FROM entries WHERE db = ? AND store = ? AND key > ? ORDER BY key LIMIT ?`,
		c.tx.handle.name, c.tx.info.Name, c.from, cursorChunk,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.key, &e.value); err != nil {
			return err
		}
		c.buffer = append(c.buffer, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(c.buffer) < cursorChunk {
		c.done = true
	} else {
		c.from = c.buffer[len(c.buffer)-1].key
	}
	return nil
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
