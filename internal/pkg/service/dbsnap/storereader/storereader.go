// Package storereader iterates all entries of one store in batches.
//
// Each batch is read by its own short read transaction, which starts strictly after the last key of the previous batch.
// So no transaction is held open across the whole store.
package storereader

import (
	"context"

	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	svcerrors "github.com/keboola/dbsnap/internal/pkg/service/common/errors"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const DefaultBatchSize = 10

type Entry struct {
	Key   any
	Value any
}

type Option func(r *Reader)

// WithBatchSize sets the maximum number of entries read by one transaction.
func WithBatchSize(n int) Option {
	return func(r *Reader) {
		r.limit = n
	}
}

// Reader is a lazy, forward-only and non-restartable sequence of the store entries, in ascending key order.
type Reader struct {
	ctx     context.Context
	db      objectstore.DB
	store   string
	limit   int
	lastKey any

	buffer    []Entry
	current   Entry
	exhausted bool
	batches   int
	err       error
}

// New checks that the store exists, no entry is read yet.
func New(ctx context.Context, db objectstore.DB, store string, opts ...Option) (*Reader, error) {
	if _, found := db.Store(store); !found {
		return nil, objectstore.StoreNotFound(db.Name(), store)
	}

	r := &Reader{ctx: ctx, db: db, store: store, limit: DefaultBatchSize}
	for _, o := range opts {
		o(r)
	}
	if r.limit < 1 {
		return nil, errors.Errorf("batch size must be 1 or greater, found %d", r.limit)
	}
	return r, nil
}

func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}

	if len(r.buffer) == 0 {
		if r.exhausted {
			return false
		}
		if err := r.fetch(); err != nil {
			r.err = err
			return false
		}
		if len(r.buffer) == 0 {
			return false
		}
	}

	// Unyielded entries are discarded on cancellation
	if r.ctx.Err() != nil {
		r.buffer = nil
		r.err = errors.WithStack(svcerrors.NewAbortedError(r.ctx))
		return false
	}

	r.current, r.buffer = r.buffer[0], r.buffer[1:]
	return true
}

func (r *Reader) Entry() Entry {
	return r.current
}

func (r *Reader) Key() any {
	return r.current.Key
}

func (r *Reader) Value() any {
	return r.current.Value
}

func (r *Reader) Err() error {
	return r.err
}

// Batches returns the number of read transactions made so far.
func (r *Reader) Batches() int {
	return r.batches
}

// ForEach calls fn for each remaining entry, iteration stops on the first error.
func (r *Reader) ForEach(fn func(entry Entry) error) error {
	for r.Next() {
		if err := fn(r.current); err != nil {
			return err
		}
	}
	return r.err
}

func (r *Reader) fetch() error {
	r.batches++
	batch := make([]Entry, 0, r.limit)
	err := r.db.View(r.ctx, r.store, func(tx objectstore.ReadTx) error {
		c := tx.Cursor(r.ctx, r.lastKey)
		defer c.Close()

		for len(batch) < r.limit {
			if r.ctx.Err() != nil {
				return svcerrors.NewAbortedError(r.ctx)
			}
			if !c.Next() {
				break
			}
			batch = append(batch, Entry{Key: c.Key(), Value: c.Value()})
		}
		return c.Err()
	})
	if err != nil {
		if r.ctx.Err() != nil {
			return errors.WithStack(svcerrors.NewAbortedError(r.ctx))
		}
		return err
	}

	if len(batch) < r.limit {
		r.exhausted = true
	}
	if len(batch) > 0 {
		r.lastKey = batch[len(batch)-1].Key
	}
	r.buffer = batch
	return nil
}
