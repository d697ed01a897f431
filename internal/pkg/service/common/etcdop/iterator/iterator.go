// Package iterator provides a paginated iterator over an etcd prefix.
// Each page is loaded by one Get request, the iterator never holds a long-lived stream.
package iterator

import (
	"context"

	"go.etcd.io/etcd/api/v3/etcdserverpb"
	"go.etcd.io/etcd/api/v3/mvccpb"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const (
	end = ""
)

type (
	Header   = etcdserverpb.ResponseHeader
	KeyValue = mvccpb.KeyValue
)

type Definition struct {
	config
}

type Iterator struct {
	config
	ctx          context.Context
	client       etcd.KV
	err          error
	start        string      // page start key
	page         int         // page number, start from 1
	lastIndex    int         // lastIndex in the page, -1 means empty
	currentIndex int         // currentIndex in the page, start from 0
	values       []*KeyValue // values in the page
	header       *Header     // page response header
	currentValue *KeyValue   // currentValue in the page, match currentIndex
}

func New(prefix string, opts ...Option) Definition {
	return Definition{config: newConfig(prefix, opts)}
}

// Do converts iterator definition to the iterator.
func (v Definition) Do(ctx context.Context, client etcd.KV) *Iterator {
	return &Iterator{ctx: ctx, client: client, config: v.config, start: v.config.start, lastIndex: -1}
}

// Next returns true if there is a next value.
// False is returned if there is no next value or an error occurred.
func (v *Iterator) Next() bool {
	if v.err != nil {
		return false
	}

	select {
	case <-v.ctx.Done():
		v.err = context.Cause(v.ctx)
		return false
	default:
		if !v.nextItem() && !v.nextPage() {
			return false
		}
		v.currentValue = v.values[v.currentIndex]
		return true
	}
}

// Value returns the current value.
// It must be called after Next method.
func (v *Iterator) Value() *KeyValue {
	if v.page == 0 {
		panic(errors.New("unexpected Value() call: Next() must be called first"))
	}
	if v.err != nil {
		panic(errors.Errorf("unexpected Value() call: %w", v.err))
	}
	return v.currentValue
}

// Header returns header of the page etcd response.
func (v *Iterator) Header() *Header {
	return v.header
}

// Revision of the loaded values, 0 before the first page.
func (v *Iterator) Revision() int64 {
	return v.revision
}

// Err returns error. It must be checked after iterations (Next() == false).
func (v *Iterator) Err() error {
	return v.err
}

// All returns all values as a slice, sorted by key in ascending order.
func (v *Iterator) All() (out []*KeyValue, err error) {
	for v.Next() {
		out = append(out, v.Value())
	}
	if err = v.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ForEach iterates the KVs using a callback.
func (v *Iterator) ForEach(fn func(value *KeyValue, header *Header) error) (err error) {
	for v.Next() {
		if err = fn(v.Value(), v.Header()); err != nil {
			return err
		}
	}
	return v.Err()
}

func (v *Iterator) nextItem() bool {
	if v.lastIndex > v.currentIndex {
		v.currentIndex++
		return true
	}
	return false
}

func (v *Iterator) nextPage() bool {
	// Is there one more page?
	if v.start == end {
		return false
	}

	ops := []etcd.OpOption{
		etcd.WithRange(v.end),
		etcd.WithLimit(int64(v.pageSize)),
		etcd.WithSort(etcd.SortByKey, etcd.SortAscend),
	}

	// All pages are loaded from the same revision
	if v.revision > 0 {
		ops = append(ops, etcd.WithRev(v.revision))
	}

	v.page++
	r, err := v.client.Get(v.ctx, v.start, ops...)
	if err != nil {
		v.err = errors.Errorf(`etcd iterator failed: cannot get page "%s", page=%d: %w`, v.start, v.page, err)
		return false
	}

	v.values = r.Kvs
	v.header = r.Header
	v.lastIndex = len(v.values) - 1
	if v.lastIndex == -1 {
		return false
	}

	if r.More {
		// Start of the next page is one key after the last key
		v.start = string(v.values[v.lastIndex].Key) + "\x00"
	} else {
		v.start = end
	}

	v.currentIndex = 0
	v.revision = r.Header.Revision
	return true
}
