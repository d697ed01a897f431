package iterator

import (
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const DefaultLimit = 100

type Option func(c *config)

type config struct {
	prefix   string
	start    string // first loaded key, the prefix by default
	end      string // range end, exclusive
	pageSize int
	revision int64 // revision of the all values, set by "WithRev" or by the first page
}

func newConfig(prefix string, opts []Option) config {
	c := config{
		prefix:   prefix,
		start:    prefix,
		end:      etcd.GetPrefixRangeEnd(prefix), // default range end, read the entire prefix
		pageSize: DefaultLimit,
	}

	for _, o := range opts {
		o(&c)
	}

	return c
}

func WithPageSize(v int) Option {
	if v < 1 {
		panic(errors.New("page size must be greater than 0"))
	}
	return func(c *config) {
		c.pageSize = v
	}
}

// WithRev loads all pages from the revision, so the iteration sees a consistent snapshot.
func WithRev(v int64) Option {
	if v <= 0 {
		panic(errors.New("revision must be greater than 0"))
	}
	return func(c *config) {
		c.revision = v
	}
}

// WithEnd defines end of the iteration, all keys from the range [prefix, prefix+end) will be loaded.
func WithEnd(v string) Option {
	return func(c *config) {
		c.end = c.prefix + v
	}
}

// WithAfter starts the iteration strictly after the key, the key is a suffix to the prefix.
func WithAfter(v string) Option {
	return func(c *config) {
		c.start = c.prefix + v + "\x00"
	}
}
