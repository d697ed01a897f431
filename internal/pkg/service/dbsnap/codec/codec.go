// Package codec converts structured values to self-contained text tokens and back.
//
// A token is one JSON document without raw newlines.
// Plain values are written as native JSON, extended values are written as {"$<PluginName>": <form>}.
// User object keys starting with "$" are escaped by an extra leading "$".
package codec

import (
	"context"

	svcerrors "github.com/keboola/dbsnap/internal/pkg/service/common/errors"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const (
	DefaultFetchConcurrency = 8
	tagPrefix               = "$"
)

type Codec struct {
	config config
	byName map[string]Plugin
}

type config struct {
	plugins          []Plugin
	fetchConcurrency int
	orderedMaps      bool
}

type Option func(c *config)

// WithPlugins appends custom plugins, they are tried after the built-in plugins.
func WithPlugins(plugins ...Plugin) Option {
	return func(c *config) {
		c.plugins = append(c.plugins, plugins...)
	}
}

// WithOnlyPlugins replaces the built-in plugins.
func WithOnlyPlugins(plugins ...Plugin) Option {
	return func(c *config) {
		c.plugins = plugins
	}
}

// WithFetchConcurrency limits the number of deferred fetches running at once.
func WithFetchConcurrency(n int) Option {
	return func(c *config) {
		c.fetchConcurrency = n
	}
}

// WithOrderedMaps decodes objects to *orderedmap.OrderedMap instead of map[string]any.
func WithOrderedMaps() Option {
	return func(c *config) {
		c.orderedMaps = true
	}
}

func New(opts ...Option) *Codec {
	cfg := config{plugins: DefaultPlugins(), fetchConcurrency: DefaultFetchConcurrency}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.fetchConcurrency < 1 {
		cfg.fetchConcurrency = 1
	}

	c := &Codec{config: cfg, byName: make(map[string]Plugin, len(cfg.plugins))}
	for _, p := range cfg.plugins {
		if _, found := c.byName[p.Name()]; found {
			panic(errors.Errorf(`codec plugin "%s" is registered twice`, p.Name()))
		}
		c.byName[p.Name()] = p
	}
	return c
}

func (c *Codec) Plugins() []Plugin {
	out := make([]Plugin, len(c.config.plugins))
	copy(out, c.config.plugins)
	return out
}

// Encode the value to a token. Deferred fetches are resolved before the token is written.
func (c *Codec) Encode(ctx context.Context, value any) ([]byte, error) {
	enc := newEncoder(c)
	root, err := enc.node(value)
	if err != nil {
		return nil, errors.PrefixError(err, "cannot encode value")
	}
	if err := enc.resolve(ctx); err != nil {
		return nil, err
	}
	out, err := write(root)
	if err != nil {
		return nil, errors.PrefixError(err, "cannot encode value")
	}
	return out, nil
}

func (c *Codec) EncodeString(ctx context.Context, value any) (string, error) {
	out, err := c.Encode(ctx, value)
	return string(out), err
}

// Decode the token. Any decoding problem is a DataError.
func (c *Codec) Decode(data []byte) (any, error) {
	value, err := newDecoder(c, data).decode()
	if err != nil {
		return nil, errors.WithStack(svcerrors.NewDataError(err))
	}
	return value, nil
}

func (c *Codec) DecodeString(data string) (any, error) {
	return c.Decode([]byte(data))
}
