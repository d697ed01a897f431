package codec

import (
	"context"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/keboola/go-utils/pkg/orderedmap"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"github.com/keboola/dbsnap/internal/pkg/encoding/json"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// Nodes of the encoded tree:
// nil, bool, string, int64, uint64, floatNode, arrayNode, objectNode and *placeholder.
type (
	floatNode  float64
	arrayNode  []any
	objectNode []field
	field      struct {
		key   string
		value any
	}
)

type placeholder struct {
	fetch    FetchFunc
	value    any
	resolved bool
}

type encoder struct {
	codec   *Codec
	pending []*placeholder
	sealed  bool
}

func newEncoder(c *Codec) *encoder {
	return &encoder{codec: c}
}

// Defer implements Deferrer.
func (e *encoder) Defer(fetch FetchFunc) any {
	p := &placeholder{fetch: fetch}
	// Deferring during the resolve phase is not supported, the placeholder remains unresolved.
	if !e.sealed {
		e.pending = append(e.pending, p)
	}
	return p
}

// node converts the value to the tree, plugins are tried first.
func (e *encoder) node(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if p, ok := value.(*placeholder); ok {
		return p, nil
	}

	for _, plugin := range e.codec.config.plugins {
		if !plugin.Test(value) {
			continue
		}
		form, err := plugin.Encode(value, e)
		if err != nil {
			return nil, errors.PrefixErrorf(err, `plugin "%s" failed`, plugin.Name())
		}
		formNode, err := e.node(form)
		if err != nil {
			return nil, err
		}
		return objectNode{{key: tagPrefix + plugin.Name(), value: formNode}}, nil
	}

	switch v := value.(type) {
	case bool, string:
		return v, nil
	case float64:
		return floatValue(v)
	case float32:
		return floatValue(float64(v))
	case json.Number:
		return parseNumber(string(v))
	case []any:
		return e.array(len(v), func(i int) any { return v[i] })
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return e.object(keys, func(k string) any { return v[k] })
	case *orderedmap.OrderedMap:
		if v == nil {
			return nil, nil
		}
		return e.object(v.Keys(), func(k string) any {
			item, _ := v.Get(k)
			return item
		})
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return u, nil
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return floatValue(rv.Float())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		return e.array(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, errors.Errorf(`unsupported map key type "%s"`, rv.Type().Key())
		}
		if rv.IsNil() {
			return nil, nil
		}
		values := make(map[string]any, rv.Len())
		keys := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			keys = append(keys, k)
			values[k] = iter.Value().Interface()
		}
		sort.Strings(keys)
		return e.object(keys, func(k string) any { return values[k] })
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
	}

	return nil, errors.Errorf(`unsupported value type "%T"`, value)
}

func (e *encoder) array(length int, item func(i int) any) (any, error) {
	out := make(arrayNode, length)
	for i := range length {
		n, err := e.node(item(i))
		if err != nil {
			return nil, errors.PrefixErrorf(err, `invalid item [%d]`, i)
		}
		out[i] = n
	}
	return out, nil
}

func (e *encoder) object(keys []string, value func(k string) any) (any, error) {
	out := make(objectNode, len(keys))
	for i, k := range keys {
		n, err := e.node(value(k))
		if err != nil {
			return nil, errors.PrefixErrorf(err, `invalid key "%s"`, k)
		}
		if strings.HasPrefix(k, tagPrefix) {
			k = tagPrefix + k
		}
		out[i] = field{key: k, value: n}
	}
	return out, nil
}

// resolve runs all deferred fetches concurrently.
func (e *encoder) resolve(ctx context.Context) error {
	e.sealed = true
	if len(e.pending) == 0 {
		return nil
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(e.codec.config.fetchConcurrency)
	for _, p := range e.pending {
		grp.Go(func() error {
			result, err := p.fetch(ctx)
			if err != nil {
				return errors.PrefixError(err, "cannot fetch deferred value")
			}
			n, err := e.node(result)
			if err != nil {
				return errors.PrefixError(err, "cannot encode deferred value")
			}
			p.value = n
			p.resolved = true
			return nil
		})
	}
	return grp.Wait()
}

func floatValue(f float64) (any, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, errors.Errorf(`number "%v" cannot be encoded without a plugin`, f)
	}
	return floatNode(f), nil
}

// formatFloat always includes a fraction or an exponent, so the number is decoded as a float again.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func write(root any) ([]byte, error) {
	s := json.NewStream()
	if err := writeNode(s, root); err != nil {
		return nil, err
	}
	if s.Error != nil {
		return nil, errors.Wrap(s.Error, "json encoding error")
	}
	out := make([]byte, len(s.Buffer()))
	copy(out, s.Buffer())
	return out, nil
}

func writeNode(s *jsoniter.Stream, n any) error {
	switch v := n.(type) {
	case nil:
		s.WriteNil()
	case bool:
		s.WriteBool(v)
	case string:
		s.WriteString(v)
	case int64:
		s.WriteInt64(v)
	case uint64:
		s.WriteUint64(v)
	case floatNode:
		s.WriteRaw(formatFloat(float64(v)))
	case arrayNode:
		s.WriteArrayStart()
		for i, item := range v {
			if i > 0 {
				s.WriteMore()
			}
			if err := writeNode(s, item); err != nil {
				return err
			}
		}
		s.WriteArrayEnd()
	case objectNode:
		s.WriteObjectStart()
		for i, f := range v {
			if i > 0 {
				s.WriteMore()
			}
			s.WriteObjectField(f.key)
			if err := writeNode(s, f.value); err != nil {
				return err
			}
		}
		s.WriteObjectEnd()
	case *placeholder:
		if !v.resolved {
			return errors.New("unresolved placeholder of a deferred value")
		}
		return writeNode(s, v.value)
	default:
		return errors.Errorf(`unexpected node type "%T"`, n)
	}
	return nil
}
