package codec

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/keboola/go-utils/pkg/orderedmap"
	jsoniter "github.com/json-iterator/go"

	"github.com/keboola/dbsnap/internal/pkg/encoding/json"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

type decoder struct {
	codec *Codec
	data  []byte
	iter  *jsoniter.Iterator
}

func newDecoder(c *Codec, data []byte) *decoder {
	return &decoder{codec: c, data: data, iter: json.NewIterator(data)}
}

func (d *decoder) decode() (any, error) {
	if len(bytes.TrimSpace(d.data)) == 0 {
		return nil, errors.New("empty token")
	}

	value, err := d.value()
	if err != nil {
		return nil, err
	}

	if d.iter.WhatIsNext() != jsoniter.InvalidValue {
		return nil, errors.New("unexpected data after the value")
	}
	if err := d.iterError(); err != nil {
		return nil, err
	}
	return value, nil
}

func (d *decoder) value() (out any, err error) {
	switch d.iter.WhatIsNext() {
	case jsoniter.NilValue:
		d.iter.ReadNil()
	case jsoniter.BoolValue:
		out = d.iter.ReadBool()
	case jsoniter.StringValue:
		out = d.iter.ReadString()
	case jsoniter.NumberValue:
		var n any
		n, err = parseNumber(string(d.iter.ReadNumber()))
		if f, ok := n.(floatNode); ok {
			out = float64(f)
		} else {
			out = n
		}
	case jsoniter.ArrayValue:
		items := make([]any, 0)
		d.iter.ReadArrayCB(func(_ *jsoniter.Iterator) bool {
			var item any
			if item, err = d.value(); err != nil {
				return false
			}
			items = append(items, item)
			return true
		})
		out = items
	case jsoniter.ObjectValue:
		out, err = d.object()
	default:
		if err = d.iterError(); err == nil {
			err = errors.New("invalid JSON value")
		}
	}

	if err != nil {
		return nil, err
	}
	if err := d.iterError(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *decoder) object() (any, error) {
	var fields []field
	var err error
	d.iter.ReadObjectCB(func(_ *jsoniter.Iterator, key string) bool {
		var value any
		if value, err = d.value(); err != nil {
			return false
		}
		fields = append(fields, field{key: key, value: value})
		return true
	})
	if err != nil {
		return nil, err
	}
	if err := d.iterError(); err != nil {
		return nil, err
	}

	// Extended value
	if len(fields) == 1 && isTag(fields[0].key) {
		return d.extended(strings.TrimPrefix(fields[0].key, tagPrefix), fields[0].value)
	}

	var ordered *orderedmap.OrderedMap
	var plain map[string]any
	if d.codec.config.orderedMaps {
		ordered = orderedmap.New()
	} else {
		plain = make(map[string]any, len(fields))
	}

	for _, f := range fields {
		if isTag(f.key) {
			return nil, errors.Errorf(`extended type key "%s" cannot be mixed with other keys`, f.key)
		}
		k := strings.TrimPrefix(f.key, tagPrefix)
		if ordered != nil {
			ordered.Set(k, f.value)
		} else {
			plain[k] = f.value
		}
	}

	if ordered != nil {
		return ordered, nil
	}
	return plain, nil
}

func (d *decoder) extended(name string, form any) (any, error) {
	plugin, found := d.codec.byName[name]
	if !found {
		return nil, errors.Errorf(`unknown extended type "%s"`, name)
	}
	value, err := plugin.Decode(form)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `invalid extended type "%s"`, name)
	}
	return value, nil
}

func (d *decoder) iterError() error {
	if d.iter.Error != nil && !errors.Is(d.iter.Error, io.EOF) {
		return errors.Wrap(d.iter.Error, "invalid JSON")
	}
	return nil
}

func isTag(key string) bool {
	return strings.HasPrefix(key, tagPrefix) && !strings.HasPrefix(key, tagPrefix+tagPrefix)
}

// parseNumber returns int64, uint64 or floatNode.
func parseNumber(s string) (any, error) {
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Errorf(`invalid number "%s"`, s)
		}
		return floatNode(f), nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u, nil
	}
	return nil, errors.Errorf(`invalid number "%s"`, s)
}
