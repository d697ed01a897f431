// Package model contains the records of the export artifact.
//
// The first line of the artifact is ExportMeta, each following line is one ExportItem.
// Both are converted to plain values, which are then encoded by the codec.
package model

import (
	"github.com/keboola/go-utils/pkg/orderedmap"
	"github.com/mitchellh/mapstructure"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// ExportMeta describes the exported database, store counts are captured before the records are streamed.
type ExportMeta struct {
	Name    string      `mapstructure:"name"`
	Version int64       `mapstructure:"version"`
	Stores  []StoreMeta `mapstructure:"stores"`
}

type StoreMeta struct {
	Name  string `mapstructure:"name"`
	Count int64  `mapstructure:"count"`
}

// ExportItem is one record of a store.
type ExportItem struct {
	StoreName string `mapstructure:"storeName"`
	Key       any    `mapstructure:"key"`
	Value     any    `mapstructure:"value"`
}

type Progress struct {
	Current int64
	Total   int64
}

type ProgressEvent struct {
	Meta     ExportMeta
	Progress Progress
}

// ProgressFunc is called synchronously once per exported or imported record.
type ProgressFunc func(event ProgressEvent)

// Total returns the sum of all store counts.
func (m ExportMeta) Total() (total int64) {
	for _, s := range m.Stores {
		total += s.Count
	}
	return total
}

func (m ExportMeta) StoreNames() []string {
	out := make([]string, len(m.Stores))
	for i, s := range m.Stores {
		out[i] = s.Name
	}
	return out
}

func (m ExportMeta) ToValue() map[string]any {
	stores := make([]any, len(m.Stores))
	for i, s := range m.Stores {
		stores[i] = map[string]any{"name": s.Name, "count": s.Count}
	}
	return map[string]any{"name": m.Name, "version": m.Version, "stores": stores}
}

func (i ExportItem) ToValue() map[string]any {
	return map[string]any{"storeName": i.StoreName, "key": i.Key, "value": i.Value}
}

func MetaFromValue(value any) (ExportMeta, error) {
	out := ExportMeta{}
	if _, err := decode(value, &out, "name", "version", "stores"); err != nil {
		return out, errors.PrefixError(err, "invalid export metadata")
	}

	errs := errors.NewMultiError()
	if out.Name == "" {
		errs.Append(errors.New(`"name" cannot be empty`))
	}
	if out.Version < 1 {
		errs.Append(errors.Errorf(`"version" must be 1 or greater, found %d`, out.Version))
	}
	seen := make(map[string]bool, len(out.Stores))
	for i, s := range out.Stores {
		switch {
		case s.Name == "":
			errs.Append(errors.Errorf(`"stores[%d].name" cannot be empty`, i))
		case seen[s.Name]:
			errs.Append(errors.Errorf(`store "%s" is defined twice`, s.Name))
		case s.Count < 0:
			errs.Append(errors.Errorf(`"stores[%d].count" cannot be negative`, i))
		}
		seen[s.Name] = true
	}
	if err := errs.ErrorOrNil(); err != nil {
		return out, errors.PrefixError(err, "invalid export metadata")
	}
	return out, nil
}

func ItemFromValue(value any) (ExportItem, error) {
	out := ExportItem{}
	raw, err := decode(value, &out, "storeName", "key", "value")
	if err != nil {
		return out, errors.PrefixError(err, "invalid export item")
	}
	if out.StoreName == "" {
		return out, errors.New(`invalid export item: "storeName" cannot be empty`)
	}
	// Keys and values are kept as they were decoded, nested maps are not converted.
	out.Key = raw["key"]
	out.Value = raw["value"]
	return out, nil
}

// decode checks required fields and decodes the map to the target struct.
func decode(value any, target any, required ...string) (map[string]any, error) {
	var raw map[string]any
	switch v := value.(type) {
	case map[string]any:
		raw = v
	case *orderedmap.OrderedMap:
		raw = v.ToMap()
	default:
		return nil, errors.Errorf(`expected an object, found "%T"`, value)
	}

	for _, k := range required {
		if _, found := raw[k]; !found {
			return nil, errors.Errorf(`missing field "%s"`, k)
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		ErrorUnused:      false,
		WeaklyTypedInput: false,
		ZeroFields:       true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}
	return raw, nil
}
