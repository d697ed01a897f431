// Package configmap binds flags, ENVs and configuration files to a configuration structure.
//
// Each field tagged by the "configKey" tag is a configuration key.
// Optional tags: "configUsage", "configShorthand", "sensitive" and "validate".
package configmap

import (
	"encoding"
	"reflect"
	"strings"
	"time"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const (
	configKeyTag       = "configKey"
	configUsageTag     = "configUsage"
	configShorthandTag = "configShorthand"
	sensitiveTag       = "sensitive"
	tagValuesSeparator = ","
	sensitiveMask      = "*****"
)

// ValueWithNormalization is called after the binding, before the validation.
type ValueWithNormalization interface {
	Normalize()
}

// ValueWithValidation is called after the normalization.
type ValueWithValidation interface {
	Validate() error
}

// Field is a leaf configuration key.
type Field struct {
	// Path is the dot separated path composed from the "configKey" tags, for example "export.batchSize".
	Path      string
	FlagName  string
	Usage     string
	Shorthand string
	Sensitive bool
	Value     reflect.Value
}

// Fields returns all leaf configuration keys of the structure, in the definition order.
func Fields(v any) ([]Field, error) {
	value := reflect.ValueOf(v)
	if value.Kind() == reflect.Pointer {
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil, errors.Errorf(`type "%s" is not a struct or a pointer to a struct`, value.Type().String())
	}

	var out []Field
	visitStruct(value, nil, &out)
	return out, nil
}

func visitStruct(value reflect.Value, path []string, out *[]Field) {
	typ := value.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}

		name, squash, ok := mapField(field)
		if !ok {
			continue
		}

		fieldValue := value.Field(i)
		fieldPath := path
		if !squash {
			fieldPath = append(append([]string(nil), path...), name)
		}

		if !isLeaf(field.Type) {
			if fieldValue.Kind() == reflect.Pointer {
				if fieldValue.IsNil() {
					fieldValue = reflect.New(field.Type.Elem())
				}
				fieldValue = fieldValue.Elem()
			}
			visitStruct(fieldValue, fieldPath, out)
			continue
		}

		key := strings.Join(fieldPath, ".")
		*out = append(*out, Field{
			Path:      key,
			FlagName:  fieldToFlagName(key),
			Usage:     field.Tag.Get(configUsageTag),
			Shorthand: field.Tag.Get(configShorthandTag),
			Sensitive: field.Tag.Get(sensitiveTag) == "true",
			Value:     fieldValue,
		})
	}
}

func mapField(field reflect.StructField) (name string, squash bool, ok bool) {
	tag, found := field.Tag.Lookup(configKeyTag)
	if !found {
		return "", false, false
	}
	parts := strings.Split(tag, tagValuesSeparator)
	name = parts[0]
	if name == "" && len(parts) == 2 && parts[1] == "squash" {
		return "", true, true
	}
	if name == "" || name == "-" {
		return "", false, false
	}
	return name, false, true
}

func isLeaf(typ reflect.Type) bool {
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return true
	}
	if typ == reflect.TypeOf(time.Time{}) {
		return true
	}
	return reflect.PointerTo(typ).Implements(reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem())
}

// textValue converts a leaf value to the flag default or to a dump value.
func textValue(value reflect.Value) (string, bool) {
	if !value.IsValid() {
		return "", false
	}
	if value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return "", true
		}
		value = value.Elem()
	}
	if d, ok := value.Interface().(time.Duration); ok {
		if d == 0 {
			return "", true
		}
		return d.String(), true
	}
	if m, ok := value.Interface().(encoding.TextMarshaler); ok {
		text, err := m.MarshalText()
		if err != nil {
			return "", false
		}
		return string(text), true
	}
	return "", false
}
