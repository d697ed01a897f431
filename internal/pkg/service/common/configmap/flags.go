package configmap

import (
	"reflect"

	"github.com/spf13/pflag"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

func MustGenerateFlags(fs *pflag.FlagSet, v any) {
	if err := GenerateFlags(fs, v); err != nil {
		panic(err)
	}
}

// GenerateFlags generates flags from the configuration structure.
// Current values of the structure are used as the flags default values.
func GenerateFlags(fs *pflag.FlagSet, v any) error {
	fields, err := Fields(v)
	if err != nil {
		return errors.Wrap(err, "cannot generate flags")
	}

	for _, f := range fields {
		if f.FlagName == "" {
			continue
		}

		// Durations, sizes and other text types are string flags
		if text, ok := textValue(f.Value); ok {
			fs.StringP(f.FlagName, f.Shorthand, text, f.Usage)
			continue
		}

		value := f.Value
		if value.Kind() == reflect.String {
			// Custom string types
			fs.StringP(f.FlagName, f.Shorthand, value.String(), f.Usage)
			continue
		}

		switch v := value.Interface().(type) {
		case int:
			fs.IntP(f.FlagName, f.Shorthand, v, f.Usage)
		case int64:
			fs.Int64P(f.FlagName, f.Shorthand, v, f.Usage)
		case uint:
			fs.UintP(f.FlagName, f.Shorthand, v, f.Usage)
		case uint64:
			fs.Uint64P(f.FlagName, f.Shorthand, v, f.Usage)
		case float64:
			fs.Float64P(f.FlagName, f.Shorthand, v, f.Usage)
		case bool:
			fs.BoolP(f.FlagName, f.Shorthand, v, f.Usage)
		case []string:
			fs.StringSliceP(f.FlagName, f.Shorthand, v, f.Usage)
		case []int:
			fs.IntSliceP(f.FlagName, f.Shorthand, v, f.Usage)
		default:
			return errors.Errorf(`unexpected type "%T" of the field "%s", please implement the encoding.TextMarshaler interface`, v, f.Path)
		}
	}
	return nil
}
