package configmap

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/keboola/dbsnap/internal/pkg/env"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const (
	HelpFlag       = "help"
	ConfigFileFlag = "config-file"
)

// BindSpec defines sources of the configuration values.
// Priority: 1. flag, 2. ENV, 3. config file, 4. default value.
type BindSpec struct {
	// Args are command line arguments without the program name, flags are parsed from them.
	Args []string
	// Flags are generated from the target if nil, an existing FlagSet can be passed, for example from a cobra command.
	Flags                  *pflag.FlagSet
	EnvNaming              *env.NamingConvention
	Envs                   env.Provider
	GenerateHelpFlag       bool
	GenerateConfigFileFlag bool
}

// HelpError is returned by Bind, if the help flag is present.
type HelpError struct {
	Help string
}

func (h HelpError) Error() string {
	return "help requested"
}

// Bind values from flags, ENVs and config files to the target structure.
// Fields without a value keep their current value, so the target should be initialized with the defaults.
// Normalize and Validate methods of the target are called at the end, if they are defined.
func Bind(spec BindSpec, target any) error {
	fields, err := Fields(target)
	if err != nil {
		return err
	}

	flags := spec.Flags
	if flags == nil {
		flags = pflag.NewFlagSet("", pflag.ContinueOnError)
		if err := GenerateFlags(flags, target); err != nil {
			return err
		}
		if spec.GenerateHelpFlag {
			flags.BoolP(HelpFlag, "h", false, "print help")
		}
		if spec.GenerateConfigFileFlag {
			flags.StringSlice(ConfigFileFlag, nil, "path to a JSON/YAML configuration file, can be used multiple times")
		}
		if err := flags.Parse(spec.Args); err != nil {
			return errors.Wrap(err, "cannot parse flags")
		}
	}

	if spec.GenerateHelpFlag {
		if help, _ := flags.GetBool(HelpFlag); help {
			return newHelpError(flags, spec)
		}
	}

	// Config files
	var files *viper.Viper
	if spec.GenerateConfigFileFlag {
		paths, _ := flags.GetStringSlice(ConfigFileFlag)
		if files, err = readConfigFiles(paths); err != nil {
			return err
		}
	}

	values := make(map[string]any)
	for _, f := range fields {
		if v, ok := lookupValue(f, flags, spec, files); ok {
			setNested(values, f.Path, v)
		}
	}

	if err := decode(values, target); err != nil {
		return err
	}

	if v, ok := target.(ValueWithNormalization); ok {
		v.Normalize()
	}
	if v, ok := target.(ValueWithValidation); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func lookupValue(f Field, flags *pflag.FlagSet, spec BindSpec, files *viper.Viper) (any, bool) {
	if flag := flags.Lookup(f.FlagName); flag != nil && flag.Changed {
		if slice, ok := flag.Value.(pflag.SliceValue); ok {
			return slice.GetSlice(), true
		}
		return flag.Value.String(), true
	}

	if spec.EnvNaming != nil && spec.Envs != nil && f.FlagName != "" {
		if v, found := spec.Envs.Lookup(spec.EnvNaming.FlagToEnv(f.FlagName)); found {
			return v, true
		}
	}

	// Viper keys are case-insensitive
	if files != nil && files.IsSet(f.Path) {
		return files.Get(f.Path), true
	}

	return nil, false
}

func readConfigFiles(paths []string) (*viper.Viper, error) {
	v := viper.New()
	for i, path := range paths {
		v.SetConfigFile(path)
		var err error
		if i == 0 {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}
		if err != nil {
			return nil, errors.Wrapf(err, `cannot read config file "%s"`, path)
		}
	}
	return v, nil
}

func setNested(m map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

func decode(values map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          configKeyTag,
		WeaklyTypedInput: true,
		Squash:           true,
		Result:           target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return errors.Wrap(err, "cannot create config decoder")
	}
	if err := decoder.Decode(values); err != nil {
		return errors.Wrap(err, "cannot decode configuration")
	}
	return nil
}

func newHelpError(flags *pflag.FlagSet, spec BindSpec) HelpError {
	var b strings.Builder
	b.WriteString("Flags:\n")
	b.WriteString(flags.FlagUsages())
	if spec.EnvNaming != nil && spec.Envs != nil {
		b.WriteString("\nFlags can also be defined as ENV variables.\n")
		b.WriteString(fmt.Sprintf("For example, the flag \"--foo-bar\" becomes the \"%s\" ENV.\n", spec.EnvNaming.FlagToEnv("foo-bar")))
	}
	return HelpError{Help: b.String()}
}

// Dump returns the flat configuration keys with values, sensitive values are masked.
func Dump(v any) (map[string]any, error) {
	fields, err := Fields(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		switch text, ok := textValue(f.Value); {
		case f.Sensitive:
			out[f.Path] = sensitiveMask
		case ok:
			out[f.Path] = text
		default:
			out[f.Path] = f.Value.Interface()
		}
	}
	return out, nil
}
