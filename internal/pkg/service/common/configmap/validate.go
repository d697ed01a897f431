package configmap

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslation "github.com/go-playground/validator/v10/translations/en"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// nolint: gochecknoglobals
var (
	validateOnce       sync.Once
	validateInstance   *validator.Validate
	validateTranslator ut.Translator
)

// ValidateStruct validates the "validate" tags of the configuration structure.
// Errors are reported using the configuration keys, for example "export.batchSize".
func ValidateStruct(v any) error {
	validateOnce.Do(func() {
		validateInstance = validator.New(validator.WithRequiredStructEnabled())

		// Register default EN translator
		enLocale := en.New()
		translator, found := ut.New(enLocale, enLocale).GetTranslator("en")
		if !found {
			panic(errors.New("en translator was not found"))
		}
		if err := enTranslation.RegisterDefaultTranslations(validateInstance, translator); err != nil {
			panic(errors.PrefixError(err, "translator was not registered"))
		}
		validateTranslator = translator

		validateInstance.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, ok := mapField(field)
			if !ok {
				return field.Name
			}
			return name
		})
	})

	err := validateInstance.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	errs := errors.NewMultiError()
	for _, e := range validationErrs {
		errs.Append(errors.Errorf(`"%s" %s`, configKeyPath(e.Namespace()), translate(e)))
	}
	return errs.ErrorOrNil()
}

// configKeyPath removes the root struct name from the namespace and squashed fields.
func configKeyPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	out := parts[:0]
	for _, p := range parts[1:] {
		if p == "" || p[0] >= 'A' && p[0] <= 'Z' {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, ".")
}

// translate returns the translated message without the leading field name, it is replaced by the full key path.
func translate(e validator.FieldError) string {
	msg := e.Translate(validateTranslator)
	if rest, found := strings.CutPrefix(msg, e.Field()+" "); found {
		return rest
	}
	return msg
}
