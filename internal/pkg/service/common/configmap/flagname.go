package configmap

import (
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/umisama/go-regexpcache"
)

// fieldToFlagName converts a config key to a flag name, for example "export.batchSize" -> "export-batch-size".
func fieldToFlagName(fieldName string) string {
	str := regexpcache.
		MustCompile(`[^a-zA-Z0-9]+`).
		ReplaceAllString(strcase.ToDelimited(fieldName, '-'), "-")
	return strings.Trim(str, "-")
}
