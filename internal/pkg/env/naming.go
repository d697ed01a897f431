package env

import (
	"strings"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// NamingConvention maps flag names to ENV names, for example "log-file" -> "DBSNAP_LOG_FILE".
type NamingConvention struct {
	prefix string
}

func NewNamingConvention(prefix string) *NamingConvention {
	return &NamingConvention{prefix: prefix}
}

// FlagToEnv converts a flag name, dots of nested config fields are converted to an underscore.
func (n *NamingConvention) FlagToEnv(flagName string) string {
	if len(flagName) == 0 {
		panic(errors.New("flag name cannot be empty"))
	}

	return n.prefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(flagName))
}

// Files returns names of the loaded dotenv files, the first has the highest priority.
func Files() []string {
	return []string{".env.local", ".env"}
}
