package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvNamingConvention(t *testing.T) {
	t.Parallel()
	n := NewNamingConvention("DBSNAP_")
	assert.Equal(t, "DBSNAP_FOO", n.FlagToEnv("foo"))
	assert.Equal(t, "DBSNAP_FOO_BAR", n.FlagToEnv("foo-bar"))
	assert.Equal(t, "DBSNAP_FOO_BAR_BAZ", n.FlagToEnv("foo-Bar-BAZ"))
	assert.Equal(t, "DBSNAP_STORE_ETCD_ENDPOINT", n.FlagToEnv("store.etcd-endpoint"))
}

func TestEnvNamingConventionFlagNameEmpty(t *testing.T) {
	t.Parallel()
	n := NewNamingConvention("DBSNAP_")
	assert.PanicsWithError(t, "flag name cannot be empty", func() {
		n.FlagToEnv("")
	})
}
