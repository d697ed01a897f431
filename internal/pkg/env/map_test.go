package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	t.Parallel()

	m := FromMap(map[string]string{"dbsnap_batch_size": "10", "FOO": "bar"})
	v, found := m.Lookup("DBSNAP_BATCH_SIZE")
	assert.True(t, found)
	assert.Equal(t, "10", v)
	assert.Equal(t, []string{"DBSNAP_BATCH_SIZE=10", "FOO=bar"}, m.ToSlice())

	_, err := m.GetOrErr("missing")
	require.EqualError(t, err, `missing ENV variable "MISSING"`)

	clone := m.Clone()
	clone.Unset("foo")
	assert.Equal(t, "bar", m.Get("foo"))
	assert.Empty(t, clone.Get("foo"))

	clone.Merge(FromMap(map[string]string{"FOO": "new", "DBSNAP_BATCH_SIZE": "20"}), false)
	assert.Equal(t, map[string]string{"DBSNAP_BATCH_SIZE": "10", "FOO": "new"}, clone.ToMap())

	str, err := clone.ToString()
	require.NoError(t, err)
	assert.Equal(t, "DBSNAP_BATCH_SIZE=10\nFOO=\"new\"", str)
}
