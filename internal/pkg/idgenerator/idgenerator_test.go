package idgenerator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIds(t *testing.T) {
	t.Parallel()
	assert.Len(t, OperationId(), OperationIdLength)
	assert.Len(t, SpoolFileSuffix(), SpoolFileSuffixLength)
	assert.Len(t, EtcdNamespaceForTest(), EtcdNamespaceForTestLength)
	assert.NotEqual(t, OperationId(), OperationId())
}
