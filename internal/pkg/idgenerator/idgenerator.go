// nolint: gochecknoglobals
package idgenerator

import gonanoid "github.com/matoous/go-nanoid/v2"

const (
	OperationIdLength          = 15
	SpoolFileSuffixLength      = 8
	EtcdNamespaceForTestLength = 10
)

// alphabet used in ID generation.
var alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// OperationId identifies one export or import run in logs and spans.
func OperationId() string {
	return gonanoid.MustGenerate(alphabet, OperationIdLength)
}

// SpoolFileSuffix makes the name of a temporary artifact file unique.
func SpoolFileSuffix() string {
	return gonanoid.MustGenerate(alphabet, SpoolFileSuffixLength)
}

func EtcdNamespaceForTest() string {
	return gonanoid.MustGenerate(alphabet, EtcdNamespaceForTestLength)
}
