package codec

import (
	"context"
	"encoding/base64"

	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/blob"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// BlobPlugin encodes a binary payload as [mediaType, base64 content].
// The content is read by a deferred fetch, so file-backed blobs are read concurrently.
type BlobPlugin struct{}

func (BlobPlugin) Name() string {
	return "Blob"
}

func (BlobPlugin) Test(value any) bool {
	b, ok := value.(*blob.Blob)
	return ok && b != nil
}

func (BlobPlugin) Encode(value any, d Deferrer) (any, error) {
	b := value.(*blob.Blob)
	content := d.Defer(func(ctx context.Context) (any, error) {
		data, err := b.Bytes(ctx)
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.EncodeToString(data), nil
	})
	return []any{b.Type(), content}, nil
}

func (BlobPlugin) Decode(form any) (any, error) {
	mediaType, encoded, err := pairForm(form)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.New("invalid base64 content")
	}
	return blob.FromBytes(mediaType, data), nil
}

// pairForm parses the [string, string] form.
func pairForm(form any) (string, string, error) {
	items, ok := form.([]any)
	if !ok || len(items) != 2 {
		return "", "", errors.New("expected an array with 2 items")
	}
	first, ok1 := items[0].(string)
	second, ok2 := items[1].(string)
	if !ok1 || !ok2 {
		return "", "", errors.New("expected an array of 2 strings")
	}
	return first, second, nil
}
