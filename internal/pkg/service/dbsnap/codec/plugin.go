package codec

import (
	"context"
)

// Plugin recognizes and reconstructs a special value shape.
//
// Encode converts the value to a form composed of plain values: nil, bool, string, numbers, []any and map[string]any.
// The form is encoded recursively, so it can contain other special values.
// Decode gets the form back, with special values already decoded.
type Plugin interface {
	Name() string
	Test(value any) bool
	Encode(value any, d Deferrer) (any, error)
	Decode(form any) (any, error)
}

// Deferrer postpones a slow part of the encoding, for example reading bytes of a file-backed blob.
// Defer returns a placeholder, which can be used in the form.
// All fetches run concurrently after the whole value is traversed, then the placeholders are substituted.
type Deferrer interface {
	Defer(fetch FetchFunc) any
}

// FetchFunc returns a plain value which replaces the placeholder.
type FetchFunc func(ctx context.Context) (any, error)

// DefaultPlugins returns built-in plugins in the order they are tried.
func DefaultPlugins() []Plugin {
	return []Plugin{
		NegativeZeroPlugin{},
		InfinityPlugin{},
		NaNPlugin{},
		DatePlugin{},
		RegExpPlugin{},
		BlobPlugin{},
		TypedArrayPlugin{},
	}
}
