// Package json is a thin wrapper around json-iterator, compatible with encoding/json.
// Numbers are decoded as json.Number, so integers wider than float64 precision are not lost.
package json

import (
	"bytes"

	jsoniter "github.com/json-iterator/go"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

type Number = jsoniter.Number

// nolint: gochecknoglobals
var api = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

func Encode(v any, pretty bool) ([]byte, error) {
	var out []byte
	var err error
	if pretty {
		out, err = api.MarshalIndent(v, "", "  ")
	} else {
		out, err = api.Marshal(v)
	}
	if err != nil {
		return nil, errors.Wrap(err, "json encoding error")
	}
	return out, nil
}

func EncodeString(v any, pretty bool) (string, error) {
	out, err := Encode(v, pretty)
	return string(out), err
}

func MustEncodeString(v any, pretty bool) string {
	out, err := EncodeString(v, pretty)
	if err != nil {
		panic(err)
	}
	return out
}

func Decode(data []byte, v any) error {
	if err := api.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "json decoding error")
	}
	return nil
}

func DecodeString(data string, v any) error {
	return Decode([]byte(data), v)
}

// Valid reports whether data is exactly one JSON value.
func Valid(data []byte) bool {
	return api.Valid(bytes.TrimSpace(data))
}

// NewIterator returns a streaming iterator over data, used by the value codec.
func NewIterator(data []byte) *jsoniter.Iterator {
	return jsoniter.ParseBytes(api, data)
}

// NewStream returns a streaming writer, used by the value codec.
func NewStream() *jsoniter.Stream {
	return jsoniter.NewStream(api, nil, 256)
}
