package codec_test

import (
	"context"
	"math"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/keboola/go-utils/pkg/orderedmap"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/keboola/dbsnap/internal/pkg/service/common/errors"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/blob"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/codec"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := codec.New()

	cases := []struct {
		name  string
		value any
	}{
		{name: "nil", value: nil},
		{name: "bool", value: true},
		{name: "string", value: "multi\nline \"quoted\"   text"},
		{name: "empty string", value: ""},
		{name: "int", value: int64(42)},
		{name: "negative int", value: int64(-42)},
		{name: "max uint", value: uint64(math.MaxUint64)},
		{name: "float", value: 1.5},
		{name: "whole float", value: 100.0},
		{name: "large float", value: 1e300},
		{name: "zero", value: 0.0},
		{name: "negative zero", value: math.Copysign(0, -1)},
		{name: "positive infinity", value: math.Inf(1)},
		{name: "negative infinity", value: math.Inf(-1)},
		{name: "date", value: time.Date(2024, 2, 29, 12, 30, 0, 123456789, time.UTC)},
		{name: "date year 20000", value: time.Date(20000, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "date year -1", value: time.Date(-1, 12, 31, 23, 59, 59, 1, time.UTC)},
		{name: "date year 0", value: time.Date(0, 2, 29, 0, 0, 0, 0, time.UTC)},
		{name: "array", value: []any{int64(1), "two", nil, []any{}}},
		{name: "object", value: map[string]any{"name": "John", "age": int64(18), "$ref": "escaped", "$$": "double"}},
		{name: "empty object", value: map[string]any{}},
		{name: "bytes", value: []byte{0, 1, 2, 255}},
		{name: "empty bytes", value: []byte{}},
		{name: "int8 array", value: []int8{-128, 0, 127}},
		{name: "int16 array", value: []int16{-1, 2}},
		{name: "uint16 array", value: []uint16{65535}},
		{name: "int32 array", value: []int32{math.MinInt32}},
		{name: "uint32 array", value: []uint32{math.MaxUint32}},
		{name: "int64 array", value: []int64{math.MinInt64, math.MaxInt64}},
		{name: "uint64 array", value: []uint64{math.MaxUint64}},
		{name: "float32 array", value: []float32{1.25, float32(math.Inf(-1))}},
		{name: "float64 array", value: []float64{math.Copysign(0, -1), math.MaxFloat64}},
		{
			name: "nested extended values",
			value: map[string]any{
				"values":  []any{math.Inf(1), math.Copysign(0, -1), time.Unix(0, 0).UTC()},
				"object":  map[string]any{"$Date": "not a date, just a key"},
				"numbers": []float64{1, 2},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			token, err := c.Encode(ctx, tc.value)
			require.NoError(t, err)
			assert.NotContains(t, string(token), "\n")

			decoded, err := c.Decode(token)
			require.NoError(t, err)
			assert.Equal(t, tc.value, decoded, string(token))
		})
	}
}

func TestCodec_ExpandedYear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := codec.New()

	token, err := c.EncodeString(ctx, time.Date(20000, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, `{"$Date":"+020000-01-01T00:00:00Z"}`, token)

	token, err = c.EncodeString(ctx, time.Date(-1, 6, 1, 12, 0, 0, 500, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, `{"$Date":"-000001-06-01T12:00:00.0000005Z"}`, token)

	token, err = c.EncodeString(ctx, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, `{"$Date":"9999-12-31T00:00:00Z"}`, token)
}

func TestCodec_NegativeZero(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := codec.New()

	negative, err := c.EncodeString(ctx, math.Copysign(0, -1))
	require.NoError(t, err)
	assert.Equal(t, `{"$NegativeZero":""}`, negative)

	positive, err := c.EncodeString(ctx, 0.0)
	require.NoError(t, err)
	assert.Equal(t, `0.0`, positive)

	decoded, err := c.DecodeString(negative)
	require.NoError(t, err)
	assert.True(t, math.Signbit(decoded.(float64)))

	decoded, err = c.DecodeString(positive)
	require.NoError(t, err)
	assert.False(t, math.Signbit(decoded.(float64)))
}

func TestCodec_NaN(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := codec.New()

	token, err := c.EncodeString(ctx, math.NaN())
	require.NoError(t, err)
	assert.Equal(t, `{"$NaN":""}`, token)

	decoded, err := c.DecodeString(token)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(decoded.(float64)))
}

func TestCodec_NestedSpecialNumbers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := codec.New()

	value := map[string]any{
		"numbers": []any{math.NaN(), math.Inf(1), math.Inf(-1), 1.5},
		"count":   int64(2),
	}

	token, err := c.EncodeString(ctx, value)
	require.NoError(t, err)

	decoded, err := c.DecodeString(token)
	require.NoError(t, err)

	// NaN != NaN, assert.Equal cannot be used
	if diff := cmp.Diff(value, decoded, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("unexpected decoded value (-want +got):\n%s", diff)
	}
}

func TestCodec_Deterministic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := codec.New()

	value := map[string]any{
		"b":  []any{true, nil, 1.5},
		"a":  1,
		"$c": "x",
		"d":  map[string]int{"z": 1, "y": 2},
	}

	expected := `{"$$c":"x","a":1,"b":[true,null,1.5],"d":{"y":2,"z":1}}`
	for range 10 {
		token, err := c.EncodeString(ctx, value)
		require.NoError(t, err)
		assert.Equal(t, expected, token)
	}
}

func TestCodec_OrderedMap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	value := orderedmap.New()
	value.Set("z", 1)
	value.Set("a", "x")

	token, err := codec.New().EncodeString(ctx, value)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":"x"}`, token)

	decoded, err := codec.New(codec.WithOrderedMaps()).DecodeString(token)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a"}, decoded.(*orderedmap.OrderedMap).Keys())

	decoded, err = codec.New().DecodeString(token)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"z": int64(1), "a": "x"}, decoded)
}

func TestCodec_RegExp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := codec.New()

	token, err := c.EncodeString(ctx, regexp.MustCompile(`(?i)^a+b$`))
	require.NoError(t, err)
	assert.Equal(t, `{"$RegExp":"(?i)^a+b$"}`, token)

	decoded, err := c.DecodeString(token)
	require.NoError(t, err)
	assert.Equal(t, `(?i)^a+b$`, decoded.(*regexp.Regexp).String())
}

func TestCodec_Blob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := codec.New(codec.WithFetchConcurrency(2))

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/photo.png", []byte("PNG content"), 0o600))
	fileBlob, err := blob.FromFile(fs, "/photo.png", "image/png")
	require.NoError(t, err)

	blobs := []*blob.Blob{
		blob.FromBytes("", nil),
		blob.FromString("text/plain", "hello"),
		fileBlob,
		blob.FromBytes("application/x-large", []byte(strings.Repeat("x", 100000))),
	}

	values := make([]any, len(blobs))
	for i, b := range blobs {
		values[i] = map[string]any{"file": b}
	}

	token, err := c.EncodeString(ctx, values)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, `[{"file":{"$Blob":["application/octet-stream",""]}},{"file":{"$Blob":["text/plain","aGVsbG8="]}}`), token)

	decoded, err := c.DecodeString(token)
	require.NoError(t, err)
	items := decoded.([]any)
	require.Len(t, items, len(blobs))
	for i, item := range items {
		equal, err := blob.Equal(ctx, blobs[i], item.(map[string]any)["file"].(*blob.Blob))
		require.NoError(t, err)
		assert.True(t, equal, "blob %d", i)
	}

	// Missing file
	require.NoError(t, fs.Remove("/photo.png"))
	_, err = c.Encode(ctx, fileBlob)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot fetch deferred value")

	// Cancelled context
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = c.Encode(cancelled, blob.FromString("", "data"))
	assert.ErrorIs(t, err, context.Canceled)
}

type point struct {
	X, Y int
}

type pointPlugin struct{}

func (pointPlugin) Name() string {
	return "Point"
}

func (pointPlugin) Test(value any) bool {
	_, ok := value.(point)
	return ok
}

func (pointPlugin) Encode(value any, _ codec.Deferrer) (any, error) {
	p := value.(point)
	return []any{p.X, p.Y}, nil
}

func (pointPlugin) Decode(form any) (any, error) {
	items, ok := form.([]any)
	if !ok || len(items) != 2 {
		return nil, errors.New("expected [x, y]")
	}
	x, _ := items[0].(int64)
	y, _ := items[1].(int64)
	return point{X: int(x), Y: int(y)}, nil
}

// lazyPlugin defers again in the fetch, which cannot be resolved.
type lazyPlugin struct{}

type lazy struct{}

func (lazyPlugin) Name() string {
	return "Lazy"
}

func (lazyPlugin) Test(value any) bool {
	_, ok := value.(lazy)
	return ok
}

func (lazyPlugin) Encode(_ any, d codec.Deferrer) (any, error) {
	return d.Defer(func(ctx context.Context) (any, error) {
		return lazy{}, nil
	}), nil
}

func (lazyPlugin) Decode(form any) (any, error) {
	return lazy{}, nil
}

func TestCodec_CustomPlugin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := codec.New(codec.WithPlugins(pointPlugin{}))
	assert.Len(t, c.Plugins(), len(codec.DefaultPlugins())+1)

	token, err := c.EncodeString(ctx, []any{point{X: 1, Y: -2}})
	require.NoError(t, err)
	assert.Equal(t, `[{"$Point":[1,-2]}]`, token)

	decoded, err := c.DecodeString(token)
	require.NoError(t, err)
	assert.Equal(t, []any{point{X: 1, Y: -2}}, decoded)

	// Without the plugin, the struct is not supported
	_, err = codec.New().Encode(ctx, point{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported value type "codec_test.point"`)

	// Only custom plugins, infinity cannot be encoded
	_, err = codec.New(codec.WithOnlyPlugins(pointPlugin{})).Encode(ctx, math.Inf(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `number "+Inf" cannot be encoded without a plugin`)

	// Plugin names are unique
	assert.Panics(t, func() {
		codec.New(codec.WithPlugins(codec.DatePlugin{}))
	})
}

func TestCodec_UnresolvedPlaceholder(t *testing.T) {
	t.Parallel()

	_, err := codec.New(codec.WithPlugins(lazyPlugin{})).Encode(context.Background(), lazy{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved placeholder of a deferred value")
}

func TestCodec_DecodeError(t *testing.T) {
	t.Parallel()
	c := codec.New()

	cases := []struct {
		token    string
		expected string
	}{
		{token: "", expected: "empty token"},
		{token: "   ", expected: "empty token"},
		{token: "{", expected: "invalid JSON"},
		{token: `[1,`, expected: "invalid JSON"},
		{token: `"abc`, expected: "invalid JSON"},
		{token: `xyz`, expected: "invalid JSON"},
		{token: `1 2`, expected: "unexpected data after the value"},
		{token: `{"$Unknown":1}`, expected: `unknown extended type "Unknown"`},
		{token: `{"$Date":"yesterday"}`, expected: `invalid extended type "Date"`},
		{token: `{"$Date":"+02023-01-01T00:00:00Z"}`, expected: `invalid extended type "Date"`},
		{token: `{"$Date":"+020001-02-29T00:00:00Z"}`, expected: `invalid extended type "Date"`},
		{token: `{"$Blob":["text/plain"]}`, expected: `invalid extended type "Blob"`},
		{token: `{"$Blob":["text/plain","!!!"]}`, expected: `invalid extended type "Blob"`},
		{token: `{"$TypedArray":["Int16Array","AA=="]}`, expected: `invalid extended type "TypedArray"`},
		{token: `{"$TypedArray":["Foo","AA=="]}`, expected: `invalid extended type "TypedArray"`},
		{token: `{"$Infinity":"big"}`, expected: `invalid extended type "Infinity"`},
		{token: `{"$Date":"2020-01-01T00:00:00Z","a":1}`, expected: `extended type key "$Date" cannot be mixed with other keys`},
	}

	for _, tc := range cases {
		_, err := c.DecodeString(tc.token)
		require.Error(t, err, tc.token)
		assert.Equal(t, svcerrors.CodeDataError, svcerrors.Code(err), tc.token)
		assert.Contains(t, err.Error(), tc.expected, tc.token)
	}
}
