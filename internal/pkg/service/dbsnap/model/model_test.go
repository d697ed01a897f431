package model_test

import (
	"testing"

	"github.com/keboola/go-utils/pkg/orderedmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/model"
)

func TestExportMeta(t *testing.T) {
	t.Parallel()

	meta := model.ExportMeta{
		Name:    "app",
		Version: 3,
		Stores:  []model.StoreMeta{{Name: "users", Count: 2}, {Name: "settings", Count: 5}},
	}
	assert.Equal(t, int64(7), meta.Total())
	assert.Equal(t, []string{"users", "settings"}, meta.StoreNames())

	decoded, err := model.MetaFromValue(meta.ToValue())
	require.NoError(t, err)
	assert.Equal(t, meta, decoded)
}

func TestMetaFromValue_Ordered(t *testing.T) {
	t.Parallel()

	value := orderedmap.New()
	value.Set("name", "app")
	value.Set("version", int64(1))
	value.Set("stores", []any{})

	meta, err := model.MetaFromValue(value)
	require.NoError(t, err)
	assert.Equal(t, "app", meta.Name)
	assert.Empty(t, meta.Stores)
}

func TestMetaFromValue_Invalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		value    any
		expected string
	}{
		{value: "foo", expected: "invalid export metadata: expected an object, found \"string\""},
		{value: map[string]any{"name": "app", "version": int64(1)}, expected: "invalid export metadata: missing field \"stores\""},
		{
			value:    map[string]any{"name": "", "version": int64(0), "stores": []any{}},
			expected: "invalid export metadata:\n- \"name\" cannot be empty\n- \"version\" must be 1 or greater, found 0",
		},
		{
			value: map[string]any{"name": "app", "version": int64(1), "stores": []any{
				map[string]any{"name": "users", "count": int64(1)},
				map[string]any{"name": "users", "count": int64(1)},
				map[string]any{"name": "", "count": int64(1)},
				map[string]any{"name": "logs", "count": int64(-1)},
			}},
			expected: "invalid export metadata:\n- store \"users\" is defined twice\n- \"stores[2].name\" cannot be empty\n- \"stores[3].count\" cannot be negative",
		},
	}

	for _, tc := range cases {
		_, err := model.MetaFromValue(tc.value)
		require.Error(t, err)
		assert.Equal(t, tc.expected, err.Error())
	}

	_, err := model.MetaFromValue(map[string]any{"name": []any{}, "version": int64(1), "stores": []any{}})
	assert.Error(t, err)
}

func TestExportItem(t *testing.T) {
	t.Parallel()

	item := model.ExportItem{
		StoreName: "users",
		Key:       float64(1),
		Value:     map[string]any{"name": "John", "age": int64(18)},
	}

	decoded, err := model.ItemFromValue(item.ToValue())
	require.NoError(t, err)
	assert.Equal(t, item, decoded)

	_, err = model.ItemFromValue(map[string]any{"storeName": "users", "value": nil})
	require.Error(t, err)
	assert.Equal(t, "invalid export item: missing field \"key\"", err.Error())

	_, err = model.ItemFromValue(map[string]any{"storeName": "", "key": nil, "value": nil})
	require.Error(t, err)
	assert.Equal(t, `invalid export item: "storeName" cannot be empty`, err.Error())
}
