package iterator_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/dbsnap/internal/pkg/service/common/etcdop/iterator"
	"github.com/keboola/dbsnap/internal/pkg/utils/etcdhelper"
)

func TestIterator(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		kvCount  int
		pageSize int
	}{
		{name: "empty", kvCount: 0, pageSize: 3},
		{name: "count 1, under page size", kvCount: 1, pageSize: 3},
		{name: "count 1, equal to page size", kvCount: 1, pageSize: 1},
		{name: "count 3, equal to page size", kvCount: 3, pageSize: 3},
		{name: "count 7, page size 3", kvCount: 7, pageSize: 3},
		{name: "count 10, page size 1", kvCount: 10, pageSize: 1},
	}

	ctx := context.Background()
	client := etcdhelper.ClientForTest(t)

	for _, tc := range cases {
		prefix := "iterator/" + fmt.Sprintf("%02d", tc.kvCount) + "-" + fmt.Sprintf("%02d", tc.pageSize) + "/"
		expected := generateKVs(t, ctx, client, prefix, tc.kvCount)

		// Not part of the prefix
		_, err := client.Put(ctx, prefix[:len(prefix)-1], "outside")
		require.NoError(t, err)

		kvs, err := iterator.New(prefix, iterator.WithPageSize(tc.pageSize)).Do(ctx, client).All()
		require.NoError(t, err, tc.name)

		var actual []string
		for _, kv := range kvs {
			actual = append(actual, string(kv.Key))
		}
		assert.Equal(t, expected, actual, tc.name)
	}
}

func TestIterator_WithAfter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := etcdhelper.ClientForTest(t)
	keys := generateKVs(t, ctx, client, "after/", 5)

	var actual []string
	err := iterator.New("after/", iterator.WithPageSize(2), iterator.WithAfter("foo002")).Do(ctx, client).
		ForEach(func(kv *iterator.KeyValue, _ *iterator.Header) error {
			actual = append(actual, string(kv.Key))
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, keys[2:], actual)
}

func TestIterator_Revision(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := etcdhelper.ClientForTest(t)
	generateKVs(t, ctx, client, "rev/", 3)

	itr := iterator.New("rev/", iterator.WithPageSize(1)).Do(ctx, client)
	require.True(t, itr.Next())
	revision := itr.Revision()

	// A key added after the first page is not visible, all pages are loaded from the same revision
	_, err := client.Put(ctx, "rev/foo000", "new")
	require.NoError(t, err)

	count := 1
	for itr.Next() {
		count++
	}
	require.NoError(t, itr.Err())
	assert.Equal(t, 3, count)
	assert.Equal(t, revision, itr.Revision())
}

func TestIterator_Cancelled(t *testing.T) {
	t.Parallel()

	client := etcdhelper.ClientForTest(t)
	generateKVs(t, context.Background(), client, "cancel/", 3)

	ctx, cancel := context.WithCancel(context.Background())
	itr := iterator.New("cancel/", iterator.WithPageSize(1)).Do(ctx, client)
	require.True(t, itr.Next())
	cancel()
	assert.False(t, itr.Next())
	assert.ErrorIs(t, itr.Err(), context.Canceled)
}

func TestIterator_Value_UsedIncorrectly(t *testing.T) {
	t.Parallel()

	client := etcdhelper.ClientForTest(t)
	itr := iterator.New("some/prefix/").Do(context.Background(), client)
	assert.PanicsWithError(t, "unexpected Value() call: Next() must be called first", func() {
		itr.Value()
	})
}

func TestWithPageSize_Invalid(t *testing.T) {
	t.Parallel()
	assert.PanicsWithError(t, "page size must be greater than 0", func() {
		iterator.WithPageSize(0)
	})
}

func generateKVs(t *testing.T, ctx context.Context, client etcd.KV, prefix string, count int) []string {
	t.Helper()
	var keys []string
	for i := 1; i <= count; i++ {
		key := fmt.Sprintf("%sfoo%03d", prefix, i)
		_, err := client.Put(ctx, key, fmt.Sprintf("bar%03d", i))
		require.NoError(t, err)
		keys = append(keys, key)
	}
	return keys
}
