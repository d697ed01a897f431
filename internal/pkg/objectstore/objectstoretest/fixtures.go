package objectstoretest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keboola/dbsnap/internal/pkg/objectstore"
)

// Record is a key-value pair of a store.
type Record struct {
	Key   any
	Value any
}

// CreateDatabase creates the database with the stores at version 1, the handle is closed on the test cleanup.
func CreateDatabase(t *testing.T, p objectstore.Provider, name string, stores ...objectstore.StoreInfo) objectstore.DB {
	t.Helper()
	db, err := p.Open(context.Background(), name, 1, CreateStores(stores...))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close(context.Background())
	})
	return db
}

// Put records to the store in one write transaction.
// The key is ignored by key-path stores.
func Put(t *testing.T, db objectstore.DB, store string, records ...Record) {
	t.Helper()
	info, found := db.Store(store)
	require.True(t, found, store)
	require.NoError(t, db.Update(context.Background(), store, func(tx objectstore.WriteTx) error {
		for _, r := range records {
			k := r.Key
			if info.HasKeyPath() {
				k = nil
			}
			if _, err := tx.Put(context.Background(), r.Value, k); err != nil {
				return err
			}
		}
		return nil
	}))
}

// Dump returns all records of the store in the key order.
func Dump(t *testing.T, db objectstore.DB, store string) (out []Record) {
	t.Helper()
	require.NoError(t, db.View(context.Background(), store, func(tx objectstore.ReadTx) error {
		c := tx.Cursor(context.Background(), nil)
		defer c.Close()
		for c.Next() {
			out = append(out, Record{Key: c.Key(), Value: c.Value()})
		}
		return c.Err()
	}))
	return out
}

// Clear removes all records of the store.
func Clear(t *testing.T, db objectstore.DB, store string) {
	t.Helper()
	require.NoError(t, db.Update(context.Background(), store, func(tx objectstore.WriteTx) error {
		return tx.Clear(context.Background())
	}))
}
