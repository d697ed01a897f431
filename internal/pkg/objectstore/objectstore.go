// Package objectstore defines the host keyed object store consumed by export and import.
//
// A Provider holds named and versioned databases, each database holds stores.
// A store is a sorted map: keys are ordered by the key package, values are arbitrary structured values.
// Each transaction is scoped to one store and is short-lived.
package objectstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/keboola/go-utils/pkg/orderedmap"

	"github.com/keboola/dbsnap/internal/pkg/objectstore/key"
	svcerrors "github.com/keboola/dbsnap/internal/pkg/service/common/errors"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// ErrClosed is returned by any operation on a closed database or provider.
var ErrClosed = errors.New("database is closed")

type Provider interface {
	// Open opens the database. Version 0 opens the current version, a new database is created with version 1.
	// If the requested version is higher than the current one, the upgrade callback is invoked.
	Open(ctx context.Context, name string, version int64, upgrade UpgradeFunc) (DB, error)
	// Databases returns all databases sorted by name.
	Databases(ctx context.Context) ([]DatabaseInfo, error)
	// Delete removes the database and all its stores. It is not an error if the database does not exist.
	Delete(ctx context.Context, name string) error
	Close(ctx context.Context) error
}

// UpgradeFunc modifies the schema when a database is created or its version is increased.
type UpgradeFunc func(ctx context.Context, schema Schema, oldVersion, newVersion int64) error

type Schema interface {
	CreateStore(info StoreInfo) error
	DeleteStore(name string) error
	StoreNames() []string
}

type DB interface {
	Name() string
	Version() int64
	// StoreNames are sorted in ascending order.
	StoreNames() []string
	Store(name string) (StoreInfo, bool)
	View(ctx context.Context, store string, fn func(tx ReadTx) error) error
	Update(ctx context.Context, store string, fn func(tx WriteTx) error) error
	Close(ctx context.Context) error
}

type ReadTx interface {
	Get(ctx context.Context, k any) (value any, found bool, err error)
	Count(ctx context.Context) (int64, error)
	// Cursor iterates entries in ascending key order, strictly after the "after" key, or from the start if it is nil.
	// The cursor is valid only within the transaction.
	Cursor(ctx context.Context, after any) Cursor
}

type WriteTx interface {
	ReadTx
	// Put stores the value. The key must be nil for a store with a key path, the key is then read from the value.
	// The normalized key is returned.
	Put(ctx context.Context, value any, k any) (any, error)
	Delete(ctx context.Context, k any) error
	Clear(ctx context.Context) error
}

type Cursor interface {
	Next() bool
	Key() any
	Value() any
	Err() error
	Close() error
}

// ValueCodec serializes stored values, backends keep only the encoded form.
type ValueCodec interface {
	Encode(ctx context.Context, value any) ([]byte, error)
	Decode(data []byte) (any, error)
}

type DatabaseInfo struct {
	Name    string      `json:"name"`
	Version int64       `json:"version"`
	Stores  []StoreInfo `json:"stores"`
}

type StoreInfo struct {
	Name string `json:"name"`
	// KeyPath is a dotted path of the key inside the value, empty for stores with explicit keys.
	KeyPath string `json:"keyPath,omitempty"`
}

func (v StoreInfo) HasKeyPath() bool {
	return v.KeyPath != ""
}

// VersionError is returned when the requested version is lower than the current version of the database.
type VersionError struct {
	Database  string
	Current   int64
	Requested int64
}

func (e VersionError) Error() string {
	return fmt.Sprintf(`database "%s" has version %d, the requested version %d is lower`, e.Database, e.Current, e.Requested)
}

// DatabaseNotFoundError is returned when an existing database is required, for example by the export.
// It is not part of the coded taxonomy, but it carries a user message.
type DatabaseNotFoundError struct {
	Database string
}

func (e DatabaseNotFoundError) Error() string {
	return fmt.Sprintf(`database "%s" not found`, e.Database)
}

func (e DatabaseNotFoundError) ErrorUserMessage() string {
	return fmt.Sprintf(`Database "%s" not found.`, e.Database)
}

// ResolveVersion returns the version the database should be opened with and whether an upgrade is needed.
func ResolveVersion(name string, current, requested int64) (version int64, upgrade bool, err error) {
	switch {
	case requested < 0:
		return 0, false, errors.Errorf(`invalid version %d of the database "%s"`, requested, name)
	case requested == 0 && current == 0:
		return 1, true, nil
	case requested == 0:
		return current, false, nil
	case requested < current:
		return 0, false, VersionError{Database: name, Current: current, Requested: requested}
	default:
		return requested, requested > current, nil
	}
}

// StoreNotFound returns the taxonomy error for a missing store.
func StoreNotFound(db, store string) error {
	return errors.WithStack(svcerrors.NewStoreNotFoundError(db, store))
}

// ValidateStoreInfo checks the store definition before it is created.
func ValidateStoreInfo(info StoreInfo, existing []string) error {
	if strings.TrimSpace(info.Name) == "" {
		return errors.New("store name cannot be empty")
	}
	for _, name := range existing {
		if name == info.Name {
			return errors.Errorf(`store "%s" already exists`, info.Name)
		}
	}
	return nil
}

// PutKey resolves the key of a put operation, from the explicit key or from the key path.
func PutKey(info StoreInfo, value any, k any) (any, error) {
	if info.HasKeyPath() {
		if k != nil {
			return nil, errors.Errorf(`store "%s" uses key path "%s", an explicit key cannot be provided`, info.Name, info.KeyPath)
		}
		return KeyFromPath(value, info.KeyPath)
	}
	if k == nil {
		return nil, errors.Errorf(`store "%s" has no key path, an explicit key must be provided`, info.Name)
	}
	return key.Normalize(k)
}

// KeyFromPath reads and normalizes the key from the dotted path inside the value.
func KeyFromPath(value any, path string) (any, error) {
	current := value
	for _, part := range strings.Split(path, ".") {
		var found bool
		switch v := current.(type) {
		case *orderedmap.OrderedMap:
			current, found = v.Get(part)
		case map[string]any:
			current, found = v[part]
		}
		if !found {
			return nil, errors.Errorf(`key path "%s" not found in the value`, path)
		}
	}

	k, err := key.Normalize(current)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `invalid key at path "%s"`, path)
	}
	return k, nil
}

// Count returns the number of entries in the store.
func Count(ctx context.Context, db DB, store string) (count int64, err error) {
	err = db.View(ctx, store, func(tx ReadTx) error {
		count, err = tx.Count(ctx)
		return err
	})
	return count, err
}
