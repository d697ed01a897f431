// Package sqlitedb is an objectstore backend persisted in one SQLite file.
//
// One file holds many databases. Keys are stored in the order-preserving encoding,
// so the SQLite BLOB comparison matches the key order. Values are stored as codec tokens.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS databases (
	name TEXT PRIMARY KEY,
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stores (
	db TEXT NOT NULL,
	name TEXT NOT NULL,
	key_path TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (db, name),
	FOREIGN KEY (db) REFERENCES databases(name) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS entries (
	db TEXT NOT NULL,
	store TEXT NOT NULL,
	key BLOB NOT NULL,
	value BLOB NOT NULL,
	PRIMARY KEY (db, store, key),
	FOREIGN KEY (db, store) REFERENCES stores(db, name) ON DELETE CASCADE
) WITHOUT ROWID;
`

type Provider struct {
	path   string
	db     *sql.DB
	codec  objectstore.ValueCodec
	logger log.Logger

	// lock serializes schema changes
	lock   sync.Mutex
	closed bool
}

// Open the SQLite file, it is created if it does not exist.
func Open(ctx context.Context, path string, codec objectstore.ValueCodec, logger log.Logger) (*Provider, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.PrefixErrorf(err, `cannot create directory "%s"`, dir)
		}
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot open SQLite file "%s"`, path)
	}

	// SQLite has a single writer, one connection avoids "database is locked" errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.PrefixErrorf(err, `cannot open SQLite file "%s"`, path)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, errors.PrefixError(err, "cannot initialize SQLite schema")
	}

	logger.Debugf(ctx, `Opened SQLite file "%s".`, path)
	return &Provider{path: path, db: db, codec: codec, logger: logger}, nil
}

func (p *Provider) Open(ctx context.Context, name string, version int64, upgrade objectstore.UpgradeFunc) (objectstore.DB, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return nil, objectstore.ErrClosed
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM databases WHERE name = ?`, name).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	newVersion, needsUpgrade, err := objectstore.ResolveVersion(name, current, version)
	if err != nil {
		return nil, err
	}

	if needsUpgrade {
		_, err := tx.ExecContext(ctx, `INSERT INTO databases (name, version) VALUES (?, ?) ON CONFLICT (name) DO UPDATE SET version = excluded.version`, name, newVersion)
		if err != nil {
			return nil, err
		}
		if upgrade != nil {
			s := &schema{ctx: ctx, tx: tx, db: name}
			if err := upgrade(ctx, s, current, newVersion); err != nil {
				return nil, err
			}
			if s.err != nil {
				return nil, s.err
			}
		}
		p.logger.Debugf(ctx, `Database "%s" upgraded from version %d to %d.`, name, current, newVersion)
	}

	stores, err := loadStores(ctx, tx, name)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &handle{provider: p, name: name, version: newVersion, stores: stores}, nil
}

func (p *Provider) Databases(ctx context.Context) ([]objectstore.DatabaseInfo, error) {
	if p.isClosed() {
		return nil, objectstore.ErrClosed
	}

	rows, err := p.db.QueryContext(ctx, `SELECT name, version FROM databases ORDER BY name`)
	if err != nil {
		return nil, err
	}
	var out []objectstore.DatabaseInfo
	for rows.Next() {
		var info objectstore.DatabaseInfo
		if err := rows.Scan(&info.Name, &info.Version); err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	for i := range out {
		stores, err := loadStores(ctx, p.db, out[i].Name)
		if err != nil {
			return nil, err
		}
		for _, name := range sortedNames(stores) {
			out[i].Stores = append(out[i].Stores, stores[name])
		}
	}
	return out, nil
}

func (p *Provider) Delete(ctx context.Context, name string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return objectstore.ErrClosed
	}

	_, err := p.db.ExecContext(ctx, `DELETE FROM databases WHERE name = ?`, name)
	return err
}

func (p *Provider) Close(ctx context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	p.logger.Debugf(ctx, `Closing SQLite file "%s".`, p.path)
	return p.db.Close()
}

func (p *Provider) isClosed() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.closed
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadStores(ctx context.Context, q queryer, db string) (map[string]objectstore.StoreInfo, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, key_path FROM stores WHERE db = ?`, db)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]objectstore.StoreInfo)
	for rows.Next() {
		var info objectstore.StoreInfo
		if err := rows.Scan(&info.Name, &info.KeyPath); err != nil {
			return nil, err
		}
		out[info.Name] = info
	}
	return out, rows.Err()
}

func sortedNames(stores map[string]objectstore.StoreInfo) []string {
	out := make([]string, 0, len(stores))
	for name := range stores {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// schema modifies stores in the upgrade transaction.
type schema struct {
	ctx context.Context
	tx  *sql.Tx
	db  string
	err error
}

func (s *schema) CreateStore(info objectstore.StoreInfo) error {
	if err := objectstore.ValidateStoreInfo(info, s.StoreNames()); err != nil {
		return err
	}
	_, err := s.tx.ExecContext(s.ctx, `INSERT INTO stores (db, name, key_path) VALUES (?, ?, ?)`, s.db, info.Name, info.KeyPath)
	return err
}

func (s *schema) DeleteStore(name string) error {
	_, err := s.tx.ExecContext(s.ctx, `DELETE FROM stores WHERE db = ? AND name = ?`, s.db, name)
	return err
}

func (s *schema) StoreNames() []string {
	stores, err := loadStores(s.ctx, s.tx, s.db)
	if err != nil {
		s.err = err
		return nil
	}
	return sortedNames(stores)
}
