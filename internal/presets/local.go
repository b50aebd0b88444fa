package presets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iwvelando/tank-quote/internal/tank"
	"github.com/iwvelando/tank-quote/pkg/constants"
	_ "github.com/tursodatabase/go-libsql"
)

const createKVTable = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// LocalSource keeps every preset as one JSON array under a single key in a
// libsql database. The array is rewritten whole on each change.
type LocalSource struct {
	db  *sql.DB
	key string
	own bool
}

// OpenLocalSource opens the libsql database at dsn and prepares it.
func OpenLocalSource(ctx context.Context, dsn string) (*LocalSource, error) {
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open preset database: %w", err)
	}
	src, err := NewLocalSource(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	src.own = true
	return src, nil
}

// NewLocalSource uses an already open database.
func NewLocalSource(ctx context.Context, db *sql.DB) (*LocalSource, error) {
	if _, err := db.ExecContext(ctx, createKVTable); err != nil {
		return nil, fmt.Errorf("failed to prepare preset table: %w", err)
	}
	return &LocalSource{db: db, key: constants.PresetStorageKey}, nil
}

// Close closes the database if OpenLocalSource opened it.
func (l *LocalSource) Close() error {
	if !l.own {
		return nil
	}
	return l.db.Close()
}

func (l *LocalSource) List(ctx context.Context) ([]tank.Preset, error) {
	return l.read(ctx, l.db)
}

func (l *LocalSource) Save(ctx context.Context, name string, params tank.TankParams) error {
	return l.modify(ctx, func(list []tank.Preset) []tank.Preset {
		return append(without(list, name), tank.Preset{Name: name, Params: params})
	})
}

func (l *LocalSource) Delete(ctx context.Context, name string) error {
	return l.modify(ctx, func(list []tank.Preset) []tank.Preset {
		return without(list, name)
	})
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (l *LocalSource) read(ctx context.Context, q queryer) ([]tank.Preset, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, l.key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []tank.Preset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read presets: %w", err)
	}

	var list []tank.Preset
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("stored presets are not valid JSON: %w", err)
	}
	if list == nil {
		list = []tank.Preset{}
	}
	return list, nil
}

func (l *LocalSource) modify(ctx context.Context, fn func([]tank.Preset) []tank.Preset) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin preset transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	list, err := l.read(ctx, tx)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(sortByName(fn(list)))
	if err != nil {
		return fmt.Errorf("failed to encode presets: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`, l.key, string(encoded)); err != nil {
		return fmt.Errorf("failed to write presets: %w", err)
	}
	return tx.Commit()
}
