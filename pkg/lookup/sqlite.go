package lookup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/meridian/pkg/dsl/ast"
)

// SQLiteConfig configures a SQLiteProvider.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" keeps the database in memory.
	Path string
	// BusyTimeout is how long to wait for locks (default: 5s).
	BusyTimeout time.Duration
}

// SQLiteProvider serves lookups from the lookup_entries table. Values are
// stored as JSON.
type SQLiteProvider struct {
	db         *sql.DB
	lookupStmt *sql.Stmt
	putStmt    *sql.Stmt
}

// NewSQLiteProvider opens (and if needed creates) the lookup database.
func NewSQLiteProvider(cfg SQLiteConfig) (*SQLiteProvider, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports a single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	p := &SQLiteProvider{db: db}
	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := p.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return p, nil
}

func (p *SQLiteProvider) initSchema() error {
	_, err := p.db.Exec(`
	CREATE TABLE IF NOT EXISTS lookup_entries (
		table_name TEXT NOT NULL,
		key TEXT NOT NULL,
		value_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (table_name, key)
	);
	`)
	return err
}

func (p *SQLiteProvider) prepareStatements() error {
	var err error
	p.lookupStmt, err = p.db.Prepare(`SELECT value_json FROM lookup_entries WHERE table_name = ? AND key = ?`)
	if err != nil {
		return err
	}
	p.putStmt, err = p.db.Prepare(`
		INSERT INTO lookup_entries (table_name, key, value_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (table_name, key) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`)
	return err
}

// Lookup implements eval.LookupProvider.
func (p *SQLiteProvider) Lookup(ctx context.Context, table, key string) (ast.Value, bool, error) {
	var raw string
	err := p.lookupStmt.QueryRowContext(ctx, table, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ast.Null(), false, nil
	}
	if err != nil {
		return ast.Null(), false, fmt.Errorf("query lookup %s[%s]: %w", table, key, err)
	}
	var v ast.Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return ast.Null(), false, fmt.Errorf("decode lookup %s[%s]: %w", table, key, err)
	}
	return v, true, nil
}

// Put inserts or replaces a row.
func (p *SQLiteProvider) Put(ctx context.Context, table, key string, v ast.Value) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode lookup value: %w", err)
	}
	if _, err := p.putStmt.ExecContext(ctx, table, key, string(data), time.Now().Unix()); err != nil {
		return fmt.Errorf("store lookup %s[%s]: %w", table, key, err)
	}
	return nil
}

// Import stores every row of tables in one transaction.
func (p *SQLiteProvider) Import(ctx context.Context, tables map[string]map[string]ast.Value) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	stmt := tx.StmtContext(ctx, p.putStmt)
	now := time.Now().Unix()
	for table, rows := range tables {
		for key, v := range rows {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode %s[%s]: %w", table, key, err)
			}
			if _, err := stmt.ExecContext(ctx, table, key, string(data), now); err != nil {
				return fmt.Errorf("store %s[%s]: %w", table, key, err)
			}
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (p *SQLiteProvider) Close() error {
	if p.lookupStmt != nil {
		p.lookupStmt.Close()
	}
	if p.putStmt != nil {
		p.putStmt.Close()
	}
	return p.db.Close()
}
