package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// SchemaVersion is the current audit database schema version.
const SchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL DEFAULT '',
    started_at INTEGER NOT NULL,
    duration_ns INTEGER NOT NULL,
    requested TEXT NOT NULL,
    evaluated TEXT NOT NULL,
    outcomes TEXT NOT NULL,
    facts TEXT,
    failed_count INTEGER NOT NULL DEFAULT 0,
    recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_records_started_at ON audit_records(started_at);
CREATE INDEX IF NOT EXISTS idx_audit_records_subject_id ON audit_records(subject_id);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const (
	insertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`
	getSchemaVersion    = `SELECT MAX(version) FROM schema_version`

	upsertRecord = `
		INSERT OR REPLACE INTO audit_records (
			id, subject_id, started_at, duration_ns,
			requested, evaluated, outcomes, facts,
			failed_count, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	selectColumns = `id, subject_id, started_at, duration_ns, requested, evaluated, outcomes, facts`
)

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file.
	Path string `yaml:"path"`

	// MaxOpenConns caps open connections (default: 10).
	MaxOpenConns int `yaml:"max_open_conns"`

	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging.
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait for locks.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage stores records in a SQLite database.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	insert *sql.Stmt
	get    *sql.Stmt
	logger *slog.Logger
}

// NewSQLiteStorage opens (creating if needed) the database at config.Path.
func NewSQLiteStorage(config *SQLiteConfig, logger *slog.Logger) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audit.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, newStorageError("sqlite", "open", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	s := &SQLiteStorage{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("audit storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return newStorageError("sqlite", "enable_wal", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return newStorageError("sqlite", "set_busy_timeout", err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return newStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(insertSchemaVersion, SchemaVersion); err != nil {
		return newStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(getSchemaVersion).Scan(&version); err != nil {
		return newStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return newStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	var err error
	if s.insert, err = s.db.Prepare(upsertRecord); err != nil {
		return newStorageError("sqlite", "prepare_insert", err)
	}
	if s.get, err = s.db.Prepare(`SELECT ` + selectColumns + ` FROM audit_records WHERE id = ?`); err != nil {
		return newStorageError("sqlite", "prepare_get", err)
	}
	return nil
}

// Store persists record, replacing any record with the same ID.
func (s *SQLiteStorage) Store(ctx context.Context, record *Record) error {
	requested, err := json.Marshal(record.Requested)
	if err != nil {
		return newStorageError("sqlite", "store", err)
	}
	evaluated, err := json.Marshal(record.Evaluated)
	if err != nil {
		return newStorageError("sqlite", "store", err)
	}
	outcomes, err := json.Marshal(record.Outcomes)
	if err != nil {
		return newStorageError("sqlite", "store", err)
	}
	var facts any
	if record.Facts != nil {
		b, err := json.Marshal(record.Facts)
		if err != nil {
			return newStorageError("sqlite", "store", err)
		}
		facts = string(b)
	}

	_, err = s.insert.ExecContext(ctx,
		record.ID, record.SubjectID, record.StartedAt.UnixNano(), int64(record.Duration),
		string(requested), string(evaluated), string(outcomes), facts,
		record.Failed(), time.Now().UnixNano(),
	)
	if err != nil {
		return newStorageError("sqlite", "store", err)
	}
	return nil
}

// Get returns the record with id.
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := scanRecord(s.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newStorageError("sqlite", "get", err)
	}
	return rec, nil
}

// List returns records matching q, newest first.
func (s *SQLiteStorage) List(ctx context.Context, q *Query) ([]*Record, error) {
	if q == nil {
		q = &Query{}
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if q.SubjectID != "" {
		where = append(where, "subject_id = ?")
		args = append(args, q.SubjectID)
	}
	if q.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if q.Until != nil {
		where = append(where, "started_at < ?")
		args = append(args, q.Until.UnixNano())
	}
	if q.FailedOnly {
		where = append(where, "failed_count > 0")
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + selectColumns + ` FROM audit_records`)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY started_at DESC, id ASC")
	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit == 0 {
			limit = -1
		}
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, newStorageError("sqlite", "list", err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, newStorageError("sqlite", "list", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("sqlite", "list", err)
	}
	return records, nil
}

// Prune deletes records started before the cutoff.
func (s *SQLiteStorage) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_records WHERE started_at < ?`, before.UnixNano())
	if err != nil {
		return 0, newStorageError("sqlite", "prune", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, newStorageError("sqlite", "prune", err)
	}
	s.logger.Debug("pruned audit records", "deleted_count", n, "before", before)
	return n, nil
}

// Close releases the prepared statements and the database.
func (s *SQLiteStorage) Close() error {
	if s.insert != nil {
		s.insert.Close()
	}
	if s.get != nil {
		s.get.Close()
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                            Record
		startedAt, duration            int64
		requested, evaluated, outcomes string
		facts                          sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.SubjectID, &startedAt, &duration, &requested, &evaluated, &outcomes, &facts); err != nil {
		return nil, err
	}
	rec.StartedAt = time.Unix(0, startedAt).UTC()
	rec.Duration = time.Duration(duration)

	if err := json.Unmarshal([]byte(requested), &rec.Requested); err != nil {
		return nil, fmt.Errorf("decode requested: %w", err)
	}
	if err := json.Unmarshal([]byte(evaluated), &rec.Evaluated); err != nil {
		return nil, fmt.Errorf("decode evaluated: %w", err)
	}
	if err := json.Unmarshal([]byte(outcomes), &rec.Outcomes); err != nil {
		return nil, fmt.Errorf("decode outcomes: %w", err)
	}
	if facts.Valid {
		rec.Facts = make(map[string]ast.Value)
		if err := json.Unmarshal([]byte(facts.String), &rec.Facts); err != nil {
			return nil, fmt.Errorf("decode facts: %w", err)
		}
	}
	return &rec, nil
}
