package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/descriptions/pkg/entity"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: is a separate database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database connection and enables WAL mode for file
// databases.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if s.cfg.Path != MemoryPath {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Put creates or replaces the entity stored under id, bumping its version.
func (s *SQLiteStore) Put(ctx context.Context, id string, data entity.Entity) (*Record, error) {
	return s.put(ctx, id, data, nil)
}

// PutIfVersion replaces the entity only while its stored version equals
// version. A version of 0 requires that the entity does not exist yet.
func (s *SQLiteStore) PutIfVersion(ctx context.Context, id string, data entity.Entity, version int64) (*Record, error) {
	return s.put(ctx, id, data, &version)
}

func (s *SQLiteStore) put(ctx context.Context, id string, data entity.Entity, expected *int64) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("entity id is required")
	}
	if data == nil {
		data = entity.Entity{}
	}
	blob, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity %s: %w", id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	var createdAt time.Time
	err = tx.QueryRowContext(ctx, `SELECT version, created_at FROM entities WHERE id = ?`, id).Scan(&current, &createdAt)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read entity %s: %w", id, err)
	}

	if expected != nil && *expected != current {
		return nil, fmt.Errorf("%w: %s at version %d, expected %d", ErrVersionConflict, id, current, *expected)
	}

	now := time.Now().UTC()
	if exists {
		_, err = tx.ExecContext(ctx,
			`UPDATE entities SET data = ?, version = version + 1, updated_at = ? WHERE id = ?`,
			string(blob), now, id)
	} else {
		createdAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO entities (id, data, version, created_at, updated_at) VALUES (?, ?, 1, ?, ?)`,
			id, string(blob), now, now)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write entity %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit entity %s: %w", id, err)
	}

	return &Record{
		ID:        id,
		Data:      data,
		Version:   current + 1,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}, nil
}

// Get retrieves an entity by ID
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	query := `
		SELECT id, data, version, created_at, updated_at
		FROM entities
		WHERE id = ?
	`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}

	return rec, nil
}

// List lists entities ordered by ID with pagination
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, data, version, created_at, updated_at
		FROM entities
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}

	return records, nil
}

// Delete deletes an entity by ID
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	rec := &Record{}
	var blob string
	if err := row.Scan(&rec.ID, &blob, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(blob), &rec.Data); err != nil {
		return nil, fmt.Errorf("failed to decode entity %s: %w", rec.ID, err)
	}
	return rec, nil
}

// AppendAudit appends an entry to the edit audit log
func (s *SQLiteStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO edit_audit (entity_id, view, field, action, actor, old_value, new_value, version, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		entry.EntityID,
		entry.View,
		entry.Field,
		entry.Action,
		entry.Actor,
		entry.OldValue,
		entry.NewValue,
		entry.Version,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry ID: %w", err)
	}

	entry.ID = id
	return nil
}

// ListAudit lists audit entries, newest first
func (s *SQLiteStore) ListAudit(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	query := `
		SELECT id, entity_id, view, field, action, actor, old_value, new_value, version, timestamp
		FROM edit_audit
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.EntityID != "" {
		query += " AND entity_id = ?"
		args = append(args, filter.EntityID)
	}
	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, filter.Action)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry := &AuditEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.EntityID,
			&entry.View,
			&entry.Field,
			&entry.Action,
			&entry.Actor,
			&entry.OldValue,
			&entry.NewValue,
			&entry.Version,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// AuditValue encodes v as a JSON audit value. Nil stays nil.
func AuditValue(v interface{}) *string {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		s := fmt.Sprintf("%q", fmt.Sprint(v))
		return &s
	}
	s := string(b)
	return &s
}
