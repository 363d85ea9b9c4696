// Package sqlite implements the attribute store on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/metrics"
)

const storeName = "sqlite"

type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens or creates the database at dbPath. ":memory:" gives a
// private in-memory database.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=case_sensitive_like(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	store := &SQLiteStore{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS attributes (
    path TEXT PRIMARY KEY,
    permission INTEGER NOT NULL DEFAULT 0,
    owner TEXT NOT NULL DEFAULT '',
    grp TEXT NOT NULL DEFAULT '',
    mtime TEXT,
    atime TEXT,
    updated_at TEXT NOT NULL
);
`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, path string) (*metadata.Attributes, error) {
	defer metrics.ObserveAttributeStore(storeName, "get", time.Now())

	query := `
		SELECT path, permission, owner, grp, mtime, atime, updated_at
		FROM attributes
		WHERE path = ?`

	var (
		attrs        metadata.Attributes
		permission   int64
		mtime, atime sql.NullString
		updatedAt    string
	)
	err := s.db.QueryRowContext(ctx, query, path).Scan(
		&attrs.Path,
		&permission,
		&attrs.Owner,
		&attrs.Group,
		&mtime,
		&atime,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attributes: %w", err)
	}

	attrs.Permission = metadata.Permission(permission)
	attrs.MTime = parseTimestamp(mtime.String)
	attrs.ATime = parseTimestamp(atime.String)
	attrs.UpdatedAt = parseTimestamp(updatedAt)
	return &attrs, nil
}

func (s *SQLiteStore) Put(ctx context.Context, attrs *metadata.Attributes) error {
	defer metrics.ObserveAttributeStore(storeName, "put", time.Now())

	attrs.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO attributes (path, permission, owner, grp, mtime, atime, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			permission = excluded.permission,
			owner = excluded.owner,
			grp = excluded.grp,
			mtime = excluded.mtime,
			atime = excluded.atime,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		attrs.Path,
		int64(attrs.Permission),
		attrs.Owner,
		attrs.Group,
		nullStringTime(attrs.MTime),
		nullStringTime(attrs.ATime),
		attrs.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to put attributes: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	defer metrics.ObserveAttributeStore(storeName, "delete", time.Now())

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM attributes WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		path, metadata.DescendantPattern(path))
	if err != nil {
		return fmt.Errorf("failed to delete attributes: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Rename(ctx context.Context, src, dst string) error {
	defer metrics.ObserveAttributeStore(storeName, "rename", time.Now())

	if src == "/" {
		return metadata.ErrForbidden
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	srcPattern := metadata.DescendantPattern(src)
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM attributes
		WHERE (path = ? OR path LIKE ? ESCAPE '\')
		  AND NOT (path = ? OR path LIKE ? ESCAPE '\')`,
		dst, metadata.DescendantPattern(dst), src, srcPattern); err != nil {
		return fmt.Errorf("failed to clear rename destination: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE attributes
		SET path = ? || substr(path, ?), updated_at = ?
		WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		dst, utf8.RuneCountInString(src)+1, time.Now().UTC().Format(time.RFC3339Nano), src, srcPattern); err != nil {
		return fmt.Errorf("failed to rename attributes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rename: %w", err)
	}

	s.logger.Debug("Attributes renamed", zap.String("src", src), zap.String("dst", dst))
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}
		}
	}
	return parsed
}

func nullStringTime(value time.Time) sql.NullString {
	if value.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: value.UTC().Format(time.RFC3339Nano), Valid: true}
}
