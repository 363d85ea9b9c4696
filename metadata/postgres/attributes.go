package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/metrics"
)

// Get retrieves the attributes of a path
func (s *PostgresStore) Get(ctx context.Context, path string) (*metadata.Attributes, error) {
	defer metrics.ObserveAttributeStore(storeName, "get", time.Now())

	var (
		attrs        metadata.Attributes
		permission   int64
		mtime, atime sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, _SQL_GET_ATTRIBUTES, path).Scan(
		&attrs.Path,
		&permission,
		&attrs.Owner,
		&attrs.Group,
		&mtime,
		&atime,
		&attrs.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attributes: %w", err)
	}

	attrs.Permission = metadata.Permission(permission)
	if mtime.Valid {
		attrs.MTime = mtime.Time
	}
	if atime.Valid {
		attrs.ATime = atime.Time
	}
	return &attrs, nil
}

// Put creates or replaces the attributes of a path
func (s *PostgresStore) Put(ctx context.Context, attrs *metadata.Attributes) error {
	defer metrics.ObserveAttributeStore(storeName, "put", time.Now())

	err := s.db.QueryRowContext(ctx, _SQL_PUT_ATTRIBUTES,
		attrs.Path,
		int64(attrs.Permission),
		attrs.Owner,
		attrs.Group,
		nullTime(attrs.MTime),
		nullTime(attrs.ATime),
	).Scan(&attrs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put attributes: %w", err)
	}
	return nil
}

// Delete removes the attributes of a path and its descendants
func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	defer metrics.ObserveAttributeStore(storeName, "delete", time.Now())

	result, err := s.db.ExecContext(ctx, _SQL_DELETE_SUBTREE, path, metadata.DescendantPattern(path))
	if err != nil {
		return fmt.Errorf("failed to delete attributes: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil {
		s.logger.Debug("Attributes deleted", zap.String("path", path), zap.Int64("rows", n))
	}
	return nil
}

// Rename moves the attributes of src and its descendants below dst, replacing
// whatever dst held.
func (s *PostgresStore) Rename(ctx context.Context, src, dst string) error {
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
	if _, err := tx.ExecContext(ctx, _SQL_DELETE_SUBTREE_EXCEPT,
		dst, metadata.DescendantPattern(dst), src, srcPattern); err != nil {
		return fmt.Errorf("failed to clear rename destination: %w", err)
	}
	if _, err := tx.ExecContext(ctx, _SQL_RENAME_SUBTREE,
		dst, utf8.RuneCountInString(src)+1, src, srcPattern); err != nil {
		return fmt.Errorf("failed to rename attributes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rename: %w", err)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
