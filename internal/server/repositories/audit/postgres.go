package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/resumepress/internal/common"
	"github.com/dmitrijs2005/resumepress/internal/dbx"
)

// PostgresRepository implements audit storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Record(ctx context.Context, subject, action string) error {
	query := `INSERT INTO audit_events (subject, action) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, subject, action); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CountSince(ctx context.Context, subject, action string, since time.Time) (int, error) {
	query := `SELECT count(*) FROM audit_events WHERE subject=$1 AND action=$2 AND created_at >= $3`

	var count int
	if err := r.db.QueryRowContext(ctx, query, subject, action, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) OldestSince(ctx context.Context, subject, action string, since time.Time) (time.Time, error) {
	query := `SELECT min(created_at) FROM audit_events WHERE subject=$1 AND action=$2 AND created_at >= $3`

	var oldest sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, subject, action, since).Scan(&oldest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, common.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to select oldest audit event: %w", err)
	}
	if !oldest.Valid {
		return time.Time{}, common.ErrNotFound
	}
	return oldest.Time, nil
}

func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM audit_events WHERE created_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteBySubject(ctx context.Context, subject string) error {
	query := `DELETE FROM audit_events WHERE subject=$1`
	if _, err := r.db.ExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("failed to delete audit events: %w", err)
	}
	return nil
}
