package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/resumepress/internal/common"
	"github.com/dmitrijs2005/resumepress/internal/dbx"
	"github.com/dmitrijs2005/resumepress/internal/server/models"
)

// PostgresRepository implements snapshot storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByHandle(ctx context.Context, handle string) (*models.Snapshot, error) {
	query := `SELECT owner_id, handle, content, published_at FROM snapshots WHERE handle=$1`

	item := &models.Snapshot{}
	err := r.db.QueryRowContext(ctx, query, handle).
		Scan(&item.OwnerID, &item.Handle, &item.Content, &item.PublishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select snapshot: %w", err)
	}
	return item, nil
}

// Upsert replaces the snapshot for an owner in one statement. The handle is
// rewritten too, so a rename republishes under the new handle atomically.
func (r *PostgresRepository) Upsert(ctx context.Context, snapshot *models.Snapshot) error {
	query := `
		INSERT INTO snapshots (owner_id, handle, content, published_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (owner_id)
		DO UPDATE SET
			handle = EXCLUDED.handle,
			content = EXCLUDED.content,
			published_at = now();
	`
	if _, err := r.db.ExecContext(ctx, query, snapshot.OwnerID, snapshot.Handle, snapshot.Content); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByOwner(ctx context.Context, ownerID string) error {
	query := `DELETE FROM snapshots WHERE owner_id=$1`
	if _, err := r.db.ExecContext(ctx, query, ownerID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
