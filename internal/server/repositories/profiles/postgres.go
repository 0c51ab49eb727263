package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/resumepress/internal/common"
	"github.com/dmitrijs2005/resumepress/internal/dbx"
	"github.com/dmitrijs2005/resumepress/internal/server/models"
)

// PostgresRepository implements profile storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Profile, error) {
	item := &models.Profile{}
	err := row.Scan(&item.OwnerID, &item.Handle, &item.ShowPhone, &item.ShowAddress,
		&item.Visible, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select profile: %w", err)
	}
	return item, nil
}

func (r *PostgresRepository) Get(ctx context.Context, ownerID string) (*models.Profile, error) {
	query := `SELECT owner_id, handle, show_phone, show_address, visible, updated_at
		FROM profiles WHERE owner_id=$1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, ownerID))
}

func (r *PostgresRepository) GetByHandle(ctx context.Context, handle string) (*models.Profile, error) {
	query := `SELECT owner_id, handle, show_phone, show_address, visible, updated_at
		FROM profiles WHERE handle=$1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, handle))
}

func (r *PostgresRepository) Upsert(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (owner_id, handle, show_phone, show_address, visible, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (owner_id)
		DO UPDATE SET
			handle = EXCLUDED.handle,
			show_phone = EXCLUDED.show_phone,
			show_address = EXCLUDED.show_address,
			visible = EXCLUDED.visible,
			updated_at = now();
	`
	_, err := r.db.ExecContext(ctx, query,
		profile.OwnerID, profile.Handle, profile.ShowPhone, profile.ShowAddress, profile.Visible)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return common.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) update(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return common.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateHandle(ctx context.Context, ownerID, handle string) error {
	query := `UPDATE profiles SET handle=$1, updated_at=now() WHERE owner_id=$2`
	return r.update(ctx, query, handle, ownerID)
}

func (r *PostgresRepository) UpdatePrivacy(ctx context.Context, ownerID string, showPhone, showAddress, visible bool) error {
	query := `UPDATE profiles SET show_phone=$1, show_address=$2, visible=$3, updated_at=now()
		WHERE owner_id=$4`
	return r.update(ctx, query, showPhone, showAddress, visible, ownerID)
}

func (r *PostgresRepository) DeleteByOwner(ctx context.Context, ownerID string) error {
	query := `DELETE FROM profiles WHERE owner_id=$1`
	if _, err := r.db.ExecContext(ctx, query, ownerID); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}
