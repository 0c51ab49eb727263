package resumes

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

// uniqueViolation is the PostgreSQL error code for a unique-constraint breach.
const uniqueViolation = "23505"

// PostgresRepository implements resume storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (r *PostgresRepository) Create(ctx context.Context, resume *models.Resume) error {
	query := `
		INSERT INTO resumes (id, owner_id, storage_key, status, attempt_count, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := r.db.ExecContext(ctx, query,
		resume.ID, resume.OwnerID, resume.StorageKey, resume.Status, resume.AttemptCount, resume.ContentHash)
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectColumns = `id, owner_id, storage_key, status, external_job_id, attempt_count, content_hash, error_message, result_payload, created_at, updated_at`

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Resume, error) {
	item := &models.Resume{}
	err := row.Scan(&item.ID, &item.OwnerID, &item.StorageKey, &item.Status,
		&item.ExternalJobID, &item.AttemptCount, &item.ContentHash,
		&item.ErrorMessage, &item.ResultPayload, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select resume: %w", err)
	}
	return item, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Resume, error) {
	query := `SELECT ` + selectColumns + ` FROM resumes WHERE id=$1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByOwnerAndHash(ctx context.Context, ownerID, contentHash string) (*models.Resume, error) {
	query := `SELECT ` + selectColumns + ` FROM resumes WHERE owner_id=$1 AND content_hash=$2`
	return r.scanOne(r.db.QueryRowContext(ctx, query, ownerID, contentHash))
}

func (r *PostgresRepository) GetByExternalJobID(ctx context.Context, externalJobID string) (*models.Resume, error) {
	query := `SELECT ` + selectColumns + ` FROM resumes WHERE external_job_id=$1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, externalJobID))
}

func (r *PostgresRepository) GetLatestCompletedByOwner(ctx context.Context, ownerID string) (*models.Resume, error) {
	query := `SELECT ` + selectColumns + ` FROM resumes WHERE owner_id=$1 AND status=$2 ORDER BY updated_at DESC LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, ownerID, models.StatusCompleted))
}

// transition runs a conditional update and maps "no rows affected" to
// common.ErrConflict so callers can treat a lost race uniformly.
func (r *PostgresRepository) transition(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) MarkProcessing(ctx context.Context, id, externalJobID string) error {
	query := `
		UPDATE resumes SET status=$1, external_job_id=$2, updated_at=now()
		WHERE id=$3 AND status=$4
	`
	return r.transition(ctx, query, models.StatusProcessing, externalJobID, id, models.StatusQueued)
}

func (r *PostgresRepository) Complete(ctx context.Context, id string, from models.Status, payload []byte) error {
	query := `
		UPDATE resumes SET status=$1, result_payload=$2, error_message='', updated_at=now()
		WHERE id=$3 AND status=$4
	`
	return r.transition(ctx, query, models.StatusCompleted, payload, id, from)
}

func (r *PostgresRepository) Fail(ctx context.Context, id string, from models.Status, message string) error {
	query := `
		UPDATE resumes SET status=$1, error_message=$2, updated_at=now()
		WHERE id=$3 AND status=$4
	`
	return r.transition(ctx, query, models.StatusFailed, message, id, from)
}

func (r *PostgresRepository) StorePending(ctx context.Context, id string, payload []byte) error {
	query := `
		UPDATE resumes SET status=$1, result_payload=$2, updated_at=now()
		WHERE id=$3 AND status=$4
	`
	return r.transition(ctx, query, models.StatusWaitingForCache, payload, id, models.StatusQueued)
}

func (r *PostgresRepository) Retry(ctx context.Context, id string, maxAttempts int) error {
	query := `
		UPDATE resumes SET status=$1, attempt_count=attempt_count+1, external_job_id='', error_message='', updated_at=now()
		WHERE id=$2 AND status=$3 AND attempt_count < $4
	`
	return r.transition(ctx, query, models.StatusQueued, id, models.StatusFailed, maxAttempts)
}

func (r *PostgresRepository) Reclaim(ctx context.Context, id string) error {
	query := `
		UPDATE resumes SET status=$1, attempt_count=0, external_job_id='', error_message='', updated_at=now()
		WHERE id=$2 AND status=$3
	`
	return r.transition(ctx, query, models.StatusQueued, id, models.StatusFailed)
}

func (r *PostgresRepository) UpdateContent(ctx context.Context, id string, payload []byte) error {
	query := `
		UPDATE resumes SET result_payload=$1, updated_at=now()
		WHERE id=$2 AND status=$3
	`
	return r.transition(ctx, query, payload, id, models.StatusCompleted)
}

// DeleteByOwner removes every resume row for an owner. Run inside the
// account-deletion transaction so a partial failure cannot orphan rows.
func (r *PostgresRepository) DeleteByOwner(ctx context.Context, ownerID string) error {
	query := `DELETE FROM resumes WHERE owner_id=$1`
	if _, err := r.db.ExecContext(ctx, query, ownerID); err != nil {
		return fmt.Errorf("failed to delete resumes: %w", err)
	}
	return nil
}
