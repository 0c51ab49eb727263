// Package resumes persists resume parsing jobs. All status transitions are
// single-row conditional updates (compare-and-swap on the current status), so
// racing writers are linearized by the store rather than by in-process locks.
package resumes

import (
	"context"

	"github.com/dmitrijs2005/resumepress/internal/server/models"
)

type Repository interface {
	// Create inserts a new resume row. A unique-constraint race on
	// (owner_id, content_hash) is reported as common.ErrConflict.
	Create(ctx context.Context, resume *models.Resume) error

	GetByID(ctx context.Context, id string) (*models.Resume, error)
	GetByOwnerAndHash(ctx context.Context, ownerID, contentHash string) (*models.Resume, error)
	GetByExternalJobID(ctx context.Context, externalJobID string) (*models.Resume, error)
	// GetLatestCompletedByOwner returns the newest completed resume for an
	// owner. Publication reads through this so an in-flight upload never
	// blanks or stales the published snapshot.
	GetLatestCompletedByOwner(ctx context.Context, ownerID string) (*models.Resume, error)

	// MarkProcessing applies queued→processing and records the external job
	// reference. Returns common.ErrConflict when the row was not in queued.
	MarkProcessing(ctx context.Context, id, externalJobID string) error

	// Complete applies from→completed, writing the normalized payload. The
	// guard on the prior status makes racing completions idempotent: the
	// loser sees common.ErrConflict and treats it as a no-op.
	Complete(ctx context.Context, id string, from models.Status, payload []byte) error

	// Fail applies from→failed with an error message. attempt_count is not
	// touched; only a user-triggered retry increments it.
	Fail(ctx context.Context, id string, from models.Status, message string) error

	// StorePending applies queued→waiting_for_cache, stashing a completion
	// payload that arrived before the row was ready to accept it.
	StorePending(ctx context.Context, id string, payload []byte) error

	// Retry applies failed→queued and increments attempt_count, but only
	// while attempt_count < maxAttempts. Returns common.ErrConflict when no
	// row qualifies; the caller distinguishes exhaustion from a wrong state.
	Retry(ctx context.Context, id string, maxAttempts int) error

	// Reclaim applies failed→queued with attempt_count reset to zero. A
	// re-upload of the same content reclaims the dead row instead of being
	// wedged on the dedup constraint forever.
	Reclaim(ctx context.Context, id string) error

	UpdateContent(ctx context.Context, id string, payload []byte) error
	DeleteByOwner(ctx context.Context, ownerID string) error
}
