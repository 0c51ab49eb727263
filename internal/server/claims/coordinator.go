package claims

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/resumepress/internal/common"
	"github.com/dmitrijs2005/resumepress/internal/logging"
	"github.com/dmitrijs2005/resumepress/internal/server/models"
	"github.com/dmitrijs2005/resumepress/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/resumepress/internal/server/storage"
)

// Coordinator drives the upload → claim flow.
type Coordinator struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	gateway     storage.Gateway
	issuer      *TokenIssuer
	logger      logging.Logger
}

func NewCoordinator(db *sql.DB, rm repomanager.RepositoryManager, gateway storage.Gateway,
	issuer *TokenIssuer, logger logging.Logger) *Coordinator {
	return &Coordinator{
		db:          db,
		repomanager: rm,
		gateway:     gateway,
		issuer:      issuer,
		logger:      logger.With("component", "claims"),
	}
}

// UploadGrant is what an anonymous uploader receives: a presigned PUT URL
// and the claim-check token to present after login.
type UploadGrant struct {
	UploadURL  string
	ClaimToken string
	StorageKey string
}

// BeginUpload mints an anonymous storage key, presigns it for upload and
// issues the claim-check token over (key, hash). Nothing is persisted: an
// upload that is never claimed simply expires with its token.
func (c *Coordinator) BeginUpload(ctx context.Context, contentHash string) (*UploadGrant, error) {
	if contentHash == "" {
		return nil, fmt.Errorf("%w: missing content hash", common.ErrValidation)
	}

	key := storage.AnonymousKey()

	url, err := c.gateway.SignPut(ctx, key)
	if err != nil {
		c.logger.Error(ctx, "presign failed", "error", err.Error())
		return nil, fmt.Errorf("%w: object store unavailable", common.ErrTransientService)
	}

	token, err := c.issuer.Issue(key, contentHash)
	if err != nil {
		return nil, fmt.Errorf("issue claim token: %w", err)
	}

	return &UploadGrant{UploadURL: url, ClaimToken: token, StorageKey: key}, nil
}

// Claim binds an anonymous upload to ownerID exactly once.
//
// The flow is idempotent under double submission: a second claim with the
// same token either finds the already-created row (directly, or by losing
// the unique-constraint race and re-reading) and returns it as not-fresh.
// A completed row for the same (owner, hash) short-circuits without paying
// for a second extraction. A failed row is reclaimed back to queued with a
// fresh attempt budget so identical content is never permanently unclaimable.
//
// On a storage move failure no row is created and the token stays claimable.
func (c *Coordinator) Claim(ctx context.Context, tokenString, ownerID string) (resume *models.Resume, fresh bool, err error) {
	storageKey, contentHash, err := c.issuer.Verify(tokenString)
	if err != nil {
		return nil, false, err
	}

	resumeRepo := c.repomanager.Resumes(c.db)

	existing, err := resumeRepo.GetByOwnerAndHash(ctx, ownerID, contentHash)
	if err == nil {
		if existing.Status == models.StatusFailed {
			// Re-uploading the same content reclaims the dead row with a
			// clean attempt budget instead of wedging on the dedup key.
			return c.reclaimFailed(ctx, existing)
		}
		c.logger.Info(ctx, "claim deduplicated", "owner", ownerID, "status", string(existing.Status))
		return existing, false, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}

	ownerKey := storage.OwnerKey(ownerID)
	if err := c.gateway.Copy(ctx, storageKey, ownerKey); err != nil {
		c.logger.Error(ctx, "storage move failed", "error", err.Error())
		return nil, false, fmt.Errorf("%w: storage move failed", common.ErrTransientService)
	}

	candidate := &models.Resume{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		StorageKey:  ownerKey,
		Status:      models.StatusQueued,
		ContentHash: contentHash,
	}

	if err := resumeRepo.Create(ctx, candidate); err != nil {
		if errors.Is(err, common.ErrConflict) {
			// Lost the double-claim race; the winner's row is the result.
			winner, selErr := resumeRepo.GetByOwnerAndHash(ctx, ownerID, contentHash)
			if selErr != nil {
				return nil, false, selErr
			}
			c.cleanupOwnerCopy(ctx, ownerKey)
			return winner, false, nil
		}
		return nil, false, err
	}

	// The anonymous object is no longer needed; reclamation is best effort.
	if err := c.gateway.Delete(ctx, storageKey); err != nil {
		c.logger.Warn(ctx, "anonymous object cleanup failed", "key", storageKey, "error", err.Error())
	}

	c.logger.Info(ctx, "upload claimed", "owner", ownerID, "resume_id", candidate.ID)
	return candidate, true, nil
}

// reclaimFailed resets a failed dedup hit back to queued with a zero attempt
// count. The conditional update tolerates a racing retry or reclaim; whatever
// state the row landed in is returned, reported fresh when it is queued so the
// caller resubmits.
func (c *Coordinator) reclaimFailed(ctx context.Context, existing *models.Resume) (*models.Resume, bool, error) {
	repo := c.repomanager.Resumes(c.db)

	err := repo.Reclaim(ctx, existing.ID)
	if err != nil && !errors.Is(err, common.ErrConflict) {
		return nil, false, err
	}

	current, err := repo.GetByID(ctx, existing.ID)
	if err != nil {
		return nil, false, err
	}

	c.logger.Info(ctx, "failed upload reclaimed", "owner", existing.OwnerID, "resume_id", existing.ID)
	return current, current.Status == models.StatusQueued && current.ExternalJobID == "", nil
}

func (c *Coordinator) cleanupOwnerCopy(ctx context.Context, key string) {
	if err := c.gateway.Delete(ctx, key); err != nil {
		c.logger.Warn(ctx, "duplicate owner copy cleanup failed", "key", key, "error", err.Error())
	}
}
