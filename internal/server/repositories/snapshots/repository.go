// Package snapshots persists the privacy-filtered, render-ready public pages.
// Snapshots are derived data: rebuildable from the resume row plus the
// current profile, replaced whole on every publish.
package snapshots

import (
	"context"

	"github.com/dmitrijs2005/resumepress/internal/server/models"
)

type Repository interface {
	GetByHandle(ctx context.Context, handle string) (*models.Snapshot, error)
	Upsert(ctx context.Context, snapshot *models.Snapshot) error
	DeleteByOwner(ctx context.Context, ownerID string) error
}
