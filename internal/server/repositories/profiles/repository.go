// Package profiles persists public handles and privacy settings.
package profiles

import (
	"context"

	"github.com/dmitrijs2005/resumepress/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, ownerID string) (*models.Profile, error)
	GetByHandle(ctx context.Context, handle string) (*models.Profile, error)
	Upsert(ctx context.Context, profile *models.Profile) error

	// UpdateHandle renames the public handle. A unique-constraint race on
	// the new handle is reported as common.ErrConflict.
	UpdateHandle(ctx context.Context, ownerID, handle string) error
	UpdatePrivacy(ctx context.Context, ownerID string, showPhone, showAddress, visible bool) error
	DeleteByOwner(ctx context.Context, ownerID string) error
}
