package consistency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/dmitrijs2005/resumepress/internal/common"
	"github.com/dmitrijs2005/resumepress/internal/dbx"
	"github.com/dmitrijs2005/resumepress/internal/logging"
	"github.com/dmitrijs2005/resumepress/internal/server/cache"
	"github.com/dmitrijs2005/resumepress/internal/server/jobs"
	"github.com/dmitrijs2005/resumepress/internal/server/models"
	"github.com/dmitrijs2005/resumepress/internal/server/repositories/repomanager"
)

// Invalidation is the purge fan-out the service drives. Invalidate fails the
// caller on a critical sink error; InvalidateBestEffort never does.
type Invalidation interface {
	Invalidate(ctx context.Context, handles ...string) error
	InvalidateBestEffort(ctx context.Context, handles ...string)
}

type Options struct {
	SnapshotTTL time.Duration
}

// Service publishes privacy-filtered snapshots and serves the public read
// path. It is the only writer of the snapshots table and the only component
// that talks to the snapshot cache, so the filter cannot be bypassed.
type Service struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cache       cache.SnapshotCache
	invalidator Invalidation
	bookmarks   *Bookmarks
	opts        Options
	logger      logging.Logger
}

func NewService(db *sql.DB, rm repomanager.RepositoryManager, snapCache cache.SnapshotCache,
	invalidator Invalidation, bookmarks *Bookmarks, opts Options, logger logging.Logger) *Service {
	return &Service{
		db:          db,
		repomanager: rm,
		cache:       snapCache,
		invalidator: invalidator,
		bookmarks:   bookmarks,
		opts:        opts,
		logger:      logger.With("component", "consistency"),
	}
}

var handlePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,28}[a-z0-9]$`)

// defaultProfile is created on first publication for owners who never set one
// up. Privacy flags default to hidden; the page itself is visible.
func defaultProfile(ownerID string) *models.Profile {
	handle := ownerID
	if len(handle) > 8 {
		handle = handle[:8]
	}
	return &models.Profile{
		OwnerID:     ownerID,
		Handle:      "u-" + handle,
		ShowPhone:   false,
		ShowAddress: false,
		Visible:     true,
	}
}

func (s *Service) profileOrDefault(ctx context.Context, ownerID string) (*models.Profile, error) {
	profile, err := s.repomanager.Profiles(s.db).Get(ctx, ownerID)
	if errors.Is(err, common.ErrNotFound) {
		profile = defaultProfile(ownerID)
		if err := s.repomanager.Profiles(s.db).Upsert(ctx, profile); err != nil {
			return nil, err
		}
		return profile, nil
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// PublishResume rebuilds the owner's snapshot from their latest completed
// resume under the current privacy flags. Called after every extraction
// completion and after every profile or content mutation.
func (s *Service) PublishResume(ctx context.Context, ownerID string) error {
	profile, err := s.profileOrDefault(ctx, ownerID)
	if err != nil {
		return err
	}

	if !profile.Visible {
		// No published page at all for an invisible profile. The purge is
		// privacy-affecting, so it must land.
		if err := s.repomanager.Snapshots(s.db).DeleteByOwner(ctx, ownerID); err != nil {
			return err
		}
		return s.invalidator.Invalidate(ctx, profile.Handle)
	}

	resume, err := s.repomanager.Resumes(s.db).GetLatestCompletedByOwner(ctx, ownerID)
	if errors.Is(err, common.ErrNotFound) || (err == nil && len(resume.ResultPayload) == 0) {
		// Nothing publishable. Remove whatever snapshot is out there rather
		// than leaving a row built under old flags or an old handle.
		if err := s.repomanager.Snapshots(s.db).DeleteByOwner(ctx, ownerID); err != nil {
			return err
		}
		return s.invalidator.Invalidate(ctx, profile.Handle)
	}
	if err != nil {
		return err
	}

	var content models.ResumeContent
	if err := json.Unmarshal(resume.ResultPayload, &content); err != nil {
		return fmt.Errorf("stored payload is not decodable: %w", err)
	}

	filtered, err := json.Marshal(FilterContent(content, profile))
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	snapshot := &models.Snapshot{
		OwnerID:     ownerID,
		Handle:      profile.Handle,
		Content:     filtered,
		PublishedAt: time.Now(),
	}
	if err := s.repomanager.Snapshots(s.db).Upsert(ctx, snapshot); err != nil {
		return err
	}

	// Fresh content, not a privacy change; a stale page within the edge TTL
	// is acceptable.
	s.invalidator.InvalidateBestEffort(ctx, profile.Handle)
	s.logger.Info(ctx, "snapshot published", "owner", ownerID, "handle", profile.Handle)
	return nil
}

// UpdatePrivacy changes the privacy flags and republishes under them. The
// purge is fatal: the old snapshot must not be servable once the flags say
// its fields are private. Returns the read-your-writes bookmark.
func (s *Service) UpdatePrivacy(ctx context.Context, ownerID string, showPhone, showAddress, visible bool) (string, error) {
	profile, err := s.profileOrDefault(ctx, ownerID)
	if err != nil {
		return "", err
	}

	return WithConsistency(s.bookmarks, func() error {
		if err := s.repomanager.Profiles(s.db).UpdatePrivacy(ctx, ownerID, showPhone, showAddress, visible); err != nil {
			return err
		}
		if err := s.invalidator.Invalidate(ctx, profile.Handle); err != nil {
			return err
		}
		return s.PublishResume(ctx, ownerID)
	})
}

// RenameHandle moves the public page to a new handle. Both the old and the
// new tag are purged in one call so the former handle stops serving
// immediately. A taken handle surfaces as common.ErrConflict.
func (s *Service) RenameHandle(ctx context.Context, ownerID, newHandle string) (string, error) {
	if !handlePattern.MatchString(newHandle) {
		return "", fmt.Errorf("%w: handle must be 3-30 chars of a-z, 0-9 and hyphens", common.ErrValidation)
	}

	profile, err := s.profileOrDefault(ctx, ownerID)
	if err != nil {
		return "", err
	}
	oldHandle := profile.Handle

	return WithConsistency(s.bookmarks, func() error {
		if err := s.repomanager.Profiles(s.db).UpdateHandle(ctx, ownerID, newHandle); err != nil {
			return err
		}
		if err := s.invalidator.Invalidate(ctx, oldHandle, newHandle); err != nil {
			return err
		}
		return s.PublishResume(ctx, ownerID)
	})
}

// UpdateContent applies an owner's manual edit to their completed resume and
// republishes. Edits run through the same normalization as extracted output,
// so the caps and sentinel defaults hold for both onramps.
func (s *Service) UpdateContent(ctx context.Context, ownerID, resumeID string, raw json.RawMessage) (string, error) {
	normalized, err := jobs.Normalize(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s", common.ErrValidation, err.Error())
	}

	resume, err := s.repomanager.Resumes(s.db).GetByID(ctx, resumeID)
	if err != nil {
		return "", err
	}
	if resume.OwnerID != ownerID {
		return "", common.ErrNotFound
	}
	if resume.Status != models.StatusCompleted {
		return "", fmt.Errorf("%w: resume is %s, content can only be edited after completion", common.ErrValidation, resume.Status)
	}

	return WithConsistency(s.bookmarks, func() error {
		if err := s.repomanager.Resumes(s.db).UpdateContent(ctx, resume.ID, normalized); err != nil {
			return err
		}
		return s.PublishResume(ctx, ownerID)
	})
}

// PublicPage serves /p/<handle>. A live bookmark routes past the cache to the
// primary so the writer reads their own write; everyone else is cache-first.
// Cache trouble degrades to a primary read, never to an error.
func (s *Service) PublicPage(ctx context.Context, handle, bookmark string) (*models.Snapshot, error) {
	fresh := s.bookmarks.Live(bookmark)

	if !fresh {
		body, hit, err := s.cache.GetSnapshot(ctx, handle)
		if err != nil {
			s.logger.Warn(ctx, "snapshot cache read failed", "handle", handle, "error", err.Error())
		} else if hit {
			return &models.Snapshot{Handle: handle, Content: body}, nil
		}
	}

	snapshot, err := s.repomanager.Snapshots(s.db).GetByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetSnapshot(ctx, handle, snapshot.Content, s.opts.SnapshotTTL); err != nil {
		s.logger.Warn(ctx, "snapshot cache write failed", "handle", handle, "error", err.Error())
	}
	return snapshot, nil
}

// DeleteAccount removes every row the owner has in one transaction, then
// purges the public page. Stored objects are reclaimed by the bucket's
// lifecycle policy, not here.
func (s *Service) DeleteAccount(ctx context.Context, ownerID string) error {
	profile, err := s.repomanager.Profiles(s.db).Get(ctx, ownerID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Snapshots(tx).DeleteByOwner(ctx, ownerID); err != nil {
			return err
		}
		if err := s.repomanager.Resumes(tx).DeleteByOwner(ctx, ownerID); err != nil {
			return err
		}
		if err := s.repomanager.Profiles(tx).DeleteByOwner(ctx, ownerID); err != nil {
			return err
		}
		return s.repomanager.Audit(tx).DeleteBySubject(ctx, ownerID)
	})
	if err != nil {
		return err
	}

	if profile != nil {
		if err := s.invalidator.Invalidate(ctx, profile.Handle); err != nil {
			return err
		}
	}
	s.logger.Info(ctx, "account deleted", "owner", ownerID)
	return nil
}
