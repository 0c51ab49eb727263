package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dmitrijs2005/resumepress/internal/common"
	"github.com/dmitrijs2005/resumepress/internal/logging"
	"github.com/dmitrijs2005/resumepress/internal/server/extraction"
	"github.com/dmitrijs2005/resumepress/internal/server/models"
	"github.com/dmitrijs2005/resumepress/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/resumepress/internal/server/storage"
)

// resumeSchema is the target schema sent to the extraction vendor.
var resumeSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"full_name": {"type": "string"},
		"headline": {"type": "string"},
		"summary": {"type": "string"},
		"email": {"type": "string"},
		"phone": {"type": "string"},
		"address": {"type": "string"},
		"work": {"type": "array"},
		"education": {"type": "array"},
		"skills": {"type": "array"}
	}
}`)

// Publisher pushes a fresh privacy-filtered snapshot after a resume reaches
// completed. Implemented by the consistency layer.
type Publisher interface {
	PublishResume(ctx context.Context, ownerID string) error
}

// Options bounds the state machine's retry and polling behavior.
type Options struct {
	MaxAttempts       int
	MaxTransientPolls int
	CallbackBaseURL   string
}

// Service drives one parsing job from claim to a terminal state.
type Service struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	gateway     storage.Gateway
	client      extraction.Client
	publisher   Publisher
	opts        Options
	logger      logging.Logger

	// transientPolls counts consecutive vendor-unreachable polls per resume
	// so the client can be steered to the waiting view. UX state only; it
	// never gates a state transition.
	transientPolls *expirable.LRU[string, int]
}

func NewService(db *sql.DB, rm repomanager.RepositoryManager, gateway storage.Gateway,
	client extraction.Client, publisher Publisher, opts Options, logger logging.Logger) *Service {
	return &Service{
		db:             db,
		repomanager:    rm,
		gateway:        gateway,
		client:         client,
		publisher:      publisher,
		opts:           opts,
		logger:         logger.With("component", "jobs"),
		transientPolls: expirable.NewLRU[string, int](1024, nil, 10*time.Minute),
	}
}

// PollStatus is what the polling client sees: the current row plus a hint to
// switch to the longer-lived waiting view when the vendor has been
// unreachable for too many consecutive polls.
type PollStatus struct {
	Resume      *models.Resume
	WaitingView bool
}

// Submit sends a queued resume to the extraction vendor and records the
// external job reference (queued→processing). A transient vendor failure
// leaves the row queued for the next attempt; a lost CAS means another
// request already submitted, which is not an error.
func (s *Service) Submit(ctx context.Context, resume *models.Resume) error {
	fileURL, err := s.gateway.SignGet(ctx, resume.StorageKey)
	if err != nil {
		s.logger.Error(ctx, "presign for submission failed", "resume_id", resume.ID, "error", err.Error())
		return fmt.Errorf("%w: object store unavailable", common.ErrTransientService)
	}

	result, err := s.client.Submit(ctx, extraction.SubmitRequest{
		FileURL:     fileURL,
		Schema:      resumeSchema,
		CallbackURL: s.opts.CallbackBaseURL + "/api/webhooks/extraction",
	})
	if err != nil {
		s.logger.Warn(ctx, "extraction submit failed", "resume_id", resume.ID, "error", err.Error())
		return err
	}

	err = s.repomanager.Resumes(s.db).MarkProcessing(ctx, resume.ID, result.JobID)
	if errors.Is(err, common.ErrConflict) {
		// Another request won the submission race; its job reference stands.
		s.logger.Debug(ctx, "submission race lost", "resume_id", resume.ID)
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "extraction job submitted", "resume_id", resume.ID, "external_job_id", result.JobID)
	return nil
}

// ApplyCompletion is the single reducer both completion paths feed. Applying
// the same event twice is a no-op: the first application moves the row to a
// terminal state and every later one observes that and stops.
func (s *Service) ApplyCompletion(ctx context.Context, ev CompletionEvent) (*models.Resume, error) {
	repo := s.repomanager.Resumes(s.db)

	var resume *models.Resume
	var err error
	switch {
	case ev.ResumeID != "":
		resume, err = repo.GetByID(ctx, ev.ResumeID)
	case ev.ExternalJobID != "":
		resume, err = repo.GetByExternalJobID(ctx, ev.ExternalJobID)
	default:
		return nil, fmt.Errorf("%w: completion event without job reference", common.ErrValidation)
	}
	if err != nil {
		return nil, err
	}

	if resume.Status.Terminal() {
		return resume, nil
	}

	switch ev.Status {
	case extraction.StatusCompleted:
		return s.applySuccess(ctx, resume, ev)
	case extraction.StatusFailed:
		return s.applyFailure(ctx, resume, ev)
	default:
		// Vendor still working; nothing to apply.
		return resume, nil
	}
}

func (s *Service) applySuccess(ctx context.Context, resume *models.Resume, ev CompletionEvent) (*models.Resume, error) {
	repo := s.repomanager.Resumes(s.db)

	normalized, err := Normalize(ev.Output)
	if err != nil {
		// Schema rejection is a job failure, not a transport error.
		s.logger.Warn(ctx, "normalization rejected payload", "resume_id", resume.ID, "error", err.Error())
		if failErr := repo.Fail(ctx, resume.ID, resume.Status, err.Error()); failErr != nil && !errors.Is(failErr, common.ErrConflict) {
			return nil, failErr
		}
		return repo.GetByID(ctx, resume.ID)
	}

	switch resume.Status {
	case models.StatusQueued:
		// Result arrived before the row was ready to accept it (the
		// submission race with the claim path). Park the payload; the next
		// poll promotes it.
		if err := repo.StorePending(ctx, resume.ID, normalized); err != nil && !errors.Is(err, common.ErrConflict) {
			return nil, err
		}
		return repo.GetByID(ctx, resume.ID)

	case models.StatusProcessing, models.StatusWaitingForCache:
		err := repo.Complete(ctx, resume.ID, resume.Status, normalized)
		if errors.Is(err, common.ErrConflict) {
			// The racing completion path already applied; identical result,
			// side effects already done exactly once.
			return repo.GetByID(ctx, resume.ID)
		}
		if err != nil {
			return nil, err
		}

		s.transientPolls.Remove(resume.ID)
		s.logger.Info(ctx, "extraction completed", "resume_id", resume.ID, "source", string(ev.Source))

		if err := s.publisher.PublishResume(ctx, resume.OwnerID); err != nil {
			// The snapshot is rebuildable from the row; publication is
			// retried on the next read or mutation.
			s.logger.Error(ctx, "snapshot publication failed", "owner", resume.OwnerID, "error", err.Error())
		}
		return repo.GetByID(ctx, resume.ID)

	default:
		return resume, nil
	}
}

func (s *Service) applyFailure(ctx context.Context, resume *models.Resume, ev CompletionEvent) (*models.Resume, error) {
	repo := s.repomanager.Resumes(s.db)

	message := ev.ErrorMessage
	if message == "" {
		message = "extraction failed"
	}

	err := repo.Fail(ctx, resume.ID, resume.Status, message)
	if err != nil && !errors.Is(err, common.ErrConflict) {
		return nil, err
	}
	s.logger.Info(ctx, "extraction failed", "resume_id", resume.ID, "source", string(ev.Source))
	return repo.GetByID(ctx, resume.ID)
}

// Poll reflects the current job state for its owner. A queued row that never
// reached the vendor (the initial submission failed transiently) is resubmitted
// here; the queued→processing CAS keeps that race-safe, so at most one external
// job ever exists per row. Terminal side effects run at most once through the
// reducer. Vendor-unreachable conditions count as still-processing up to the
// configured bound, after which the caller is steered to the waiting view.
func (s *Service) Poll(ctx context.Context, ownerID, resumeID string) (*PollStatus, error) {
	repo := s.repomanager.Resumes(s.db)

	resume, err := repo.GetByID(ctx, resumeID)
	if err != nil {
		return nil, err
	}
	if resume.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}

	switch resume.Status {
	case models.StatusQueued:
		if resume.ExternalJobID != "" {
			// A vendor job already exists for this row; never create a second.
			return &PollStatus{Resume: resume}, nil
		}
		if err := s.Submit(ctx, resume); err != nil {
			// Still queued; the next poll tries again.
			s.logger.Warn(ctx, "resubmission on poll failed", "resume_id", resume.ID, "error", err.Error())
			return &PollStatus{Resume: resume}, nil
		}
		updated, err := repo.GetByID(ctx, resume.ID)
		if err != nil {
			return nil, err
		}
		return &PollStatus{Resume: updated}, nil

	case models.StatusWaitingForCache:
		// A parked result is promoted by the same reducer the live paths use.
		updated, err := s.ApplyCompletion(ctx, CompletionEvent{
			Source:   SourcePoll,
			ResumeID: resume.ID,
			Status:   extraction.StatusCompleted,
			Output:   resume.ResultPayload,
		})
		if err != nil {
			return nil, err
		}
		return &PollStatus{Resume: updated}, nil

	case models.StatusProcessing:
		result, err := s.client.Poll(ctx, resume.ExternalJobID)
		if err != nil {
			if errors.Is(err, common.ErrTransientService) {
				return s.transientPoll(ctx, resume)
			}
			return nil, err
		}
		s.transientPolls.Remove(resume.ID)

		updated, err := s.ApplyCompletion(ctx, EventFromPoll(resume.ID, result))
		if err != nil {
			return nil, err
		}
		return &PollStatus{Resume: updated}, nil

	default:
		return &PollStatus{Resume: resume}, nil
	}
}

func (s *Service) transientPoll(ctx context.Context, resume *models.Resume) (*PollStatus, error) {
	count, _ := s.transientPolls.Get(resume.ID)
	count++
	s.transientPolls.Add(resume.ID, count)

	s.logger.Warn(ctx, "vendor unreachable on poll", "resume_id", resume.ID, "consecutive", count)

	return &PollStatus{
		Resume:      resume,
		WaitingView: count > s.opts.MaxTransientPolls,
	}, nil
}

// Retry moves a failed job back to queued on explicit user request, bounded
// by the attempt cap, and resubmits it.
func (s *Service) Retry(ctx context.Context, ownerID, resumeID string) (*models.Resume, error) {
	repo := s.repomanager.Resumes(s.db)

	resume, err := repo.GetByID(ctx, resumeID)
	if err != nil {
		return nil, err
	}
	if resume.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}

	err = repo.Retry(ctx, resumeID, s.opts.MaxAttempts)
	if errors.Is(err, common.ErrConflict) {
		current, getErr := repo.GetByID(ctx, resumeID)
		if getErr != nil {
			return nil, getErr
		}
		// The conditional update matched nothing: either the row is not
		// failed (an idempotent double retry) or the cap is reached.
		if current.Status == models.StatusQueued {
			// The earlier retry may not have reached the vendor. Submit is
			// a no-op when it did (the CAS guards the transition).
			if current.ExternalJobID == "" {
				if submitErr := s.Submit(ctx, current); submitErr != nil {
					s.logger.Warn(ctx, "resubmission failed after retry", "resume_id", resumeID, "error", submitErr.Error())
					return current, nil
				}
				return repo.GetByID(ctx, resumeID)
			}
			return current, nil
		}
		if current.Status == models.StatusProcessing {
			return current, nil
		}
		if current.Status == models.StatusFailed && current.AttemptCount >= s.opts.MaxAttempts {
			return nil, common.ErrRetryExhausted
		}
		return nil, fmt.Errorf("%w: resume is %s", common.ErrValidation, current.Status)
	}
	if err != nil {
		return nil, err
	}

	resume, err = repo.GetByID(ctx, resumeID)
	if err != nil {
		return nil, err
	}

	if err := s.Submit(ctx, resume); err != nil {
		// The row is queued; a later poll or retry resubmits.
		s.logger.Warn(ctx, "resubmission failed after retry", "resume_id", resumeID, "error", err.Error())
	}

	return repo.GetByID(ctx, resumeID)
}
