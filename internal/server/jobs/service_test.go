package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/resumepress/internal/common"
	"github.com/dmitrijs2005/resumepress/internal/logging"
	"github.com/dmitrijs2005/resumepress/internal/server/extraction"
	"github.com/dmitrijs2005/resumepress/internal/server/models"
	"github.com/dmitrijs2005/resumepress/internal/server/repositories/repomanager"
)

type fakeGateway struct {
	signGetErr error
}

func (g *fakeGateway) SignPut(ctx context.Context, key string) (string, error) {
	return "https://signed-put/" + key, nil
}
func (g *fakeGateway) SignGet(ctx context.Context, key string) (string, error) {
	if g.signGetErr != nil {
		return "", g.signGetErr
	}
	return "https://signed-get/" + key, nil
}
func (g *fakeGateway) Copy(ctx context.Context, srcKey, dstKey string) error { return nil }
func (g *fakeGateway) Delete(ctx context.Context, key string) error          { return nil }

type fakeExtractionClient struct {
	submit func(ctx context.Context, req extraction.SubmitRequest) (*extraction.SubmitResult, error)
	poll   func(ctx context.Context, jobID string) (*extraction.PollResult, error)
}

func (c *fakeExtractionClient) Submit(ctx context.Context, req extraction.SubmitRequest) (*extraction.SubmitResult, error) {
	if c.submit != nil {
		return c.submit(ctx, req)
	}
	return &extraction.SubmitResult{JobID: "ext-1", Status: extraction.StatusPending}, nil
}

func (c *fakeExtractionClient) Poll(ctx context.Context, jobID string) (*extraction.PollResult, error) {
	if c.poll != nil {
		return c.poll(ctx, jobID)
	}
	return &extraction.PollResult{Status: extraction.StatusProcessing}, nil
}

type fakePublisher struct {
	calls []string
	err   error
}

func (p *fakePublisher) PublishResume(ctx context.Context, ownerID string) error {
	p.calls = append(p.calls, ownerID)
	return p.err
}

func nopLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newService(t *testing.T, client extraction.Client, pub *fakePublisher) (*Service, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	s := NewService(db, repomanager.NewPostgresRepositoryManager(), &fakeGateway{}, client, pub,
		Options{MaxAttempts: 2, MaxTransientPolls: 3, CallbackBaseURL: "http://app"}, nopLogger())
	return s, mock, db
}

func resumeRow(r *models.Resume) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "owner_id", "storage_key", "status", "external_job_id",
		"attempt_count", "content_hash", "error_message", "result_payload",
		"created_at", "updated_at",
	}).AddRow(r.ID, r.OwnerID, r.StorageKey, string(r.Status), r.ExternalJobID,
		r.AttemptCount, r.ContentHash, r.ErrorMessage, r.ResultPayload, now, now)
}

func TestSubmit_RecordsExternalRef(t *testing.T) {
	var gotCallback string
	client := &fakeExtractionClient{
		submit: func(ctx context.Context, req extraction.SubmitRequest) (*extraction.SubmitResult, error) {
			gotCallback = req.CallbackURL
			return &extraction.SubmitResult{JobID: "ext-9", Status: extraction.StatusPending}, nil
		},
	}
	s, mock, db := newService(t, client, &fakePublisher{})
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+resumes\s+SET\s+status=\$1,\s*external_job_id=\$2`).
		WithArgs(string(models.StatusProcessing), "ext-9", "r1", string(models.StatusQueued)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Submit(context.Background(), &models.Resume{
		ID: "r1", OwnerID: "u1", StorageKey: "users/u1/k", Status: models.StatusQueued,
	})
	require.NoError(t, err)
	assert.Equal(t, "http://app/api/webhooks/extraction", gotCallback)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_TransientFailureLeavesQueued(t *testing.T) {
	client := &fakeExtractionClient{
		submit: func(ctx context.Context, req extraction.SubmitRequest) (*extraction.SubmitResult, error) {
			return nil, fmt.Errorf("%w: vendor returned 503", common.ErrTransientService)
		},
	}
	s, mock, db := newService(t, client, &fakePublisher{})
	defer db.Close()

	err := s.Submit(context.Background(), &models.Resume{
		ID: "r1", Status: models.StatusQueued, StorageKey: "k",
	})
	assert.True(t, errors.Is(err, common.ErrTransientService))
	// No UPDATE expected: the row stays queued.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_LostRaceIsNoop(t *testing.T) {
	s, mock, db := newService(t, &fakeExtractionClient{}, &fakePublisher{})
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+resumes\s+SET\s+status=\$1,\s*external_job_id=\$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Submit(context.Background(), &models.Resume{
		ID: "r1", Status: models.StatusQueued, StorageKey: "k",
	})
	assert.NoError(t, err, "a lost submission race is not an error")
}

func TestApplyCompletion_TerminalRowIsNoop(t *testing.T) {
	s, mock, db := newService(t, &fakeExtractionClient{}, &fakePublisher{})
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM resumes WHERE external_job_id=\$1`).
		WithArgs("ext-1").
		WillReturnRows(resumeRow(&models.Resume{
			ID: "r1", OwnerID: "u1", Status: models.StatusCompleted, ExternalJobID: "ext-1",
			ResultPayload: []byte(`{}`),
		}))

	got, err := s.ApplyCompletion(context.Background(), CompletionEvent{
		Source: SourceWebhook, ExternalJobID: "ext-1",
		Status: extraction.StatusCompleted, Output: json.RawMessage(`{"full_name":"A"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	// Only the SELECT ran; no write, no publication.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyCompletion_SuccessPublishesOnce(t *testing.T) {
	pub := &fakePublisher{}
	s, mock, db := newService(t, &fakeExtractionClient{}, pub)
	defer db.Close()

	processing := &models.Resume{
		ID: "r1", OwnerID: "u1", Status: models.StatusProcessing, ExternalJobID: "ext-1",
	}

	mock.ExpectQuery(`SELECT .* FROM resumes WHERE external_job_id=\$1`).
		WillReturnRows(resumeRow(processing))
	mock.ExpectExec(`(?s)UPDATE\s+resumes\s+SET\s+status=\$1,\s*result_payload=\$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(&models.Resume{
			ID: "r1", OwnerID: "u1", Status: models.StatusCompleted, ResultPayload: []byte(`{}`),
		}))

	got, err := s.ApplyCompletion(context.Background(), CompletionEvent{
		Source: SourceWebhook, ExternalJobID: "ext-1",
		Status: extraction.StatusCompleted, Output: json.RawMessage(`{"full_name":"A"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, []string{"u1"}, pub.calls)
}

func TestApplyCompletion_RacingCompletionLosesQuietly(t *testing.T) {
	pub := &fakePublisher{}
	s, mock, db := newService(t, &fakeExtractionClient{}, pub)
	defer db.Close()

	processing := &models.Resume{
		ID: "r1", OwnerID: "u1", Status: models.StatusProcessing, ExternalJobID: "ext-1",
	}

	mock.ExpectQuery(`SELECT .* FROM resumes WHERE external_job_id=\$1`).
		WillReturnRows(resumeRow(processing))
	// The CAS lost: the webhook path already completed the row.
	mock.ExpectExec(`(?s)UPDATE\s+resumes\s+SET\s+status=\$1,\s*result_payload=\$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(&models.Resume{
			ID: "r1", OwnerID: "u1", Status: models.StatusCompleted, ResultPayload: []byte(`{}`),
		}))

	got, err := s.ApplyCompletion(context.Background(), CompletionEvent{
		Source: SourcePoll, ExternalJobID: "ext-1",
		Status: extraction.StatusCompleted, Output: json.RawMessage(`{"full_name":"A"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Empty(t, pub.calls, "the losing path must not publish a second time")
}

func TestApplyCompletion_FailureKeepsAttemptCount(t *testing.T) {
	s, mock, db := newService(t, &fakeExtractionClient{}, &fakePublisher{})
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM resumes WHERE external_job_id=\$1`).
		WillReturnRows(resumeRow(&models.Resume{
			ID: "r1", OwnerID: "u1", Status: models.StatusProcessing, ExternalJobID: "ext-1",
			AttemptCount: 1,
		}))
	mock.ExpectExec(`(?s)UPDATE\s+resumes\s+SET\s+status=\$1,\s*error_message=\$2`).
		WithArgs(string(models.StatusFailed), "bad scan", "r1", string(models.StatusProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(&models.Resume{
			ID: "r1", OwnerID: "u1", Status: models.StatusFailed, AttemptCount: 1, ErrorMessage: "bad scan",
		}))

	got, err := s.ApplyCompletion(context.Background(), CompletionEvent{
		Source: SourceWebhook, ExternalJobID: "ext-1",
		Status: extraction.StatusFailed, ErrorMessage: "bad scan",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, 1, got.AttemptCount, "failure itself never touches attempt_count")
}

func TestApplyCompletion_EarlyResultParksPayload(t *testing.T) {
	s, mock, db := newService(t, &fakeExtractionClient{}, &fakePublisher{})
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM resumes WHERE external_job_id=\$1`).
		WillReturnRows(resumeRow(&models.Resume{
			ID: "r1", OwnerID: "u1", Status: models.StatusQueued, ExternalJobID: "ext-1",
		}))
	mock.ExpectExec(`(?s)UPDATE\s+resumes\s+SET\s+status=\$1,\s*result_payload=\$2`).
		WithArgs(string(models.StatusWaitingForCache), sqlmock.AnyArg(), "r1", string(models.StatusQueued)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(&models.Resume{
			ID: "r1", OwnerID: "u1", Status: models.StatusWaitingForCache, ResultPayload: []byte(`{}`),
		}))

	got, err := s.ApplyCompletion(context.Background(), CompletionEvent{
		Source: SourceWebhook, ExternalJobID: "ext-1",
		Status: extraction.StatusCompleted, Output: json.RawMessage(`{"full_name":"A"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitingForCache, got.Status)
}

func TestPoll_TransientErrorsEscalateToWaitingView(t *testing.T) {
	client := &fakeExtractionClient{
		poll: func(ctx context.Context, jobID string) (*extraction.PollResult, error) {
			return nil, fmt.Errorf("%w: 503", common.ErrTransientService)
		},
	}
	s, mock, db := newService(t, client, &fakePublisher{})
	defer db.Close()

	processing := &models.Resume{
		ID: "r1", OwnerID: "u1", Status: models.StatusProcessing, ExternalJobID: "ext-1",
	}

	for i := 0; i < 5; i++ {
		mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
			WillReturnRows(resumeRow(processing))
	}

	var last *PollStatus
	for i := 0; i < 5; i++ {
		var err error
		last, err = s.Poll(context.Background(), "u1", "r1")
		require.NoError(t, err, "transient vendor errors must not fail the poll")
	}
	assert.True(t, last.WaitingView, "after the bound the caller is steered to the waiting view")
	assert.Equal(t, models.StatusProcessing, last.Resume.Status)
}

// A claim whose initial submission failed leaves a queued row with no vendor
// job. The next poll must pick it up and submit, not just reflect it forever.
func TestPoll_SubmitsQueuedRowWithoutVendorJob(t *testing.T) {
	submits := 0
	client := &fakeExtractionClient{
		submit: func(ctx context.Context, req extraction.SubmitRequest) (*extraction.SubmitResult, error) {
			submits++
			return &extraction.SubmitResult{JobID: "ext-7", Status: extraction.StatusPending}, nil
		},
	}
	s, mock, db := newService(t, client, &fakePublisher{})
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(&models.Resume{
			ID: "r1", OwnerID: "u1", Status: models.StatusQueued, StorageKey: "k",
		}))
	mock.ExpectExec(`(?s)UPDATE\s+resumes\s+SET\s+status=\$1,\s*external_job_id=\$2`).
		WithArgs(string(models.StatusProcessing), "ext-7", "r1", string(models.StatusQueued)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(&models.Resume{
			ID: "r1", OwnerID: "u1", Status: models.StatusProcessing, ExternalJobID: "ext-7",
		}))

	got, err := s.Poll(context.Background(), "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, submits)
	assert.Equal(t, models.StatusProcessing, got.Resume.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPoll_QueuedResubmissionFailureStillReflects(t *testing.T) {
	client := &fakeExtractionClient{
		submit: func(ctx context.Context, req extraction.SubmitRequest) (*extraction.SubmitResult, error) {
			return nil, fmt.Errorf("%w: vendor returned 503", common.ErrTransientService)
		},
	}
	s, mock, db := newService(t, client, &fakePublisher{})
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(&models.Resume{
			ID: "r1", OwnerID: "u1", Status: models.StatusQueued, StorageKey: "k",
		}))

	got, err := s.Poll(context.Background(), "u1", "r1")
	require.NoError(t, err, "a failed resubmission must not fail the poll")
	assert.Equal(t, models.StatusQueued, got.Resume.Status)
}

func TestPoll_OwnershipEnforced(t *testing.T) {
	s, mock, db := newService(t, &fakeExtractionClient{}, &fakePublisher{})
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(&models.Resume{ID: "r1", OwnerID: "someone-else", Status: models.StatusCompleted}))

	_, err := s.Poll(context.Background(), "u1", "r1")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestRetry_ExhaustedCap(t *testing.T) {
	s, mock, db := newService(t, &fakeExtractionClient{}, &fakePublisher{})
	defer db.Close()

	failed := &models.Resume{
		ID: "r1", OwnerID: "u1", Status: models.StatusFailed, AttemptCount: 2,
	}

	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(failed))
	mock.ExpectExec(`(?s)UPDATE\s+resumes\s+SET\s+status=\$1,\s*attempt_count=attempt_count\+1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(failed))

	_, err := s.Retry(context.Background(), "u1", "r1")
	assert.True(t, errors.Is(err, common.ErrRetryExhausted))
}

// A double retry hits the conditional update's conflict path. When the first
// retry never reached the vendor, the second must still submit rather than
// hand back a wedged queued row.
func TestRetry_DoubleRetrySubmitsUnsentRow(t *testing.T) {
	submits := 0
	client := &fakeExtractionClient{
		submit: func(ctx context.Context, req extraction.SubmitRequest) (*extraction.SubmitResult, error) {
			submits++
			return &extraction.SubmitResult{JobID: "ext-3", Status: extraction.StatusPending}, nil
		},
	}
	s, mock, db := newService(t, client, &fakePublisher{})
	defer db.Close()

	queued := &models.Resume{
		ID: "r1", OwnerID: "u1", Status: models.StatusQueued, AttemptCount: 1, StorageKey: "k",
	}

	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(queued))
	mock.ExpectExec(`(?s)UPDATE\s+resumes\s+SET\s+status=\$1,\s*attempt_count=attempt_count\+1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(queued))
	mock.ExpectExec(`(?s)UPDATE\s+resumes\s+SET\s+status=\$1,\s*external_job_id=\$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(&models.Resume{
			ID: "r1", OwnerID: "u1", Status: models.StatusProcessing, AttemptCount: 1, ExternalJobID: "ext-3",
		}))

	got, err := s.Retry(context.Background(), "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, submits)
	assert.Equal(t, models.StatusProcessing, got.Status)
}

func TestRetry_MovesBackToQueuedAndResubmits(t *testing.T) {
	submitted := false
	client := &fakeExtractionClient{
		submit: func(ctx context.Context, req extraction.SubmitRequest) (*extraction.SubmitResult, error) {
			submitted = true
			return &extraction.SubmitResult{JobID: "ext-2", Status: extraction.StatusPending}, nil
		},
	}
	s, mock, db := newService(t, client, &fakePublisher{})
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(&models.Resume{
			ID: "r1", OwnerID: "u1", Status: models.StatusFailed, AttemptCount: 0, StorageKey: "k",
		}))
	mock.ExpectExec(`(?s)UPDATE\s+resumes\s+SET\s+status=\$1,\s*attempt_count=attempt_count\+1`).
		WithArgs(string(models.StatusQueued), "r1", string(models.StatusFailed), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(&models.Resume{
			ID: "r1", OwnerID: "u1", Status: models.StatusQueued, AttemptCount: 1, StorageKey: "k",
		}))
	mock.ExpectExec(`(?s)UPDATE\s+resumes\s+SET\s+status=\$1,\s*external_job_id=\$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM resumes WHERE id=\$1`).
		WillReturnRows(resumeRow(&models.Resume{
			ID: "r1", OwnerID: "u1", Status: models.StatusProcessing, AttemptCount: 1,
		}))

	got, err := s.Retry(context.Background(), "u1", "r1")
	require.NoError(t, err)
	assert.True(t, submitted)
	assert.Equal(t, 1, got.AttemptCount)
}
