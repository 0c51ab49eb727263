// Package ratelimit is the abuse guard for mutating actions. Usage is
// counted straight off the audit trail, so the count can never drift from
// what actually happened; there is no separate counter table to reconcile.
package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dmitrijs2005/resumepress/internal/common"
	"github.com/dmitrijs2005/resumepress/internal/logging"
	"github.com/dmitrijs2005/resumepress/internal/server/models"
	"github.com/dmitrijs2005/resumepress/internal/server/repositories/repomanager"
)

// Limit is the budget for one action per subject.
type Limit struct {
	Max    int
	Window time.Duration
}

// DefaultLimits covers every guarded action. An action without a limit is
// not guarded.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		models.ActionUpload:        {Max: 5, Window: 24 * time.Hour},
		models.ActionHandleChange:  {Max: 3, Window: 24 * time.Hour},
		models.ActionContentUpdate: {Max: 10, Window: time.Hour},
	}
}

// Guard enforces per-subject action budgets. A store failure denies: letting
// an abuser through because the database is struggling is the wrong way to
// degrade.
type Guard struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	limits      map[string]Limit
	logger      logging.Logger

	// denies caches deny-until timestamps so hammering a denied action does
	// not keep hitting the store.
	denies *expirable.LRU[string, time.Time]

	now func() time.Time
}

func NewGuard(db *sql.DB, rm repomanager.RepositoryManager, limits map[string]Limit, logger logging.Logger) *Guard {
	return &Guard{
		db:          db,
		repomanager: rm,
		limits:      limits,
		logger:      logger.With("component", "ratelimit"),
		denies:      expirable.NewLRU[string, time.Time](4096, nil, 24*time.Hour),
		now:         time.Now,
	}
}

func denyKey(subject, action string) string {
	return subject + ":" + action
}

// Check reports whether the subject may perform the action now. A denial is
// a *common.RateLimitError carrying the retry-after hint computed from the
// oldest in-window event.
func (g *Guard) Check(ctx context.Context, subject, action string) error {
	limit, guarded := g.limits[action]
	if !guarded {
		return nil
	}
	now := g.now()

	if until, ok := g.denies.Get(denyKey(subject, action)); ok {
		if now.Before(until) {
			return &common.RateLimitError{Action: action, RetryAfter: until.Sub(now)}
		}
		g.denies.Remove(denyKey(subject, action))
	}

	since := now.Add(-limit.Window)
	repo := g.repomanager.Audit(g.db)

	count, err := repo.CountSince(ctx, subject, action, since)
	if err != nil {
		// Fail closed.
		g.logger.Error(ctx, "rate check store failure, denying", "action", action, "error", err.Error())
		return fmt.Errorf("%w: rate check unavailable", common.ErrRateLimited)
	}
	if count < limit.Max {
		return nil
	}

	retryAfter := limit.Window
	if oldest, err := repo.OldestSince(ctx, subject, action, since); err == nil {
		retryAfter = oldest.Add(limit.Window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
	}

	g.denies.Add(denyKey(subject, action), now.Add(retryAfter))
	g.logger.Warn(ctx, "action denied", "subject", subject, "action", action, "retry_after", retryAfter.String())
	return &common.RateLimitError{Action: action, RetryAfter: retryAfter}
}

// WithRateLimit checks the budget, runs the mutation, and records the audit
// event only when the mutation succeeded, so failed attempts never consume
// budget.
func (g *Guard) WithRateLimit(ctx context.Context, subject, action string, fn func() error) error {
	if err := g.Check(ctx, subject, action); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	if err := g.repomanager.Audit(g.db).Record(ctx, subject, action); err != nil {
		// The mutation landed; losing the audit row only under-counts.
		g.logger.Error(ctx, "failed to record audit event", "action", action, "error", err.Error())
	}
	return nil
}
