// Package audit persists per-subject action events. The rate guard counts
// these rows over a time window; there is no separate counter table that
// could drift from the audit trail.
package audit

import (
	"context"
	"time"
)

type Repository interface {
	Record(ctx context.Context, subject, action string) error
	CountSince(ctx context.Context, subject, action string, since time.Time) (int, error)

	// OldestSince returns the creation time of the oldest in-window event,
	// used to compute the retry-after hint on a denied action.
	OldestSince(ctx context.Context, subject, action string, since time.Time) (time.Time, error)

	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteBySubject(ctx context.Context, subject string) error
}
