// Package common defines shared constants and sentinel errors used across
// the service. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a unique-constraint race: another request already
	// created the row this one was about to create. Callers re-read and, if
	// the existing row represents the desired state, treat it as success.
	ErrConflict = errors.New("conflict")

	// Validation / input errors. Never retried.
	ErrValidation = errors.New("validation error")

	// Claim-token errors: expired or tampered token, the client must re-upload.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTransientService marks an external collaborator (object store,
	// extraction service) being temporarily unreachable. The polling path
	// retries a bounded number of times before escalating to a waiting view.
	ErrTransientService = errors.New("service temporarily unavailable")

	// ErrTerminalJobFailure marks an extraction that explicitly failed or
	// produced a payload the normalizer rejected.
	ErrTerminalJobFailure = errors.New("job failed")

	// ErrRetryExhausted rejects user-triggered retries past the attempt cap.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrUnauthorized covers missing/invalid identity on a protected call.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConfiguration marks a missing required secret or credential. The
	// process fails closed at startup instead of degrading silently.
	ErrConfiguration = errors.New("configuration error")

	// ErrRateLimited is the base sentinel carried by RateLimitError.
	ErrRateLimited = errors.New("rate limited")
)

// RateLimitError is returned by the rate guard on a denied action. It wraps
// ErrRateLimited so errors.Is(err, common.ErrRateLimited) matches, and carries
// the remaining window time as a retry-after hint.
type RateLimitError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %s", e.Action, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
