// Package models defines server-side data models persisted in the database.
package models

import "time"

// Status is the lifecycle state of a resume parsing job.
type Status string

const (
	// StatusQueued marks a claimed resume waiting for submission to the
	// extraction service. It is the first persisted state: before the claim
	// an upload exists only as an object plus an unredeemed token, with no
	// row at all.
	StatusQueued Status = "queued"
	// StatusProcessing marks a resume with an in-flight extraction job.
	StatusProcessing Status = "processing"
	// StatusWaitingForCache marks a completion that arrived before the row
	// was ready to accept it; the payload is stored, and the next poll
	// promotes the row to completed.
	StatusWaitingForCache Status = "waiting_for_cache"
	// StatusCompleted is terminal.
	StatusCompleted Status = "completed"
	// StatusFailed is terminal unless a user-triggered retry is still
	// permitted by the attempt cap.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further automatic transition can occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Resume is the unit the state machine drives: one uploaded file bound to one
// owner, tracked from claim to a terminal extraction outcome.
type Resume struct {
	ID string
	// OwnerID is the exclusive owner; set at claim time, never transferred.
	OwnerID string
	// StorageKey is the object-storage key of the uploaded file, scoped to
	// the owner after a successful claim.
	StorageKey string
	Status     Status
	// ExternalJobID references the extraction vendor's job; empty until the
	// job is submitted.
	ExternalJobID string
	// AttemptCount is monotonically non-decreasing and caps retries.
	AttemptCount int
	// ContentHash is the hash of the uploaded bytes, used to dedup claims.
	ContentHash  string
	ErrorMessage string
	// ResultPayload is the normalized extraction output as JSON; nil until
	// the job completes.
	ResultPayload []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
