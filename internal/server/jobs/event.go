// Package jobs owns the resume parsing lifecycle: submission to the
// extraction vendor, completion handling, polling and user-triggered retry.
//
// Webhook deliveries and poll observations are both expressed as a
// CompletionEvent and applied through one idempotent reducer, so the two
// paths cannot diverge. Racing completions are resolved by the store: every
// transition is conditioned on the row's current status.
package jobs

import (
	"encoding/json"

	"github.com/dmitrijs2005/resumepress/internal/server/extraction"
)

// CompletionSource tags where a completion observation came from.
type CompletionSource string

const (
	SourceWebhook CompletionSource = "webhook"
	SourcePoll    CompletionSource = "poll"
)

// CompletionEvent is one observation of a vendor-side job state. Exactly one
// of ResumeID (poll path) or ExternalJobID (webhook path) identifies the row.
type CompletionEvent struct {
	Source        CompletionSource
	ResumeID      string
	ExternalJobID string
	Status        string
	Output        json.RawMessage
	ErrorMessage  string
}

// EventFromWebhook converts a verified webhook delivery.
func EventFromWebhook(p *extraction.WebhookPayload) CompletionEvent {
	return CompletionEvent{
		Source:        SourceWebhook,
		ExternalJobID: p.JobID,
		Status:        p.Status,
		Output:        p.Output,
		ErrorMessage:  p.ErrorMessage,
	}
}

// EventFromPoll converts a poll result observed for a known resume.
func EventFromPoll(resumeID string, r *extraction.PollResult) CompletionEvent {
	return CompletionEvent{
		Source:       SourcePoll,
		ResumeID:     resumeID,
		Status:       r.Status,
		Output:       r.Output,
		ErrorMessage: r.ErrorMessage,
	}
}
