package models

import "time"

// Rate-limited action kinds recorded in audit_events.
const (
	ActionUpload        = "upload"
	ActionHandleChange  = "handle_change"
	ActionContentUpdate = "content_update"
)

// AuditEvent records one sensitive action by a subject (owner id or client
// IP). The rate guard counts these rows directly; there is no separate
// counter table to drift from.
type AuditEvent struct {
	ID        int64
	Subject   string
	Action    string
	CreatedAt time.Time
}
