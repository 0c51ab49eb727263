package models

import "time"

// Profile holds the owner's public handle and privacy settings. Privacy flags
// control what the published snapshot may contain; they are applied when the
// snapshot is built, never at render time.
type Profile struct {
	OwnerID string
	// Handle is the public URL segment (/p/<handle>).
	Handle      string
	ShowPhone   bool
	ShowAddress bool
	// Visible gates the whole public page. An invisible profile has no
	// published snapshot at all.
	Visible   bool
	UpdatedAt time.Time
}

// Snapshot is the privacy-filtered, render-ready content for one public page.
// It is derived data: always rebuildable from the resume row plus the current
// profile, regenerated rather than mutated in place.
type Snapshot struct {
	OwnerID string
	Handle  string
	// Content is the filtered resume content as JSON.
	Content     []byte
	PublishedAt time.Time
}
