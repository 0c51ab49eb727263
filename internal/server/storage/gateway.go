// Package storage is the object-store gateway. The core never reads file
// bytes; it only mints time-limited handles and moves objects between the
// anonymous and owner-scoped key spaces.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Gateway is the narrow interface the rest of the subsystem consumes.
type Gateway interface {
	// SignPut returns a presigned upload URL for the given key.
	SignPut(ctx context.Context, key string) (string, error)
	// SignGet returns a presigned download URL for the given key.
	SignGet(ctx context.Context, key string) (string, error)
	// Copy duplicates an object within the bucket.
	Copy(ctx context.Context, srcKey, dstKey string) error
	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// AnonymousKey mints a storage key for a not-yet-claimed upload.
func AnonymousKey() string {
	d := time.Now()
	return fmt.Sprintf("uploads/anon/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

// OwnerKey mints a storage key scoped to the claiming owner.
func OwnerKey(ownerID string) string {
	return fmt.Sprintf("users/%s/%v", ownerID, uuid.New())
}
