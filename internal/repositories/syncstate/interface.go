// Package syncstate persists each group's last fully synced day bucket.
package syncstate

import "context"

// Repository describes storage operations for per-group sync state.
type Repository interface {
	// Get returns the last synced day for a group and whether a row exists.
	Get(ctx context.Context, groupID string) (int64, bool, error)

	// Set upserts the last synced day for a group.
	Set(ctx context.Context, groupID string, day int64) error

	// Delete removes a group's sync state.
	Delete(ctx context.Context, groupID string) error
}
