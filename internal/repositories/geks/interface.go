// Package geks persists at-rest-encrypted group encryption key versions.
package geks

import (
	"context"
	"time"

	"github.com/nocdem/dna-messenger-sub005/internal/models"
)

// Repository describes storage operations for group key versions.
// Implementations are backed by the local SQLite database.
type Repository interface {
	// Upsert inserts or replaces the row keyed by (GroupID, Version).
	Upsert(ctx context.Context, entry *models.GekEntry) error

	// GetByVersion returns one key version, or common.ErrNotFound.
	GetByVersion(ctx context.Context, groupID string, version uint32) (*models.GekEntry, error)

	// GetActive returns the highest non-expired version at the given
	// instant, or common.ErrNotFound when every version has expired.
	GetActive(ctx context.Context, groupID string, now time.Time) (*models.GekEntry, error)

	// MaxVersion returns the highest stored version and whether any row
	// exists for the group at all.
	MaxVersion(ctx context.Context, groupID string) (uint32, bool, error)

	// DeleteExpired removes rows whose expiry is at or before now and
	// reports how many were deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
