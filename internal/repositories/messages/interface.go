// Package messages persists decrypted group messages for local display.
package messages

import (
	"context"

	"github.com/nocdem/dna-messenger-sub005/internal/models"
)

// Repository describes storage operations for group messages.
type Repository interface {
	// Insert stores a message, leaving an already-present id untouched,
	// and reports whether a new row was written. The notification path and
	// Sync can race on the same id; the loser must not fail.
	Insert(ctx context.Context, m *models.GroupMessage) (bool, error)

	// Exists reports whether a message id is already stored.
	Exists(ctx context.Context, id string) (bool, error)

	// ListByGroup returns a group's messages ordered by sender timestamp.
	ListByGroup(ctx context.Context, groupID string) ([]models.GroupMessage, error)

	// CountByGroup returns how many messages are stored for a group.
	CountByGroup(ctx context.Context, groupID string) (int64, error)

	// DeleteByGroup removes every message of a group.
	DeleteByGroup(ctx context.Context, groupID string) error
}
