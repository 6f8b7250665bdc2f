// Package groups persists group, member and invitation bookkeeping.
package groups

import (
	"context"

	"github.com/nocdem/dna-messenger-sub005/internal/models"
)

// Repository describes storage operations for groups, members and
// invitations. Ownership checks live in the registry, not here.
type Repository interface {
	CreateGroup(ctx context.Context, g *models.Group) error
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	DeleteGroup(ctx context.Context, id string) error

	AddMember(ctx context.Context, m *models.Member) error
	GetMember(ctx context.Context, groupID string, fingerprint []byte) (*models.Member, error)
	RemoveMember(ctx context.Context, groupID string, fingerprint []byte) error
	ListMembers(ctx context.Context, groupID string) ([]models.Member, error)

	CreateInvitation(ctx context.Context, inv *models.Invitation) error
	GetInvitation(ctx context.Context, id string) (*models.Invitation, error)
	ListInvitations(ctx context.Context, status string) ([]models.Invitation, error)
	SetInvitationStatus(ctx context.Context, id, status string) error

	// Import* use insert-or-ignore semantics keyed by UUID/fingerprint so
	// that re-importing a backup is idempotent.
	ImportGroup(ctx context.Context, g *models.Group) error
	ImportMember(ctx context.Context, m *models.Member) error
	ImportInvitation(ctx context.Context, inv *models.Invitation) error
}
