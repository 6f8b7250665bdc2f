package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nocdem/dna-messenger-sub005/internal/models"
)

// Backup is a full logical snapshot of group bookkeeping: groups, members
// and invitations. Messages and keys are deliberately excluded; a restored
// device re-fetches messages from the DHT and keys from key packets.
type Backup struct {
	Groups      []models.Group      `json:"groups"`
	Members     []models.Member     `json:"members"`
	Invitations []models.Invitation `json:"invitations"`
}

// Export serializes the snapshot as JSON.
func (r *Registry) Export(ctx context.Context) ([]byte, error) {
	b := &Backup{}

	groups, err := r.groups.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	b.Groups = groups

	for _, g := range groups {
		members, err := r.groups.ListMembers(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		b.Members = append(b.Members, members...)
	}

	for _, status := range []string{
		models.InvitationStatusPending,
		models.InvitationStatusAccepted,
		models.InvitationStatusRejected,
	} {
		invs, err := r.groups.ListInvitations(ctx, status)
		if err != nil {
			return nil, err
		}
		b.Invitations = append(b.Invitations, invs...)
	}

	return json.Marshal(b)
}

// Import applies a snapshot with insert-or-ignore semantics keyed by UUID,
// so importing the same backup twice (or importing on top of live data) is
// idempotent.
func (r *Registry) Import(ctx context.Context, data []byte) error {
	b := &Backup{}
	if err := json.Unmarshal(data, b); err != nil {
		return fmt.Errorf("failed to parse backup: %w", err)
	}

	for i := range b.Groups {
		if err := r.groups.ImportGroup(ctx, &b.Groups[i]); err != nil {
			return err
		}
	}
	for i := range b.Members {
		if err := r.groups.ImportMember(ctx, &b.Members[i]); err != nil {
			return err
		}
	}
	for i := range b.Invitations {
		if err := r.groups.ImportInvitation(ctx, &b.Invitations[i]); err != nil {
			return err
		}
	}
	return nil
}
