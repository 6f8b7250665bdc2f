// Package registry keeps group, member and invitation bookkeeping and
// enforces ownership: only the recorded owner fingerprint may change
// membership or delete a group, and the owner can never be removed as a
// member. Membership changes trigger key rotation and distribution of a
// fresh key packet through the DHT.
package registry

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nocdem/dna-messenger-sub005/internal/common"
	"github.com/nocdem/dna-messenger-sub005/internal/cryptox"
	"github.com/nocdem/dna-messenger-sub005/internal/dbx"
	"github.com/nocdem/dna-messenger-sub005/internal/dht"
	"github.com/nocdem/dna-messenger-sub005/internal/ikp"
	"github.com/nocdem/dna-messenger-sub005/internal/keystore"
	"github.com/nocdem/dna-messenger-sub005/internal/logging"
	"github.com/nocdem/dna-messenger-sub005/internal/models"
	"github.com/nocdem/dna-messenger-sub005/internal/outbox"
	"github.com/nocdem/dna-messenger-sub005/internal/repositories/geks"
	"github.com/nocdem/dna-messenger-sub005/internal/repositories/groups"
	"github.com/nocdem/dna-messenger-sub005/internal/repositories/messages"
	"github.com/nocdem/dna-messenger-sub005/internal/repositories/syncstate"
)

// Config wires a Registry's collaborators.
type Config struct {
	DB        *sql.DB
	Groups    groups.Repository
	Messages  messages.Repository
	SyncState syncstate.Repository
	Keys      *keystore.Store
	DHT       dht.DHT
	KEM       cryptox.KEM
	Identity  *cryptox.Identity
	Logger    logging.Logger
	GekTTL    time.Duration
	IkpTTL    time.Duration
}

// Registry implements group/member/invitation lifecycle for the local
// identity.
type Registry struct {
	db        *sql.DB
	groups    groups.Repository
	messages  messages.Repository
	syncState syncstate.Repository
	keys      *keystore.Store
	dht       dht.DHT
	kem       cryptox.KEM
	identity  *cryptox.Identity
	log       logging.Logger
	gekTTL    time.Duration
	ikpTTL    time.Duration
	now       func() time.Time
}

// New returns a Registry.
func New(cfg Config) *Registry {
	return &Registry{
		db:        cfg.DB,
		groups:    cfg.Groups,
		messages:  cfg.Messages,
		syncState: cfg.SyncState,
		keys:      cfg.Keys,
		dht:       cfg.DHT,
		kem:       cfg.KEM,
		identity:  cfg.Identity,
		log:       cfg.Logger,
		gekTTL:    cfg.GekTTL,
		ikpTTL:    cfg.IkpTTL,
		now:       time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

// CreateGroup generates a UUIDv4 group and inserts the group, the local
// identity as owner-and-first-member, and group key version 0 in one
// transaction.
func (r *Registry) CreateGroup(ctx context.Context, name string) (*models.Group, error) {
	now := r.now().UTC()
	g := &models.Group{
		ID:               uuid.NewString(),
		Name:             name,
		OwnerFingerprint: r.identity.Fingerprint[:],
		OwnerSigningKey:  r.identity.SigningPublicKey,
		CreatedAt:        now,
	}

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		txGroups := groups.NewSQLiteRepository(tx)
		if err := txGroups.CreateGroup(ctx, g); err != nil {
			return err
		}
		if err := txGroups.AddMember(ctx, &models.Member{
			GroupID:          g.ID,
			Fingerprint:      r.identity.Fingerprint[:],
			SigningPublicKey: r.identity.SigningPublicKey,
			KemPublicKey:     r.identity.KemPublicKey,
			AddedAt:          now,
		}); err != nil {
			return err
		}

		txKeys := keystore.New(geks.NewSQLiteRepository(tx), r.kem, r.identity, r.gekTTL)
		gek := txKeys.Generate()
		defer common.WipeByteArray(gek)
		return txKeys.Store(ctx, g.ID, 0, gek)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	r.log.Info(ctx, "group created", "group_id", g.ID, "name", name)
	return g, nil
}

// GetGroup returns one group.
func (r *Registry) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return r.groups.GetGroup(ctx, groupID)
}

// ListGroups returns every known group.
func (r *Registry) ListGroups(ctx context.Context) ([]models.Group, error) {
	return r.groups.ListGroups(ctx)
}

// DeleteGroup removes a group with its members, messages and sync state.
// Owner only.
func (r *Registry) DeleteGroup(ctx context.Context, groupID string) error {
	if err := r.requireOwner(ctx, groupID); err != nil {
		return err
	}
	if err := r.groups.DeleteGroup(ctx, groupID); err != nil {
		return err
	}
	if err := r.messages.DeleteByGroup(ctx, groupID); err != nil {
		return err
	}
	return r.syncState.Delete(ctx, groupID)
}

// ListMembers returns a group's members.
func (r *Registry) ListMembers(ctx context.Context, groupID string) ([]models.Member, error) {
	return r.groups.ListMembers(ctx, groupID)
}

// AddMember adds a member and rotates the group key, distributing the new
// version to the post-change member list. Owner only. A rotation that
// stored a key but failed to distribute it must be retried by calling
// RedistributeActiveKey; the key itself stays valid.
func (r *Registry) AddMember(ctx context.Context, groupID string, member models.Member) error {
	if err := r.requireOwner(ctx, groupID); err != nil {
		return err
	}
	member.GroupID = groupID
	if member.AddedAt.IsZero() {
		member.AddedAt = r.now().UTC()
	}
	if err := r.groups.AddMember(ctx, &member); err != nil {
		return err
	}
	return r.rotateAndDistribute(ctx, groupID)
}

// RemoveMember removes a member and rotates the group key for the remaining
// members. Owner only; the owner cannot be removed.
func (r *Registry) RemoveMember(ctx context.Context, groupID string, fingerprint []byte) error {
	group, err := r.groups.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !bytes.Equal(group.OwnerFingerprint, r.identity.Fingerprint[:]) {
		return common.ErrPermissionDenied
	}
	if bytes.Equal(fingerprint, group.OwnerFingerprint) {
		return fmt.Errorf("%w: the group owner cannot be removed", common.ErrPermissionDenied)
	}
	if err := r.groups.RemoveMember(ctx, groupID, fingerprint); err != nil {
		return err
	}
	return r.rotateAndDistribute(ctx, groupID)
}

// RedistributeActiveKey rebuilds and republishes the key packet for the
// current active key without rotating. Used to retry a failed distribution.
func (r *Registry) RedistributeActiveKey(ctx context.Context, groupID string) error {
	if err := r.requireOwner(ctx, groupID); err != nil {
		return err
	}
	gek, version, err := r.keys.LoadActive(ctx, groupID)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(gek)
	return r.distribute(ctx, groupID, version, gek)
}

// rotateAndDistribute generates the next key version and publishes a packet
// wrapping it for every current member. Distribution failures leave a
// valid-but-undistributed key behind; callers retry distribution rather
// than rolling the rotation back, since the new key is still correct for
// future sends.
func (r *Registry) rotateAndDistribute(ctx context.Context, groupID string) error {
	version, gek, err := r.keys.Rotate(ctx, groupID)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(gek)

	r.log.Info(ctx, "group key rotated", "group_id", groupID, "gek_version", version)
	return r.distribute(ctx, groupID, version, gek)
}

func (r *Registry) distribute(ctx context.Context, groupID string, version uint32, gek []byte) error {
	members, err := r.groups.ListMembers(ctx, groupID)
	if err != nil {
		return err
	}
	raw, err := ikp.Build(groupID, version, gek, members, r.kem, r.identity.SigningPrivateKey)
	if err != nil {
		return err
	}
	if err := r.dht.Put(ctx, outbox.IkpKey(groupID, version), raw, r.ikpTTL); err != nil {
		return fmt.Errorf("%w: key packet publish failed: %v", common.ErrUnavailable, err)
	}
	if err := r.dht.Put(ctx, outbox.IkpLatestKey(groupID), raw, r.ikpTTL); err != nil {
		return fmt.Errorf("%w: key packet publish failed: %v", common.ErrUnavailable, err)
	}
	r.log.Info(ctx, "key packet published", "group_id", groupID, "gek_version", version, "members", len(members))
	return nil
}

// Invite records a pending invitation carrying the invitee's public keys.
// Owner only.
func (r *Registry) Invite(ctx context.Context, groupID string, invitee models.Member) (*models.Invitation, error) {
	group, err := r.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(group.OwnerFingerprint, r.identity.Fingerprint[:]) {
		return nil, common.ErrPermissionDenied
	}

	invitee.GroupID = groupID
	inv := &models.Invitation{
		ID:                 uuid.NewString(),
		GroupID:            groupID,
		GroupName:          group.Name,
		InviterFingerprint: r.identity.Fingerprint[:],
		Invitee:            invitee,
		Status:             models.InvitationStatusPending,
		CreatedAt:          r.now().UTC(),
	}
	if err := r.groups.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// AcceptInvitation adds the invitee as a member, rotating the group key,
// and then marks the invitation accepted. Owner only. The status flips only
// after the membership change succeeds, so a denied or failed accept leaves
// the invitation pending and retryable.
func (r *Registry) AcceptInvitation(ctx context.Context, invitationID string) error {
	inv, err := r.groups.GetInvitation(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv.Status != models.InvitationStatusPending {
		return fmt.Errorf("invitation %s is already %s", invitationID, inv.Status)
	}
	if err := r.AddMember(ctx, inv.GroupID, inv.Invitee); err != nil {
		return err
	}
	return r.groups.SetInvitationStatus(ctx, invitationID, models.InvitationStatusAccepted)
}

// RejectInvitation marks a pending invitation rejected. No keys move.
func (r *Registry) RejectInvitation(ctx context.Context, invitationID string) error {
	inv, err := r.groups.GetInvitation(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv.Status != models.InvitationStatusPending {
		return fmt.Errorf("invitation %s is already %s", invitationID, inv.Status)
	}
	return r.groups.SetInvitationStatus(ctx, invitationID, models.InvitationStatusRejected)
}

// ListInvitations returns invitations with the given status.
func (r *Registry) ListInvitations(ctx context.Context, status string) ([]models.Invitation, error) {
	return r.groups.ListInvitations(ctx, status)
}

func (r *Registry) requireOwner(ctx context.Context, groupID string) error {
	group, err := r.groups.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !bytes.Equal(group.OwnerFingerprint, r.identity.Fingerprint[:]) {
		return common.ErrPermissionDenied
	}
	return nil
}
