package groups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nocdem/dna-messenger-sub005/internal/common"
	"github.com/nocdem/dna-messenger-sub005/internal/dbx"
	"github.com/nocdem/dna-messenger-sub005/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateGroup(ctx context.Context, g *models.Group) error {
	query := `INSERT INTO groups (id, name, owner_fingerprint, owner_signing_key, created_at)
			values (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, g.ID, g.Name, g.OwnerFingerprint, g.OwnerSigningKey, g.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	query := `select id, name, owner_fingerprint, owner_signing_key, created_at from groups where id=?`
	g := &models.Group{}
	var created int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.Name, &g.OwnerFingerprint, &g.OwnerSigningKey, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	g.CreatedAt = time.Unix(created, 0).UTC()
	return g, nil
}

func (r *SQLiteRepository) ListGroups(ctx context.Context) ([]models.Group, error) {
	query := `select id, name, owner_fingerprint, owner_signing_key, created_at from groups order by created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select groups: %w", err)
	}
	defer rows.Close()

	var result []models.Group
	for rows.Next() {
		var g models.Group
		var created int64
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerFingerprint, &g.OwnerSigningKey, &created); err != nil {
			return nil, err
		}
		g.CreatedAt = time.Unix(created, 0).UTC()
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteGroup(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `delete from members where group_id=?`, id); err != nil {
		return fmt.Errorf("failed to delete members: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `delete from groups where id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) AddMember(ctx context.Context, m *models.Member) error {
	query := `INSERT INTO members (group_id, fingerprint, signing_public_key, kem_public_key, added_at)
			values (?, ?, ?, ?, ?)
			ON CONFLICT(group_id, fingerprint) DO UPDATE SET signing_public_key = excluded.signing_public_key,
				kem_public_key = excluded.kem_public_key`
	_, err := r.db.ExecContext(ctx, query, m.GroupID, m.Fingerprint, m.SigningPublicKey, m.KemPublicKey, m.AddedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetMember(ctx context.Context, groupID string, fingerprint []byte) (*models.Member, error) {
	query := `select group_id, fingerprint, signing_public_key, kem_public_key, added_at
			from members where group_id=? and fingerprint=?`
	m := &models.Member{}
	var added int64
	err := r.db.QueryRowContext(ctx, query, groupID, fingerprint).
		Scan(&m.GroupID, &m.Fingerprint, &m.SigningPublicKey, &m.KemPublicKey, &added)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	m.AddedAt = time.Unix(added, 0).UTC()
	return m, nil
}

func (r *SQLiteRepository) RemoveMember(ctx context.Context, groupID string, fingerprint []byte) error {
	res, err := r.db.ExecContext(ctx, `delete from members where group_id=? and fingerprint=?`, groupID, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListMembers(ctx context.Context, groupID string) ([]models.Member, error) {
	query := `select group_id, fingerprint, signing_public_key, kem_public_key, added_at
			from members where group_id=? order by added_at`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to select members: %w", err)
	}
	defer rows.Close()

	var result []models.Member
	for rows.Next() {
		var m models.Member
		var added int64
		if err := rows.Scan(&m.GroupID, &m.Fingerprint, &m.SigningPublicKey, &m.KemPublicKey, &added); err != nil {
			return nil, err
		}
		m.AddedAt = time.Unix(added, 0).UTC()
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	query := `INSERT INTO invitations (id, group_id, group_name, inviter_fingerprint,
			invitee_fingerprint, invitee_signing_key, invitee_kem_key, status, created_at)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, inv.ID, inv.GroupID, inv.GroupName, inv.InviterFingerprint,
		inv.Invitee.Fingerprint, inv.Invitee.SigningPublicKey, inv.Invitee.KemPublicKey, inv.Status, inv.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert invitation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetInvitation(ctx context.Context, id string) (*models.Invitation, error) {
	query := `select id, group_id, group_name, inviter_fingerprint,
			invitee_fingerprint, invitee_signing_key, invitee_kem_key, status, created_at
			from invitations where id=?`
	inv := &models.Invitation{}
	var created int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&inv.ID, &inv.GroupID, &inv.GroupName, &inv.InviterFingerprint,
		&inv.Invitee.Fingerprint, &inv.Invitee.SigningPublicKey, &inv.Invitee.KemPublicKey, &inv.Status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	inv.Invitee.GroupID = inv.GroupID
	inv.CreatedAt = time.Unix(created, 0).UTC()
	return inv, nil
}

func (r *SQLiteRepository) ListInvitations(ctx context.Context, status string) ([]models.Invitation, error) {
	query := `select id, group_id, group_name, inviter_fingerprint,
			invitee_fingerprint, invitee_signing_key, invitee_kem_key, status, created_at
			from invitations where status=? order by created_at`
	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to select invitations: %w", err)
	}
	defer rows.Close()

	var result []models.Invitation
	for rows.Next() {
		var inv models.Invitation
		var created int64
		if err := rows.Scan(&inv.ID, &inv.GroupID, &inv.GroupName, &inv.InviterFingerprint,
			&inv.Invitee.Fingerprint, &inv.Invitee.SigningPublicKey, &inv.Invitee.KemPublicKey, &inv.Status, &created); err != nil {
			return nil, err
		}
		inv.Invitee.GroupID = inv.GroupID
		inv.CreatedAt = time.Unix(created, 0).UTC()
		result = append(result, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) SetInvitationStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `update invitations set status=? where id=?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrInvitationNotFound
	}
	return nil
}

func (r *SQLiteRepository) ImportGroup(ctx context.Context, g *models.Group) error {
	query := `INSERT OR IGNORE INTO groups (id, name, owner_fingerprint, owner_signing_key, created_at)
			values (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, g.ID, g.Name, g.OwnerFingerprint, g.OwnerSigningKey, g.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to import group: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ImportMember(ctx context.Context, m *models.Member) error {
	query := `INSERT OR IGNORE INTO members (group_id, fingerprint, signing_public_key, kem_public_key, added_at)
			values (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, m.GroupID, m.Fingerprint, m.SigningPublicKey, m.KemPublicKey, m.AddedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to import member: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ImportInvitation(ctx context.Context, inv *models.Invitation) error {
	query := `INSERT OR IGNORE INTO invitations (id, group_id, group_name, inviter_fingerprint,
			invitee_fingerprint, invitee_signing_key, invitee_kem_key, status, created_at)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, inv.ID, inv.GroupID, inv.GroupName, inv.InviterFingerprint,
		inv.Invitee.Fingerprint, inv.Invitee.SigningPublicKey, inv.Invitee.KemPublicKey, inv.Status, inv.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to import invitation: %w", err)
	}
	return nil
}
