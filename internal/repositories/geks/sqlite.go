package geks

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

// Upsert inserts or replaces a key version row.
func (r *SQLiteRepository) Upsert(ctx context.Context, e *models.GekEntry) error {
	query := `INSERT INTO geks (group_id, version, kem_ciphertext, wrapped_key, created_at, expires_at)
			values (?, ?, ?, ?, ?, ?)
			ON CONFLICT(group_id, version) DO UPDATE SET kem_ciphertext = excluded.kem_ciphertext,
				wrapped_key = excluded.wrapped_key,
				created_at = excluded.created_at,
				expires_at = excluded.expires_at
	`
	_, err := r.db.ExecContext(ctx, query,
		e.GroupID, e.Version, e.KemCiphertext, e.WrappedKey, e.CreatedAt.Unix(), e.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert gek: %w", err)
	}
	return nil
}

// GetByVersion returns a single key version.
func (r *SQLiteRepository) GetByVersion(ctx context.Context, groupID string, version uint32) (*models.GekEntry, error) {
	query := `select group_id, version, kem_ciphertext, wrapped_key, created_at, expires_at
			from geks where group_id=? and version=?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, groupID, version))
}

// GetActive returns the highest non-expired version for the group.
func (r *SQLiteRepository) GetActive(ctx context.Context, groupID string, now time.Time) (*models.GekEntry, error) {
	query := `select group_id, version, kem_ciphertext, wrapped_key, created_at, expires_at
			from geks where group_id=? and expires_at>? order by version desc limit 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, groupID, now.Unix()))
}

// MaxVersion returns the highest stored version for the group, expired or not.
func (r *SQLiteRepository) MaxVersion(ctx context.Context, groupID string) (uint32, bool, error) {
	query := `select max(version) from geks where group_id=?`
	var v sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, groupID).Scan(&v); err != nil {
		return 0, false, fmt.Errorf("failed to select max gek version: %w", err)
	}
	if !v.Valid {
		return 0, false, nil
	}
	return uint32(v.Int64), true, nil
}

// DeleteExpired removes all expired key versions.
func (r *SQLiteRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from geks where expires_at<=?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired geks: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) scanOne(row *sql.Row) (*models.GekEntry, error) {
	e := &models.GekEntry{}
	var created, expires int64
	err := row.Scan(&e.GroupID, &e.Version, &e.KemCiphertext, &e.WrappedKey, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	e.CreatedAt = time.Unix(created, 0).UTC()
	e.ExpiresAt = time.Unix(expires, 0).UTC()
	return e, nil
}
