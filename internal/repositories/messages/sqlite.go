package messages

import (
	"context"
	"fmt"

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

// Insert stores one message row, ignoring an id that is already present,
// and reports whether a new row was written.
func (r *SQLiteRepository) Insert(ctx context.Context, m *models.GroupMessage) (bool, error) {
	query := `INSERT OR IGNORE INTO messages (id, group_id, sender_fingerprint, timestamp_ms, gek_version,
			nonce, ciphertext, tag, signature, plaintext, status)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		m.ID, m.GroupID, m.SenderFingerprint, m.TimestampMs, m.GekVersion,
		m.Nonce, m.Ciphertext, m.Tag, m.Signature, m.Plaintext, m.Status)
	if err != nil {
		return false, fmt.Errorf("failed to insert message: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra > 0, nil
}

// Exists reports whether a message id is present.
func (r *SQLiteRepository) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `select count(1) from messages where id=?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}
	return n > 0, nil
}

// ListByGroup returns a group's messages ordered by timestamp.
func (r *SQLiteRepository) ListByGroup(ctx context.Context, groupID string) ([]models.GroupMessage, error) {
	query := `select id, group_id, sender_fingerprint, timestamp_ms, gek_version,
			nonce, ciphertext, tag, signature, plaintext, status
			from messages where group_id=? order by timestamp_ms`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	var result []models.GroupMessage
	for rows.Next() {
		var m models.GroupMessage
		if err := rows.Scan(&m.ID, &m.GroupID, &m.SenderFingerprint, &m.TimestampMs, &m.GekVersion,
			&m.Nonce, &m.Ciphertext, &m.Tag, &m.Signature, &m.Plaintext, &m.Status); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountByGroup returns the number of stored messages for a group.
func (r *SQLiteRepository) CountByGroup(ctx context.Context, groupID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `select count(1) from messages where group_id=?`, groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// DeleteByGroup removes all messages belonging to a group.
func (r *SQLiteRepository) DeleteByGroup(ctx context.Context, groupID string) error {
	if _, err := r.db.ExecContext(ctx, `delete from messages where group_id=?`, groupID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}
