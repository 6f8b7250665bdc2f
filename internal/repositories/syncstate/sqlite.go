package syncstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nocdem/dna-messenger-sub005/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, groupID string) (int64, bool, error) {
	var day int64
	err := r.db.QueryRowContext(ctx, `select last_synced_day from sync_state where group_id=?`, groupID).Scan(&day)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to select sync state: %w", err)
	}
	return day, true, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, groupID string, day int64) error {
	query := `INSERT INTO sync_state (group_id, last_synced_day) values (?, ?)
			ON CONFLICT(group_id) DO UPDATE SET last_synced_day = excluded.last_synced_day`
	if _, err := r.db.ExecContext(ctx, query, groupID, day); err != nil {
		return fmt.Errorf("failed to upsert sync state: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, groupID string) error {
	if _, err := r.db.ExecContext(ctx, `delete from sync_state where group_id=?`, groupID); err != nil {
		return fmt.Errorf("failed to delete sync state: %w", err)
	}
	return nil
}
