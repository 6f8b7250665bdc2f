package syncstate

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE sync_state (
  group_id TEXT PRIMARY KEY,
  last_synced_day INTEGER NOT NULL
);
`)
	require.NoError(t, err)

	return db
}

func TestGetSetDelete(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, ok, err := r.Get(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, "g1", 19000))
	require.NoError(t, r.Set(ctx, "g1", 19001))

	day, ok, err := r.Get(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(19001), day)

	require.NoError(t, r.Delete(ctx, "g1"))
	_, ok, err = r.Get(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, ok)
}
