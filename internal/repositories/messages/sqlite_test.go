package messages

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocdem/dna-messenger-sub005/internal/models"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE messages (
  id TEXT PRIMARY KEY,
  group_id TEXT NOT NULL,
  sender_fingerprint BLOB NOT NULL,
  timestamp_ms INTEGER NOT NULL,
  gek_version INTEGER NOT NULL,
  nonce BLOB NOT NULL,
  ciphertext BLOB NOT NULL,
  tag BLOB NOT NULL,
  signature BLOB NOT NULL,
  plaintext BLOB,
  status TEXT NOT NULL
);
`)
	require.NoError(t, err)

	return db
}

func msg(id, group string, ts int64) *models.GroupMessage {
	return &models.GroupMessage{
		ID:                id,
		GroupID:           group,
		SenderFingerprint: []byte("fp"),
		TimestampMs:       ts,
		GekVersion:        1,
		Nonce:             []byte("nonce"),
		Ciphertext:        []byte("ct"),
		Tag:               []byte("tag"),
		Signature:         []byte("sig"),
		Plaintext:         []byte("hello"),
		Status:            models.MessageStatusReceived,
	}
}

func TestInsertAndExists(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	ok, err := r.Exists(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	inserted, err := r.Insert(ctx, msg("m1", "g1", 100))
	require.NoError(t, err)
	assert.True(t, inserted)

	ok, err = r.Exists(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInsert_DuplicateIdIsIgnored(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	inserted, err := r.Insert(ctx, msg("m1", "g1", 100))
	require.NoError(t, err)
	require.True(t, inserted)

	// the notification path and Sync can both try the same id; the loser
	// is reported, not failed, and the stored row is untouched
	dup := msg("m1", "g1", 100)
	dup.Plaintext = []byte("other")
	inserted, err = r.Insert(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := r.ListByGroup(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte("hello"), got[0].Plaintext)
}

func TestListByGroup_OrderedByTimestamp(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	for _, m := range []*models.GroupMessage{msg("m2", "g1", 200), msg("m1", "g1", 100), msg("m3", "g2", 50)} {
		_, err := r.Insert(ctx, m)
		require.NoError(t, err)
	}

	got, err := r.ListByGroup(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)
	assert.Equal(t, []byte("hello"), got[0].Plaintext)
}

func TestCountAndDeleteByGroup(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	for _, m := range []*models.GroupMessage{msg("m1", "g1", 1), msg("m2", "g1", 2)} {
		_, err := r.Insert(ctx, m)
		require.NoError(t, err)
	}

	n, err := r.CountByGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, r.DeleteByGroup(ctx, "g1"))

	n, err = r.CountByGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
