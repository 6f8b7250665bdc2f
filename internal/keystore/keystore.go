// Package keystore manages the lifecycle of group encryption keys:
// generation, at-rest self-encryption, versioned storage, rotation and
// active-key selection.
//
// At rest a key is wrapped under an ML-KEM shared secret encapsulated to the
// local member's own KEM public key, so only the holder of the matching
// private key can recover it. Callers own any decrypted key they request and
// are responsible for wiping it with common.WipeByteArray.
package keystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nocdem/dna-messenger-sub005/internal/common"
	"github.com/nocdem/dna-messenger-sub005/internal/cryptox"
	"github.com/nocdem/dna-messenger-sub005/internal/models"
	"github.com/nocdem/dna-messenger-sub005/internal/repositories/geks"
)

// Store implements the group-key lifecycle over the geks repository.
type Store struct {
	repo     geks.Repository
	kem      cryptox.KEM
	identity *cryptox.Identity
	ttl      time.Duration
	now      func() time.Time
}

// New returns a Store. ttl is the lifetime of every stored key version.
func New(repo geks.Repository, kem cryptox.KEM, identity *cryptox.Identity, ttl time.Duration) *Store {
	return &Store{
		repo:     repo,
		kem:      kem,
		identity: identity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Generate draws a fresh 32-byte group key. It does not persist anything.
func (s *Store) Generate() []byte {
	return common.GenerateRandByteArray(cryptox.KeySize)
}

// Store encrypts gek with the local identity's own KEM public key and
// upserts it under (groupID, version). It fails with
// common.ErrKeysNotConfigured when no identity keys are available.
func (s *Store) Store(ctx context.Context, groupID string, version uint32, gek []byte) error {
	if !s.identity.Valid() {
		return common.ErrKeysNotConfigured
	}

	kemCiphertext, sharedSecret, err := s.kem.Encapsulate(s.identity.KemPublicKey)
	if err != nil {
		return fmt.Errorf("failed to encapsulate to own key: %w", err)
	}
	defer common.WipeByteArray(sharedSecret)

	wrapped, err := cryptox.WrapKey(sharedSecret, gek)
	if err != nil {
		return fmt.Errorf("failed to wrap group key: %w", err)
	}

	now := s.now().UTC()
	return s.repo.Upsert(ctx, &models.GekEntry{
		GroupID:       groupID,
		Version:       version,
		KemCiphertext: kemCiphertext,
		WrappedKey:    wrapped,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	})
}

// Load decrypts and returns one key version. The caller owns the returned
// bytes and must wipe them after use.
func (s *Store) Load(ctx context.Context, groupID string, version uint32) ([]byte, error) {
	entry, err := s.repo.GetByVersion(ctx, groupID, version)
	if err != nil {
		return nil, err
	}
	return s.open(entry)
}

// LoadActive returns the highest non-expired key version for the group,
// or common.ErrNoActiveKey when none exists.
func (s *Store) LoadActive(ctx context.Context, groupID string) ([]byte, uint32, error) {
	entry, err := s.repo.GetActive(ctx, groupID, s.now())
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, 0, common.ErrNoActiveKey
		}
		return nil, 0, err
	}
	gek, err := s.open(entry)
	if err != nil {
		return nil, 0, err
	}
	return gek, entry.Version, nil
}

// Rotate generates and stores the next key version but does not distribute
// it. Distribution through the key packet codec is the caller's job, so a
// failed distribution can be retried without generating yet another version.
func (s *Store) Rotate(ctx context.Context, groupID string) (uint32, []byte, error) {
	maxVersion, exists, err := s.repo.MaxVersion(ctx, groupID)
	if err != nil {
		return 0, nil, err
	}
	version := uint32(0)
	if exists {
		version = maxVersion + 1
	}

	gek := s.Generate()
	if err := s.Store(ctx, groupID, version, gek); err != nil {
		common.WipeByteArray(gek)
		return 0, nil, err
	}
	return version, gek, nil
}

// StoreExtracted persists a key received from another member's key packet.
func (s *Store) StoreExtracted(ctx context.Context, groupID string, version uint32, gek []byte) error {
	return s.Store(ctx, groupID, version, gek)
}

// CleanupExpired deletes all expired key versions and returns the count.
// Best-effort: safe to run concurrently with reads.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

func (s *Store) open(entry *models.GekEntry) ([]byte, error) {
	if !s.identity.Valid() {
		return nil, common.ErrKeysNotConfigured
	}
	sharedSecret, err := s.kem.Decapsulate(entry.KemCiphertext, s.identity.KemSeed)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(sharedSecret)

	gek, err := cryptox.UnwrapKey(sharedSecret, entry.WrappedKey)
	if err != nil {
		return nil, err
	}
	return gek, nil
}
