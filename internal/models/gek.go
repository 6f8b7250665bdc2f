// Package models defines the core data types persisted by the messenger:
// group encryption keys, groups and members, messages, invitations and
// per-group sync state.
package models

import "time"

// GekEntry is one at-rest-encrypted group encryption key version. The key
// bytes are self-encrypted: wrapped under a shared secret encapsulated to the
// local member's own KEM public key, so only the holder of the matching
// private key can recover them.
//
// Rows are immutable once stored under the same (GroupID, Version).
type GekEntry struct {
	GroupID       string
	Version       uint32
	KemCiphertext []byte
	WrappedKey    []byte
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Active reports whether the entry has not expired at the given instant.
func (e *GekEntry) Active(now time.Time) bool {
	return e.ExpiresAt.After(now)
}
