// Package common defines shared constants and sentinel errors used across
// the messenger core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is reserved for optimistic-concurrency failures.
	// No operation in the core currently returns it.
	ErrVersionConflict = errors.New("version conflict")

	// Crypto errors. A decapsulation, decrypt or signature-verify failure is
	// fatal to the single message or packet, never to a whole batch.
	ErrCryptoFailure = errors.New("crypto failure")

	// ErrCorruptData means structural validation failed before any crypto
	// primitive was invoked on the input.
	ErrCorruptData = errors.New("corrupt data")

	// Authorization errors.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnavailable means the DHT collaborator was unreachable. It is
	// propagated to the caller, never retried inside the core.
	ErrUnavailable = errors.New("unavailable")

	// Key-store errors.
	ErrNoActiveKey        = errors.New("no active group key")
	ErrKeysNotConfigured  = errors.New("identity keys not configured")
	ErrInvitationNotFound = errors.New("invitation not found")
)
