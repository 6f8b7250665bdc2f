// Package cryptox wraps the cryptographic primitives the messenger core is
// built on: AES-256-GCM authenticated encryption, Ed25519 signatures,
// ML-KEM-768 key encapsulation, a deterministic key wrap for distributing
// group keys, and fingerprint derivation.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/nocdem/dna-messenger-sub005/internal/common"
)

const (
	// KeySize is the AES-256 key length used for group encryption keys.
	KeySize = 32
	// NonceSize is the GCM nonce length.
	NonceSize = 12
	// TagSize is the GCM authentication tag length.
	TagSize = 16
)

// Encrypt seals plaintext under key with AES-256-GCM, binding aad into the
// authentication tag. The ciphertext and tag are returned separately.
// A fresh random nonce must be supplied by the caller for every message.
func Encrypt(key, nonce, aad, plaintext []byte) (ciphertext, tag []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", common.ErrCryptoFailure, aead.NonceSize(), len(nonce))
	}

	sealed := aead.Seal(nil, nonce, plaintext, aad)
	n := len(sealed) - TagSize
	return sealed[:n], sealed[n:], nil
}

// Decrypt opens ciphertext+tag produced by Encrypt. It returns
// common.ErrCryptoFailure when the key, nonce, aad or data do not match.
func Decrypt(key, nonce, aad, ciphertext, tag []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", common.ErrCryptoFailure, aead.NonceSize(), len(nonce))
	}
	if len(tag) != TagSize {
		return nil, fmt.Errorf("%w: tag must be %d bytes, got %d", common.ErrCryptoFailure, TagSize, len(tag))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoFailure, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoFailure, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoFailure, err)
	}
	return aead, nil
}
