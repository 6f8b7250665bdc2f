package cryptox

import (
	"crypto/ed25519"
	"fmt"
)

// SignatureType identifies the scheme of a signature block. Unknown values
// are a hard parse failure, never a silent skip.
type SignatureType uint8

// SignatureTypeEd25519 is the only scheme currently in use.
const SignatureTypeEd25519 SignatureType = 1

// Sign signs message bytes with an Ed25519 private key and returns the
// 64-byte signature.
func Sign(message []byte, privateKey ed25519.PrivateKey) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(privateKey))
	}
	return ed25519.Sign(privateKey, message), nil
}

// Verify checks an Ed25519 signature against a message and public key.
// Returns false for any error (malformed key, truncated signature, etc.).
func Verify(message, signature []byte, publicKey ed25519.PublicKey) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}
