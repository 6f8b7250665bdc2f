package cryptox

import (
	"crypto/ed25519"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// FingerprintSize is the length of a member fingerprint: SHA3-512 of the
// member's Ed25519 signing public key.
const FingerprintSize = 64

// Fingerprint derives the 64-byte fingerprint of a signing public key.
func Fingerprint(publicKey ed25519.PublicKey) [FingerprintSize]byte {
	return sha3.Sum512(publicKey)
}

// FingerprintHex returns the lowercase hex form of a fingerprint, used as a
// database key and in derived message identifiers.
func FingerprintHex(fp [FingerprintSize]byte) string {
	return hex.EncodeToString(fp[:])
}
