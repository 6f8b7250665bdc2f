package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/nocdem/dna-messenger-sub005/internal/common"
)

// WrappedKeySize is the fixed length of a wrapped group key:
// 32 key bytes plus the GCM tag.
const WrappedKeySize = KeySize + TagSize

const wrapInfo = "dna-messenger gek wrap v1"

// deriveWrapMaterial expands a KEM shared secret into an AES key and a
// nonce. The nonce is derived, not random: each shared secret is unique per
// encapsulation, so the (key, nonce) pair never repeats.
func deriveWrapMaterial(sharedSecret []byte) (key, nonce []byte, err error) {
	r := hkdf.New(sha256.New, sharedSecret, nil, []byte(wrapInfo))
	buf := make([]byte, KeySize+NonceSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrCryptoFailure, err)
	}
	return buf[:KeySize], buf[KeySize:], nil
}

// WrapKey deterministically wraps a 32-byte group key under a KEM shared
// secret. The output is always WrappedKeySize bytes.
func WrapKey(sharedSecret, gek []byte) ([]byte, error) {
	if len(gek) != KeySize {
		return nil, fmt.Errorf("%w: group key must be %d bytes, got %d", common.ErrCryptoFailure, KeySize, len(gek))
	}
	key, nonce, err := deriveWrapMaterial(sharedSecret)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	aead, err := wrapGCM(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, gek, nil), nil
}

// UnwrapKey reverses WrapKey. It returns common.ErrCryptoFailure when the
// shared secret does not match the one used for wrapping.
func UnwrapKey(sharedSecret, wrapped []byte) ([]byte, error) {
	if len(wrapped) != WrappedKeySize {
		return nil, fmt.Errorf("%w: wrapped key must be %d bytes, got %d", common.ErrCryptoFailure, WrappedKeySize, len(wrapped))
	}
	key, nonce, err := deriveWrapMaterial(sharedSecret)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	aead, err := wrapGCM(key)
	if err != nil {
		return nil, err
	}
	gek, err := aead.Open(nil, nonce, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoFailure, err)
	}
	return gek, nil
}

func wrapGCM(key []byte) (cipher.AEAD, error) {
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
