package cryptox

import (
	"crypto/mlkem"
	"fmt"

	"github.com/nocdem/dna-messenger-sub005/internal/common"
)

const (
	// KemPublicKeySize is the ML-KEM-768 encapsulation key length.
	KemPublicKeySize = 1184
	// KemCiphertextSize is the ML-KEM-768 ciphertext length.
	KemCiphertextSize = 1088
	// KemSeedSize is the length of the decapsulation key seed.
	KemSeedSize = 64
	// SharedSecretSize is the length of the encapsulated shared secret.
	SharedSecretSize = 32
)

// KEM is the key-encapsulation contract the key packet codec and the key
// store are written against. The production implementation is ML-KEM-768;
// tests may substitute their own.
type KEM interface {
	// Encapsulate generates a ciphertext and shared secret for publicKey.
	Encapsulate(publicKey []byte) (ciphertext, sharedSecret []byte, err error)

	// Decapsulate recovers the shared secret from a ciphertext using the
	// seed of the local decapsulation key.
	Decapsulate(ciphertext, seed []byte) (sharedSecret []byte, err error)
}

// MLKEM implements KEM with the stdlib ML-KEM-768 primitive.
type MLKEM struct{}

// Encapsulate runs ML-KEM-768 encapsulation against publicKey.
func (MLKEM) Encapsulate(publicKey []byte) (ciphertext, sharedSecret []byte, err error) {
	if len(publicKey) != KemPublicKeySize {
		return nil, nil, fmt.Errorf("%w: kem public key must be %d bytes, got %d", common.ErrCryptoFailure, KemPublicKeySize, len(publicKey))
	}
	ek, err := mlkem.NewEncapsulationKey768(publicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrCryptoFailure, err)
	}
	sharedSecret, ciphertext = ek.Encapsulate()
	return ciphertext, sharedSecret, nil
}

// Decapsulate recovers the shared secret from an ML-KEM-768 ciphertext.
func (MLKEM) Decapsulate(ciphertext, seed []byte) (sharedSecret []byte, err error) {
	if len(ciphertext) != KemCiphertextSize {
		return nil, fmt.Errorf("%w: kem ciphertext must be %d bytes, got %d", common.ErrCryptoFailure, KemCiphertextSize, len(ciphertext))
	}
	dk, err := mlkem.NewDecapsulationKey768(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoFailure, err)
	}
	ss, err := dk.Decapsulate(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoFailure, err)
	}
	return ss, nil
}
