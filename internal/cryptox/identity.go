package cryptox

import (
	"crypto/ed25519"
	"crypto/mlkem"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
)

// Identity is the local member identity: an Ed25519 signing key pair, an
// ML-KEM-768 key pair (stored as its seed) and the derived fingerprint.
type Identity struct {
	SigningPrivateKey ed25519.PrivateKey    `json:"signing_private_key"`
	SigningPublicKey  ed25519.PublicKey     `json:"signing_public_key"`
	KemSeed           []byte                `json:"kem_seed"`
	KemPublicKey      []byte                `json:"kem_public_key"`
	Fingerprint       [FingerprintSize]byte `json:"-"`
}

// NewIdentity generates a fresh identity from cryptographically secure
// randomness.
func NewIdentity() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key pair: %w", err)
	}
	dk, err := mlkem.GenerateKey768()
	if err != nil {
		return nil, fmt.Errorf("failed to generate kem key pair: %w", err)
	}
	id := &Identity{
		SigningPrivateKey: priv,
		SigningPublicKey:  pub,
		KemSeed:           dk.Bytes(),
		KemPublicKey:      dk.EncapsulationKey().Bytes(),
	}
	id.Fingerprint = Fingerprint(pub)
	return id, nil
}

// Valid reports whether all key material has the expected lengths.
func (id *Identity) Valid() bool {
	return id != nil &&
		len(id.SigningPrivateKey) == ed25519.PrivateKeySize &&
		len(id.SigningPublicKey) == ed25519.PublicKeySize &&
		len(id.KemSeed) == KemSeedSize &&
		len(id.KemPublicKey) == KemPublicKeySize
}

// Save writes the identity as JSON to path with owner-only permissions.
func (id *Identity) Save(path string) error {
	b, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// LoadIdentity reads an identity saved with Save and rederives the
// fingerprint.
func LoadIdentity(path string) (*Identity, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	id := &Identity{}
	if err := json.Unmarshal(b, id); err != nil {
		return nil, fmt.Errorf("failed to parse identity file: %w", err)
	}
	if !id.Valid() {
		return nil, fmt.Errorf("identity file %s holds malformed key material", path)
	}
	id.Fingerprint = Fingerprint(id.SigningPublicKey)
	return id, nil
}

// LoadOrCreateIdentity loads the identity at path, generating and saving a
// new one when the file does not exist yet.
func LoadOrCreateIdentity(path string) (*Identity, error) {
	id, err := LoadIdentity(path)
	if err == nil {
		return id, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	id, err = NewIdentity()
	if err != nil {
		return nil, err
	}
	if err := id.Save(path); err != nil {
		return nil, err
	}
	return id, nil
}
