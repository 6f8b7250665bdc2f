package cryptox

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocdem/dna-messenger-sub005/internal/common"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)
	nonce := common.GenerateRandByteArray(NonceSize)
	aad := []byte("message-id-1")
	plaintext := []byte("hello, group")

	ciphertext, tag, err := Encrypt(key, nonce, aad, plaintext)
	require.NoError(t, err)
	assert.Len(t, tag, TagSize)
	assert.NotEqual(t, plaintext, ciphertext)

	got, err := Decrypt(key, nonce, aad, ciphertext, tag)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecrypt_WrongAAD(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)
	nonce := common.GenerateRandByteArray(NonceSize)

	ciphertext, tag, err := Encrypt(key, nonce, []byte("id-a"), []byte("x"))
	require.NoError(t, err)

	_, err = Decrypt(key, nonce, []byte("id-b"), ciphertext, tag)
	require.ErrorIs(t, err, common.ErrCryptoFailure)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)
	nonce := common.GenerateRandByteArray(NonceSize)

	ciphertext, tag, err := Encrypt(key, nonce, nil, []byte("payload"))
	require.NoError(t, err)
	ciphertext[0] ^= 0xff

	_, err = Decrypt(key, nonce, nil, ciphertext, tag)
	require.ErrorIs(t, err, common.ErrCryptoFailure)
}

func TestEncrypt_EmptyPlaintext(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)
	nonce := common.GenerateRandByteArray(NonceSize)

	ciphertext, tag, err := Encrypt(key, nonce, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, ciphertext)

	got, err := Decrypt(key, nonce, nil, ciphertext, tag)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKem_RoundTrip(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)

	kem := MLKEM{}
	ciphertext, ss1, err := kem.Encapsulate(id.KemPublicKey)
	require.NoError(t, err)
	assert.Len(t, ciphertext, KemCiphertextSize)
	assert.Len(t, ss1, SharedSecretSize)

	ss2, err := kem.Decapsulate(ciphertext, id.KemSeed)
	require.NoError(t, err)
	assert.Equal(t, ss1, ss2)
}

func TestKem_BadPublicKeyLength(t *testing.T) {
	_, _, err := MLKEM{}.Encapsulate([]byte("short"))
	require.ErrorIs(t, err, common.ErrCryptoFailure)
}

func TestWrapUnwrap_RoundTrip(t *testing.T) {
	ss := common.GenerateRandByteArray(SharedSecretSize)
	gek := common.GenerateRandByteArray(KeySize)

	wrapped, err := WrapKey(ss, gek)
	require.NoError(t, err)
	assert.Len(t, wrapped, WrappedKeySize)

	got, err := UnwrapKey(ss, wrapped)
	require.NoError(t, err)
	assert.Equal(t, gek, got)
}

func TestWrapKey_Deterministic(t *testing.T) {
	ss := common.GenerateRandByteArray(SharedSecretSize)
	gek := common.GenerateRandByteArray(KeySize)

	a, err := WrapKey(ss, gek)
	require.NoError(t, err)
	b, err := WrapKey(ss, gek)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b))
}

func TestUnwrapKey_WrongSecret(t *testing.T) {
	gek := common.GenerateRandByteArray(KeySize)
	wrapped, err := WrapKey(common.GenerateRandByteArray(SharedSecretSize), gek)
	require.NoError(t, err)

	_, err = UnwrapKey(common.GenerateRandByteArray(SharedSecretSize), wrapped)
	require.ErrorIs(t, err, common.ErrCryptoFailure)
}

func TestSignVerify(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)

	msg := []byte("sign me")
	sig, err := Sign(msg, id.SigningPrivateKey)
	require.NoError(t, err)

	assert.True(t, Verify(msg, sig, id.SigningPublicKey))
	assert.False(t, Verify([]byte("other"), sig, id.SigningPublicKey))
	assert.False(t, Verify(msg, sig[:10], id.SigningPublicKey))
	assert.False(t, Verify(msg, sig, id.SigningPublicKey[:5]))
}

func TestIdentity_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	id, err := NewIdentity()
	require.NoError(t, err)
	require.NoError(t, id.Save(path))

	got, err := LoadIdentity(path)
	require.NoError(t, err)
	assert.Equal(t, id.SigningPrivateKey, got.SigningPrivateKey)
	assert.Equal(t, id.KemSeed, got.KemSeed)
	assert.Equal(t, id.Fingerprint, got.Fingerprint)
}

func TestLoadOrCreateIdentity_CreatesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	a, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)
	b, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestFingerprint_Stable(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)

	fp1 := Fingerprint(id.SigningPublicKey)
	fp2 := Fingerprint(id.SigningPublicKey)
	assert.Equal(t, fp1, fp2)
	assert.Len(t, FingerprintHex(fp1), FingerprintSize*2)
}
