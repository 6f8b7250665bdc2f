package ikp

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocdem/dna-messenger-sub005/internal/common"
	"github.com/nocdem/dna-messenger-sub005/internal/cryptox"
	"github.com/nocdem/dna-messenger-sub005/internal/models"
)

func newMember(t *testing.T, groupID string) (*cryptox.Identity, models.Member) {
	t.Helper()
	id, err := cryptox.NewIdentity()
	require.NoError(t, err)
	return id, models.Member{
		GroupID:          groupID,
		Fingerprint:      id.Fingerprint[:],
		SigningPublicKey: id.SigningPublicKey,
		KemPublicKey:     id.KemPublicKey,
	}
}

func buildPacket(t *testing.T, memberCount int) (raw []byte, gek []byte, owner *cryptox.Identity, ids []*cryptox.Identity) {
	t.Helper()
	groupID := uuid.NewString()
	gek = common.GenerateRandByteArray(cryptox.KeySize)

	var members []models.Member
	for i := 0; i < memberCount; i++ {
		id, m := newMember(t, groupID)
		ids = append(ids, id)
		members = append(members, m)
	}
	owner = ids[0]

	raw, err := Build(groupID, 3, gek, members, cryptox.MLKEM{}, owner.SigningPrivateKey)
	require.NoError(t, err)
	return raw, gek, owner, ids
}

func TestBuildExtract_EveryMemberRecoversKey(t *testing.T) {
	for _, n := range []int{1, 2, 5, 16} {
		raw, gek, _, ids := buildPacket(t, n)
		for _, id := range ids {
			got, version, err := Extract(raw, id.Fingerprint, cryptox.MLKEM{}, id.KemSeed)
			require.NoError(t, err)
			assert.Equal(t, gek, got)
			assert.Equal(t, uint32(3), version)
		}
	}
}

func TestExtract_NotAMember(t *testing.T) {
	raw, _, _, _ := buildPacket(t, 3)

	outsider, err := cryptox.NewIdentity()
	require.NoError(t, err)

	_, _, err = Extract(raw, outsider.Fingerprint, cryptox.MLKEM{}, outsider.KemSeed)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestVerify_UnmodifiedPacket(t *testing.T) {
	raw, _, owner, _ := buildPacket(t, 2)
	assert.True(t, Verify(raw, owner.SigningPublicKey))
}

func TestVerify_WrongKey(t *testing.T) {
	raw, _, _, ids := buildPacket(t, 2)
	assert.False(t, Verify(raw, ids[1].SigningPublicKey))
}

func TestVerify_FlippedByteAnywhereInSignedRegion(t *testing.T) {
	raw, _, owner, _ := buildPacket(t, 2)
	signedEnd := headerSize + 2*entrySize

	// flipping any byte of header or entries must break verification
	for _, off := range []int{0, 5, headerSize - 1, headerSize, headerSize + 100, signedEnd - 1} {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[off] ^= 0x01
		assert.False(t, Verify(mutated, owner.SigningPublicKey), "offset %d", off)
	}
}

func TestBuild_NoMembers(t *testing.T) {
	gek := common.GenerateRandByteArray(cryptox.KeySize)
	owner, err := cryptox.NewIdentity()
	require.NoError(t, err)

	_, err = Build(uuid.NewString(), 0, gek, nil, cryptox.MLKEM{}, owner.SigningPrivateKey)
	require.Error(t, err)
}

func TestBuild_BadMemberKey(t *testing.T) {
	groupID := uuid.NewString()
	gek := common.GenerateRandByteArray(cryptox.KeySize)
	owner, m := newMember(t, groupID)
	m.KemPublicKey = m.KemPublicKey[:100]

	_, err := Build(groupID, 0, gek, []models.Member{m}, cryptox.MLKEM{}, owner.SigningPrivateKey)
	require.Error(t, err)
}

func TestDecode_CorruptInputs(t *testing.T) {
	raw, _, _, _ := buildPacket(t, 2)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"empty", func(b []byte) []byte { return nil }},
		{"too short", func(b []byte) []byte { return b[:10] }},
		{"bad magic", func(b []byte) []byte { b[0] = 0xFF; return b }},
		{"truncated entries", func(b []byte) []byte { return b[:headerSize+entrySize/2] }},
		{"trailing garbage", func(b []byte) []byte { return append(b, 0xAA) }},
		{"member count overflow", func(b []byte) []byte {
			b[headerSize-4] = 0xFF
			b[headerSize-3] = 0xFF
			b[headerSize-2] = 0xFF
			b[headerSize-1] = 0xFF
			return b
		}},
		{"zero members", func(b []byte) []byte {
			b[headerSize-4] = 0
			b[headerSize-3] = 0
			b[headerSize-2] = 0
			b[headerSize-1] = 0
			return b
		}},
		{"unknown sig type", func(b []byte) []byte {
			b[headerSize+2*entrySize] = 0x7F
			return b
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mutated := make([]byte, len(raw))
			copy(mutated, raw)
			_, err := Decode(tc.mutate(mutated))
			require.ErrorIs(t, err, common.ErrCorruptData)
		})
	}
}

func TestDecode_PacketSizeInvariant(t *testing.T) {
	raw, _, _, _ := buildPacket(t, 4)
	wantSize := headerSize + 4*entrySize + sigHead + 64
	assert.Equal(t, wantSize, len(raw))

	p, err := Decode(raw)
	require.NoError(t, err)
	assert.Len(t, p.Entries, 4)
	assert.Equal(t, cryptox.SignatureTypeEd25519, p.SigType)
}
