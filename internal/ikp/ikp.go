// Package ikp implements the Initial Key Packet: a signed, multi-recipient
// binary packet that wraps one group encryption key individually for each
// member, allowing one-to-many key distribution through a public DHT.
//
// Wire layout, big-endian:
//
//	header:   magic u32 | group_id [36] | version u32 | member_count u32
//	entries:  member_count × (fingerprint [64] | kem_ciphertext [1088] | wrapped_key [48])
//	trailer:  sig_type u8 | sig_len u16 | signature
//
// The signature covers the header and every entry. Entry order carries no
// meaning; lookup is a linear scan by fingerprint.
package ikp

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/nocdem/dna-messenger-sub005/internal/common"
	"github.com/nocdem/dna-messenger-sub005/internal/cryptox"
	"github.com/nocdem/dna-messenger-sub005/internal/models"
)

const (
	// Magic identifies a key packet ("DNAK").
	Magic uint32 = 0x444E414B

	groupIDLen = 36
	headerSize = 4 + groupIDLen + 4 + 4
	entrySize  = cryptox.FingerprintSize + cryptox.KemCiphertextSize + cryptox.WrappedKeySize
	sigHead    = 3 // sig_type u8 + sig_len u16

	// MaxMembers bounds member_count before any allocation is sized from it.
	MaxMembers = 4096
)

// Entry is one member's wrapped copy of the group key.
type Entry struct {
	Fingerprint   [cryptox.FingerprintSize]byte
	KemCiphertext []byte
	WrappedKey    []byte
}

// Packet is the decoded form of an Initial Key Packet.
type Packet struct {
	GroupID   string
	Version   uint32
	Entries   []Entry
	SigType   cryptox.SignatureType
	Signature []byte
}

// Build constructs and signs a packet distributing gek to members. Every
// member's KEM public key is length-checked before any encapsulation runs,
// and an empty member list is rejected.
func Build(groupID string, version uint32, gek []byte, members []models.Member, kem cryptox.KEM, signingKey ed25519.PrivateKey) ([]byte, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("refusing to build packet with no members")
	}
	if len(groupID) != groupIDLen {
		return nil, fmt.Errorf("group id must be %d chars, got %d", groupIDLen, len(groupID))
	}
	for _, m := range members {
		if len(m.Fingerprint) != cryptox.FingerprintSize {
			return nil, fmt.Errorf("member fingerprint must be %d bytes, got %d",
				cryptox.FingerprintSize, len(m.Fingerprint))
		}
		if len(m.KemPublicKey) != cryptox.KemPublicKeySize {
			return nil, fmt.Errorf("member %x has a %d-byte kem public key, want %d",
				m.Fingerprint[:8], len(m.KemPublicKey), cryptox.KemPublicKeySize)
		}
	}

	// Total size is known up front; build into a single allocation.
	total := headerSize + len(members)*entrySize + sigHead + ed25519.SignatureSize
	buf := make([]byte, 0, total)

	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[0:4], Magic)
	copy(header[4:4+groupIDLen], groupID)
	binary.BigEndian.PutUint32(header[4+groupIDLen:], version)
	binary.BigEndian.PutUint32(header[4+groupIDLen+4:], uint32(len(members)))
	buf = append(buf, header[:]...)

	for _, m := range members {
		kemCiphertext, sharedSecret, err := kem.Encapsulate(m.KemPublicKey)
		if err != nil {
			return nil, fmt.Errorf("encapsulation for member %x failed: %w", m.Fingerprint[:8], err)
		}
		wrapped, err := cryptox.WrapKey(sharedSecret, gek)
		common.WipeByteArray(sharedSecret)
		if err != nil {
			return nil, err
		}
		buf = append(buf, m.Fingerprint...)
		buf = append(buf, kemCiphertext...)
		buf = append(buf, wrapped...)
	}

	signature, err := cryptox.Sign(buf, signingKey)
	if err != nil {
		return nil, err
	}
	buf = append(buf, byte(cryptox.SignatureTypeEd25519))
	var sigLen [2]byte
	binary.BigEndian.PutUint16(sigLen[:], uint16(len(signature)))
	buf = append(buf, sigLen[:]...)
	buf = append(buf, signature...)

	return buf, nil
}

// Decode structurally validates raw and returns the typed packet. It fails
// with common.ErrCorruptData before any crypto primitive sees the input:
// member_count is validated against the remaining length, the trailing
// signature block must account for every remaining byte, and an unknown
// signature type is a hard failure.
func Decode(raw []byte) (*Packet, error) {
	if len(raw) < headerSize+sigHead {
		return nil, fmt.Errorf("%w: packet of %d bytes is shorter than any valid packet", common.ErrCorruptData, len(raw))
	}
	if binary.BigEndian.Uint32(raw[0:4]) != Magic {
		return nil, fmt.Errorf("%w: bad magic", common.ErrCorruptData)
	}

	groupID := string(raw[4 : 4+groupIDLen])
	version := binary.BigEndian.Uint32(raw[4+groupIDLen:])
	memberCount := binary.BigEndian.Uint32(raw[4+groupIDLen+4:])

	if memberCount == 0 || memberCount > MaxMembers {
		return nil, fmt.Errorf("%w: member count %d out of range", common.ErrCorruptData, memberCount)
	}
	entriesEnd := headerSize + int(memberCount)*entrySize
	if len(raw) < entriesEnd+sigHead {
		return nil, fmt.Errorf("%w: %d members do not fit in %d bytes", common.ErrCorruptData, memberCount, len(raw))
	}

	sigType := cryptox.SignatureType(raw[entriesEnd])
	if sigType != cryptox.SignatureTypeEd25519 {
		return nil, fmt.Errorf("%w: unknown signature type %d", common.ErrCorruptData, sigType)
	}
	sigLen := int(binary.BigEndian.Uint16(raw[entriesEnd+1 : entriesEnd+3]))
	if len(raw) != entriesEnd+sigHead+sigLen {
		return nil, fmt.Errorf("%w: packet size %d does not match declared layout", common.ErrCorruptData, len(raw))
	}

	p := &Packet{
		GroupID:   groupID,
		Version:   version,
		SigType:   sigType,
		Signature: raw[entriesEnd+sigHead:],
		Entries:   make([]Entry, 0, memberCount),
	}
	for i := 0; i < int(memberCount); i++ {
		off := headerSize + i*entrySize
		var e Entry
		copy(e.Fingerprint[:], raw[off:])
		off += cryptox.FingerprintSize
		e.KemCiphertext = raw[off : off+cryptox.KemCiphertextSize]
		off += cryptox.KemCiphertextSize
		e.WrappedKey = raw[off : off+cryptox.WrappedKeySize]
		p.Entries = append(p.Entries, e)
	}
	return p, nil
}

// Verify checks the trailing signature over exactly the header+entries
// region, recomputed from member_count. It must run before Extract on any
// security-sensitive path; the two are separate so a cached packet can be
// verified once and extracted many times.
func Verify(raw []byte, ownerSigningKey ed25519.PublicKey) bool {
	p, err := Decode(raw)
	if err != nil {
		return false
	}
	signedEnd := headerSize + len(p.Entries)*entrySize
	return cryptox.Verify(raw[:signedEnd], p.Signature, ownerSigningKey)
}

// Extract scans for myFingerprint and recovers the group key with the local
// KEM seed. A fingerprint with no entry returns common.ErrNotFound, which is
// an expected outcome: the local member is simply not in this packet's
// target set.
func Extract(raw []byte, myFingerprint [cryptox.FingerprintSize]byte, kem cryptox.KEM, kemSeed []byte) (gek []byte, version uint32, err error) {
	p, err := Decode(raw)
	if err != nil {
		return nil, 0, err
	}
	for _, e := range p.Entries {
		if !bytes.Equal(e.Fingerprint[:], myFingerprint[:]) {
			continue
		}
		sharedSecret, err := kem.Decapsulate(e.KemCiphertext, kemSeed)
		if err != nil {
			return nil, 0, err
		}
		gek, err := cryptox.UnwrapKey(sharedSecret, e.WrappedKey)
		common.WipeByteArray(sharedSecret)
		if err != nil {
			return nil, 0, err
		}
		return gek, p.Version, nil
	}
	return nil, 0, common.ErrNotFound
}
