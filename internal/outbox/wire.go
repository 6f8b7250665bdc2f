// Package outbox implements the day-bucketed, multi-writer group messaging
// protocol: message encryption and signing, per-sender bucket
// read-modify-write, multi-sender fetch-merge, catch-up sync, and
// subscription handling with day-boundary rotation.
package outbox

import (
	"encoding/binary"
	"fmt"

	"github.com/nocdem/dna-messenger-sub005/internal/common"
	"github.com/nocdem/dna-messenger-sub005/internal/cryptox"
	"github.com/nocdem/dna-messenger-sub005/internal/models"
)

const (
	// BucketFormatVersion is the current day-bucket wire format.
	BucketFormatVersion uint8 = 1

	groupIDLen = 36

	// MaxCiphertextLen bounds one message's ciphertext on the wire.
	MaxCiphertextLen = 1 << 20
	// MaxSignatureLen bounds one message's signature on the wire.
	MaxSignatureLen = 1024
	// MaxBucketMessages bounds how many messages one bucket may declare.
	MaxBucketMessages = 65536
)

// fixed per-message wire overhead: fingerprint, group id, timestamp,
// gek version, nonce, ciphertext length, tag, signature length
const messageFixedLen = cryptox.FingerprintSize + groupIDLen + 8 + 4 + cryptox.NonceSize + 4 + cryptox.TagSize + 2

// MessageToWire serializes one message. Plaintext and status never leave the
// local store.
func MessageToWire(m *models.GroupMessage) ([]byte, error) {
	if len(m.SenderFingerprint) != cryptox.FingerprintSize {
		return nil, fmt.Errorf("sender fingerprint must be %d bytes, got %d", cryptox.FingerprintSize, len(m.SenderFingerprint))
	}
	if len(m.GroupID) != groupIDLen {
		return nil, fmt.Errorf("group id must be %d chars, got %d", groupIDLen, len(m.GroupID))
	}
	if len(m.Nonce) != cryptox.NonceSize || len(m.Tag) != cryptox.TagSize {
		return nil, fmt.Errorf("bad nonce/tag length: %d/%d", len(m.Nonce), len(m.Tag))
	}
	if len(m.Ciphertext) > MaxCiphertextLen {
		return nil, fmt.Errorf("ciphertext of %d bytes exceeds limit", len(m.Ciphertext))
	}
	if len(m.Signature) > MaxSignatureLen {
		return nil, fmt.Errorf("signature of %d bytes exceeds limit", len(m.Signature))
	}

	buf := make([]byte, 0, messageFixedLen+len(m.Ciphertext)+len(m.Signature))
	buf = append(buf, m.SenderFingerprint...)
	buf = append(buf, m.GroupID...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.TimestampMs))
	buf = binary.BigEndian.AppendUint32(buf, m.GekVersion)
	buf = append(buf, m.Nonce...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Ciphertext)))
	buf = append(buf, m.Ciphertext...)
	buf = append(buf, m.Tag...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.Signature)))
	buf = append(buf, m.Signature...)
	return buf, nil
}

// MessageFromWire reverses MessageToWire, validating every declared length
// against the remaining input before slicing. The message id is rederived,
// never read from the wire.
func MessageFromWire(raw []byte) (*models.GroupMessage, error) {
	if len(raw) < messageFixedLen {
		return nil, fmt.Errorf("%w: message of %d bytes is shorter than any valid message", common.ErrCorruptData, len(raw))
	}

	m := &models.GroupMessage{}
	off := 0
	m.SenderFingerprint = append([]byte(nil), raw[off:off+cryptox.FingerprintSize]...)
	off += cryptox.FingerprintSize
	m.GroupID = string(raw[off : off+groupIDLen])
	off += groupIDLen
	m.TimestampMs = int64(binary.BigEndian.Uint64(raw[off:]))
	off += 8
	m.GekVersion = binary.BigEndian.Uint32(raw[off:])
	off += 4
	m.Nonce = append([]byte(nil), raw[off:off+cryptox.NonceSize]...)
	off += cryptox.NonceSize

	ctLen := int(binary.BigEndian.Uint32(raw[off:]))
	off += 4
	if ctLen > MaxCiphertextLen {
		return nil, fmt.Errorf("%w: declared ciphertext length %d exceeds limit", common.ErrCorruptData, ctLen)
	}
	if len(raw) < off+ctLen+cryptox.TagSize+2 {
		return nil, fmt.Errorf("%w: declared ciphertext length %d does not fit", common.ErrCorruptData, ctLen)
	}
	// make, not append: a zero-length ciphertext must survive as an empty
	// slice rather than collapsing to nil
	m.Ciphertext = make([]byte, ctLen)
	copy(m.Ciphertext, raw[off:off+ctLen])
	off += ctLen
	m.Tag = append([]byte(nil), raw[off:off+cryptox.TagSize]...)
	off += cryptox.TagSize

	sigLen := int(binary.BigEndian.Uint16(raw[off:]))
	off += 2
	if len(raw) != off+sigLen {
		return nil, fmt.Errorf("%w: declared signature length %d does not match remainder", common.ErrCorruptData, sigLen)
	}
	m.Signature = append([]byte(nil), raw[off:]...)

	m.ID = models.DeriveMessageID(m.SenderFingerprint, m.GroupID, m.TimestampMs)
	return m, nil
}

// BucketToWire serializes a day bucket: format version, sender fingerprint,
// message count, then length-prefixed messages.
func BucketToWire(b *models.DayBucket) ([]byte, error) {
	if len(b.SenderFingerprint) != cryptox.FingerprintSize {
		return nil, fmt.Errorf("sender fingerprint must be %d bytes, got %d", cryptox.FingerprintSize, len(b.SenderFingerprint))
	}
	if len(b.Messages) > MaxBucketMessages {
		return nil, fmt.Errorf("bucket of %d messages exceeds limit", len(b.Messages))
	}

	buf := []byte{b.FormatVersion}
	buf = append(buf, b.SenderFingerprint...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b.Messages)))
	for i := range b.Messages {
		mw, err := MessageToWire(&b.Messages[i])
		if err != nil {
			return nil, err
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(mw)))
		buf = append(buf, mw...)
	}
	return buf, nil
}

// BucketFromWire reverses BucketToWire. The declared message count is
// validated incrementally against the remaining bytes, so a hostile count
// cannot drive allocations or reads past the input.
func BucketFromWire(raw []byte) (*models.DayBucket, error) {
	headLen := 1 + cryptox.FingerprintSize + 4
	if len(raw) < headLen {
		return nil, fmt.Errorf("%w: bucket of %d bytes is shorter than any valid bucket", common.ErrCorruptData, len(raw))
	}
	if raw[0] != BucketFormatVersion {
		return nil, fmt.Errorf("%w: unknown bucket format %d", common.ErrCorruptData, raw[0])
	}

	b := &models.DayBucket{
		FormatVersion:     raw[0],
		SenderFingerprint: append([]byte(nil), raw[1:1+cryptox.FingerprintSize]...),
	}
	count := int(binary.BigEndian.Uint32(raw[1+cryptox.FingerprintSize:]))
	if count > MaxBucketMessages {
		return nil, fmt.Errorf("%w: declared message count %d exceeds limit", common.ErrCorruptData, count)
	}

	off := headLen
	for i := 0; i < count; i++ {
		if len(raw) < off+4 {
			return nil, fmt.Errorf("%w: truncated at message %d", common.ErrCorruptData, i)
		}
		msgLen := int(binary.BigEndian.Uint32(raw[off:]))
		off += 4
		if msgLen > MaxCiphertextLen+MaxSignatureLen+messageFixedLen || len(raw) < off+msgLen {
			return nil, fmt.Errorf("%w: message %d declares %d bytes which do not fit", common.ErrCorruptData, i, msgLen)
		}
		m, err := MessageFromWire(raw[off : off+msgLen])
		if err != nil {
			return nil, err
		}
		b.Messages = append(b.Messages, *m)
		off += msgLen
	}
	if off != len(raw) {
		return nil, fmt.Errorf("%w: %d trailing bytes after last message", common.ErrCorruptData, len(raw)-off)
	}
	return b, nil
}
