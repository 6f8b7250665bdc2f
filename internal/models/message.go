package models

import (
	"encoding/hex"
	"fmt"
)

// Message statuses as persisted in the local store.
const (
	MessageStatusSent     = "sent"
	MessageStatusReceived = "received"
)

// GroupMessage is one end-to-end-encrypted group message. Plaintext is
// populated only after local decryption and is never carried on the wire.
type GroupMessage struct {
	ID                string
	SenderFingerprint []byte
	GroupID           string
	TimestampMs       int64
	GekVersion        uint32
	Nonce             []byte
	Ciphertext        []byte
	Tag               []byte
	Signature         []byte
	Plaintext         []byte
	Status            string
}

// DeriveMessageID builds the message identifier from sender, group and
// timestamp. Senders cannot collide with each other, so no coordination is
// needed for uniqueness.
func DeriveMessageID(senderFingerprint []byte, groupID string, timestampMs int64) string {
	return fmt.Sprintf("%s:%s:%d", hex.EncodeToString(senderFingerprint), groupID, timestampMs)
}

// SignedRegion returns the byte region covered by the message signature:
// message id, timestamp and ciphertext.
func (m *GroupMessage) SignedRegion() []byte {
	region := make([]byte, 0, len(m.ID)+8+len(m.Ciphertext))
	region = append(region, []byte(m.ID)...)
	var ts [8]byte
	for i := 0; i < 8; i++ {
		ts[i] = byte(uint64(m.TimestampMs) >> (56 - 8*i))
	}
	region = append(region, ts[:]...)
	region = append(region, m.Ciphertext...)
	return region
}
