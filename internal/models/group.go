package models

import "time"

// Group is one messaging group. OwnerFingerprint identifies the only member
// allowed to change membership or delete the group; OwnerSigningKey verifies
// the signatures on its key packets.
type Group struct {
	ID               string
	Name             string
	OwnerFingerprint []byte
	OwnerSigningKey  []byte
	CreatedAt        time.Time
}

// Member is one group member together with the public keys needed to wrap
// group keys for them and verify their messages.
type Member struct {
	GroupID          string
	Fingerprint      []byte
	SigningPublicKey []byte
	KemPublicKey     []byte
	AddedAt          time.Time
}

// Invitation statuses.
const (
	InvitationStatusPending  = "pending"
	InvitationStatusAccepted = "accepted"
	InvitationStatusRejected = "rejected"
)

// Invitation records an offer to join a group, carrying the invitee's public
// keys so that acceptance can add the member and rotate keys in one step.
type Invitation struct {
	ID                 string
	GroupID            string
	GroupName          string
	InviterFingerprint []byte
	Invitee            Member
	Status             string
	CreatedAt          time.Time
}
