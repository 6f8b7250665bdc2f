package outbox

import "fmt"

// SecondsPerDay is the size of one day bucket.
const SecondsPerDay = 86400

// Day converts a unix timestamp in seconds to its UTC day bucket number.
func Day(unixSeconds int64) int64 {
	return unixSeconds / SecondsPerDay
}

// OutboxKey derives the DHT key of a group's outbox slot for one day. All
// senders write to the same key under their own writer identity.
func OutboxKey(groupID string, day int64) string {
	return fmt.Sprintf("dna/outbox/%s/%d", groupID, day)
}

// IkpKey derives the DHT key a specific key-packet version is published at.
func IkpKey(groupID string, version uint32) string {
	return fmt.Sprintf("dna/ikp/%s/%d", groupID, version)
}

// IkpLatestKey derives the group-level key the newest packet is mirrored
// at, so a member missing the active key can fetch without knowing the
// version number.
func IkpLatestKey(groupID string) string {
	return fmt.Sprintf("dna/ikp/%s/latest", groupID)
}
