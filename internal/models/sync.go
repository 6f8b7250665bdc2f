package models

// SyncState bounds catch-up scans: one row per group recording the last UTC
// day bucket that was fully processed. The current day is never recorded as
// done, since more messages may still arrive in it.
type SyncState struct {
	GroupID       string
	LastSyncedDay int64
}

// DayBucket is the wire value stored at one (group, day, sender) DHT slot.
// Buckets are append-only from the sender's perspective: a send reads the
// current bucket, appends one message and rewrites the whole value.
type DayBucket struct {
	FormatVersion     uint8
	SenderFingerprint []byte
	Messages          []GroupMessage
}
