package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nocdem/dna-messenger-sub005/internal/common"
	"github.com/nocdem/dna-messenger-sub005/internal/cryptox"
	"github.com/nocdem/dna-messenger-sub005/internal/dht"
	"github.com/nocdem/dna-messenger-sub005/internal/ikp"
	"github.com/nocdem/dna-messenger-sub005/internal/keystore"
	"github.com/nocdem/dna-messenger-sub005/internal/logging"
	"github.com/nocdem/dna-messenger-sub005/internal/models"
	"github.com/nocdem/dna-messenger-sub005/internal/repositories/groups"
	"github.com/nocdem/dna-messenger-sub005/internal/repositories/messages"
	"github.com/nocdem/dna-messenger-sub005/internal/repositories/syncstate"
)

// Config wires an Engine's collaborators.
type Config struct {
	DHT            dht.DHT
	Keys           *keystore.Store
	Groups         groups.Repository
	Messages       messages.Repository
	SyncState      syncstate.Repository
	Identity       *cryptox.Identity
	KEM            cryptox.KEM
	Logger         logging.Logger
	OutboxTTL      time.Duration
	MaxCatchupDays int
}

// Engine runs the group outbox protocol for the local identity. The DHT
// notification callback may fire on a transport goroutine concurrently with
// application calls; all shared state here is either behind a mutex or
// delegated to the SQLite-backed repositories.
type Engine struct {
	dht            dht.DHT
	keys           *keystore.Store
	groups         groups.Repository
	messages       messages.Repository
	syncState      syncstate.Repository
	identity       *cryptox.Identity
	kem            cryptox.KEM
	log            logging.Logger
	outboxTTL      time.Duration
	maxCatchupDays int
	now            func() time.Time

	// sendMu serializes Send within this process so two local goroutines
	// cannot race the read-modify-write of the same sender bucket.
	// Cross-process writes by the same identity remain last-writer-wins.
	sendMu sync.Mutex
	// lastSendMs keeps send timestamps strictly increasing; the message id
	// is derived from the timestamp, so two sends in one millisecond would
	// otherwise collide.
	lastSendMs int64

	subsMu sync.Mutex
	subs   map[string]*Subscription
}

// Subscription is one group's live DHT registration. It is day-scoped: a
// periodic CheckDayRotation call moves it across midnight UTC.
type Subscription struct {
	GroupID string
	day     int64
	token   dht.Token
	cb      func(newCount int)
}

// Day returns the UTC day bucket the subscription currently listens on.
func (s *Subscription) Day() int64 { return s.day }

// New returns an Engine.
func New(cfg Config) *Engine {
	return &Engine{
		dht:            cfg.DHT,
		keys:           cfg.Keys,
		groups:         cfg.Groups,
		messages:       cfg.Messages,
		syncState:      cfg.SyncState,
		identity:       cfg.Identity,
		kem:            cfg.KEM,
		log:            cfg.Logger,
		outboxTTL:      cfg.OutboxTTL,
		maxCatchupDays: cfg.MaxCatchupDays,
		now:            time.Now,
		subs:           make(map[string]*Subscription),
	}
}

// SetClock replaces the time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Send encrypts plaintext under the group's active key, signs it, appends it
// to the sender's own day bucket and persists it locally with status "sent".
// A missing active key triggers one key-packet auto-sync before giving up
// with common.ErrNoActiveKey.
func (e *Engine) Send(ctx context.Context, groupID string, plaintext []byte) (*models.GroupMessage, error) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	gek, version, err := e.activeGek(ctx, groupID)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(gek)

	now := e.now()
	ts := now.UnixMilli()
	if ts <= e.lastSendMs {
		ts = e.lastSendMs + 1
	}
	e.lastSendMs = ts
	fp := e.identity.Fingerprint[:]
	id := models.DeriveMessageID(fp, groupID, ts)

	nonce := common.GenerateRandByteArray(cryptox.NonceSize)
	// the message id rides along as associated data, binding the
	// ciphertext to its identifier
	ciphertext, tag, err := cryptox.Encrypt(gek, nonce, []byte(id), plaintext)
	if err != nil {
		return nil, err
	}

	m := &models.GroupMessage{
		ID:                id,
		SenderFingerprint: fp,
		GroupID:           groupID,
		TimestampMs:       ts,
		GekVersion:        version,
		Nonce:             nonce,
		Ciphertext:        ciphertext,
		Tag:               tag,
		Plaintext:         plaintext,
		Status:            models.MessageStatusSent,
	}
	m.Signature, err = cryptox.Sign(m.SignedRegion(), e.identity.SigningPrivateKey)
	if err != nil {
		return nil, err
	}

	day := Day(now.Unix())
	if err := e.appendToOwnBucket(ctx, groupID, day, m); err != nil {
		return nil, err
	}

	if _, err := e.messages.Insert(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// appendToOwnBucket performs the per-sender read-modify-write: fetch the
// sender's current bucket at the day key, append, rewrite the whole value.
func (e *Engine) appendToOwnBucket(ctx context.Context, groupID string, day int64, m *models.GroupMessage) error {
	key := OutboxKey(groupID, day)
	values, err := e.dht.GetAll(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: outbox read failed: %v", common.ErrUnavailable, err)
	}

	bucket := &models.DayBucket{
		FormatVersion:     BucketFormatVersion,
		SenderFingerprint: m.SenderFingerprint,
	}
	for _, raw := range values {
		b, err := BucketFromWire(raw)
		if err != nil {
			continue
		}
		if string(b.SenderFingerprint) == string(m.SenderFingerprint) {
			bucket = b
			break
		}
	}

	bucket.Messages = append(bucket.Messages, *m)
	raw, err := BucketToWire(bucket)
	if err != nil {
		return err
	}
	if err := e.dht.Put(ctx, key, raw, e.outboxTTL); err != nil {
		return fmt.Errorf("%w: outbox write failed: %v", common.ErrUnavailable, err)
	}
	return nil
}

// Fetch merges all senders' buckets at one (group, day) key into a single
// unordered message list. No decryption happens here; a corrupt bucket from
// one sender does not invalidate the others.
func (e *Engine) Fetch(ctx context.Context, groupID string, day int64) ([]models.GroupMessage, error) {
	values, err := e.dht.GetAll(ctx, OutboxKey(groupID, day))
	if err != nil {
		return nil, fmt.Errorf("%w: outbox read failed: %v", common.ErrUnavailable, err)
	}

	var merged []models.GroupMessage
	for _, raw := range values {
		b, err := BucketFromWire(raw)
		if err != nil {
			e.log.Warn(ctx, "skipping corrupt bucket", "group_id", groupID, "day", day, "error", err)
			continue
		}
		merged = append(merged, b.Messages...)
	}
	return merged, nil
}

// Sync catches a group up from its last synced day through today, storing
// every new decryptable message. It returns the number of newly stored
// messages. Messages that cannot be decrypted are skipped, not errors:
// during key rotation propagation that is the expected steady state.
func (e *Engine) Sync(ctx context.Context, groupID string) (int, error) {
	today := Day(e.now().Unix())

	start := today - int64(e.maxCatchupDays)
	if last, ok, err := e.syncState.Get(ctx, groupID); err != nil {
		return 0, err
	} else if ok {
		start = last + 1
	}
	if start > today {
		start = today
	}

	total := 0
	for day := start; day <= today; day++ {
		msgs, err := e.Fetch(ctx, groupID, day)
		if err != nil {
			return total, err
		}
		n, err := e.storeNew(ctx, groupID, msgs)
		total += n
		if err != nil {
			return total, err
		}
		// today is never marked done: more messages may still arrive in it
		if day < today {
			if err := e.syncState.Set(ctx, groupID, day); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// storeNew runs the per-day inner loop shared by Sync and the notification
// path: dedupe by message id, decrypt per recorded key version, verify the
// sender signature, persist. Per-message failures are logged and skipped.
func (e *Engine) storeNew(ctx context.Context, groupID string, msgs []models.GroupMessage) (int, error) {
	stored := 0
	for i := range msgs {
		m := msgs[i]
		if m.GroupID != groupID {
			e.log.Warn(ctx, "dropping message addressed to another group", "message_id", m.ID)
			continue
		}

		exists, err := e.messages.Exists(ctx, m.ID)
		if err != nil {
			return stored, err
		}
		if exists {
			continue
		}

		member, err := e.groups.GetMember(ctx, groupID, m.SenderFingerprint)
		if err != nil {
			e.log.Warn(ctx, "skipping message from unknown sender", "group_id", groupID, "message_id", m.ID)
			continue
		}
		if !cryptox.Verify(m.SignedRegion(), m.Signature, member.SigningPublicKey) {
			e.log.Warn(ctx, "skipping message with bad signature", "group_id", groupID, "message_id", m.ID)
			continue
		}

		gek, err := e.gekForVersion(ctx, groupID, m.GekVersion)
		if err != nil {
			e.log.Warn(ctx, "skipping message, key version unavailable",
				"group_id", groupID, "message_id", m.ID, "gek_version", m.GekVersion)
			continue
		}
		plaintext, err := cryptox.Decrypt(gek, m.Nonce, []byte(m.ID), m.Ciphertext, m.Tag)
		common.WipeByteArray(gek)
		if err != nil {
			// a rotated-out key is not an error, it is an expected tombstone
			e.log.Warn(ctx, "skipping undecryptable message", "group_id", groupID, "message_id", m.ID)
			continue
		}

		m.Plaintext = plaintext
		m.Status = models.MessageStatusReceived
		// the Exists check above is only an optimization; a concurrent
		// notification or sync may have stored the id since, and the
		// insert resolves that race by counting only a real write
		inserted, err := e.messages.Insert(ctx, &m)
		if err != nil {
			return stored, err
		}
		if inserted {
			stored++
		}
	}
	return stored, nil
}

// activeGek loads the active group key, attempting one key-packet auto-sync
// on a miss before failing with common.ErrNoActiveKey.
func (e *Engine) activeGek(ctx context.Context, groupID string) ([]byte, uint32, error) {
	gek, version, err := e.keys.LoadActive(ctx, groupID)
	if err == nil {
		return gek, version, nil
	}
	if !errors.Is(err, common.ErrNoActiveKey) {
		return nil, 0, err
	}
	if err := e.syncKeyPacket(ctx, groupID, IkpLatestKey(groupID)); err != nil {
		e.log.Debug(ctx, "key packet auto-sync failed", "group_id", groupID, "error", err)
		return nil, 0, common.ErrNoActiveKey
	}
	return e.keys.LoadActive(ctx, groupID)
}

// gekForVersion loads a specific key version, attempting one auto-sync of
// that version's packet when it is locally unknown. One attempt only, never
// a retry loop.
func (e *Engine) gekForVersion(ctx context.Context, groupID string, version uint32) ([]byte, error) {
	gek, err := e.keys.Load(ctx, groupID, version)
	if err == nil {
		return gek, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if err := e.syncKeyPacket(ctx, groupID, IkpKey(groupID, version)); err != nil {
		return nil, err
	}
	return e.keys.Load(ctx, groupID, version)
}

// syncKeyPacket fetches a key packet from the DHT, verifies the group
// owner's signature, extracts the local member's wrapped key and stores it.
func (e *Engine) syncKeyPacket(ctx context.Context, groupID, key string) error {
	raw, err := e.dht.Get(ctx, key)
	if err != nil {
		return err
	}
	group, err := e.groups.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !ikp.Verify(raw, group.OwnerSigningKey) {
		return fmt.Errorf("%w: key packet signature invalid for group %s", common.ErrCryptoFailure, groupID)
	}
	gek, version, err := ikp.Extract(raw, e.identity.Fingerprint, e.kem, e.identity.KemSeed)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(gek)

	e.log.Info(ctx, "extracted group key from packet", "group_id", groupID, "gek_version", version)
	return e.keys.StoreExtracted(ctx, groupID, version, gek)
}

// Subscribe registers exactly one DHT subscription on the group's current
// day key. On every notification the current day is re-fetched and processed
// like Sync's inner loop; cb fires with the count of newly stored messages,
// and only when that count is positive.
func (e *Engine) Subscribe(groupID string, cb func(newCount int)) (*Subscription, error) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	if _, ok := e.subs[groupID]; ok {
		return nil, fmt.Errorf("already subscribed to group %s", groupID)
	}

	day := Day(e.now().Unix())
	token, err := e.dht.Listen(OutboxKey(groupID, day), func([]byte) { e.onNotify(groupID) })
	if err != nil {
		return nil, fmt.Errorf("%w: listen failed: %v", common.ErrUnavailable, err)
	}

	sub := &Subscription{GroupID: groupID, day: day, token: token, cb: cb}
	e.subs[groupID] = sub
	return sub, nil
}

// Unsubscribe cancels a group's DHT registration.
func (e *Engine) Unsubscribe(groupID string) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	if sub, ok := e.subs[groupID]; ok {
		e.dht.Cancel(sub.token)
		delete(e.subs, groupID)
	}
}

// Close cancels every live subscription.
func (e *Engine) Close() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	for groupID, sub := range e.subs {
		e.dht.Cancel(sub.token)
		delete(e.subs, groupID)
	}
}

// CheckDayRotation moves every subscription whose remembered day is behind
// the current UTC day onto the new day key. Day buckets do not auto-chain:
// without this a long-lived subscriber goes silent at midnight UTC.
func (e *Engine) CheckDayRotation() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	today := Day(e.now().Unix())
	for groupID, sub := range e.subs {
		if sub.day == today {
			continue
		}
		e.dht.Cancel(sub.token)
		token, err := e.dht.Listen(OutboxKey(groupID, today), func([]byte) { e.onNotify(groupID) })
		if err != nil {
			e.log.Error(context.Background(), "day rotation resubscribe failed", "group_id", groupID, "error", err)
			delete(e.subs, groupID)
			continue
		}
		sub.day = today
		sub.token = token
	}
}

// onNotify runs on the DHT transport goroutine.
func (e *Engine) onNotify(groupID string) {
	ctx := context.Background()

	e.subsMu.Lock()
	sub, ok := e.subs[groupID]
	var cb func(int)
	if ok {
		cb = sub.cb
	}
	e.subsMu.Unlock()
	if !ok {
		return
	}

	msgs, err := e.Fetch(ctx, groupID, Day(e.now().Unix()))
	if err != nil {
		e.log.Warn(ctx, "notification fetch failed", "group_id", groupID, "error", err)
		return
	}
	n, err := e.storeNew(ctx, groupID, msgs)
	if err != nil {
		e.log.Error(ctx, "notification processing failed", "group_id", groupID, "error", err)
		return
	}
	if n > 0 && cb != nil {
		cb(n)
	}
}
