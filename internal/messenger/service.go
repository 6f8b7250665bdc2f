// Package messenger is the facade callers (CLI, engine layers) talk to. It
// wires the key store, group registry and outbox engine over one local
// database and one DHT handle.
package messenger

import (
	"context"
	"database/sql"

	"github.com/nocdem/dna-messenger-sub005/internal/config"
	"github.com/nocdem/dna-messenger-sub005/internal/cryptox"
	"github.com/nocdem/dna-messenger-sub005/internal/dht"
	"github.com/nocdem/dna-messenger-sub005/internal/keystore"
	"github.com/nocdem/dna-messenger-sub005/internal/logging"
	"github.com/nocdem/dna-messenger-sub005/internal/models"
	"github.com/nocdem/dna-messenger-sub005/internal/outbox"
	"github.com/nocdem/dna-messenger-sub005/internal/registry"
	"github.com/nocdem/dna-messenger-sub005/internal/repositories/geks"
	"github.com/nocdem/dna-messenger-sub005/internal/repositories/groups"
	"github.com/nocdem/dna-messenger-sub005/internal/repositories/messages"
	"github.com/nocdem/dna-messenger-sub005/internal/repositories/syncstate"
)

// Service exposes the messenger's caller-facing operations.
type Service struct {
	Registry *registry.Registry
	Engine   *outbox.Engine
	Keys     *keystore.Store

	messages messages.Repository
	log      logging.Logger
}

// New wires a Service over an open database and DHT handle.
func New(db *sql.DB, d dht.DHT, identity *cryptox.Identity, cfg *config.Config, log logging.Logger) *Service {
	kem := cryptox.MLKEM{}

	geksRepo := geks.NewSQLiteRepository(db)
	groupsRepo := groups.NewSQLiteRepository(db)
	messagesRepo := messages.NewSQLiteRepository(db)
	syncRepo := syncstate.NewSQLiteRepository(db)

	keys := keystore.New(geksRepo, kem, identity, cfg.GekTTL)

	reg := registry.New(registry.Config{
		DB:        db,
		Groups:    groupsRepo,
		Messages:  messagesRepo,
		SyncState: syncRepo,
		Keys:      keys,
		DHT:       d,
		KEM:       kem,
		Identity:  identity,
		Logger:    log,
		GekTTL:    cfg.GekTTL,
		IkpTTL:    cfg.IkpTTL,
	})

	engine := outbox.New(outbox.Config{
		DHT:            d,
		Keys:           keys,
		Groups:         groupsRepo,
		Messages:       messagesRepo,
		SyncState:      syncRepo,
		Identity:       identity,
		KEM:            kem,
		Logger:         log,
		OutboxTTL:      cfg.OutboxTTL,
		MaxCatchupDays: cfg.MaxCatchupDays,
	})

	return &Service{
		Registry: reg,
		Engine:   engine,
		Keys:     keys,
		messages: messagesRepo,
		log:      log,
	}
}

// CreateGroup creates a group owned by the local identity.
func (s *Service) CreateGroup(ctx context.Context, name string) (*models.Group, error) {
	return s.Registry.CreateGroup(ctx, name)
}

// DeleteGroup deletes a group. Owner only.
func (s *Service) DeleteGroup(ctx context.Context, groupID string) error {
	s.Engine.Unsubscribe(groupID)
	return s.Registry.DeleteGroup(ctx, groupID)
}

// ListGroups lists all known groups.
func (s *Service) ListGroups(ctx context.Context) ([]models.Group, error) {
	return s.Registry.ListGroups(ctx)
}

// AddMember adds a member, rotating and redistributing the group key.
func (s *Service) AddMember(ctx context.Context, groupID string, member models.Member) error {
	return s.Registry.AddMember(ctx, groupID, member)
}

// RemoveMember removes a member, rotating the key for the remaining set.
func (s *Service) RemoveMember(ctx context.Context, groupID string, fingerprint []byte) error {
	return s.Registry.RemoveMember(ctx, groupID, fingerprint)
}

// ListMembers lists a group's members.
func (s *Service) ListMembers(ctx context.Context, groupID string) ([]models.Member, error) {
	return s.Registry.ListMembers(ctx, groupID)
}

// SendMessage encrypts, publishes and locally persists one message.
func (s *Service) SendMessage(ctx context.Context, groupID string, plaintext []byte) (*models.GroupMessage, error) {
	return s.Engine.Send(ctx, groupID, plaintext)
}

// Conversation returns a group's locally stored messages ordered by sender
// timestamp.
func (s *Service) Conversation(ctx context.Context, groupID string) ([]models.GroupMessage, error) {
	return s.messages.ListByGroup(ctx, groupID)
}

// SyncNow catches the group up from its last synced day and returns the
// number of newly stored messages.
func (s *Service) SyncNow(ctx context.Context, groupID string) (int, error) {
	return s.Engine.Sync(ctx, groupID)
}

// Subscribe registers for near-real-time notifications on a group. cb runs
// on the transport goroutine with the count of newly stored messages.
func (s *Service) Subscribe(groupID string, cb func(newCount int)) (*outbox.Subscription, error) {
	return s.Engine.Subscribe(groupID, cb)
}

// Unsubscribe releases a group's DHT registration.
func (s *Service) Unsubscribe(groupID string) {
	s.Engine.Unsubscribe(groupID)
}

// AcceptInvitation accepts a pending invitation found locally.
func (s *Service) AcceptInvitation(ctx context.Context, invitationID string) error {
	return s.Registry.AcceptInvitation(ctx, invitationID)
}

// RejectInvitation rejects a pending invitation.
func (s *Service) RejectInvitation(ctx context.Context, invitationID string) error {
	return s.Registry.RejectInvitation(ctx, invitationID)
}

// ExportBackup serializes groups, members and invitations as JSON.
func (s *Service) ExportBackup(ctx context.Context) ([]byte, error) {
	return s.Registry.Export(ctx)
}

// ImportBackup idempotently applies a backup produced by ExportBackup.
func (s *Service) ImportBackup(ctx context.Context, data []byte) error {
	return s.Registry.Import(ctx, data)
}

// CleanupExpiredKeys deletes expired group key versions.
func (s *Service) CleanupExpiredKeys(ctx context.Context) (int64, error) {
	return s.Keys.CleanupExpired(ctx)
}

// CheckDayRotation moves live subscriptions across a UTC day boundary.
// Call it periodically.
func (s *Service) CheckDayRotation() {
	s.Engine.CheckDayRotation()
}

// Close cancels all live subscriptions.
func (s *Service) Close() {
	s.Engine.Close()
}
