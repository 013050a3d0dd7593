// Package outbox tracks sends that have not yet been acknowledged.
package outbox

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sancheet230/get-chat/internal/store"
	"go.uber.org/zap"
)

// echoWindow is how long an echo can take to still count as confirming a
// pending send. The transport does not round-trip a client-generated id, so
// echoes are matched by payload inside this window.
const echoWindow = 2 * time.Minute

// Registry records send intents and resolves them against inbound echoes.
// Entries that never resolve stay visible as "sent, unconfirmed"; there is
// no retry beyond the fallback already attempted at send time.
type Registry struct {
	db     *store.DB
	logger *zap.Logger
}

// NewRegistry creates a registry backed by the local store.
func NewRegistry(db *store.DB, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{db: db, logger: logger}
}

// Track records a send intent before any transport attempt and returns its
// local temporary key.
func (r *Registry) Track(conversationKey, senderID, content, transport string) (string, error) {
	tempKey := uuid.NewString()
	err := r.db.InsertPendingSend(&store.PendingSend{
		TempKey:         tempKey,
		ConversationKey: conversationKey,
		SenderID:        senderID,
		Content:         content,
		Transport:       transport,
		Attempts:        1,
	})
	if err != nil {
		return "", fmt.Errorf("track pending send: %w", err)
	}
	return tempKey, nil
}

// MarkTransport corrects the recorded channel after the attempt resolves,
// since a send tracked for the push path may end up delivered by pull.
func (r *Registry) MarkTransport(tempKey, transport string) error {
	if err := r.db.SetPendingTransport(tempKey, transport); err != nil {
		return fmt.Errorf("mark pending send transport: %w", err)
	}
	return nil
}

// ResolveEcho matches an inbound echo against the oldest pending send with
// the same conversation, sender and content inside the window, and confirms
// it. Returns the resolved entry, or nil when the echo confirms nothing
// (someone else's message, or a send we never tracked).
func (r *Registry) ResolveEcho(conversationKey, senderID, content string) (*store.PendingSend, error) {
	since := time.Now().Add(-echoWindow).UnixMilli()
	p, err := r.db.MatchPendingSend(conversationKey, senderID, content, since)
	if err != nil {
		return nil, fmt.Errorf("match pending send: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	if err := r.db.ConfirmPendingSend(p.TempKey); err != nil {
		return nil, fmt.Errorf("confirm pending send: %w", err)
	}
	r.logger.Info("pending send confirmed",
		zap.String("temp_key", p.TempKey),
		zap.String("conversation", conversationKey))
	return p, nil
}

// Unconfirmed returns sends older than the echo window that never got an
// acknowledgement.
func (r *Registry) Unconfirmed() ([]store.PendingSend, error) {
	before := time.Now().Add(-echoWindow).UnixMilli()
	return r.db.UnconfirmedSends(before)
}
