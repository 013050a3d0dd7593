// Package unread owns the receiver-side unread counters. These are a
// different signal from the sender-side is_read flags carried over the same
// channel, and the two never mix here: receipts for our own sent messages go
// straight to the store.
package unread

import "sync"

// Tracker keeps per-conversation unread counters and the ids backing them.
// Counters are derived state: they are rebuilt from store contents on
// startup and mutated only by the events the engine forwards.
//
// hints counts increments taken for notification-only events that carried
// no message id. The server sends those hints before (or without) the
// message body, so when an id-bearing message for the same conversation
// later arrives, one outstanding hint is absorbed instead of incrementing
// again — otherwise one logical message would count twice.
type Tracker struct {
	mu     sync.Mutex
	counts map[string]int
	ids    map[string][]string
	seen   map[string]map[string]struct{}
	hints  map[string]int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.reset()
	return t
}

// OnInboundMessage records an inbound message. The counter increments iff
// the sender is not the current user and the conversation is not focused.
// msgID may be empty for notification-only hints that carry no message body.
// Returns whether unread state changed.
func (t *Tracker) OnInboundMessage(conversationKey, msgID string, senderIsSelf, isConversationFocused bool) bool {
	if senderIsSelf || isConversationFocused {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if msgID == "" {
		t.hints[conversationKey]++
		t.counts[conversationKey]++
		return true
	}

	if _, dup := t.seen[conversationKey][msgID]; dup {
		return false
	}
	if t.seen[conversationKey] == nil {
		t.seen[conversationKey] = make(map[string]struct{})
	}
	t.seen[conversationKey][msgID] = struct{}{}
	t.ids[conversationKey] = append(t.ids[conversationKey], msgID)

	// This message was already counted when its hint arrived.
	if t.hints[conversationKey] > 0 {
		t.hints[conversationKey]--
		if t.hints[conversationKey] == 0 {
			delete(t.hints, conversationKey)
		}
		return true
	}
	t.counts[conversationKey]++
	return true
}

// OnConversationFocused zeroes the conversation's counter and returns the
// ids that were unread and inbound, so the caller can flush read receipts.
func (t *Tracker) OnConversationFocused(conversationKey string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := t.ids[conversationKey]
	delete(t.ids, conversationKey)
	delete(t.seen, conversationKey)
	delete(t.counts, conversationKey)
	delete(t.hints, conversationKey)
	return ids
}

// Seed preloads unread inbound ids for a conversation, rebuilding state
// after a restart. Replaces any existing entry for the key.
func (t *Tracker) Seed(conversationKey string, msgIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.counts, conversationKey)
	delete(t.ids, conversationKey)
	delete(t.seen, conversationKey)
	delete(t.hints, conversationKey)
	if len(msgIDs) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(msgIDs))
	for _, id := range msgIDs {
		seen[id] = struct{}{}
	}
	t.counts[conversationKey] = len(msgIDs)
	t.ids[conversationKey] = append([]string(nil), msgIDs...)
	t.seen[conversationKey] = seen
}

// Count returns the counter for one conversation.
func (t *Tracker) Count(conversationKey string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[conversationKey]
}

// Counts returns a snapshot of all non-zero counters.
func (t *Tracker) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Reset drops all counters. Used by the forced-logout path.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}

func (t *Tracker) reset() {
	t.counts = make(map[string]int)
	t.ids = make(map[string][]string)
	t.seen = make(map[string]map[string]struct{})
	t.hints = make(map[string]int)
}
