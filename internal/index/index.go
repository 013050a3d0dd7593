// Package index ranks the conversation list for display.
package index

import (
	"sort"
	"sync"
)

type entry struct {
	key    string
	lastAt int64
}

// Index maintains the display order of conversations: most recent last
// message first, with conversations that never had a message keeping their
// insertion order at the tail.
type Index struct {
	mu      sync.Mutex
	entries []entry
	pos     map[string]int
}

// New creates an empty index.
func New() *Index {
	return &Index{pos: make(map[string]int)}
}

// Touch records a conversation's latest message timestamp and resorts.
// Unknown keys are appended first, so a conversation with no messages yet
// keeps the position it was inserted at.
func (ix *Index) Touch(key string, lastMessageAt int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	i, ok := ix.pos[key]
	if !ok {
		ix.entries = append(ix.entries, entry{key: key, lastAt: lastMessageAt})
	} else if lastMessageAt > ix.entries[i].lastAt {
		ix.entries[i].lastAt = lastMessageAt
	}
	ix.resort()
}

// Bump moves a conversation to the top immediately, independent of a full
// resort. Used for low-latency reordering when an inbound message or
// notification arrives for an unfocused conversation.
func (ix *Index) Bump(key string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	i, ok := ix.pos[key]
	if !ok {
		ix.entries = append([]entry{{key: key}}, ix.entries...)
		ix.reindex()
		return
	}
	e := ix.entries[i]
	ix.entries = append(ix.entries[:i], ix.entries[i+1:]...)
	ix.entries = append([]entry{e}, ix.entries...)
	ix.reindex()
}

// Order returns the current display order of keys.
func (ix *Index) Order() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	keys := make([]string, len(ix.entries))
	for i, e := range ix.entries {
		keys[i] = e.key
	}
	return keys
}

// Reset drops all entries. Used by the forced-logout path.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = nil
	ix.pos = make(map[string]int)
}

// resort orders by last message timestamp descending. The sort is stable,
// so timestamp ties and never-messaged conversations (lastAt zero) keep
// their relative insertion order.
func (ix *Index) resort() {
	sort.SliceStable(ix.entries, func(a, b int) bool {
		return ix.entries[a].lastAt > ix.entries[b].lastAt
	})
	ix.reindex()
}

func (ix *Index) reindex() {
	for i, e := range ix.entries {
		ix.pos[e.key] = i
	}
}
