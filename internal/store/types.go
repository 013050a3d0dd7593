package store

// Message is one entry in a conversation's log. Identity is the
// server-assigned MsgID; a message without one is not yet part of the log
// (see PendingSend).
type Message struct {
	ID              int64
	ConversationKey string
	MsgID           string
	SenderID        string
	Content         string
	MediaURL        string
	MediaType       string
	// IsRead carries the sender's visibility into whether the other party
	// has seen this message. It is only meaningful for messages the
	// current user sent.
	IsRead    bool
	Timestamp int64
}

// Conversation is the summary row backing the conversation list.
type Conversation struct {
	Key                string
	Kind               string // "direct" or "group"
	Title              string
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
}

const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// GroupMember is one entry of a group's member set.
type GroupMember struct {
	GroupID string
	UserID  string
	Role    string // "admin" or "member"
}

// PendingSend is an outbound message that has not yet been acknowledged by
// an echo or pull response.
type PendingSend struct {
	ID              int64
	TempKey         string
	ConversationKey string
	SenderID        string
	Content         string
	Transport       string // "push" or "pull"
	Attempts        int
	Status          string // pending, confirmed
	CreatedAt       int64
}

const (
	PendingStatusPending   = "pending"
	PendingStatusConfirmed = "confirmed"
)
