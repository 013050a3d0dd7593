package bus

import "time"

// Event kind namespaces. Related kinds share a dotted prefix so
// subscribers can filter on it.
const (
	// Push-channel frames parsed into domain payloads.
	KindPushMessage      = "push.message"
	KindPushGroupMessage = "push.group_message"
	KindPushNotification = "push.notification"
	KindPushReadStatus   = "push.read_status"
	KindPushPresence     = "push.presence"
	KindPushError        = "push.error"
	KindPushClosed       = "push.closed"

	// Store-side changes frontends care about.
	KindMessageApplied    = "message.applied"
	KindMessageSendAck    = "message.send_ack"
	KindMessageSendFailed = "message.send_failed"

	// Conversation summary / ordering changes.
	KindChatUpdated = "chat.updated"

	// Directory refresh results and presence.
	KindDirectoryUpdated  = "directory.updated"
	KindDirectoryPresence = "directory.presence"

	// Session lifecycle.
	KindSessionStatusChanged = "session.status_changed"
	KindSessionLoggedOut     = "session.logged_out"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
