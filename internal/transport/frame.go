package transport

// Frame is one unit on the push channel. Each wire `type` tag has exactly
// one Go type; the engine matches on the concrete type exhaustively.
type Frame interface {
	frameType() string
}

// Wire type tags.
const (
	TypeAuthenticate    = "authenticate"
	TypeMessage         = "message"
	TypeGroupMessage    = "group_message"
	TypeReadStatus      = "read_status"
	TypeGroupReadStatus = "group_read_status"
	TypeNotification    = "notification"
	TypeUserStatus      = "user_status"
	TypeError           = "error"
)

// AuthenticateFrame is the first outbound frame after the channel opens.
// The channel itself carries no built-in auth.
type AuthenticateFrame struct {
	Type   string `json:"type"`
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

func (AuthenticateFrame) frameType() string { return TypeAuthenticate }

// NewAuthenticateFrame builds an authenticate frame for the given credential.
func NewAuthenticateFrame(token, userID string) AuthenticateFrame {
	return AuthenticateFrame{Type: TypeAuthenticate, Token: token, UserID: userID}
}

// MessageFrame carries a 1:1 message. Inbound frames (echoes included)
// carry the server-assigned id and timestamp; outbound sends leave them
// empty for the server to assign.
type MessageFrame struct {
	Type       string `json:"type"`
	ID         string `json:"id,omitempty"`
	SenderID   string `json:"sender_id,omitempty"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	MediaURL   string `json:"media_url,omitempty"`
	MediaType  string `json:"media_type,omitempty"`
	// Timestamp is unix milliseconds assigned by the server.
	Timestamp int64 `json:"timestamp,omitempty"`
}

func (MessageFrame) frameType() string { return TypeMessage }

// GroupMessageFrame carries a group message.
type GroupMessageFrame struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	GroupID   string `json:"group_id"`
	SenderID  string `json:"sender_id,omitempty"`
	Content   string `json:"content"`
	MediaURL  string `json:"media_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func (GroupMessageFrame) frameType() string { return TypeGroupMessage }

// ReadStatusFrame propagates read receipts for specific message ids.
type ReadStatusFrame struct {
	Type       string   `json:"type"`
	MessageIDs []string `json:"message_ids"`
}

func (ReadStatusFrame) frameType() string { return TypeReadStatus }

// GroupReadStatusFrame propagates a group-wide read receipt.
type GroupReadStatusFrame struct {
	Type     string `json:"type"`
	GroupID  string `json:"group_id"`
	ReaderID string `json:"reader_id,omitempty"`
}

func (GroupReadStatusFrame) frameType() string { return TypeGroupReadStatus }

// NotificationFrame is a receiver-side hint independent of the message
// payload, used to update ordering and unread state before or without the
// message body. Server to client only.
type NotificationFrame struct {
	Type       string `json:"type"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	GroupID    string `json:"group_id,omitempty"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

func (NotificationFrame) frameType() string { return TypeNotification }

// ConversationKey returns the key the notification concerns: the group for
// group traffic, otherwise the sender.
func (f NotificationFrame) ConversationKey() string {
	if f.GroupID != "" {
		return f.GroupID
	}
	return f.SenderID
}

// UserStatusFrame is a presence broadcast. Server to client only.
type UserStatusFrame struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Status string `json:"status"` // "online" or "offline"
}

func (UserStatusFrame) frameType() string { return TypeUserStatus }

// ErrorFrame is a channel-level fault. Server to client only.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (ErrorFrame) frameType() string { return TypeError }
