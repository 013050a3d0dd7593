package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameDispatchesOnTypeTag(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{
			name: "message",
			raw:  `{"type":"message","id":"m1","sender_id":"u1","receiver_id":"u2","content":"hi","timestamp":1700000000000}`,
			want: MessageFrame{Type: TypeMessage, ID: "m1", SenderID: "u1", ReceiverID: "u2", Content: "hi", Timestamp: 1700000000000},
		},
		{
			name: "group message with media",
			raw:  `{"type":"group_message","id":"m2","group_id":"g1","sender_id":"u1","content":"","media_url":"http://x/y.png","media_type":"image"}`,
			want: GroupMessageFrame{Type: TypeGroupMessage, ID: "m2", GroupID: "g1", SenderID: "u1", MediaURL: "http://x/y.png", MediaType: "image"},
		},
		{
			name: "read status",
			raw:  `{"type":"read_status","message_ids":["m1","m2"]}`,
			want: ReadStatusFrame{Type: TypeReadStatus, MessageIDs: []string{"m1", "m2"}},
		},
		{
			name: "group read status",
			raw:  `{"type":"group_read_status","group_id":"g1"}`,
			want: GroupReadStatusFrame{Type: TypeGroupReadStatus, GroupID: "g1"},
		},
		{
			name: "notification",
			raw:  `{"type":"notification","sender_id":"u1","receiver_id":"u2"}`,
			want: NotificationFrame{Type: TypeNotification, SenderID: "u1", ReceiverID: "u2"},
		},
		{
			name: "user status",
			raw:  `{"type":"user_status","user_id":"u1","status":"online"}`,
			want: UserStatusFrame{Type: TypeUserStatus, UserID: "u1", Status: "online"},
		},
		{
			name: "error",
			raw:  `{"type":"error","message":"token expired"}`,
			want: ErrorFrame{Type: TypeError, Message: "token expired"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := DecodeFrame([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, frame)
		})
	}
}

func TestDecodeFrameUnknownType(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"type":"typing_indicator","user_id":"u1"}`))
	var unknown *ErrUnknownFrameType
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "typing_indicator", unknown.TypeTag)
}

func TestDecodeFrameMalformed(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"type":"message",`))
	require.Error(t, err)
	var unknown *ErrUnknownFrameType
	assert.False(t, errors.As(err, &unknown), "malformed JSON must not report unknown type")
}

func TestNotificationConversationKey(t *testing.T) {
	direct := NotificationFrame{SenderID: "u1", ReceiverID: "u2"}
	assert.Equal(t, "u1", direct.ConversationKey())

	group := NotificationFrame{SenderID: "u1", ReceiverID: "u2", GroupID: "g1"}
	assert.Equal(t, "g1", group.ConversationKey())
}

func TestEncodeFrameOmitsServerFields(t *testing.T) {
	// Outbound sends leave id/timestamp for the server to assign.
	data, err := EncodeFrame(MessageFrame{Type: TypeMessage, ReceiverID: "u2", Content: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message","receiver_id":"u2","content":"hi"}`, string(data))
}
