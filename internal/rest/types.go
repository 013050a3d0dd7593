package rest

import "time"

// User is a directory entry.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Group is a group directory entry with its member set.
type Group struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	PictureURL string        `json:"picture_url,omitempty"`
	Members    []GroupMember `json:"members"`
}

// GroupMember is one member of a group, with its role.
type GroupMember struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Invitation is a pending group invitation for the current user.
type Invitation struct {
	ID        string `json:"id"`
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name,omitempty"`
	InviterID string `json:"inviter_id"`
	Status    string `json:"status"` // pending, accepted, declined
}

// Message is the pull-channel wire shape for a stored message.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id,omitempty"`
	GroupID    string    `json:"group_id,omitempty"`
	Content    string    `json:"content"`
	MediaURL   string    `json:"media_url,omitempty"`
	MediaType  string    `json:"media_type,omitempty"`
	IsRead     bool      `json:"is_read"`
	Timestamp  time.Time `json:"timestamp"`
}

// SendMessageRequest is the fallback-send payload.
type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id,omitempty"`
	GroupID    string `json:"group_id,omitempty"`
	Content    string `json:"content"`
	MediaURL   string `json:"media_url,omitempty"`
	MediaType  string `json:"media_type,omitempty"`
}

// Upload is the response of a binary upload.
type Upload struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// CreateGroupRequest creates a new group.
type CreateGroupRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids,omitempty"`
}

// UpdateGroupRequest mutates group metadata or membership.
type UpdateGroupRequest struct {
	Name         string   `json:"name,omitempty"`
	PictureURL   string   `json:"picture_url,omitempty"`
	AddMembers   []string `json:"add_members,omitempty"`
	RemoveMember string   `json:"remove_member,omitempty"`
}

// Invitation responses.
const (
	InvitationAccepted = "accepted"
	InvitationDeclined = "declined"
)
