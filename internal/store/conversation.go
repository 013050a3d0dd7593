package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertConversation inserts or updates a conversation summary. The last
// message fields only move forward: an older message arriving late over the
// pull path never regresses the preview.
func (db *DB) UpsertConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (conversation_key, kind, title, unread_count, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_key) DO UPDATE SET
			kind = excluded.kind,
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE conversations.title END,
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at > conversations.last_message_at THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
			updated_at = excluded.updated_at`,
		c.Key, c.Kind, c.Title, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

// SetUnreadCount mirrors the in-memory unread counter into the summary row
// so list reads need no second query.
func (db *DB) SetUnreadCount(conversationKey string, count int) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE conversations SET unread_count = ?, updated_at = ?
		WHERE conversation_key = ?`, count, now, conversationKey)
	return err
}

// ListConversations returns conversation summaries sorted by last message
// timestamp descending. Conversations that never had a message keep their
// insertion order (rowid) at the tail.
func (db *DB) ListConversations(limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.DB.Query(`
		SELECT conversation_key, kind, title, unread_count, last_message_at, last_message_preview
		FROM conversations
		ORDER BY last_message_at DESC, rowid ASC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convos []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.Key, &c.Kind, &c.Title, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		convos = append(convos, c)
	}
	return convos, rows.Err()
}

// GetConversation returns a single conversation summary by key.
func (db *DB) GetConversation(key string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT conversation_key, kind, title, unread_count, last_message_at, last_message_preview
		FROM conversations
		WHERE conversation_key = ?`, key).
		Scan(&c.Key, &c.Kind, &c.Title, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ReplaceGroupMembers swaps a group's member set in one transaction.
// Membership only changes through explicit lifecycle operations, never from
// message traffic.
func (db *DB) ReplaceGroupMembers(groupID string, members []GroupMember) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM group_members WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, m := range members {
		if _, err := tx.Exec(`
			INSERT INTO group_members (group_id, user_id, role, updated_at)
			VALUES (?, ?, ?, ?)`, groupID, m.UserID, m.Role, now); err != nil {
			return fmt.Errorf("insert member %q: %w", m.UserID, err)
		}
	}
	return tx.Commit()
}

// ListGroupMembers returns the member set of a group.
func (db *DB) ListGroupMembers(groupID string) ([]GroupMember, error) {
	rows, err := db.DB.Query(`
		SELECT group_id, user_id, role FROM group_members
		WHERE group_id = ? ORDER BY user_id ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var members []GroupMember
	for rows.Next() {
		var m GroupMember
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ResetAll clears every table. Used by the forced-logout path: an expired
// credential invalidates all locally cached state.
func (db *DB) ResetAll() error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"messages", "conversations", "group_members", "pending_sends"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
