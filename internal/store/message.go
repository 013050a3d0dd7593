package store

import (
	"fmt"
	"strings"
	"time"
)

// Apply inserts a message iff its (conversation_key, msg_id) pair is not
// already present. Returns whether the message was newly inserted. Duplicate
// delivery (push echo racing a pull refresh) is a no-op: the first writer
// wins and the duplicate's content is ignored.
func (db *DB) Apply(m *Message) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO messages (conversation_key, msg_id, sender_id, content, media_url, media_type, is_read, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_key, msg_id) DO NOTHING`,
		m.ConversationKey, m.MsgID, m.SenderID, m.Content, m.MediaURL, m.MediaType, m.IsRead, m.Timestamp, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Query returns the ordered log for a conversation key. Filtering is exact
// match on the key; order is (timestamp, msg_id) ascending, the authoritative
// total order regardless of arrival order.
func (db *DB) Query(conversationKey string) ([]Message, error) {
	rows, err := db.DB.Query(`
		SELECT id, conversation_key, msg_id, sender_id, content, media_url, media_type, is_read, timestamp
		FROM messages
		WHERE conversation_key = ?
		ORDER BY timestamp ASC, msg_id ASC`, conversationKey)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationKey, &m.MsgID, &m.SenderID, &m.Content, &m.MediaURL, &m.MediaType, &m.IsRead, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkRead flips is_read for the given message ids. Ids not present or
// already read are a no-op.
func (db *DB) MarkRead(msgIDs []string) error {
	if len(msgIDs) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(msgIDs)-1) + "?"
	args := make([]any, len(msgIDs))
	for i, id := range msgIDs {
		args[i] = id
	}
	_, err := db.Exec(`UPDATE messages SET is_read = 1 WHERE msg_id IN (`+placeholders+`)`, args...)
	return err
}

// MarkSentRead flips is_read for every message the given sender has in the
// conversation. Used when a group-wide read receipt arrives without ids.
func (db *DB) MarkSentRead(conversationKey, senderID string) error {
	_, err := db.Exec(`
		UPDATE messages SET is_read = 1
		WHERE conversation_key = ? AND sender_id = ?`, conversationKey, senderID)
	return err
}

// UnreadInboundIDs returns ids of messages in the conversation that were not
// sent by selfID and are still unread. Used to reseed the unread tracker on
// startup.
func (db *DB) UnreadInboundIDs(conversationKey, selfID string) ([]string, error) {
	rows, err := db.DB.Query(`
		SELECT msg_id FROM messages
		WHERE conversation_key = ? AND sender_id != ? AND is_read = 0
		ORDER BY timestamp ASC, msg_id ASC`, conversationKey, selfID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReplaceConversation swaps the local log for a key with a freshly fetched
// history, in one transaction. A history fetch replaces the view rather than
// merging blindly into it.
func (db *DB) ReplaceConversation(conversationKey string, msgs []Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_key = ?`, conversationKey); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		if _, err := tx.Exec(`
			INSERT INTO messages (conversation_key, msg_id, sender_id, content, media_url, media_type, is_read, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(conversation_key, msg_id) DO NOTHING`,
			conversationKey, m.MsgID, m.SenderID, m.Content, m.MediaURL, m.MediaType, m.IsRead, m.Timestamp, now); err != nil {
			return fmt.Errorf("insert message %q: %w", m.MsgID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
