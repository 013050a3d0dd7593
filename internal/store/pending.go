package store

import (
	"database/sql"
	"time"
)

// InsertPendingSend records a send intent before any transport attempt.
func (db *DB) InsertPendingSend(p *PendingSend) error {
	now := time.Now().UnixMilli()
	if p.CreatedAt == 0 {
		p.CreatedAt = now
	}
	_, err := db.Exec(`
		INSERT INTO pending_sends (temp_key, conversation_key, sender_id, content, transport, attempts, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
		p.TempKey, p.ConversationKey, p.SenderID, p.Content, p.Transport, p.Attempts, p.CreatedAt, now)
	return err
}

// MatchPendingSend finds the oldest pending entry matching the echo's
// conversation, sender and content, created at or after `since` (unix ms).
// The transport may not round-trip a client-generated id, so echoes are
// matched by payload within a window.
func (db *DB) MatchPendingSend(conversationKey, senderID, content string, since int64) (*PendingSend, error) {
	var p PendingSend
	err := db.QueryRow(`
		SELECT id, temp_key, conversation_key, sender_id, content, transport, attempts, status, created_at
		FROM pending_sends
		WHERE status = 'pending' AND conversation_key = ? AND sender_id = ? AND content = ? AND created_at >= ?
		ORDER BY created_at ASC
		LIMIT 1`, conversationKey, senderID, content, since).
		Scan(&p.ID, &p.TempKey, &p.ConversationKey, &p.SenderID, &p.Content, &p.Transport, &p.Attempts, &p.Status, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetPendingTransport records which channel actually carried a send. The
// value at insert time is only the intended route; the attempt may fall
// back to the other channel.
func (db *DB) SetPendingTransport(tempKey, transport string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE pending_sends SET transport = ?, updated_at = ?
		WHERE temp_key = ?`, transport, now, tempKey)
	return err
}

// ConfirmPendingSend marks an entry confirmed once its echo arrived.
func (db *DB) ConfirmPendingSend(tempKey string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE pending_sends SET status = 'confirmed', updated_at = ?
		WHERE temp_key = ?`, now, tempKey)
	return err
}

// UnconfirmedSends returns pending entries older than `before` (unix ms):
// sends that never got an echo and stay visible as "sent, unconfirmed".
func (db *DB) UnconfirmedSends(before int64) ([]PendingSend, error) {
	rows, err := db.DB.Query(`
		SELECT id, temp_key, conversation_key, sender_id, content, transport, attempts, status, created_at
		FROM pending_sends
		WHERE status = 'pending' AND created_at < ?
		ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []PendingSend
	for rows.Next() {
		var p PendingSend
		if err := rows.Scan(&p.ID, &p.TempKey, &p.ConversationKey, &p.SenderID, &p.Content, &p.Transport, &p.Attempts, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, p)
	}
	return entries, rows.Err()
}
