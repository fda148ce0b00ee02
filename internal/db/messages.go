package db

import (
	"fmt"
	"time"

	"beacon/internal/models"
)

const messageHistoryMaxLimit = 100

type MessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(senderID, recipientID, content string) (*models.Message, error) {
	id, err := generateID("msg")
	if err != nil {
		return nil, fmt.Errorf("generating message ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO messages (id, sender_id, recipient_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, senderID, recipientID, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	return &models.Message{
		ID:          id,
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   now,
	}, nil
}

// Conversation returns messages exchanged between two users, newest first.
func (r *MessageRepository) Conversation(userA, userB string, beforeID string, limit int) ([]*models.Message, error) {
	if limit <= 0 || limit > messageHistoryMaxLimit {
		limit = 50
	}

	query := `SELECT id, sender_id, recipient_id, content, created_at
		FROM messages
		WHERE ((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))`
	args := []any{userA, userB, userB, userA}

	if beforeID != "" {
		query += ` AND rowid < (SELECT rowid FROM messages WHERE id = ?)`
		args = append(args, beforeID)
	}
	query += ` ORDER BY rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, &m)
	}

	return messages, rows.Err()
}
