package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dkenges/zhurnal-api/internal/models"
)

// MessageRepository persists class messages.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// ListByClass returns messages for a class owned by the teacher, newest first.
func (r *MessageRepository) ListByClass(ctx context.Context, classID, teacherID string) ([]models.Message, error) {
	const query = `SELECT m.id, m.sender_id, m.classroom_id, m.student_id, m.text, m.timestamp
FROM messages m
JOIN classes c ON c.id = m.classroom_id
WHERE m.classroom_id = $1 AND c.teacher_id = $2
ORDER BY m.timestamp DESC`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, classID, teacherID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// Create persists a message.
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	const query = `INSERT INTO messages (id, sender_id, classroom_id, student_id, text, timestamp) VALUES (:id, :sender_id, :classroom_id, :student_id, :text, :timestamp)`
	if _, err := r.db.NamedExecContext(ctx, query, message); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}
