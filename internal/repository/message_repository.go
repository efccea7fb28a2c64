package repository

import (
	"context"
	"database/sql"
	"fmt"

	"autoleads/internal/models"
)

type messageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *sql.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create inserts a message row
func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (thread_id, content, direction, from_number, to_number, status, external_id,
			assigned_to, organization_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		message.ThreadID,
		message.Content,
		message.Direction,
		message.FromNumber,
		message.ToNumber,
		message.Status,
		message.ExternalID,
		message.AssignedTo,
		message.OrganizationID,
		message.Metadata,
	).Scan(&message.ID, &message.CreatedAt, &message.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// UpdateStatusByExternalID flips the status of messages matching a gateway id.
// Only pending messages are updated so a late duplicate receipt is a no-op.
func (r *messageRepository) UpdateStatusByExternalID(ctx context.Context, externalID string, status models.MessageStatus) (int64, error) {
	query := `
		UPDATE messages
		SET status = $1, updated_at = NOW()
		WHERE external_id = $2 AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, status, externalID)
	if err != nil {
		return 0, fmt.Errorf("failed to update message status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// ListByThread returns the most recent messages of a thread, oldest first
func (r *messageRepository) ListByThread(ctx context.Context, threadID string, limit int) ([]*models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	query := `
		SELECT id, thread_id, content, direction, from_number, to_number, status, external_id,
			assigned_to, organization_id, metadata, created_at, updated_at
		FROM (
			SELECT * FROM messages WHERE thread_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages by thread: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		message := &models.Message{}
		err := rows.Scan(
			&message.ID,
			&message.ThreadID,
			&message.Content,
			&message.Direction,
			&message.FromNumber,
			&message.ToNumber,
			&message.Status,
			&message.ExternalID,
			&message.AssignedTo,
			&message.OrganizationID,
			&message.Metadata,
			&message.CreatedAt,
			&message.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}
