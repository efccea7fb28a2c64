package repository

import (
	"context"
	"database/sql"
	"fmt"

	"autoleads/internal/models"

	"github.com/lib/pq"
)

const threadColumns = `id, contact_name, contact_phone, last_message_at, last_message_preview, unread_count,
	assigned_to, organization_id, metadata, created_at, updated_at`

// upsertThreadSQL inserts a thread keyed by phone or refreshes the existing one.
// Metadata is merged key by key and the first-seen initiated_at is never overwritten.
// %s is the unread_count expression used on conflict.
const upsertThreadSQL = `
	INSERT INTO threads (id, contact_name, contact_phone, last_message_at, last_message_preview, unread_count,
		assigned_to, organization_id, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		contact_name = COALESCE(NULLIF(threads.contact_name, ''), EXCLUDED.contact_name),
		last_message_at = EXCLUDED.last_message_at,
		last_message_preview = EXCLUDED.last_message_preview,
		unread_count = %s,
		assigned_to = COALESCE(threads.assigned_to, EXCLUDED.assigned_to),
		metadata = threads.metadata || (EXCLUDED.metadata - 'initiated_at'),
		updated_at = NOW()
	RETURNING (xmax = 0), contact_name, unread_count, assigned_to, metadata, created_at, updated_at
`

type threadRepository struct {
	db *sql.DB
}

// NewThreadRepository creates a new thread repository
func NewThreadRepository(db *sql.DB) ThreadRepository {
	return &threadRepository{db: db}
}

func scanThread(row rowScanner) (*models.Thread, error) {
	thread := &models.Thread{}
	err := row.Scan(
		&thread.ID,
		&thread.ContactName,
		&thread.ContactPhone,
		&thread.LastMessageAt,
		&thread.LastMessagePreview,
		&thread.UnreadCount,
		&thread.AssignedTo,
		&thread.OrganizationID,
		&thread.Metadata,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return thread, nil
}

// UpsertOutbound records an outbound message on the thread. unread_count is
// zero on insert and left untouched on update.
func (r *threadRepository) UpsertOutbound(ctx context.Context, thread *models.Thread) (bool, error) {
	return r.upsert(ctx, thread, 0, "threads.unread_count")
}

// UpsertInbound records an inbound message on the thread and bumps unread_count
func (r *threadRepository) UpsertInbound(ctx context.Context, thread *models.Thread) (bool, error) {
	return r.upsert(ctx, thread, 1, "threads.unread_count + 1")
}

func (r *threadRepository) upsert(ctx context.Context, thread *models.Thread, initialUnread int, unreadExpr string) (bool, error) {
	var created bool
	err := r.db.QueryRowContext(
		ctx,
		fmt.Sprintf(upsertThreadSQL, unreadExpr),
		thread.ID,
		thread.ContactName,
		thread.ContactPhone,
		thread.LastMessageAt,
		thread.LastMessagePreview,
		initialUnread,
		thread.AssignedTo,
		thread.OrganizationID,
		thread.Metadata,
	).Scan(
		&created,
		&thread.ContactName,
		&thread.UnreadCount,
		&thread.AssignedTo,
		&thread.Metadata,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert thread: %w", err)
	}

	return created, nil
}

// GetByID retrieves a thread by its normalized phone number
func (r *threadRepository) GetByID(ctx context.Context, id string) (*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE id = $1`

	thread, err := scanThread(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	return thread, nil
}

// FindByPhones returns every thread whose id or contact phone is in phones.
// Callers pass normalized numbers.
func (r *threadRepository) FindByPhones(ctx context.Context, phones []string) ([]*models.Thread, error) {
	threads := []*models.Thread{}
	if len(phones) == 0 {
		return threads, nil
	}

	query := `SELECT ` + threadColumns + `
		FROM threads
		WHERE id = ANY($1) OR contact_phone = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(phones))
	if err != nil {
		return nil, fmt.Errorf("failed to find threads by phone: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threads: %w", err)
	}

	return threads, nil
}

// MarkRead resets unread_count when a viewer opens the thread
func (r *threadRepository) MarkRead(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE threads SET unread_count = 0, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark thread read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}

	return nil
}
