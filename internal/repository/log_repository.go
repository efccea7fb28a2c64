package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"autoleads/internal/models"
)

// MaxLogPage caps a single log read
const MaxLogPage = 100

type logRepository struct {
	db *sql.DB
}

// NewLogRepository creates a new campaign log repository
func NewLogRepository(db *sql.DB) LogRepository {
	return &logRepository{db: db}
}

// Append inserts a log entry and fills in its id and created_at
func (r *logRepository) Append(ctx context.Context, entry *models.CampaignLog) error {
	query := `
		INSERT INTO campaign_logs (campaign_id, level, message, details)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query, entry.CampaignID, entry.Level, entry.Message, entry.Details).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append campaign log: %w", err)
	}

	return nil
}

// ListAfter returns entries with id > afterID in ascending id order.
// since additionally filters by created_at for callers that only hold a timestamp.
func (r *logRepository) ListAfter(ctx context.Context, campaignID int, afterID int64, since *time.Time, limit int) ([]*models.CampaignLog, error) {
	if limit <= 0 || limit > MaxLogPage {
		limit = MaxLogPage
	}

	query := `
		SELECT id, campaign_id, level, message, details, created_at
		FROM campaign_logs
		WHERE campaign_id = $1 AND id > $2
	`
	args := []interface{}{campaignID, afterID}
	if since != nil {
		query += ` AND created_at > $3 ORDER BY id ASC LIMIT $4`
		args = append(args, *since, limit)
	} else {
		query += ` ORDER BY id ASC LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign logs: %w", err)
	}
	defer rows.Close()

	logs := []*models.CampaignLog{}
	for rows.Next() {
		entry := &models.CampaignLog{}
		if err := rows.Scan(
			&entry.ID,
			&entry.CampaignID,
			&entry.Level,
			&entry.Message,
			&entry.Details,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan campaign log: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate campaign logs: %w", err)
	}

	return logs, nil
}
