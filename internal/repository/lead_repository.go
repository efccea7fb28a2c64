package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"autoleads/internal/models"
)

const leadColumns = `id, campaign_id, lead_order, phone_number, name, make, model, listing_link, salesperson, month,
	custom_fields, assigned_to, status, sent_at, message_id, error_message, created_at, updated_at`

type leadRepository struct {
	db *sql.DB
}

// NewLeadRepository creates a new campaign lead repository
func NewLeadRepository(db *sql.DB) LeadRepository {
	return &leadRepository{db: db}
}

func scanLead(row rowScanner) (*models.CampaignLead, error) {
	lead := &models.CampaignLead{}
	err := row.Scan(
		&lead.ID,
		&lead.CampaignID,
		&lead.LeadOrder,
		&lead.PhoneNumber,
		&lead.Name,
		&lead.Make,
		&lead.Model,
		&lead.ListingLink,
		&lead.Salesperson,
		&lead.Month,
		&lead.CustomFields,
		&lead.AssignedTo,
		&lead.Status,
		&lead.SentAt,
		&lead.MessageID,
		&lead.ErrorMessage,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return lead, nil
}

func (r *leadRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.CampaignLead, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign leads: %w", err)
	}
	defer rows.Close()

	leads := []*models.CampaignLead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign lead: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate campaign leads: %w", err)
	}

	return leads, nil
}

// ListPending returns the campaign's pending leads in lead_order
func (r *leadRepository) ListPending(ctx context.Context, campaignID int) ([]*models.CampaignLead, error) {
	query := `SELECT ` + leadColumns + `
		FROM campaign_leads
		WHERE campaign_id = $1 AND status = 'pending'
		ORDER BY lead_order ASC`

	return r.query(ctx, query, campaignID)
}

// ListByCampaign returns a page of the campaign's leads in lead_order
func (r *leadRepository) ListByCampaign(ctx context.Context, campaignID int, limit, offset int) ([]*models.CampaignLead, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + leadColumns + `
		FROM campaign_leads
		WHERE campaign_id = $1
		ORDER BY lead_order ASC
		LIMIT $2 OFFSET $3`

	return r.query(ctx, query, campaignID, limit, offset)
}

// MarkSent records a successful send. A lead skipped by a concurrent cancel is
// still marked sent because the SMS has already left the gateway.
func (r *leadRepository) MarkSent(ctx context.Context, leadID int, messageID *int, sentAt time.Time) error {
	query := `
		UPDATE campaign_leads
		SET status = 'sent', sent_at = $2, message_id = $3, error_message = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'skipped')
	`
	return r.markTerminal(ctx, query, leadID, sentAt, messageID)
}

// MarkFailed records a failed send with its reason
func (r *leadRepository) MarkFailed(ctx context.Context, leadID int, errorMessage string) error {
	query := `
		UPDATE campaign_leads
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	return r.markTerminal(ctx, query, leadID, errorMessage)
}

func (r *leadRepository) markTerminal(ctx context.Context, query string, leadID int, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, append([]interface{}{leadID}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update campaign lead: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("lead %d: %w", leadID, ErrLeadNotPending)
	}

	return nil
}

// SkipPending bulk-marks every remaining pending lead of a campaign as skipped
func (r *leadRepository) SkipPending(ctx context.Context, campaignID int) (int64, error) {
	query := `
		UPDATE campaign_leads
		SET status = 'skipped', updated_at = NOW()
		WHERE campaign_id = $1 AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to skip pending leads: %w", err)
	}

	return result.RowsAffected()
}
