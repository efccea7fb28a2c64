package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"autoleads/internal/models"

	"github.com/lib/pq"
)

const campaignColumns = `id, organization_id, name, message_template, vehicle_reference, use_personalization,
	assignment_mode, assigned_user_id, campaign_type, delay_seconds, total_leads, sent_count, failed_count,
	current_lead_index, status, created_by, created_at, updated_at, started_at, completed_at`

type campaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *sql.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	campaign := &models.Campaign{}
	err := row.Scan(
		&campaign.ID,
		&campaign.OrganizationID,
		&campaign.Name,
		&campaign.MessageTemplate,
		&campaign.VehicleReference,
		&campaign.UsePersonalization,
		&campaign.AssignmentMode,
		&campaign.AssignedUserID,
		&campaign.CampaignType,
		&campaign.DelaySeconds,
		&campaign.TotalLeads,
		&campaign.SentCount,
		&campaign.FailedCount,
		&campaign.CurrentLeadIndex,
		&campaign.Status,
		&campaign.CreatedBy,
		&campaign.CreatedAt,
		&campaign.UpdatedAt,
		&campaign.StartedAt,
		&campaign.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return campaign, nil
}

// CreateWithLeads inserts the campaign and all of its leads in one transaction
func (r *campaignRepository) CreateWithLeads(ctx context.Context, campaign *models.Campaign, leads []*models.CampaignLead) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO campaigns (organization_id, name, message_template, vehicle_reference, use_personalization,
			assignment_mode, assigned_user_id, campaign_type, delay_seconds, total_leads, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRowContext(
		ctx,
		query,
		campaign.OrganizationID,
		campaign.Name,
		campaign.MessageTemplate,
		campaign.VehicleReference,
		campaign.UsePersonalization,
		campaign.AssignmentMode,
		campaign.AssignedUserID,
		campaign.CampaignType,
		campaign.DelaySeconds,
		campaign.TotalLeads,
		campaign.Status,
		campaign.CreatedBy,
	).Scan(&campaign.ID, &campaign.CreatedAt, &campaign.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	if len(leads) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO campaign_leads (campaign_id, lead_order, phone_number, name, make, model, listing_link,
				salesperson, month, custom_fields, assigned_to, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, created_at, updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, lead := range leads {
			lead.CampaignID = campaign.ID
			err := stmt.QueryRowContext(
				ctx,
				lead.CampaignID,
				lead.LeadOrder,
				lead.PhoneNumber,
				lead.Name,
				lead.Make,
				lead.Model,
				lead.ListingLink,
				lead.Salesperson,
				lead.Month,
				lead.CustomFields,
				lead.AssignedTo,
				lead.Status,
			).Scan(&lead.ID, &lead.CreatedAt, &lead.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to create campaign lead %d: %w", lead.LeadOrder, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a campaign by ID
func (r *campaignRepository) GetByID(ctx context.Context, id int) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("campaign %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return campaign, nil
}

// GetWithStats retrieves a campaign with lead statistics
func (r *campaignRepository) GetWithStats(ctx context.Context, id int) (*models.CampaignWithStats, error) {
	campaign, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	statsQuery := `
		SELECT
			COUNT(*) as total,
			COUNT(*) FILTER (WHERE status = 'pending') as pending,
			COUNT(*) FILTER (WHERE status = 'sent') as sent,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COUNT(*) FILTER (WHERE status = 'skipped') as skipped
		FROM campaign_leads
		WHERE campaign_id = $1
	`

	stats := models.CampaignStats{}
	err = r.db.QueryRowContext(ctx, statsQuery, id).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Sent,
		&stats.Failed,
		&stats.Skipped,
	)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get campaign stats: %w", err)
	}

	return &models.CampaignWithStats{
		Campaign: *campaign,
		Stats:    stats,
	}, nil
}

// GetStatus reads only the status column. The dispatcher calls this before every lead.
func (r *campaignRepository) GetStatus(ctx context.Context, id int) (models.CampaignStatus, error) {
	var status models.CampaignStatus
	err := r.db.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("campaign %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get campaign status: %w", err)
	}
	return status, nil
}

// List retrieves campaigns with filters and pagination
func (r *campaignRepository) List(ctx context.Context, filters CampaignFilters) ([]*models.Campaign, int, error) {
	where := strings.Builder{}
	where.WriteString(" WHERE organization_id = $1")
	args := []interface{}{filters.OrganizationID}
	argPos := 2

	if filters.Status != nil {
		where.WriteString(fmt.Sprintf(" AND status = $%d", argPos))
		args = append(args, *filters.Status)
		argPos++
	}

	limit := filters.PageSize
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	offset := (filters.Page - 1) * limit
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where.String() +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	pageArgs := append(append([]interface{}{}, args...), limit, offset)

	rows, err := r.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*models.Campaign{}
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate campaigns: %w", err)
	}

	var totalCount int
	err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM campaigns"+where.String(), args...).Scan(&totalCount)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	return campaigns, totalCount, nil
}

// TransitionStatus moves a campaign to status `to` only if its current status is
// one of `from`. started_at is stamped once; completed_at is stamped on terminal states.
func (r *campaignRepository) TransitionStatus(ctx context.Context, id int, from []models.CampaignStatus, to models.CampaignStatus) (*models.Campaign, error) {
	// every use of $1 carries the same ::text cast so postgres deduces one parameter type
	query := `
		UPDATE campaigns
		SET status = $1::text,
			started_at = CASE WHEN $1::text = 'running' THEN COALESCE(started_at, NOW()) ELSE started_at END,
			completed_at = CASE WHEN $1::text IN ('completed', 'cancelled') THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
		RETURNING ` + campaignColumns

	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, to, id, pq.Array(allowed)))
	if err == sql.ErrNoRows {
		if _, statusErr := r.GetStatus(ctx, id); statusErr != nil {
			return nil, statusErr
		}
		return nil, fmt.Errorf("campaign %d: %w", id, ErrStatusConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition campaign status: %w", err)
	}

	return campaign, nil
}

// IncrementSent atomically bumps sent_count and advances the resume cursor
func (r *campaignRepository) IncrementSent(ctx context.Context, id int, nextLeadIndex int) error {
	return r.increment(ctx, "sent_count", id, nextLeadIndex)
}

// IncrementFailed atomically bumps failed_count and advances the resume cursor
func (r *campaignRepository) IncrementFailed(ctx context.Context, id int, nextLeadIndex int) error {
	return r.increment(ctx, "failed_count", id, nextLeadIndex)
}

func (r *campaignRepository) increment(ctx context.Context, column string, id int, nextLeadIndex int) error {
	query := fmt.Sprintf(`
		UPDATE campaigns
		SET %[1]s = %[1]s + 1,
			current_lead_index = GREATEST(current_lead_index, $2),
			updated_at = NOW()
		WHERE id = $1
	`, column)

	result, err := r.db.ExecContext(ctx, query, id, nextLeadIndex)
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", column, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("campaign %d: %w", id, ErrNotFound)
	}

	return nil
}

// ListUnleasedRunning returns running campaigns with no live lease
func (r *campaignRepository) ListUnleasedRunning(ctx context.Context) ([]int, error) {
	query := `
		SELECT id FROM campaigns
		WHERE status = 'running' AND (locked_until IS NULL OR locked_until < NOW())
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list running campaigns: %w", err)
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan campaign id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// AcquireLease takes the run lease if it is free, expired, or already ours
func (r *campaignRepository) AcquireLease(ctx context.Context, campaignID int, owner string, ttl time.Duration) (bool, error) {
	query := `
		UPDATE campaigns
		SET locked_by = $2, locked_until = NOW() + make_interval(secs => $3)
		WHERE id = $1 AND (locked_by IS NULL OR locked_by = $2 OR locked_until < NOW())
	`
	return r.leaseExec(ctx, query, campaignID, owner, ttl.Seconds())
}

// RenewLease extends a lease we still hold
func (r *campaignRepository) RenewLease(ctx context.Context, campaignID int, owner string, ttl time.Duration) (bool, error) {
	query := `
		UPDATE campaigns
		SET locked_until = NOW() + make_interval(secs => $3)
		WHERE id = $1 AND locked_by = $2
	`
	return r.leaseExec(ctx, query, campaignID, owner, ttl.Seconds())
}

// ReleaseLease clears a lease we hold. Releasing a lease held by someone else is a no-op.
func (r *campaignRepository) ReleaseLease(ctx context.Context, campaignID int, owner string) error {
	query := `UPDATE campaigns SET locked_by = NULL, locked_until = NULL WHERE id = $1 AND locked_by = $2`
	if _, err := r.db.ExecContext(ctx, query, campaignID, owner); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

func (r *campaignRepository) leaseExec(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update lease: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// IsNotFound reports whether err wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
