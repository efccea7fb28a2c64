package repository

import (
	"context"
	"database/sql"
	"fmt"

	"autoleads/internal/models"

	"github.com/google/uuid"
)

type organizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sql.DB) OrganizationRepository {
	return &organizationRepository{db: db}
}

// GetByID retrieves an organization with its gateway credentials
func (r *organizationRepository) GetByID(ctx context.Context, id int) (*models.Organization, error) {
	query := `
		SELECT id, name, COALESCE(sms_api_key, ''), COALESCE(sms_from_number, ''), COALESCE(sms_gateway_url, ''), created_at
		FROM organizations
		WHERE id = $1
	`

	org := &models.Organization{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.SMSAPIKey,
		&org.SMSFromNumber,
		&org.SMSGatewayURL,
		&org.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("organization %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return org, nil
}

// GetProfile retrieves a user profile
func (r *organizationRepository) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	query := `
		SELECT id, organization_id, full_name, role, is_active, created_at
		FROM profiles
		WHERE id = $1
	`

	profile := &models.Profile{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&profile.ID,
		&profile.OrganizationID,
		&profile.FullName,
		&profile.Role,
		&profile.IsActive,
		&profile.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return profile, nil
}

// ListActiveProfiles returns the organization's active users in a stable order,
// which round-robin assignment relies on
func (r *organizationRepository) ListActiveProfiles(ctx context.Context, organizationID int) ([]*models.Profile, error) {
	query := `
		SELECT id, organization_id, full_name, role, is_active, created_at
		FROM profiles
		WHERE organization_id = $1 AND is_active = TRUE
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	profiles := []*models.Profile{}
	for rows.Next() {
		profile := &models.Profile{}
		if err := rows.Scan(
			&profile.ID,
			&profile.OrganizationID,
			&profile.FullName,
			&profile.Role,
			&profile.IsActive,
			&profile.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}

	return profiles, nil
}
