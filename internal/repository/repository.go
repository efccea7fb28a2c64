package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"autoleads/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")

	// ErrStatusConflict is returned when a conditional status update matched no row
	ErrStatusConflict = errors.New("status conflict")

	// ErrLeadNotPending is returned when a lead was already moved out of pending
	ErrLeadNotPending = errors.New("lead is not pending")
)

// CampaignRepository defines campaign data access operations
type CampaignRepository interface {
	CreateWithLeads(ctx context.Context, campaign *models.Campaign, leads []*models.CampaignLead) error
	GetByID(ctx context.Context, id int) (*models.Campaign, error)
	GetWithStats(ctx context.Context, id int) (*models.CampaignWithStats, error)
	GetStatus(ctx context.Context, id int) (models.CampaignStatus, error)
	List(ctx context.Context, filters CampaignFilters) ([]*models.Campaign, int, error)
	TransitionStatus(ctx context.Context, id int, from []models.CampaignStatus, to models.CampaignStatus) (*models.Campaign, error)
	IncrementSent(ctx context.Context, id int, nextLeadIndex int) error
	IncrementFailed(ctx context.Context, id int, nextLeadIndex int) error
	ListUnleasedRunning(ctx context.Context) ([]int, error)
	LeaseRepository
}

// LeaseRepository stores campaign run leases on the campaign row
type LeaseRepository interface {
	AcquireLease(ctx context.Context, campaignID int, owner string, ttl time.Duration) (bool, error)
	RenewLease(ctx context.Context, campaignID int, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, campaignID int, owner string) error
}

// Campaign list page sizes
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// CampaignFilters defines filters for listing campaigns
type CampaignFilters struct {
	OrganizationID int
	Page           int
	PageSize       int
	Status         *models.CampaignStatus
}

// LeadRepository defines campaign lead data access operations
type LeadRepository interface {
	ListPending(ctx context.Context, campaignID int) ([]*models.CampaignLead, error)
	ListByCampaign(ctx context.Context, campaignID int, limit, offset int) ([]*models.CampaignLead, error)
	MarkSent(ctx context.Context, leadID int, messageID *int, sentAt time.Time) error
	MarkFailed(ctx context.Context, leadID int, errorMessage string) error
	SkipPending(ctx context.Context, campaignID int) (int64, error)
}

// LogRepository defines campaign log data access operations
type LogRepository interface {
	Append(ctx context.Context, entry *models.CampaignLog) error
	ListAfter(ctx context.Context, campaignID int, afterID int64, since *time.Time, limit int) ([]*models.CampaignLog, error)
}

// ThreadRepository defines conversation thread data access operations
type ThreadRepository interface {
	UpsertOutbound(ctx context.Context, thread *models.Thread) (bool, error)
	UpsertInbound(ctx context.Context, thread *models.Thread) (bool, error)
	GetByID(ctx context.Context, id string) (*models.Thread, error)
	FindByPhones(ctx context.Context, phones []string) ([]*models.Thread, error)
	MarkRead(ctx context.Context, id string) error
}

// MessageRepository defines message data access operations
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	UpdateStatusByExternalID(ctx context.Context, externalID string, status models.MessageStatus) (int64, error)
	ListByThread(ctx context.Context, threadID string, limit int) ([]*models.Message, error)
}

// OrganizationRepository defines organization and profile data access operations
type OrganizationRepository interface {
	GetByID(ctx context.Context, id int) (*models.Organization, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	ListActiveProfiles(ctx context.Context, organizationID int) ([]*models.Profile, error)
}

// DB is satisfied by both *sql.DB and *sql.Tx
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
