package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"autoleads/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var campaignColumnNames = []string{
	"id", "organization_id", "name", "message_template", "vehicle_reference", "use_personalization",
	"assignment_mode", "assigned_user_id", "campaign_type", "delay_seconds", "total_leads", "sent_count",
	"failed_count", "current_lead_index", "status", "created_by", "created_at", "updated_at", "started_at",
	"completed_at",
}

func campaignRow(id int, status models.CampaignStatus, startedAt *time.Time) *sqlmock.Rows {
	now := time.Now()
	var started interface{}
	if startedAt != nil {
		started = *startedAt
	}
	return sqlmock.NewRows(campaignColumnNames).AddRow(
		id, 1, "Spring outreach", "Hi [Customer Name]", "model", true,
		"random_distribution", nil, "custom", 65, 3, 1,
		0, 1, string(status), uuid.New().String(), now, now, started,
		nil,
	)
}

func TestCampaignRepository_CreateWithLeads(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	creator := uuid.New()
	assignee := uuid.New()
	campaign := &models.Campaign{
		OrganizationID:   1,
		Name:             "Spring outreach",
		MessageTemplate:  "Hi [Customer Name]",
		VehicleReference: models.VehicleReferenceModel,
		AssignmentMode:   models.AssignmentRandomDistribution,
		CampaignType:     models.CampaignTypeCustom,
		DelaySeconds:     65,
		TotalLeads:       2,
		Status:           models.CampaignStatusDraft,
		CreatedBy:        creator,
	}
	leads := []*models.CampaignLead{
		{LeadOrder: 0, PhoneNumber: "+17805550001", Name: "Pat", AssignedTo: assignee, Status: models.LeadStatusPending},
		{LeadOrder: 1, PhoneNumber: "+17805550002", Name: "Sam", AssignedTo: assignee, Status: models.LeadStatusPending},
	}

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO campaigns").
		WithArgs(1, "Spring outreach", "Hi [Customer Name]", "model", false, "random_distribution",
			nil, "custom", 65, 2, "draft", creator).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(42, now, now))

	prep := mock.ExpectPrepare("INSERT INTO campaign_leads")
	for i, lead := range leads {
		prep.ExpectQuery().
			WithArgs(42, lead.LeadOrder, lead.PhoneNumber, lead.Name, "", "", "", "", "",
				sqlmock.AnyArg(), assignee, "pending").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(100+i, now, now))
	}
	mock.ExpectCommit()

	err := repo.CreateWithLeads(context.Background(), campaign, leads)
	require.NoError(t, err)

	assert.Equal(t, 42, campaign.ID)
	assert.Equal(t, 42, leads[1].CampaignID)
	assert.Equal(t, 101, leads[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_CreateWithLeads_RollsBackOnLeadFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO campaigns").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(42, now, now))
	mock.ExpectPrepare("INSERT INTO campaign_leads").
		ExpectQuery().
		WillReturnError(errors.New("duplicate key value violates unique constraint"))
	mock.ExpectRollback()

	err := repo.CreateWithLeads(context.Background(), &models.Campaign{CreatedBy: uuid.New()}, []*models.CampaignLead{
		{LeadOrder: 0, PhoneNumber: "+17805550001"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create campaign lead 0")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM campaigns WHERE id").
		WithArgs(9).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 9)
	assert.True(t, IsNotFound(err))
}

func TestCampaignRepository_GetWithStats(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM campaigns WHERE id").
		WithArgs(7).
		WillReturnRows(campaignRow(7, models.CampaignStatusRunning, nil))
	mock.ExpectQuery("FROM campaign_leads WHERE campaign_id").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"total", "pending", "sent", "failed", "skipped"}).
			AddRow(3, 2, 1, 0, 0))

	result, err := repo.GetWithStats(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, models.CampaignStatusRunning, result.Status)
	assert.Equal(t, models.CampaignStats{Total: 3, Pending: 2, Sent: 1}, result.Stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_TransitionStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	started := time.Now()
	mock.ExpectQuery(`UPDATE campaigns SET status = \$1::text, started_at = CASE WHEN \$1::text = 'running'.*completed_at = CASE WHEN \$1::text IN`).
		WithArgs("running", 7, `{"draft","paused"}`).
		WillReturnRows(campaignRow(7, models.CampaignStatusRunning, &started))

	campaign, err := repo.TransitionStatus(context.Background(), 7,
		[]models.CampaignStatus{models.CampaignStatusDraft, models.CampaignStatusPaused},
		models.CampaignStatusRunning)
	require.NoError(t, err)

	assert.Equal(t, models.CampaignStatusRunning, campaign.Status)
	require.NotNil(t, campaign.StartedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_TransitionStatus_Conflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectQuery("UPDATE campaigns SET status").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT status FROM campaigns WHERE id").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))

	_, err := repo.TransitionStatus(context.Background(), 7,
		[]models.CampaignStatus{models.CampaignStatusDraft, models.CampaignStatusPaused},
		models.CampaignStatusRunning)

	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_TransitionStatus_Missing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectQuery("UPDATE campaigns SET status").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT status FROM campaigns WHERE id").
		WithArgs(7).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.TransitionStatus(context.Background(), 7,
		[]models.CampaignStatus{models.CampaignStatusRunning}, models.CampaignStatusPaused)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCampaignRepository_Increments(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectExec("SET sent_count = sent_count \\+ 1, current_lead_index = GREATEST\\(current_lead_index, \\$2\\)").
		WithArgs(7, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET failed_count = failed_count \\+ 1").
		WithArgs(7, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET sent_count = sent_count \\+ 1").
		WithArgs(8, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, repo.IncrementSent(ctx, 7, 1))
	require.NoError(t, repo.IncrementFailed(ctx, 7, 2))
	assert.ErrorIs(t, repo.IncrementSent(ctx, 8, 1), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	status := models.CampaignStatusRunning
	mock.ExpectQuery("SELECT (.+) FROM campaigns WHERE organization_id = \\$1 AND status = \\$2 ORDER BY id DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs(1, "running", 20, 20).
		WillReturnRows(campaignRow(7, models.CampaignStatusRunning, nil))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM campaigns WHERE organization_id = \\$1 AND status = \\$2").
		WithArgs(1, "running").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))

	campaigns, total, err := repo.List(context.Background(), CampaignFilters{
		OrganizationID: 1,
		Page:           2,
		PageSize:       20,
		Status:         &status,
	})
	require.NoError(t, err)

	assert.Len(t, campaigns, 1)
	assert.Equal(t, 21, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_Leases(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectExec("UPDATE campaigns SET locked_by = \\$2").
		WithArgs(7, "worker-a", 300.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE campaigns SET locked_by = \\$2").
		WithArgs(7, "worker-b", 300.0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET locked_until = NOW\\(\\) \\+ make_interval").
		WithArgs(7, "worker-a", 300.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET locked_by = NULL, locked_until = NULL").
		WithArgs(7, "worker-a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	ok, err := repo.AcquireLease(ctx, 7, "worker-a", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.AcquireLease(ctx, 7, "worker-b", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lease held by worker-a")

	ok, err = repo.RenewLease(ctx, 7, "worker-a", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.ReleaseLease(ctx, 7, "worker-a"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_ListUnleasedRunning(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectQuery("SELECT id FROM campaigns WHERE status = 'running'").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3).AddRow(9))

	ids, err := repo.ListUnleasedRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{3, 9}, ids)
}
