package handler

import (
	"context"

	"autoleads/internal/models"
	"autoleads/internal/repository"
	"autoleads/internal/service"
)

// MockCampaignManager mocks CampaignManager
type MockCampaignManager struct {
	CreateCampaignFunc       func(ctx context.Context, actor service.Actor, req *service.CreateCampaignRequest) (*service.CreateCampaignResult, error)
	GetCampaignWithStatsFunc func(ctx context.Context, actor service.Actor, id int) (*models.CampaignWithStats, error)
	ListCampaignsFunc        func(ctx context.Context, actor service.Actor, filters repository.CampaignFilters) ([]*models.Campaign, *service.PaginationInfo, error)
	ApplyActionFunc          func(ctx context.Context, actor service.Actor, id int, action models.CampaignAction) (*models.Campaign, error)
	LogsFunc                 func(ctx context.Context, actor service.Actor, id int, q service.LogQuery) (*service.LogPage, error)
	LeadsFunc                func(ctx context.Context, actor service.Actor, id int, limit, offset int) ([]*models.CampaignLead, error)
	PreviewMessageFunc       func(ctx context.Context, req *service.PreviewMessageRequest) (*service.PreviewMessageResult, error)

	Calls map[string]int
}

func NewMockCampaignManager() *MockCampaignManager {
	return &MockCampaignManager{Calls: make(map[string]int)}
}

func (m *MockCampaignManager) CreateCampaign(ctx context.Context, actor service.Actor, req *service.CreateCampaignRequest) (*service.CreateCampaignResult, error) {
	m.Calls["CreateCampaign"]++
	if m.CreateCampaignFunc != nil {
		return m.CreateCampaignFunc(ctx, actor, req)
	}
	return &service.CreateCampaignResult{Campaign: &models.Campaign{ID: 1, Name: req.Name, Status: models.CampaignStatusDraft}}, nil
}

func (m *MockCampaignManager) GetCampaignWithStats(ctx context.Context, actor service.Actor, id int) (*models.CampaignWithStats, error) {
	m.Calls["GetCampaignWithStats"]++
	if m.GetCampaignWithStatsFunc != nil {
		return m.GetCampaignWithStatsFunc(ctx, actor, id)
	}
	return &models.CampaignWithStats{Campaign: models.Campaign{ID: id}}, nil
}

func (m *MockCampaignManager) ListCampaigns(ctx context.Context, actor service.Actor, filters repository.CampaignFilters) ([]*models.Campaign, *service.PaginationInfo, error) {
	m.Calls["ListCampaigns"]++
	if m.ListCampaignsFunc != nil {
		return m.ListCampaignsFunc(ctx, actor, filters)
	}
	return []*models.Campaign{}, &service.PaginationInfo{Page: filters.Page, PageSize: filters.PageSize}, nil
}

func (m *MockCampaignManager) ApplyAction(ctx context.Context, actor service.Actor, id int, action models.CampaignAction) (*models.Campaign, error) {
	m.Calls["ApplyAction"]++
	if m.ApplyActionFunc != nil {
		return m.ApplyActionFunc(ctx, actor, id, action)
	}
	return &models.Campaign{ID: id, Status: models.CampaignStatusRunning}, nil
}

func (m *MockCampaignManager) Logs(ctx context.Context, actor service.Actor, id int, q service.LogQuery) (*service.LogPage, error) {
	m.Calls["Logs"]++
	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, actor, id, q)
	}
	return &service.LogPage{Logs: []*models.CampaignLog{}, NextCursor: q.After}, nil
}

func (m *MockCampaignManager) Leads(ctx context.Context, actor service.Actor, id int, limit, offset int) ([]*models.CampaignLead, error) {
	m.Calls["Leads"]++
	if m.LeadsFunc != nil {
		return m.LeadsFunc(ctx, actor, id, limit, offset)
	}
	return []*models.CampaignLead{}, nil
}

func (m *MockCampaignManager) PreviewMessage(ctx context.Context, req *service.PreviewMessageRequest) (*service.PreviewMessageResult, error) {
	m.Calls["PreviewMessage"]++
	if m.PreviewMessageFunc != nil {
		return m.PreviewMessageFunc(ctx, req)
	}
	return &service.PreviewMessageResult{RenderedMessage: req.MessageTemplate, UsedTemplate: req.MessageTemplate}, nil
}

// MockLeadImporter mocks LeadImporter
type MockLeadImporter struct {
	ParseCSVFunc        func(raw string) (*service.ParseResult, error)
	CheckDuplicatesFunc func(ctx context.Context, phones []string) (*service.DuplicateReport, error)

	Calls map[string]int
}

func NewMockLeadImporter() *MockLeadImporter {
	return &MockLeadImporter{Calls: make(map[string]int)}
}

func (m *MockLeadImporter) ParseCSV(raw string) (*service.ParseResult, error) {
	m.Calls["ParseCSV"]++
	if m.ParseCSVFunc != nil {
		return m.ParseCSVFunc(raw)
	}
	return &service.ParseResult{Leads: []service.LeadInput{}}, nil
}

func (m *MockLeadImporter) CheckDuplicates(ctx context.Context, phones []string) (*service.DuplicateReport, error) {
	m.Calls["CheckDuplicates"]++
	if m.CheckDuplicatesFunc != nil {
		return m.CheckDuplicatesFunc(ctx, phones)
	}
	return &service.DuplicateReport{TotalChecked: len(phones), UniqueCount: len(phones), Duplicates: []service.DuplicateMatch{}}, nil
}

// MockThreadManager mocks ThreadManager
type MockThreadManager struct {
	OpenThreadFunc      func(ctx context.Context, organizationID int, rawID string) (*service.ThreadWithMessages, error)
	RecordInboundFunc   func(ctx context.Context, in service.InboundMessage) (*service.ThreadWithMessages, error)
	ConfirmDeliveryFunc func(ctx context.Context, externalID string, status models.MessageStatus) error

	Calls map[string]int
}

func NewMockThreadManager() *MockThreadManager {
	return &MockThreadManager{Calls: make(map[string]int)}
}

func (m *MockThreadManager) OpenThread(ctx context.Context, organizationID int, rawID string) (*service.ThreadWithMessages, error) {
	m.Calls["OpenThread"]++
	if m.OpenThreadFunc != nil {
		return m.OpenThreadFunc(ctx, organizationID, rawID)
	}
	return &service.ThreadWithMessages{Thread: models.Thread{ID: rawID, OrganizationID: organizationID}}, nil
}

func (m *MockThreadManager) RecordInbound(ctx context.Context, in service.InboundMessage) (*service.ThreadWithMessages, error) {
	m.Calls["RecordInbound"]++
	if m.RecordInboundFunc != nil {
		return m.RecordInboundFunc(ctx, in)
	}
	return &service.ThreadWithMessages{Thread: models.Thread{ID: in.From, UnreadCount: 1}}, nil
}

func (m *MockThreadManager) ConfirmDelivery(ctx context.Context, externalID string, status models.MessageStatus) error {
	m.Calls["ConfirmDelivery"]++
	if m.ConfirmDeliveryFunc != nil {
		return m.ConfirmDeliveryFunc(ctx, externalID, status)
	}
	return nil
}

// MockHealthChecker mocks HealthChecker
type MockHealthChecker struct {
	Status *service.HealthStatus
}

func (m *MockHealthChecker) CheckHealth(ctx context.Context) *service.HealthStatus {
	return m.Status
}
