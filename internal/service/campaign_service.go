package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"autoleads/internal/logger"
	"autoleads/internal/models"
	"autoleads/internal/phone"
	"autoleads/internal/presets"
	"autoleads/internal/repository"
)

// Actor is the authenticated user a request acts for
type Actor struct {
	UserID         uuid.UUID
	Role           string
	OrganizationID int
}

// RunPublisher schedules a dispatch run for a campaign
type RunPublisher interface {
	PublishRun(ctx context.Context, campaignID int) error
}

// CampaignService is the campaign state store: creation with lead assignment and
// operator control actions validated against the lifecycle
type CampaignService struct {
	campaignRepo repository.CampaignRepository
	leadRepo     repository.LeadRepository
	orgRepo      repository.OrganizationRepository
	leadSvc      *LeadService
	templateSvc  *TemplateService
	logs         *LogSink
	presets      *presets.Presets
	publisher    RunPublisher
	defaultDelay int
	log          zerolog.Logger
}

// NewCampaignService creates a new campaign service. presets and publisher may be nil.
func NewCampaignService(
	campaignRepo repository.CampaignRepository,
	leadRepo repository.LeadRepository,
	orgRepo repository.OrganizationRepository,
	leadSvc *LeadService,
	templateSvc *TemplateService,
	logs *LogSink,
	presets *presets.Presets,
	publisher RunPublisher,
	defaultDelaySeconds int,
) *CampaignService {
	return &CampaignService{
		campaignRepo: campaignRepo,
		leadRepo:     leadRepo,
		orgRepo:      orgRepo,
		leadSvc:      leadSvc,
		templateSvc:  templateSvc,
		logs:         logs,
		presets:      presets,
		publisher:    publisher,
		defaultDelay: defaultDelaySeconds,
		log:          logger.WithComponent("campaign-service"),
	}
}

// CreateCampaign creates a draft campaign and its pending leads in one write.
// Leads come from the JSON list, the CSV text, or both.
func (s *CampaignService) CreateCampaign(ctx context.Context, actor Actor, req *CreateCampaignRequest) (*CreateCampaignResult, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	leads, err := s.collectLeads(req)
	if err != nil {
		return nil, err
	}

	campaign := &models.Campaign{
		OrganizationID:     actor.OrganizationID,
		Name:               strings.TrimSpace(req.Name),
		MessageTemplate:    req.MessageTemplate,
		VehicleReference:   req.VehicleReference,
		UsePersonalization: req.UsePersonalization,
		AssignmentMode:     req.AssignmentMode,
		AssignedUserID:     req.AssignedUserID,
		CampaignType:       req.CampaignType,
		DelaySeconds:       s.defaultDelay,
		Status:             models.CampaignStatusDraft,
		CreatedBy:          actor.UserID,
	}
	if req.DelaySeconds != nil {
		campaign.DelaySeconds = *req.DelaySeconds
	}
	if campaign.AssignmentMode == models.AssignmentSingleUser && campaign.AssignedUserID == nil {
		userID := actor.UserID
		campaign.AssignedUserID = &userID
	}
	if campaign.MessageTemplate == "" && campaign.CampaignType == models.CampaignTypeNormal && s.presets != nil {
		if preset, ok := s.presets.Template(campaign.VehicleReference); ok {
			campaign.MessageTemplate = preset
		}
	}

	if err := campaign.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	if err := s.templateSvc.ValidateTemplate(campaign.MessageTemplate); err != nil {
		return nil, err
	}

	assignees, err := s.resolveAssignees(ctx, campaign)
	if err != nil {
		return nil, err
	}

	phones := make([]string, len(leads))
	for i, lead := range leads {
		phones[i] = lead.PhoneNumber
	}
	duplicates, err := s.leadSvc.CheckDuplicates(ctx, phones)
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicates before creating campaign: %w", err)
	}

	excluded := 0
	if req.ExcludeDuplicates && duplicates.DuplicatesFound > 0 {
		kept := leads[:0]
		for _, lead := range leads {
			if duplicates.IsDuplicate(lead.PhoneNumber) {
				excluded++
				continue
			}
			kept = append(kept, lead)
		}
		leads = kept
	}
	if len(leads) == 0 {
		return nil, &ValidationError{Message: "no leads remain after excluding duplicates"}
	}

	rows := make([]*models.CampaignLead, len(leads))
	for i, lead := range leads {
		rows[i] = &models.CampaignLead{
			LeadOrder:    i,
			PhoneNumber:  lead.PhoneNumber,
			Name:         lead.Name,
			Make:         lead.Make,
			Model:        lead.Model,
			ListingLink:  lead.ListingLink,
			Salesperson:  lead.Salesperson,
			Month:        lead.Month,
			CustomFields: lead.CustomFields,
			AssignedTo:   assignees[i%len(assignees)],
			Status:       models.LeadStatusPending,
		}
	}
	campaign.TotalLeads = len(rows)

	if err := s.campaignRepo.CreateWithLeads(ctx, campaign, rows); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	s.appendLog(ctx, campaign.ID, models.LogLevelInfo,
		fmt.Sprintf("Campaign created with %d leads", campaign.TotalLeads),
		models.Metadata{
			"total_leads":        campaign.TotalLeads,
			"duplicates_found":   duplicates.DuplicatesFound,
			"duplicates_removed": excluded,
			"assignment_mode":    string(campaign.AssignmentMode),
			"assignees":          len(assignees),
		})

	return &CreateCampaignResult{
		Campaign:          campaign,
		Duplicates:        duplicates,
		ExcludedDuplicate: excluded,
	}, nil
}

func (s *CampaignService) collectLeads(req *CreateCampaignRequest) ([]LeadInput, error) {
	leads := make([]LeadInput, 0, len(req.Leads))
	for _, lead := range req.Leads {
		lead.PhoneNumber = phone.Normalize(lead.PhoneNumber)
		if lead.PhoneNumber == "" {
			continue
		}
		leads = append(leads, lead)
	}

	if strings.TrimSpace(req.CSV) != "" {
		parsed, err := s.leadSvc.ParseCSV(req.CSV)
		if err != nil {
			return nil, err
		}
		leads = append(leads, parsed.Leads...)
	}

	if len(leads) == 0 {
		return nil, &ValidationError{Message: "at least one lead with a phone number is required"}
	}
	return leads, nil
}

// resolveAssignees returns the users leads are assigned to, round-robin by index
func (s *CampaignService) resolveAssignees(ctx context.Context, campaign *models.Campaign) ([]uuid.UUID, error) {
	if campaign.AssignmentMode == models.AssignmentSingleUser {
		profile, err := s.orgRepo.GetProfile(ctx, *campaign.AssignedUserID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ValidationError{Message: fmt.Sprintf("assigned user %s does not exist", campaign.AssignedUserID)}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get assigned user: %w", err)
		}
		if profile.OrganizationID != campaign.OrganizationID {
			return nil, &ValidationError{Message: fmt.Sprintf("assigned user %s is not a member of this organization", profile.ID)}
		}
		return []uuid.UUID{profile.ID}, nil
	}

	profiles, err := s.orgRepo.ListActiveProfiles(ctx, campaign.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization users: %w", err)
	}
	if len(profiles) == 0 {
		return nil, &BusinessLogicError{Message: "random distribution requires at least one active user in the organization"}
	}

	ids := make([]uuid.UUID, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
	}
	return ids, nil
}

// GetCampaign returns a campaign of the actor's organization
func (s *CampaignService) GetCampaign(ctx context.Context, actor Actor, id int) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Resource: "campaign", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	if campaign.OrganizationID != actor.OrganizationID {
		return nil, &NotFoundError{Resource: "campaign", ID: id}
	}
	return campaign, nil
}

// GetCampaignWithStats returns a campaign with lead status counts
func (s *CampaignService) GetCampaignWithStats(ctx context.Context, actor Actor, id int) (*models.CampaignWithStats, error) {
	campaign, err := s.campaignRepo.GetWithStats(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Resource: "campaign", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	if campaign.OrganizationID != actor.OrganizationID {
		return nil, &NotFoundError{Resource: "campaign", ID: id}
	}
	return campaign, nil
}

// ListCampaigns lists the organization's campaigns
func (s *CampaignService) ListCampaigns(ctx context.Context, actor Actor, filters repository.CampaignFilters) ([]*models.Campaign, *PaginationInfo, error) {
	filters.OrganizationID = actor.OrganizationID
	if filters.Status != nil && !filters.Status.Valid() {
		return nil, nil, &ValidationError{Message: fmt.Sprintf("invalid status filter %q", *filters.Status)}
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}

	campaigns, total, err := s.campaignRepo.List(ctx, filters)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = repository.DefaultPageSize
	}
	if pageSize > repository.MaxPageSize {
		pageSize = repository.MaxPageSize
	}

	pagination := &PaginationInfo{
		Page:       filters.Page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}

	return campaigns, pagination, nil
}

// ApplyAction validates an operator action against the lifecycle and applies it.
// Invalid actions are rejected without mutating anything.
func (s *CampaignService) ApplyAction(ctx context.Context, actor Actor, id int, action models.CampaignAction) (*models.Campaign, error) {
	from, to, err := action.Transition()
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	current, err := s.GetCampaign(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !action.AllowedFrom(current.Status) {
		return nil, invalidTransition(id, action, current.Status)
	}

	campaign, err := s.campaignRepo.TransitionStatus(ctx, id, from, to)
	if errors.Is(err, repository.ErrStatusConflict) {
		status, statusErr := s.campaignRepo.GetStatus(ctx, id)
		if statusErr != nil {
			return nil, fmt.Errorf("failed to get campaign status: %w", statusErr)
		}
		return nil, invalidTransition(id, action, status)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Resource: "campaign", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s campaign: %w", action, err)
	}

	switch action {
	case models.CampaignActionStart:
		verb := "started"
		if current.Status == models.CampaignStatusPaused {
			verb = "resumed"
		}
		s.appendLog(ctx, id, models.LogLevelInfo, fmt.Sprintf("Campaign %s by operator", verb),
			models.Metadata{"user_id": actor.UserID.String(), "from_status": string(current.Status)})
		s.publishRun(ctx, id)

	case models.CampaignActionPause:
		s.appendLog(ctx, id, models.LogLevelWarning, "Campaign paused by operator; the current send will finish first",
			models.Metadata{"user_id": actor.UserID.String()})

	case models.CampaignActionCancel:
		skipped, err := s.leadRepo.SkipPending(ctx, id)
		if err != nil {
			s.log.Error().Err(err).Int("campaign_id", id).Msg("Failed to skip pending leads of cancelled campaign")
			s.appendLog(ctx, id, models.LogLevelError, "Campaign cancelled but pending leads could not be skipped",
				models.Metadata{"error": err.Error()})
			break
		}
		s.appendLog(ctx, id, models.LogLevelWarning,
			fmt.Sprintf("Campaign cancelled by operator; %d pending leads skipped", skipped),
			models.Metadata{"user_id": actor.UserID.String(), "skipped": skipped})
	}

	return campaign, nil
}

func (s *CampaignService) publishRun(ctx context.Context, id int) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRun(ctx, id); err != nil {
		// The recovery sweep relaunches running campaigns without a live lease
		s.log.Warn().Err(err).Int("campaign_id", id).Msg("Failed to publish run job")
		s.appendLog(ctx, id, models.LogLevelWarning, "Run job could not be queued; the worker recovery sweep will start it",
			models.Metadata{"error": err.Error()})
	}
}

// Logs tails a campaign's log
func (s *CampaignService) Logs(ctx context.Context, actor Actor, id int, q LogQuery) (*LogPage, error) {
	if _, err := s.GetCampaign(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.logs.Read(ctx, id, q)
}

// Leads returns a page of a campaign's leads in lead_order
func (s *CampaignService) Leads(ctx context.Context, actor Actor, id int, limit, offset int) ([]*models.CampaignLead, error) {
	if _, err := s.GetCampaign(ctx, actor, id); err != nil {
		return nil, err
	}

	leads, err := s.leadRepo.ListByCampaign(ctx, id, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign leads: %w", err)
	}
	return leads, nil
}

// PreviewMessage renders a template for a sample lead without persisting anything
func (s *CampaignService) PreviewMessage(ctx context.Context, req *PreviewMessageRequest) (*PreviewMessageResult, error) {
	template := req.MessageTemplate
	if template == "" && s.presets != nil && req.CampaignType != models.CampaignTypeCustom {
		ref := req.VehicleReference
		if ref == "" {
			ref = models.VehicleReferenceModel
		}
		if preset, ok := s.presets.Template(ref); ok {
			template = preset
		}
	}
	if err := s.templateSvc.ValidateTemplate(template); err != nil {
		return nil, err
	}

	fields := req.Lead.Fields()
	rendered := s.templateSvc.Render(template, fields, req.UsePersonalization)

	return &PreviewMessageResult{
		RenderedMessage:     rendered,
		UsedTemplate:        template,
		Length:              len([]rune(rendered)),
		Placeholders:        s.templateSvc.Placeholders(template),
		UnknownPlaceholders: s.templateSvc.UnknownPlaceholders(template, fields),
	}, nil
}

func (s *CampaignService) appendLog(ctx context.Context, id int, level models.LogLevel, message string, details models.Metadata) {
	if err := s.logs.Append(ctx, id, level, message, details); err != nil {
		s.log.Error().Err(err).Int("campaign_id", id).Msg("Failed to append campaign log")
	}
}

// Request/Response types

// CreateCampaignRequest represents a request to create a campaign
type CreateCampaignRequest struct {
	Name               string                  `json:"name"`
	MessageTemplate    string                  `json:"message_template"`
	VehicleReference   models.VehicleReference `json:"vehicle_reference"`
	UsePersonalization bool                    `json:"use_personalization"`
	AssignmentMode     models.AssignmentMode   `json:"assignment_mode"`
	AssignedUserID     *uuid.UUID              `json:"assigned_user_id,omitempty"`
	CampaignType       models.CampaignType     `json:"campaign_type"`
	DelaySeconds       *int                    `json:"delay_seconds,omitempty"`
	Leads              []LeadInput             `json:"leads,omitempty"`
	CSV                string                  `json:"csv,omitempty"`
	ExcludeDuplicates  bool                    `json:"exclude_duplicates"`
}

// Validate fills defaults and checks the request shape
func (r *CreateCampaignRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if r.CampaignType == "" {
		r.CampaignType = models.CampaignTypeNormal
	}
	if r.VehicleReference == "" {
		r.VehicleReference = models.VehicleReferenceModel
	}
	if r.AssignmentMode == "" {
		r.AssignmentMode = models.AssignmentSingleUser
	}
	if r.CampaignType == models.CampaignTypeCustom && strings.TrimSpace(r.MessageTemplate) == "" {
		return fmt.Errorf("message_template is required for custom campaigns")
	}
	if r.DelaySeconds != nil && *r.DelaySeconds < 0 {
		return fmt.Errorf("delay_seconds cannot be negative")
	}
	if len(r.Leads) == 0 && strings.TrimSpace(r.CSV) == "" {
		return fmt.Errorf("leads or csv is required")
	}
	return nil
}

// CreateCampaignResult is a created campaign and the duplicate report computed for it
type CreateCampaignResult struct {
	Campaign          *models.Campaign `json:"campaign"`
	Duplicates        *DuplicateReport `json:"duplicates"`
	ExcludedDuplicate int              `json:"excluded_duplicates"`
}

// PreviewMessageRequest represents a request to preview a message
type PreviewMessageRequest struct {
	MessageTemplate    string                  `json:"message_template"`
	CampaignType       models.CampaignType     `json:"campaign_type"`
	VehicleReference   models.VehicleReference `json:"vehicle_reference"`
	UsePersonalization bool                    `json:"use_personalization"`
	Lead               LeadInput               `json:"lead"`
}

// PreviewMessageResult represents the result of previewing a message
type PreviewMessageResult struct {
	RenderedMessage     string   `json:"rendered_message"`
	UsedTemplate        string   `json:"used_template"`
	Length              int      `json:"length"`
	Placeholders        []string `json:"placeholders"`
	UnknownPlaceholders []string `json:"unknown_placeholders"`
}

// PaginationInfo represents pagination metadata
type PaginationInfo struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}
