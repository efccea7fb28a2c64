package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"autoleads/internal/models"
	"autoleads/internal/repository"
	"autoleads/internal/service"
)

// CampaignManager is the campaign operations the HTTP surface exposes
type CampaignManager interface {
	CreateCampaign(ctx context.Context, actor service.Actor, req *service.CreateCampaignRequest) (*service.CreateCampaignResult, error)
	GetCampaignWithStats(ctx context.Context, actor service.Actor, id int) (*models.CampaignWithStats, error)
	ListCampaigns(ctx context.Context, actor service.Actor, filters repository.CampaignFilters) ([]*models.Campaign, *service.PaginationInfo, error)
	ApplyAction(ctx context.Context, actor service.Actor, id int, action models.CampaignAction) (*models.Campaign, error)
	Logs(ctx context.Context, actor service.Actor, id int, q service.LogQuery) (*service.LogPage, error)
	Leads(ctx context.Context, actor service.Actor, id int, limit, offset int) ([]*models.CampaignLead, error)
	PreviewMessage(ctx context.Context, req *service.PreviewMessageRequest) (*service.PreviewMessageResult, error)
}

// CampaignHandler handles HTTP requests for campaign operations
type CampaignHandler struct {
	campaigns CampaignManager
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaigns CampaignManager) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns}
}

// Create handles POST /campaigns
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}

	var req service.CreateCampaignRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.campaigns.CreateCampaign(r.Context(), actor, &req)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteCreated(w, result)
}

// List handles GET /campaigns
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()

	page := 1
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	perPage := repository.DefaultPageSize
	if perPageStr := query.Get("per_page"); perPageStr != "" {
		if pp, err := strconv.Atoi(perPageStr); err == nil && pp > 0 {
			perPage = pp
		}
	}
	if perPage > repository.MaxPageSize {
		perPage = repository.MaxPageSize
	}

	filters := repository.CampaignFilters{
		Page:     page,
		PageSize: perPage,
	}

	if statusStr := query.Get("status"); statusStr != "" {
		status := models.CampaignStatus(statusStr)
		if !status.Valid() {
			WriteValidationError(w, "invalid status: must be one of draft, running, paused, completed, cancelled")
			return
		}
		filters.Status = &status
	}

	campaigns, pagination, err := h.campaigns.ListCampaigns(r.Context(), actor, filters)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, ListCampaignsResponse{
		Campaigns:  campaigns,
		Pagination: pagination,
	})
}

// GetByID handles GET /campaigns/{id}
func (h *CampaignHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	campaign, err := h.campaigns.GetCampaignWithStats(r.Context(), actor, id)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, campaign)
}

// Action returns the handler for POST /campaigns/{id}/start|pause|cancel
func (h *CampaignHandler) Action(action models.CampaignAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		id, ok := campaignID(w, r)
		if !ok {
			return
		}

		campaign, err := h.campaigns.ApplyAction(r.Context(), actor, id, action)
		if err != nil {
			HandleServiceError(w, err)
			return
		}

		WriteOK(w, campaign)
	}
}

// Logs handles GET /campaigns/{id}/logs?after=<id>&since=<RFC3339>&limit=<n>
func (h *CampaignHandler) Logs(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()

	var q service.LogQuery
	if after := query.Get("after"); after != "" {
		cursor, err := strconv.ParseInt(after, 10, 64)
		if err != nil || cursor < 0 {
			WriteValidationError(w, "after must be a non-negative log id")
			return
		}
		q.After = cursor
	}
	if since := query.Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			WriteValidationError(w, "since must be an RFC3339 timestamp")
			return
		}
		q.Since = &ts
	}
	if limit := query.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			WriteValidationError(w, "limit must be a positive integer")
			return
		}
		q.Limit = n
	}

	page, err := h.campaigns.Logs(r.Context(), actor, id, q)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, page)
}

// Leads handles GET /campaigns/{id}/leads?limit=<n>&offset=<n>
func (h *CampaignHandler) Leads(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	leads, err := h.campaigns.Leads(r.Context(), actor, id, limit, offset)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, ListLeadsResponse{Leads: leads})
}

// Preview handles POST /campaigns/preview
func (h *CampaignHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req service.PreviewMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.campaigns.PreviewMessage(r.Context(), &req)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, result)
}

func campaignID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		WriteValidationError(w, "invalid campaign ID format")
		return 0, false
	}
	if id <= 0 {
		WriteValidationError(w, "campaign ID must be greater than 0")
		return 0, false
	}
	return id, true
}

// Request/Response types

// ListCampaignsResponse represents the response for listing campaigns
type ListCampaignsResponse struct {
	Campaigns  []*models.Campaign      `json:"campaigns"`
	Pagination *service.PaginationInfo `json:"pagination"`
}

// ListLeadsResponse represents the response for listing a campaign's leads
type ListLeadsResponse struct {
	Leads []*models.CampaignLead `json:"leads"`
}
