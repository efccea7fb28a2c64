package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autoleads/internal/middleware"
	"autoleads/internal/models"
)

// Handlers groups the HTTP handlers mounted by NewRouter
type Handlers struct {
	Campaigns *CampaignHandler
	Leads     *LeadHandler
	Threads   *ThreadHandler
	Health    *HealthHandler
}

// NewRouter builds the API router. Operator routes require identity headers and are
// rate limited per user. Gateway webhooks require the shared webhook secret.
// Health and metrics are open.
func NewRouter(h Handlers, limiter *middleware.RateLimiter, webhookSecret string) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Metrics)

	router.HandleFunc("/health", h.Health.HandleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	hooks := router.PathPrefix("/webhooks/sms").Subrouter()
	hooks.Use(middleware.WebhookSecret(webhookSecret))
	hooks.HandleFunc("/status", h.Threads.DeliveryStatus).Methods(http.MethodPost)
	hooks.HandleFunc("/inbound", h.Threads.Inbound).Methods(http.MethodPost)

	api := router.NewRoute().Subrouter()
	api.Use(middleware.Identity)
	if limiter != nil {
		api.Use(limiter.Middleware)
	}

	api.HandleFunc("/campaigns", h.Campaigns.Create).Methods(http.MethodPost)
	api.HandleFunc("/campaigns", h.Campaigns.List).Methods(http.MethodGet)
	api.HandleFunc("/campaigns/preview", h.Campaigns.Preview).Methods(http.MethodPost)
	api.HandleFunc("/campaigns/{id:[0-9]+}", h.Campaigns.GetByID).Methods(http.MethodGet)
	api.HandleFunc("/campaigns/{id:[0-9]+}/start", h.Campaigns.Action(models.CampaignActionStart)).Methods(http.MethodPost)
	api.HandleFunc("/campaigns/{id:[0-9]+}/pause", h.Campaigns.Action(models.CampaignActionPause)).Methods(http.MethodPost)
	api.HandleFunc("/campaigns/{id:[0-9]+}/cancel", h.Campaigns.Action(models.CampaignActionCancel)).Methods(http.MethodPost)
	api.HandleFunc("/campaigns/{id:[0-9]+}/logs", h.Campaigns.Logs).Methods(http.MethodGet)
	api.HandleFunc("/campaigns/{id:[0-9]+}/leads", h.Campaigns.Leads).Methods(http.MethodGet)

	api.HandleFunc("/leads/parse-csv", h.Leads.ParseCSV).Methods(http.MethodPost)
	api.HandleFunc("/leads/check-duplicates", h.Leads.CheckDuplicates).Methods(http.MethodPost)

	api.HandleFunc("/threads/{id}", h.Threads.Get).Methods(http.MethodGet)

	return router
}
