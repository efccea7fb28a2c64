package metrics

import "github.com/prometheus/client_golang/prometheus"

var HTTPRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "autoleads_http_requests_total",
		Help: "Total number of HTTP requests received",
	},
	[]string{"route", "method", "status"},
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "autoleads_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"route", "method"},
)

var HTTPRateLimitRejectionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "autoleads_http_rate_limit_rejections_total",
		Help: "Total number of HTTP requests rejected due to rate limiting",
	},
)

// CampaignMessagesTotal counts per-lead dispatch outcomes (sent|failed)
var CampaignMessagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "autoleads_campaign_messages_total",
		Help: "Total number of campaign messages processed by result",
	},
	[]string{"result"},
)

var GatewayRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "autoleads_gateway_request_duration_seconds",
		Help:    "Time taken by SMS gateway send calls",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"result"},
)

var CampaignRunsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "autoleads_campaign_runs_active",
		Help: "Number of campaign dispatch loops running in this process",
	},
)

// CampaignRunsTotal counts finished dispatch runs by outcome
// (completed|paused|cancelled|not_running|lease_held|lease_lost|interrupted|aborted)
var CampaignRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "autoleads_campaign_runs_total",
		Help: "Total number of campaign dispatch runs by outcome",
	},
	[]string{"outcome"},
)

// InitAPIMetrics registers the HTTP collectors
func InitAPIMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRateLimitRejectionsTotal)
}

// InitWorkerMetrics registers the dispatch collectors
func InitWorkerMetrics() {
	prometheus.MustRegister(CampaignMessagesTotal)
	prometheus.MustRegister(GatewayRequestDuration)
	prometheus.MustRegister(CampaignRunsActive)
	prometheus.MustRegister(CampaignRunsTotal)
}
