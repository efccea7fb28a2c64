package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// sendResponse is the gateway's JSON reply
type sendResponse struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// HTTPClient posts messages to a gateway's send endpoint
type HTTPClient struct {
	httpClient *resty.Client
	baseURL    string
}

// NewHTTPClient creates a gateway client. timeout bounds every send; a send
// that times out is reported as a failure.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("gateway baseURL cannot be empty")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gateway apiKey cannot be empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &HTTPClient{
		httpClient: client,
		baseURL:    baseURL,
	}, nil
}

// Send posts {content, from, to}. Success requires a 2xx status and status=="success" in the body.
func (c *HTTPClient) Send(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	var body sendResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&body).
		SetError(&body).
		Post("/send")

	if err != nil {
		log.Error().Err(err).Str("baseURL", c.baseURL).Str("to", req.To).Msg("Gateway send request failed")
		return nil, &SendError{Reason: err.Error()}
	}

	if resp.IsError() || body.Status != StatusSuccess {
		reason := body.Message
		switch {
		case reason != "":
		case resp.IsError():
			reason = strings.TrimSpace(resp.String())
			if reason == "" {
				reason = resp.Status()
			}
		default:
			reason = fmt.Sprintf("unexpected status %q", body.Status)
		}
		log.Warn().Str("to", req.To).Int("statusCode", resp.StatusCode()).Str("reason", reason).Msg("Gateway rejected message")
		return nil, &SendError{StatusCode: resp.StatusCode(), Reason: reason}
	}

	return &Result{
		ID:      body.ID,
		Status:  body.Status,
		Message: body.Message,
		Latency: time.Since(start),
	}, nil
}
