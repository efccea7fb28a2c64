package gateway

import (
	"errors"
	"fmt"
	"time"

	"autoleads/internal/models"

	"github.com/patrickmn/go-cache"
)

// ErrMissingCredentials is returned for organizations that cannot send SMS
var ErrMissingCredentials = errors.New("organization has no SMS gateway credentials")

// Resolver returns the Sender for an organization
type Resolver interface {
	For(org *models.Organization) (Sender, error)
}

type pooledClient struct {
	fingerprint string
	client      *HTTPClient
}

// Pool builds one HTTP client per organization and reuses it across sends.
// Entries expire after an hour idle so rotated credentials are picked up.
type Pool struct {
	defaultURL string
	timeout    time.Duration
	simulator  Sender
	clients    *cache.Cache
}

// NewPool creates a pool. When simulator is non-nil every organization with
// credentials gets the simulator instead of a real client.
func NewPool(defaultURL string, timeout time.Duration, simulator Sender) *Pool {
	return &Pool{
		defaultURL: defaultURL,
		timeout:    timeout,
		simulator:  simulator,
		clients:    cache.New(time.Hour, 10*time.Minute),
	}
}

// For returns the organization's sender
func (p *Pool) For(org *models.Organization) (Sender, error) {
	if org == nil || !org.HasGatewayCredentials() {
		return nil, ErrMissingCredentials
	}
	if p.simulator != nil {
		return p.simulator, nil
	}

	baseURL := org.SMSGatewayURL
	if baseURL == "" {
		baseURL = p.defaultURL
	}

	key := fmt.Sprintf("org:%d", org.ID)
	fingerprint := baseURL + "\x00" + org.SMSAPIKey
	if cached, ok := p.clients.Get(key); ok {
		if entry := cached.(*pooledClient); entry.fingerprint == fingerprint {
			return entry.client, nil
		}
	}

	client, err := NewHTTPClient(baseURL, org.SMSAPIKey, p.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway client for organization %d: %w", org.ID, err)
	}

	p.clients.Set(key, &pooledClient{fingerprint: fingerprint, client: client}, cache.DefaultExpiration)
	return client, nil
}
