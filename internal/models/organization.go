package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a tenant with its SMS gateway credentials
type Organization struct {
	ID            int       `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	SMSAPIKey     string    `json:"-" db:"sms_api_key"`
	SMSFromNumber string    `json:"sms_from_number" db:"sms_from_number"`
	SMSGatewayURL string    `json:"-" db:"sms_gateway_url"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// HasGatewayCredentials reports whether the organization can send SMS
func (o *Organization) HasGatewayCredentials() bool {
	return o.SMSAPIKey != "" && o.SMSFromNumber != ""
}

// Profile is a user of an organization
type Profile struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OrganizationID int       `json:"organization_id" db:"organization_id"`
	FullName       string    `json:"full_name" db:"full_name"`
	Role           string    `json:"role" db:"role"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
