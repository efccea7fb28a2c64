package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LeadStatus represents valid campaign lead statuses
type LeadStatus string

const (
	LeadStatusPending LeadStatus = "pending"
	LeadStatusSent    LeadStatus = "sent"
	LeadStatusFailed  LeadStatus = "failed"
	LeadStatusSkipped LeadStatus = "skipped"
)

// CampaignLead is one recipient row of a campaign
type CampaignLead struct {
	ID           int        `json:"id" db:"id"`
	CampaignID   int        `json:"campaign_id" db:"campaign_id"`
	LeadOrder    int        `json:"lead_order" db:"lead_order"`
	PhoneNumber  string     `json:"phone_number" db:"phone_number"`
	Name         string     `json:"name" db:"name"`
	Make         string     `json:"make" db:"make"`
	Model        string     `json:"model" db:"model"`
	ListingLink  string     `json:"listing_link" db:"listing_link"`
	Salesperson  string     `json:"salesperson" db:"salesperson"`
	Month        string     `json:"month" db:"month"`
	CustomFields StringMap  `json:"custom_fields" db:"custom_fields"`
	AssignedTo   uuid.UUID  `json:"assigned_to" db:"assigned_to"`
	Status       LeadStatus `json:"status" db:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	MessageID    *int       `json:"message_id,omitempty" db:"message_id"`
	ErrorMessage *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// LeadFields are the placeholder sources of one lead
type LeadFields struct {
	Name        string
	Make        string
	Model       string
	Salesperson string
	Month       string
	Custom      map[string]string
}

// HasName reports whether a usable name is present
func (f LeadFields) HasName() bool {
	return strings.TrimSpace(f.Name) != ""
}

// Fields returns the placeholder sources of the lead
func (l *CampaignLead) Fields() LeadFields {
	return LeadFields{
		Name:        l.Name,
		Make:        l.Make,
		Model:       l.Model,
		Salesperson: l.Salesperson,
		Month:       l.Month,
		Custom:      l.CustomFields,
	}
}

// VehicleInfo joins make and model for thread metadata
func (l *CampaignLead) VehicleInfo() string {
	return strings.TrimSpace(l.Make + " " + l.Model)
}
