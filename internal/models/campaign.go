package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CampaignStatus represents valid campaign statuses
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusCancelled
}

// Valid reports whether s is a known status
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusRunning, CampaignStatusPaused,
		CampaignStatusCompleted, CampaignStatusCancelled:
		return true
	}
	return false
}

// CampaignAction is an operator control action
type CampaignAction string

const (
	CampaignActionStart  CampaignAction = "start"
	CampaignActionPause  CampaignAction = "pause"
	CampaignActionCancel CampaignAction = "cancel"
)

// transitions is the campaign lifecycle. Completion is not an operator action;
// the dispatcher moves running campaigns to completed directly.
var transitions = map[CampaignAction]struct {
	from []CampaignStatus
	to   CampaignStatus
}{
	CampaignActionStart:  {from: []CampaignStatus{CampaignStatusDraft, CampaignStatusPaused}, to: CampaignStatusRunning},
	CampaignActionPause:  {from: []CampaignStatus{CampaignStatusRunning}, to: CampaignStatusPaused},
	CampaignActionCancel: {from: []CampaignStatus{CampaignStatusDraft, CampaignStatusRunning, CampaignStatusPaused}, to: CampaignStatusCancelled},
}

// Transition returns the statuses an action may be applied from and the resulting status
func (a CampaignAction) Transition() (from []CampaignStatus, to CampaignStatus, err error) {
	t, ok := transitions[a]
	if !ok {
		return nil, "", fmt.Errorf("unknown campaign action %q", a)
	}
	return t.from, t.to, nil
}

// AllowedFrom reports whether the action is valid for the given status
func (a CampaignAction) AllowedFrom(status CampaignStatus) bool {
	from, _, err := a.Transition()
	if err != nil {
		return false
	}
	for _, s := range from {
		if s == status {
			return true
		}
	}
	return false
}

// VehicleReference selects which vehicle placeholder a preset template emphasises
type VehicleReference string

const (
	VehicleReferenceMake  VehicleReference = "make"
	VehicleReferenceModel VehicleReference = "model"
)

// AssignmentMode controls how leads are assigned to users at creation time
type AssignmentMode string

const (
	AssignmentSingleUser         AssignmentMode = "single_user"
	AssignmentRandomDistribution AssignmentMode = "random_distribution"
)

// CampaignType distinguishes preset templates from free-form templates
type CampaignType string

const (
	CampaignTypeNormal CampaignType = "normal"
	CampaignTypeCustom CampaignType = "custom"
)

// Campaign represents one bulk-send job
type Campaign struct {
	ID                 int              `json:"id" db:"id"`
	OrganizationID     int              `json:"organization_id" db:"organization_id"`
	Name               string           `json:"name" db:"name"`
	MessageTemplate    string           `json:"message_template" db:"message_template"`
	VehicleReference   VehicleReference `json:"vehicle_reference" db:"vehicle_reference"`
	UsePersonalization bool             `json:"use_personalization" db:"use_personalization"`
	AssignmentMode     AssignmentMode   `json:"assignment_mode" db:"assignment_mode"`
	AssignedUserID     *uuid.UUID       `json:"assigned_user_id,omitempty" db:"assigned_user_id"`
	CampaignType       CampaignType     `json:"campaign_type" db:"campaign_type"`
	DelaySeconds       int              `json:"delay_seconds" db:"delay_seconds"`
	TotalLeads         int              `json:"total_leads" db:"total_leads"`
	SentCount          int              `json:"sent_count" db:"sent_count"`
	FailedCount        int              `json:"failed_count" db:"failed_count"`
	CurrentLeadIndex   int              `json:"current_lead_index" db:"current_lead_index"`
	Status             CampaignStatus   `json:"status" db:"status"`
	CreatedBy          uuid.UUID        `json:"created_by" db:"created_by"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at" db:"updated_at"`
	StartedAt          *time.Time       `json:"started_at,omitempty" db:"started_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
}

// CampaignStats holds per-status lead counts
type CampaignStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// CampaignWithStats represents a campaign with its lead statistics
type CampaignWithStats struct {
	Campaign
	Stats CampaignStats `json:"stats"`
}

// Validate checks if the campaign fields are valid
func (c *Campaign) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	if c.MessageTemplate == "" {
		return fmt.Errorf("message template is required")
	}
	if c.VehicleReference != VehicleReferenceMake && c.VehicleReference != VehicleReferenceModel {
		return fmt.Errorf("invalid vehicle_reference: must be 'make' or 'model'")
	}
	if c.CampaignType != CampaignTypeNormal && c.CampaignType != CampaignTypeCustom {
		return fmt.Errorf("invalid campaign_type: must be 'normal' or 'custom'")
	}
	switch c.AssignmentMode {
	case AssignmentSingleUser:
		if c.AssignedUserID == nil {
			return fmt.Errorf("assigned_user_id is required for single_user assignment")
		}
	case AssignmentRandomDistribution:
	default:
		return fmt.Errorf("invalid assignment_mode: must be 'single_user' or 'random_distribution'")
	}
	if c.DelaySeconds < 0 {
		return fmt.Errorf("delay_seconds cannot be negative")
	}
	return nil
}

// Processed returns the number of leads that reached a terminal status via dispatch
func (c *Campaign) Processed() int {
	return c.SentCount + c.FailedCount
}
