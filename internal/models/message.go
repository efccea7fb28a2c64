package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus represents valid message statuses
type MessageStatus string

const (
	MessageStatusPending  MessageStatus = "pending"
	MessageStatusSent     MessageStatus = "sent"
	MessageStatusReceived MessageStatus = "received"
	MessageStatusFailed   MessageStatus = "failed"
)

// MessageDirection is inbound or outbound
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// Message is one SMS within a thread
type Message struct {
	ID             int              `json:"id" db:"id"`
	ThreadID       string           `json:"thread_id" db:"thread_id"`
	Content        string           `json:"content" db:"content"`
	Direction      MessageDirection `json:"direction" db:"direction"`
	FromNumber     string           `json:"from_number" db:"from_number"`
	ToNumber       string           `json:"to_number" db:"to_number"`
	Status         MessageStatus    `json:"status" db:"status"`
	ExternalID     *string          `json:"external_id,omitempty" db:"external_id"`
	AssignedTo     *uuid.UUID       `json:"assigned_to,omitempty" db:"assigned_to"`
	OrganizationID int              `json:"organization_id" db:"organization_id"`
	Metadata       Metadata         `json:"metadata" db:"metadata"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}
