package models

import (
	"time"

	"github.com/google/uuid"
)

// PreviewLength is the maximum number of characters kept as a thread preview
const PreviewLength = 100

// Thread is one conversation per normalized phone number. ID is the phone number.
type Thread struct {
	ID                 string     `json:"id" db:"id"`
	ContactName        string     `json:"contact_name" db:"contact_name"`
	ContactPhone       string     `json:"contact_phone" db:"contact_phone"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty" db:"last_message_at"`
	LastMessagePreview string     `json:"last_message_preview" db:"last_message_preview"`
	UnreadCount        int        `json:"unread_count" db:"unread_count"`
	AssignedTo         *uuid.UUID `json:"assigned_to,omitempty" db:"assigned_to"`
	OrganizationID     int        `json:"organization_id" db:"organization_id"`
	Metadata           Metadata   `json:"metadata" db:"metadata"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// Preview truncates content to PreviewLength characters
func Preview(content string) string {
	r := []rune(content)
	if len(r) <= PreviewLength {
		return content
	}
	return string(r[:PreviewLength])
}
