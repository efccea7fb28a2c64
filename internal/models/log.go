package models

import "time"

// LogLevel is the severity of a campaign log entry
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelSuccess LogLevel = "success"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// CampaignLog is an append-only progress entry. ID is the tailing cursor.
type CampaignLog struct {
	ID         int64     `json:"id" db:"id"`
	CampaignID int       `json:"campaign_id" db:"campaign_id"`
	Level      LogLevel  `json:"level" db:"level"`
	Message    string    `json:"message" db:"message"`
	Details    Metadata  `json:"details,omitempty" db:"details"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
