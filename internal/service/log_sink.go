package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"autoleads/internal/logger"
	"autoleads/internal/models"
	"autoleads/internal/repository"
)

// LogQuery selects a page of a campaign's log. After is the id cursor; Since optionally
// restricts entries by creation time.
type LogQuery struct {
	After int64
	Since *time.Time
	Limit int
}

// LogPage is one page of log entries and the cursor to poll with next
type LogPage struct {
	Logs       []*models.CampaignLog `json:"logs"`
	NextCursor int64                 `json:"next_cursor"`
}

// LogSink is the append-only per-campaign event stream. Entries are mirrored to the process log.
type LogSink struct {
	repo repository.LogRepository
	log  zerolog.Logger
}

// NewLogSink creates a new log sink
func NewLogSink(repo repository.LogRepository) *LogSink {
	return &LogSink{
		repo: repo,
		log:  logger.WithComponent("campaign-log"),
	}
}

// Append records one entry. details may be nil.
func (s *LogSink) Append(ctx context.Context, campaignID int, level models.LogLevel, message string, details models.Metadata) error {
	entry := &models.CampaignLog{
		CampaignID: campaignID,
		Level:      level,
		Message:    message,
		Details:    details,
	}

	s.mirror(entry)

	if err := s.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append campaign log: %w", err)
	}
	return nil
}

func (s *LogSink) mirror(entry *models.CampaignLog) {
	var event *zerolog.Event
	switch entry.Level {
	case models.LogLevelError:
		event = s.log.Error()
	case models.LogLevelWarning:
		event = s.log.Warn()
	default:
		event = s.log.Info()
	}

	event = event.Int("campaign_id", entry.CampaignID).Str("level", string(entry.Level))
	if len(entry.Details) > 0 {
		event = event.Interface("details", map[string]interface{}(entry.Details))
	}
	event.Msg(entry.Message)
}

// Read returns entries after the cursor in ascending order, at most repository.MaxLogPage per call.
// NextCursor equals q.After when nothing new was found.
func (s *LogSink) Read(ctx context.Context, campaignID int, q LogQuery) (*LogPage, error) {
	limit := q.Limit
	if limit <= 0 || limit > repository.MaxLogPage {
		limit = repository.MaxLogPage
	}
	after := q.After
	if after < 0 {
		after = 0
	}

	logs, err := s.repo.ListAfter(ctx, campaignID, after, q.Since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read campaign logs: %w", err)
	}

	page := &LogPage{Logs: logs, NextCursor: after}
	if n := len(logs); n > 0 {
		page.NextCursor = logs[n-1].ID
	}
	return page, nil
}
