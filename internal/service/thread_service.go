package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"autoleads/internal/models"
	"autoleads/internal/phone"
	"autoleads/internal/repository"
)

// Thread metadata sources
const (
	SourceCampaign = "campaign"
	SourceInbound  = "inbound_sms"
)

// threadMessageLimit caps the messages returned with a thread
const threadMessageLimit = 200

// OutboundRecord describes a message that already left the gateway
type OutboundRecord struct {
	Phone          string
	Content        string
	FromNumber     string
	ExternalID     string
	OrganizationID int
	AssignedTo     *uuid.UUID
	ContactName    string
	// ThreadMetadata is merged into the thread's metadata
	ThreadMetadata models.Metadata
	// MessageMetadata is stored on the message row
	MessageMetadata models.Metadata
}

// OutboundResult identifies the rows written for one outbound message
type OutboundResult struct {
	ThreadID      string
	ThreadCreated bool
	MessageID     *int
}

// PartialWriteError reports a thread that was upserted without its message row
type PartialWriteError struct {
	ThreadID string
	Err      error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("thread %s updated but message insert failed: %v", e.ThreadID, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// InboundMessage is an SMS received from a contact
type InboundMessage struct {
	From           string `json:"from"`
	To             string `json:"to"`
	Content        string `json:"content"`
	ExternalID     string `json:"external_id"`
	OrganizationID int    `json:"organization_id"`
	ContactName    string `json:"contact_name,omitempty"`
}

// ThreadWithMessages is a thread and its most recent messages
type ThreadWithMessages struct {
	models.Thread
	Messages []*models.Message `json:"messages"`
}

// ThreadService maintains conversation threads and their messages
type ThreadService struct {
	threadRepo  repository.ThreadRepository
	messageRepo repository.MessageRepository
	now         func() time.Time
}

// NewThreadService creates a new thread service
func NewThreadService(threadRepo repository.ThreadRepository, messageRepo repository.MessageRepository) *ThreadService {
	return &ThreadService{
		threadRepo:  threadRepo,
		messageRepo: messageRepo,
		now:         time.Now,
	}
}

// RecordOutbound upserts the destination thread and then inserts a pending outbound message.
// The two writes are not transactional: a failed message insert returns *PartialWriteError
// with the thread already updated.
func (s *ThreadService) RecordOutbound(ctx context.Context, rec OutboundRecord) (*OutboundResult, error) {
	threadID := phone.Normalize(rec.Phone)
	if threadID == "" {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid phone number %q", rec.Phone)}
	}

	now := s.now().UTC()
	metadata := models.Metadata{"initiated_at": now.Format(time.RFC3339)}.Merge(rec.ThreadMetadata)

	thread := &models.Thread{
		ID:                 threadID,
		ContactName:        rec.ContactName,
		ContactPhone:       threadID,
		LastMessageAt:      &now,
		LastMessagePreview: models.Preview(rec.Content),
		AssignedTo:         rec.AssignedTo,
		OrganizationID:     rec.OrganizationID,
		Metadata:           metadata,
	}

	created, err := s.threadRepo.UpsertOutbound(ctx, thread)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert thread: %w", err)
	}

	result := &OutboundResult{ThreadID: threadID, ThreadCreated: created}

	message := &models.Message{
		ThreadID:       threadID,
		Content:        rec.Content,
		Direction:      models.DirectionOutbound,
		FromNumber:     rec.FromNumber,
		ToNumber:       threadID,
		Status:         models.MessageStatusPending,
		AssignedTo:     rec.AssignedTo,
		OrganizationID: rec.OrganizationID,
		Metadata:       rec.MessageMetadata,
	}
	if rec.ExternalID != "" {
		externalID := rec.ExternalID
		message.ExternalID = &externalID
	}

	if err := s.messageRepo.Create(ctx, message); err != nil {
		return result, &PartialWriteError{ThreadID: threadID, Err: err}
	}

	result.MessageID = &message.ID
	return result, nil
}

// RecordInbound creates or updates the sender's thread, bumps its unread count
// and stores the message as received
func (s *ThreadService) RecordInbound(ctx context.Context, in InboundMessage) (*ThreadWithMessages, error) {
	threadID := phone.Normalize(in.From)
	if threadID == "" {
		return nil, &ValidationError{Message: "from is required"}
	}
	if in.Content == "" {
		return nil, &ValidationError{Message: "content is required"}
	}
	if in.OrganizationID <= 0 {
		return nil, &ValidationError{Message: "organization_id is required"}
	}

	now := s.now().UTC()
	thread := &models.Thread{
		ID:                 threadID,
		ContactName:        in.ContactName,
		ContactPhone:       threadID,
		LastMessageAt:      &now,
		LastMessagePreview: models.Preview(in.Content),
		OrganizationID:     in.OrganizationID,
		Metadata: models.Metadata{
			"source":       SourceInbound,
			"initiated_at": now.Format(time.RFC3339),
		},
	}

	if _, err := s.threadRepo.UpsertInbound(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to upsert thread: %w", err)
	}

	message := &models.Message{
		ThreadID:       threadID,
		Content:        in.Content,
		Direction:      models.DirectionInbound,
		FromNumber:     threadID,
		ToNumber:       phone.Normalize(in.To),
		Status:         models.MessageStatusReceived,
		AssignedTo:     thread.AssignedTo,
		OrganizationID: in.OrganizationID,
		Metadata:       models.Metadata{"source": SourceInbound},
	}
	if in.ExternalID != "" {
		externalID := in.ExternalID
		message.ExternalID = &externalID
	}
	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, &PartialWriteError{ThreadID: threadID, Err: err}
	}

	return &ThreadWithMessages{Thread: *thread, Messages: []*models.Message{message}}, nil
}

// OpenThread returns a thread of the organization with its recent messages and resets its unread count
func (s *ThreadService) OpenThread(ctx context.Context, organizationID int, rawID string) (*ThreadWithMessages, error) {
	id := phone.Normalize(rawID)
	if id == "" {
		return nil, &NotFoundError{Resource: "thread", ID: rawID}
	}

	thread, err := s.threadRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Resource: "thread", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	if thread.OrganizationID != organizationID {
		return nil, &NotFoundError{Resource: "thread", ID: id}
	}

	if thread.UnreadCount > 0 {
		if err := s.threadRepo.MarkRead(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to mark thread read: %w", err)
		}
		thread.UnreadCount = 0
	}

	messages, err := s.messageRepo.ListByThread(ctx, id, threadMessageLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread messages: %w", err)
	}

	return &ThreadWithMessages{Thread: *thread, Messages: messages}, nil
}

// ConfirmDelivery applies a gateway delivery receipt to the pending message with that gateway id
func (s *ThreadService) ConfirmDelivery(ctx context.Context, externalID string, status models.MessageStatus) error {
	if externalID == "" {
		return &ValidationError{Message: "id is required"}
	}
	if status != models.MessageStatusSent && status != models.MessageStatusFailed {
		return &ValidationError{Message: "status must be 'sent' or 'failed'"}
	}

	updated, err := s.messageRepo.UpdateStatusByExternalID(ctx, externalID, status)
	if err != nil {
		return fmt.Errorf("failed to confirm delivery: %w", err)
	}
	if updated == 0 {
		return &NotFoundError{Resource: "pending message", ID: externalID}
	}
	return nil
}
