package service

import (
	"fmt"

	"autoleads/internal/models"
)

// NotFoundError represents a resource not found error. ID is a campaign id or a thread phone key.
type NotFoundError struct {
	Resource string
	ID       interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %v not found", e.Resource, e.ID)
}

// ValidationError represents a validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// BusinessLogicError represents a business logic error
type BusinessLogicError struct {
	Message string
}

func (e *BusinessLogicError) Error() string {
	return fmt.Sprintf("business logic error: %s", e.Message)
}

// ConflictError represents a conflict error (e.g., duplicate)
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict with %s: %s", e.Resource, e.Message)
}

// invalidTransition builds the rejection returned when an action does not apply to the current status
func invalidTransition(campaignID int, action models.CampaignAction, status models.CampaignStatus) *BusinessLogicError {
	return &BusinessLogicError{
		Message: fmt.Sprintf("cannot %s campaign %d: status is %s", action, campaignID, status),
	}
}
