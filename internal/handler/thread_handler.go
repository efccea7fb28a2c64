package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"autoleads/internal/models"
	"autoleads/internal/service"
)

// ThreadManager reads threads and applies gateway callbacks
type ThreadManager interface {
	OpenThread(ctx context.Context, organizationID int, rawID string) (*service.ThreadWithMessages, error)
	RecordInbound(ctx context.Context, in service.InboundMessage) (*service.ThreadWithMessages, error)
	ConfirmDelivery(ctx context.Context, externalID string, status models.MessageStatus) error
}

// ThreadHandler handles thread reads and SMS gateway webhooks
type ThreadHandler struct {
	threads ThreadManager
}

// NewThreadHandler creates a new thread handler
func NewThreadHandler(threads ThreadManager) *ThreadHandler {
	return &ThreadHandler{threads: threads}
}

// Get handles GET /threads/{id}. Opening a thread resets its unread count.
func (h *ThreadHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}

	thread, err := h.threads.OpenThread(r.Context(), actor.OrganizationID, mux.Vars(r)["id"])
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, thread)
}

// DeliveryStatus handles POST /webhooks/sms/status
func (h *ThreadHandler) DeliveryStatus(w http.ResponseWriter, r *http.Request) {
	var req DeliveryStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.threads.ConfirmDelivery(r.Context(), req.ID, models.MessageStatus(req.Status)); err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, map[string]string{"id": req.ID, "status": req.Status})
}

// Inbound handles POST /webhooks/sms/inbound
func (h *ThreadHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	var req service.InboundMessage
	if !decodeJSON(w, r, &req) {
		return
	}

	thread, err := h.threads.RecordInbound(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteCreated(w, thread)
}

// DeliveryStatusRequest is the gateway's delivery receipt
type DeliveryStatusRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
