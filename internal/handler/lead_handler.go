package handler

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"autoleads/internal/service"
)

// maxUploadBytes bounds a CSV upload
const maxUploadBytes = 5 << 20

// LeadImporter parses lead uploads and reports duplicates
type LeadImporter interface {
	ParseCSV(raw string) (*service.ParseResult, error)
	CheckDuplicates(ctx context.Context, phones []string) (*service.DuplicateReport, error)
}

// LeadHandler handles lead import requests
type LeadHandler struct {
	leads LeadImporter
}

// NewLeadHandler creates a new lead handler
func NewLeadHandler(leads LeadImporter) *LeadHandler {
	return &LeadHandler{leads: leads}
}

// ParseCSV handles POST /leads/parse-csv. The body is either raw text/csv or {"csv": "..."}.
func (h *LeadHandler) ParseCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var raw string
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" || mediaType == "text/plain" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				WriteError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body is too large")
				return
			}
			WriteValidationError(w, "failed to read request body")
			return
		}
		raw = string(data)
	} else {
		var req ParseCSVRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		raw = req.CSV
	}

	result, err := h.leads.ParseCSV(raw)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, result)
}

// CheckDuplicates handles POST /leads/check-duplicates
func (h *LeadHandler) CheckDuplicates(w http.ResponseWriter, r *http.Request) {
	var req CheckDuplicatesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Phones) == 0 {
		WriteValidationError(w, "phones cannot be empty")
		return
	}

	report, err := h.leads.CheckDuplicates(r.Context(), req.Phones)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, report)
}

// ParseCSVRequest is the JSON form of a CSV upload
type ParseCSVRequest struct {
	CSV string `json:"csv"`
}

// CheckDuplicatesRequest lists the phones to classify
type CheckDuplicatesRequest struct {
	Phones []string `json:"phones"`
}
