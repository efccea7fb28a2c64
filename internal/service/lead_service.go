package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"autoleads/internal/models"
	"autoleads/internal/phone"
	"autoleads/internal/repository"
)

// Canonical lead fields a CSV header can map to
const (
	FieldPhone       = "phone_number"
	FieldName        = "name"
	FieldMake        = "make"
	FieldModel       = "model"
	FieldListingLink = "listing_link"
	FieldSalesperson = "salesperson"
	FieldMonth       = "month"
)

// headerSynonym maps a lower-cased header to a canonical field. exact headers
// match whole, contains headers match any header containing the fragment.
type headerSynonym struct {
	field    string
	exact    []string
	contains []string
}

var headerSynonyms = []headerSynonym{
	{field: FieldPhone, exact: []string{"mobile", "cell", "tel", "number"}, contains: []string{"phone"}},
	{field: FieldName, exact: []string{"name", "customer name", "customer", "full name", "contact name", "seller name", "seller"}},
	{field: FieldMake, exact: []string{"make", "vehicle make", "brand"}},
	{field: FieldModel, exact: []string{"model", "vehicle model", "vehicle"}},
	{field: FieldListingLink, exact: []string{"url", "ad", "listing"}, contains: []string{"link", "kijiji"}},
	{field: FieldSalesperson, exact: []string{"salesperson", "sales person", "sales rep", "rep"}},
	{field: FieldMonth, exact: []string{"month"}},
}

// canonicalField returns the lead field a header maps to, or "" for custom columns
func canonicalField(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	if h == "" {
		return ""
	}
	for _, syn := range headerSynonyms {
		for _, e := range syn.exact {
			if h == e {
				return syn.field
			}
		}
	}
	for _, syn := range headerSynonyms {
		for _, c := range syn.contains {
			if strings.Contains(h, c) {
				return syn.field
			}
		}
	}
	return ""
}

// LeadInput is one recipient supplied at campaign creation, parsed from CSV or posted as JSON
type LeadInput struct {
	PhoneNumber  string            `json:"phone_number"`
	Name         string            `json:"name,omitempty"`
	Make         string            `json:"make,omitempty"`
	Model        string            `json:"model,omitempty"`
	ListingLink  string            `json:"listing_link,omitempty"`
	Salesperson  string            `json:"salesperson,omitempty"`
	Month        string            `json:"month,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

func (l *LeadInput) set(field, value string) {
	switch field {
	case FieldPhone:
		l.PhoneNumber = value
	case FieldName:
		l.Name = value
	case FieldMake:
		l.Make = value
	case FieldModel:
		l.Model = value
	case FieldListingLink:
		l.ListingLink = value
	case FieldSalesperson:
		l.Salesperson = value
	case FieldMonth:
		l.Month = value
	}
}

// Fields returns the placeholder sources of the input
func (l *LeadInput) Fields() models.LeadFields {
	return models.LeadFields{
		Name:        l.Name,
		Make:        l.Make,
		Model:       l.Model,
		Salesperson: l.Salesperson,
		Month:       l.Month,
		Custom:      l.CustomFields,
	}
}

// ParseResult is the outcome of a CSV upload
type ParseResult struct {
	Leads         []LeadInput       `json:"leads"`
	HeaderMapping map[string]string `json:"header_mapping"`
	CustomFields  []string          `json:"custom_fields"`
	TotalRows     int               `json:"total_rows"`
	DroppedRows   int               `json:"dropped_rows"`
}

// DuplicateMatch is one input phone that already has a conversation thread
type DuplicateMatch struct {
	PhoneNumber         string `json:"phone_number"`
	ExistingThreadID    string `json:"existing_thread_id"`
	ExistingContactName string `json:"existing_contact_name"`
}

// DuplicateReport classifies input phones against existing threads
type DuplicateReport struct {
	TotalChecked    int              `json:"total_checked"`
	DuplicatesFound int              `json:"duplicates_found"`
	Duplicates      []DuplicateMatch `json:"duplicates"`
	UniqueCount     int              `json:"unique_count"`
}

// IsDuplicate reports whether the normalized phone matched an existing thread
func (r *DuplicateReport) IsDuplicate(normalizedPhone string) bool {
	for _, d := range r.Duplicates {
		if d.PhoneNumber == normalizedPhone {
			return true
		}
	}
	return false
}

// LeadService parses lead uploads and flags phones that already have threads
type LeadService struct {
	threadRepo repository.ThreadRepository
}

// NewLeadService creates a new lead service
func NewLeadService(threadRepo repository.ThreadRepository) *LeadService {
	return &LeadService{threadRepo: threadRepo}
}

// ParseCSV parses an upload whose first row is the header. The first header
// mapping to a canonical field wins; every other column becomes a custom field
// keyed by its original header text. Rows without a phone number are dropped.
func (s *LeadService) ParseCSV(raw string) (*ParseResult, error) {
	raw = strings.TrimPrefix(raw, "\ufeff")

	reader := csv.NewReader(strings.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ValidationError{Message: "csv is empty"}
	}
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid csv header: %v", err)}
	}

	result := &ParseResult{
		Leads:         []LeadInput{},
		HeaderMapping: map[string]string{},
		CustomFields:  []string{},
	}

	columns := make([]string, len(headers))
	taken := map[string]bool{}
	for i, header := range headers {
		header = strings.TrimSpace(header)
		headers[i] = header
		if field := canonicalField(header); field != "" && !taken[field] {
			taken[field] = true
			columns[i] = field
			result.HeaderMapping[header] = field
			continue
		}
		if header != "" {
			result.CustomFields = append(result.CustomFields, header)
		}
	}
	if !taken[FieldPhone] {
		return nil, &ValidationError{Message: "csv has no phone number column"}
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("invalid csv row: %v", err)}
		}
		result.TotalRows++

		lead := LeadInput{}
		for i, value := range record {
			if i >= len(headers) {
				break
			}
			value = strings.TrimSpace(value)
			if columns[i] != "" {
				lead.set(columns[i], value)
				continue
			}
			if headers[i] == "" {
				continue
			}
			if lead.CustomFields == nil {
				lead.CustomFields = map[string]string{}
			}
			lead.CustomFields[headers[i]] = value
		}

		lead.PhoneNumber = phone.Normalize(lead.PhoneNumber)
		if lead.PhoneNumber == "" {
			result.DroppedRows++
			continue
		}
		result.Leads = append(result.Leads, lead)
	}

	return result, nil
}

// CheckDuplicates classifies every input phone against existing threads system-wide.
// It never filters; callers decide whether to exclude duplicates.
func (s *LeadService) CheckDuplicates(ctx context.Context, phones []string) (*DuplicateReport, error) {
	normalized := make([]string, 0, len(phones))
	query := make([]string, 0, len(phones))
	seen := map[string]bool{}
	for _, p := range phones {
		n := phone.Normalize(p)
		normalized = append(normalized, n)
		if n != "" && !seen[n] {
			seen[n] = true
			query = append(query, n)
		}
	}

	threads, err := s.threadRepo.FindByPhones(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicates: %w", err)
	}

	existing := make(map[string]*models.Thread, len(threads))
	for _, t := range threads {
		for _, key := range []string{phone.Normalize(t.ID), phone.Normalize(t.ContactPhone)} {
			if _, ok := existing[key]; key != "" && !ok {
				existing[key] = t
			}
		}
	}

	report := &DuplicateReport{
		TotalChecked: len(phones),
		Duplicates:   []DuplicateMatch{},
	}
	for _, n := range normalized {
		t, ok := existing[n]
		if n == "" || !ok {
			continue
		}
		report.Duplicates = append(report.Duplicates, DuplicateMatch{
			PhoneNumber:         n,
			ExistingThreadID:    t.ID,
			ExistingContactName: t.ContactName,
		})
	}
	report.DuplicatesFound = len(report.Duplicates)
	report.UniqueCount = report.TotalChecked - report.DuplicatesFound

	return report, nil
}
