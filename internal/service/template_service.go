package service

import (
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"autoleads/internal/models"
)

// DefaultCustomerName replaces [Customer Name] when the lead has no usable name or personalization is off
const DefaultCustomerName = "there"

var (
	spintaxGroup     = regexp.MustCompile(`\{([^{}]*)\}`)
	placeholderToken = regexp.MustCompile(`\[([^\[\]]+)\]`)
	nestedSpintax    = regexp.MustCompile(`\{[^{}]*\{[^{}]*\}[^{}]*\}`)
)

// TemplateService renders campaign messages: spintax expansion followed by placeholder substitution
type TemplateService struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewTemplateService creates a new template service
func NewTemplateService() *TemplateService {
	return NewTemplateServiceWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewTemplateServiceWithSource creates a template service drawing spintax choices from src
func NewTemplateServiceWithSource(src rand.Source) *TemplateService {
	return &TemplateService{rand: rand.New(src)}
}

// ExpandSpintax resolves every {a|b|c} group to one uniformly chosen option.
// Groups without a pipe are not spintax and are emitted unchanged. Groups do not nest.
func (s *TemplateService) ExpandSpintax(template string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return spintaxGroup.ReplaceAllStringFunc(template, func(group string) string {
		options := strings.Split(group[1:len(group)-1], "|")
		if len(options) < 2 {
			return group
		}
		return options[s.rand.Intn(len(options))]
	})
}

// Substitute replaces bracket tokens with lead values. Matching is case-insensitive and
// ignores surrounding whitespace. Unknown tokens are left in place.
func (s *TemplateService) Substitute(message string, lead models.LeadFields, usePersonalization bool) string {
	return placeholderToken.ReplaceAllStringFunc(message, func(token string) string {
		value, ok := lookupPlaceholder(token[1:len(token)-1], lead, usePersonalization)
		if !ok {
			return token
		}
		return value
	})
}

// Render expands spintax and then substitutes placeholders so randomized phrasing can surround a token
func (s *TemplateService) Render(template string, lead models.LeadFields, usePersonalization bool) string {
	return s.Substitute(s.ExpandSpintax(template), lead, usePersonalization)
}

func lookupPlaceholder(name string, lead models.LeadFields, usePersonalization bool) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "customer name":
		if usePersonalization && lead.HasName() {
			return strings.TrimSpace(lead.Name), true
		}
		return DefaultCustomerName, true
	case "make":
		return lead.Make, true
	case "model":
		return lead.Model, true
	case "salesperson":
		return lead.Salesperson, true
	case "month":
		return lead.Month, true
	}

	for field, value := range lead.Custom {
		if strings.EqualFold(strings.TrimSpace(field), key) {
			return value, true
		}
	}
	return "", false
}

// Placeholders returns the distinct bracket tokens of a template in order of first use
func (s *TemplateService) Placeholders(template string) []string {
	seen := map[string]bool{}
	tokens := []string{}
	for _, match := range placeholderToken.FindAllString(template, -1) {
		if !seen[match] {
			seen[match] = true
			tokens = append(tokens, match)
		}
	}
	return tokens
}

// UnknownPlaceholders returns the tokens Substitute would leave untouched for this lead
func (s *TemplateService) UnknownPlaceholders(template string, lead models.LeadFields) []string {
	unknown := []string{}
	for _, token := range s.Placeholders(template) {
		if _, ok := lookupPlaceholder(token[1:len(token)-1], lead, true); !ok {
			unknown = append(unknown, token)
		}
	}
	return unknown
}

// ValidateTemplate rejects empty templates and nested spintax groups.
// Braces that do not form a group are literal text.
func (s *TemplateService) ValidateTemplate(template string) error {
	if strings.TrimSpace(template) == "" {
		return &ValidationError{Message: "message template cannot be empty"}
	}
	if nestedSpintax.MatchString(template) {
		return &ValidationError{Message: "message template has nested spintax groups"}
	}
	return nil
}
