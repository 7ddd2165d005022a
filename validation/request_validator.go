// Package validation provides request validation functionality for the highlights API.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pharmaboard/highlights-api/highlights"
	"github.com/pharmaboard/highlights-api/interfaces"
)

// Pre-compiled regex patterns for performance optimization
// Compiled once at package initialization and reused for all validations
var (
	// Strict zero-padded date keys. Range queries compare keys
	// lexicographically, so any other format breaks their ordering.
	dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	// PIN shape: 4 to 12 digits
	pinRegex = regexp.MustCompile(`^[0-9]{4,12}$`)

	// Search input: alphanumeric + accents + safe punctuation
	searchRegex = regexp.MustCompile(`^[a-zA-Z0-9\s\-\.\+'àâäéèêëïîôöùûüÿç]+$`)

	// Dangerous patterns as strings (faster than regex for simple substring matching)
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"onclick=", "onmouseover=", "onfocus=", "onblur=", "onchange=", "onsubmit=",
		"eval(", "expression(", "url(", "import ", "@import", "binding(", "behavior(",
		// SQL injection patterns
		"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
		"update set", "--", "/*", "*/", "xp_", "sp_", "exec(", "execute(",
		// Command injection patterns
		"; ", "| ", "& ", "`", "$(", "${",
		// Path traversal patterns
		"../", "..\\", "%2e%2e", "file://",
		// NoSQL injection patterns
		"{$ne:", "{$gt:", "{$where:", "{$or:", "{$regex:", "{$expr:",
	}
)

// Maximum lengths for stored record fields
const (
	maxDrugNameLength = 200
	maxFieldLength    = 5000
	maxDrugsPerDay    = 20
	maxReferences     = 20
	maxQuizQuestions  = 20
)

// RequestValidatorImpl implements the interfaces.RequestValidator interface
type RequestValidatorImpl struct{}

// Compile-time check to ensure RequestValidatorImpl implements RequestValidator
var _ interfaces.RequestValidator = (*RequestValidatorImpl)(nil)

// NewRequestValidator creates a new request validator
func NewRequestValidator() interfaces.RequestValidator {
	return &RequestValidatorImpl{}
}

// ValidateDate checks that input is a strict zero-padded YYYY-MM-DD calendar date
func (v *RequestValidatorImpl) ValidateDate(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("date cannot be empty")
	}

	if !dateRegex.MatchString(input) {
		return fmt.Errorf("date must be in zero-padded YYYY-MM-DD format, got: %s", input)
	}

	// The regex accepts 2025-13-45; the calendar parse does not
	if _, err := time.Parse("2006-01-02", input); err != nil {
		return fmt.Errorf("date is not a valid calendar date: %s", input)
	}

	return nil
}

// ValidateRange checks that start and end form a valid inclusive date range
// no wider than maxDays (maxDays <= 0 means unbounded)
func (v *RequestValidatorImpl) ValidateRange(start, end string, maxDays int) error {
	if err := v.ValidateDate(start); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}

	if err := v.ValidateDate(end); err != nil {
		return fmt.Errorf("invalid end date: %w", err)
	}

	startTime, _ := time.Parse("2006-01-02", start)
	endTime, _ := time.Parse("2006-01-02", end)

	if endTime.Before(startTime) {
		return fmt.Errorf("end date %s is before start date %s", end, start)
	}

	if maxDays > 0 {
		span := int(endTime.Sub(startTime).Hours()/24) + 1
		if span > maxDays {
			return fmt.Errorf("date range spans %d days, maximum is %d", span, maxDays)
		}
	}

	return nil
}

// ValidateSearchTerm validates user search input with enhanced security
func (v *RequestValidatorImpl) ValidateSearchTerm(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("search term cannot be empty")
	}

	if len(input) < 2 {
		return fmt.Errorf("search term too short: minimum 2 characters")
	}

	if len(input) > 50 {
		return fmt.Errorf("search term too long: maximum 50 characters")
	}

	// Word count validation to prevent DoS attacks with many short words
	words := strings.Fields(input)
	if len(words) > 6 {
		return fmt.Errorf("search term too complex: maximum 6 words allowed")
	}

	// Check for potentially dangerous patterns using string matching (5-10x faster than regex)
	lowerInput := strings.ToLower(input)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowerInput, pattern) {
			return fmt.Errorf("search term contains potentially dangerous content")
		}
	}

	if !searchRegex.MatchString(input) {
		return fmt.Errorf("search term contains invalid characters. Only letters, numbers, spaces, hyphens, apostrophes, periods, plus sign, and common accented characters are allowed")
	}

	// Additional checks for repeated characters (potential DoS)
	if hasExcessiveRepetition(input) {
		return fmt.Errorf("search term contains excessive character repetition")
	}

	return nil
}

// ValidatePIN checks the PIN shape before any comparison happens
func (v *RequestValidatorImpl) ValidatePIN(input string) error {
	if input == "" {
		return fmt.Errorf("pin cannot be empty")
	}

	if !pinRegex.MatchString(input) {
		return fmt.Errorf("pin must be 4 to 12 digits")
	}

	return nil
}

// ValidateDailyHighlight checks a day record before persistence. Field-level
// problems are reported with the field name so the form can surface them inline.
func (v *RequestValidatorImpl) ValidateDailyHighlight(day *highlights.DailyHighlight) error {
	if day == nil {
		return fmt.Errorf("day record is nil")
	}

	if err := v.ValidateDate(day.Date); err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}

	if len(day.Drugs) == 0 {
		return fmt.Errorf("day record must contain at least one drug")
	}

	if len(day.Drugs) > maxDrugsPerDay {
		return fmt.Errorf("day record holds %d drugs, maximum is %d", len(day.Drugs), maxDrugsPerDay)
	}

	for i := range day.Drugs {
		if err := v.validateDrug(&day.Drugs[i]); err != nil {
			return fmt.Errorf("drug %d: %w", i+1, err)
		}
	}

	return nil
}

// validateDrug checks one drug record's required fields, lengths and references
func (v *RequestValidatorImpl) validateDrug(d *highlights.DrugHighlight) error {
	if strings.TrimSpace(d.DrugName) == "" {
		return fmt.Errorf("drugName is required")
	}

	if len(d.DrugName) > maxDrugNameLength {
		return fmt.Errorf("drugName too long: %d characters, maximum is %d", len(d.DrugName), maxDrugNameLength)
	}

	fields := []struct {
		name  string
		value string
	}{
		{"drugClass", d.DrugClass},
		{"mechanism", d.Mechanism},
		{"uses", d.Uses},
		{"sideEffects", d.SideEffects},
		{"routeOfAdministration", d.RouteOfAdministration},
		{"dose", d.Dose},
		{"dosageForm", d.DosageForm},
		{"halfLife", d.HalfLife},
		{"clinicalUses", d.ClinicalUses},
		{"contraindication", d.Contraindication},
		{"offLabelUse", d.OffLabelUse.Value},
		{"funFact", d.FunFact},
	}

	for _, f := range fields {
		if len(f.value) > maxFieldLength {
			return fmt.Errorf("%s too long: %d characters, maximum is %d", f.name, len(f.value), maxFieldLength)
		}
	}

	if len(d.OffLabelUse.References) > maxReferences {
		return fmt.Errorf("offLabelUse carries %d references, maximum is %d", len(d.OffLabelUse.References), maxReferences)
	}

	for _, ref := range d.OffLabelUse.References {
		if err := validateReference(ref); err != nil {
			return fmt.Errorf("offLabelUse reference %q: %w", ref, err)
		}
	}

	return nil
}

// ValidateQuizCount bounds the number of generated questions
func (v *RequestValidatorImpl) ValidateQuizCount(count int) error {
	if count < 1 {
		return fmt.Errorf("question count must be at least 1")
	}

	if count > maxQuizQuestions {
		return fmt.Errorf("question count too large: maximum is %d", maxQuizQuestions)
	}

	return nil
}

// validateReference checks that a reference is an absolute http(s) URL
func validateReference(ref string) error {
	u, err := url.Parse(ref)
	if err != nil {
		return fmt.Errorf("not a valid URL")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https")
	}

	if u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}

	return nil
}

// hasExcessiveRepetition checks for potential DoS patterns with excessive character repetition
func hasExcessiveRepetition(input string) bool {
	// Check for the same character repeated more than 10 times consecutively
	for i := 0; i < len(input)-10; i++ {
		allSame := true
		for j := 1; j <= 10; j++ {
			if input[i] != input[i+j] {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}
	return false
}
