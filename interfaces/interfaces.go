// Package interfaces defines core abstractions for the highlights API
// to improve testability, maintainability, and separation of concerns.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/pharmaboard/highlights-api/highlights"
)

// RawDay is one stored day record exactly as it came out of the document
// store, before normalization. Date is the storage key, which is always
// authoritative over any date carried inside the item.
type RawDay struct {
	Date string
	Item any
}

// DrugEntry pairs a drug with the date it is stored under. Returned by
// duplicate probes and name searches.
type DrugEntry struct {
	Date string                   `json:"date"`
	Drug highlights.DrugHighlight `json:"drug"`
}

// HighlightStore defines the contract for the keyed document store.
// Days are addressed by their zero-padded YYYY-MM-DD date string; range
// queries rely on lexicographic key comparison, which is only correct
// because the key format is validated at this boundary.
type HighlightStore interface {
	// Get returns the raw stored item for one date
	Get(ctx context.Context, date string) (any, bool, error)

	// Put merges a canonical day record into the store, last write wins
	Put(ctx context.Context, day highlights.DailyHighlight, updatedBy string) error

	// Delete removes the entire day record
	Delete(ctx context.Context, date string) error

	// Range returns raw day records with start <= date <= end, ascending
	Range(ctx context.Context, start, end string) ([]RawDay, error)

	// LoadAll returns every stored day record keyed by date
	LoadAll(ctx context.Context) (map[string]any, error)

	// Ping verifies the store is reachable
	Ping(ctx context.Context) error
}

// HighlightIndex defines the contract for the in-memory all-records index.
// It provides thread-safe access to the canonical day records with atomic
// snapshot swaps for zero-downtime refreshes, plus the duplicate-name scan
// the edit flow depends on.
type HighlightIndex interface {
	// Snapshot access
	All() map[string]highlights.DailyHighlight
	Get(date string) (highlights.DailyHighlight, bool)
	Dates() []string
	DayCount() int
	DrugCount() int

	// FindDuplicate returns the first drug whose name matches
	// case-insensitively, scanning dates in ascending order and skipping
	// the (excludeDate, excludeID) pair
	FindDuplicate(name, excludeDate, excludeID string) (DrugEntry, bool)

	// SearchByName returns every drug whose name contains the term,
	// ignoring case and diacritics, in ascending date order
	SearchByName(term string) []DrugEntry

	// Snapshot update methods
	ReplaceAll(days map[string]highlights.DailyHighlight)
	SetDay(day highlights.DailyHighlight)
	RemoveDay(date string)

	// Refresh bookkeeping
	GetLastRefreshed() time.Time
	IsRefreshing() bool
	BeginRefresh() bool
	EndRefresh()
	GetServerStartTime() time.Time
	SetServerStartTime(startTime time.Time)
}

// Completer defines the contract for the AI text-completion collaborator.
// Both calls are single-attempt: failures surface directly to the caller,
// retries are user-initiated.
type Completer interface {
	// CompleteDrugProfile returns a populated record for the named drug
	CompleteDrugProfile(ctx context.Context, drugName string) (highlights.DrugHighlight, error)

	// GenerateQuiz derives multiple-choice questions from stored records
	GenerateQuiz(ctx context.Context, days []highlights.DailyHighlight, count int) ([]highlights.QuizQuestion, error)
}

// ReportRenderer defines the contract for the PDF report generator.
type ReportRenderer interface {
	// Render lays out the given days into a document and returns the
	// bytes and the physical page count
	Render(days []highlights.DailyHighlight, start, end string) ([]byte, int, error)
}

// SessionService defines the contract for the PIN gate that guards write
// access. A correct PIN yields a signed session token carrying an anonymous
// editor identity.
type SessionService interface {
	// VerifyPIN checks the submitted PIN in constant time
	VerifyPIN(pin string) error

	// IssueToken mints a session token for an anonymous editor
	IssueToken() (token string, expiresAt time.Time, err error)

	// ValidateToken returns the editor identity carried by the token
	ValidateToken(token string) (editorID string, err error)

	// RequireEditor wraps a handler so only valid sessions reach it
	RequireEditor(next http.Handler) http.Handler
}

// Scheduler defines the contract for the periodic index refresh and
// staleness monitoring.
type Scheduler interface {
	// Lifecycle management
	Start() error
	Stop()
}

// HealthChecker defines the contract for health check functionality.
type HealthChecker interface {
	// HealthCheck returns current system health status
	HealthCheck(ctx context.Context) (status string, data map[string]any, httpStatus int)

	// NextRefresh returns the next scheduled index refresh time
	NextRefresh() time.Time
}

// RequestValidator defines the contract for request validation operations.
// All checks run before any storage call so invalid input never reaches
// the store.
type RequestValidator interface {
	// ValidateDate checks for strict zero-padded YYYY-MM-DD calendar dates
	ValidateDate(input string) error

	// ValidateRange checks date order and range width
	ValidateRange(start, end string, maxDays int) error

	// ValidateSearchTerm validates user search input
	ValidateSearchTerm(input string) error

	// ValidatePIN checks the PIN shape before comparison
	ValidatePIN(input string) error

	// ValidateDailyHighlight checks a day record before persistence
	ValidateDailyHighlight(day *highlights.DailyHighlight) error

	// ValidateQuizCount bounds the number of generated questions
	ValidateQuizCount(count int) error
}

// HTTPHandler defines the contract for HTTP request handlers.
// It provides a consistent interface for all API endpoints.
type HTTPHandler interface {
	// ServeHTTP implements the http.Handler interface
	ServeHTTP(w http.ResponseWriter, r *http.Request)

	// Record endpoints
	GetDay(w http.ResponseWriter, r *http.Request)
	SaveDay(w http.ResponseWriter, r *http.Request)
	DeleteDay(w http.ResponseWriter, r *http.Request)
	GetRange(w http.ResponseWriter, r *http.Request)
	SearchDrugs(w http.ResponseWriter, r *http.Request)
	CheckDuplicate(w http.ResponseWriter, r *http.Request)

	// Report and AI endpoints
	DownloadReport(w http.ResponseWriter, r *http.Request)
	CompleteDrug(w http.ResponseWriter, r *http.Request)
	GenerateQuiz(w http.ResponseWriter, r *http.Request)

	// Session endpoint
	IssueSession(w http.ResponseWriter, r *http.Request)

	// This will stay in all versions
	HealthCheck(w http.ResponseWriter, r *http.Request)
	ServiceIndex(w http.ResponseWriter, r *http.Request)
}
