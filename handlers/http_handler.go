// This file implements the HTTPHandler interface with dependency injection.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pharmaboard/highlights-api/ai"
	"github.com/pharmaboard/highlights-api/auth"
	"github.com/pharmaboard/highlights-api/highlights"
	"github.com/pharmaboard/highlights-api/interfaces"
	"github.com/pharmaboard/highlights-api/logging"
	"github.com/pharmaboard/highlights-api/metrics"
	"github.com/pharmaboard/highlights-api/report"
	"github.com/pharmaboard/highlights-api/storage"
)

const (
	serviceName    = "highlights-api"
	serviceVersion = "1.0"

	// defaultQuizCount is used when a quiz request omits the count
	defaultQuizCount = 5
)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	index        interfaces.HighlightIndex
	store        interfaces.HighlightStore
	completer    interfaces.Completer
	renderer     interfaces.ReportRenderer
	sessions     interfaces.SessionService
	validator    interfaces.RequestValidator
	health       interfaces.HealthChecker
	maxRangeDays int
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(
	index interfaces.HighlightIndex,
	store interfaces.HighlightStore,
	completer interfaces.Completer,
	renderer interfaces.ReportRenderer,
	sessions interfaces.SessionService,
	validator interfaces.RequestValidator,
	health interfaces.HealthChecker,
	maxRangeDays int,
) interfaces.HTTPHandler {
	return &HTTPHandlerImpl{
		index:        index,
		store:        store,
		completer:    completer,
		renderer:     renderer,
		sessions:     sessions,
		validator:    validator,
		health:       health,
		maxRangeDays: maxRangeDays,
	}
}

// ServeHTTP implements the http.Handler interface
func (h *HTTPHandlerImpl) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// This is a placeholder - the actual routing is handled by chi
	http.Error(w, "Not implemented", http.StatusNotImplemented)
}

// daysInRange returns the indexed days with start <= date <= end in ascending
// date order. Zero-padded dates compare correctly as strings.
func (h *HTTPHandlerImpl) daysInRange(start, end string) []highlights.DailyHighlight {
	all := h.index.All()

	dates := make([]string, 0, len(all))
	for date := range all {
		if date >= start && date <= end {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)

	days := make([]highlights.DailyHighlight, 0, len(dates))
	for _, date := range dates {
		days = append(days, all[date])
	}
	return days
}

// GetDay returns the day record stored under one date
func (h *HTTPHandlerImpl) GetDay(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if err := h.validator.ValidateDate(date); err != nil {
		logging.Warn("Unusual user input", "date", date)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	day, ok := h.index.Get(date)
	if !ok {
		// An absent day reads as a day with no drugs, not as an error
		day = highlights.DailyHighlight{Date: date, Drugs: []highlights.DrugHighlight{}}
	}

	RespondWithJSON(w, http.StatusOK, day)
}

// SaveDay normalizes and persists the submitted day record under the path
// date, then refreshes the in-memory index
func (h *HTTPHandlerImpl) SaveDay(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if err := h.validator.ValidateDate(date); err != nil {
		logging.Warn("Unusual user input", "date", date)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var raw any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	// The path date always wins over any date carried inside the body
	day := highlights.NormalizeDay(date, highlights.LiftLegacyDay(raw))
	if err := h.validator.ValidateDailyHighlight(&day); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Put(r.Context(), day, auth.EditorID(r.Context())); err != nil {
		metrics.HighlightSavesTotal.WithLabelValues("error").Inc()
		logging.Error("Failed to save day record", "date", date, "error", err)
		RespondWithError(w, http.StatusBadGateway, "Failed to save the day record")
		return
	}

	h.index.SetDay(day)
	metrics.HighlightSavesTotal.WithLabelValues("ok").Inc()
	logging.Info("Day record saved", "date", date, "drugs", len(day.Drugs))

	RespondWithJSON(w, http.StatusOK, day)
}

// DeleteDay removes the entire day record stored under one date
func (h *HTTPHandlerImpl) DeleteDay(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if err := h.validator.ValidateDate(date); err != nil {
		logging.Warn("Unusual user input", "date", date)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Delete(r.Context(), date); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			RespondWithError(w, http.StatusNotFound, "No record stored for "+date)
			return
		}
		metrics.HighlightDeletesTotal.WithLabelValues("error").Inc()
		logging.Error("Failed to delete day record", "date", date, "error", err)
		RespondWithError(w, http.StatusBadGateway, "Failed to delete the day record")
		return
	}

	h.index.RemoveDay(date)
	metrics.HighlightDeletesTotal.WithLabelValues("ok").Inc()
	logging.Info("Day record deleted", "date", date, "deleted_by", auth.EditorID(r.Context()))

	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"date":    date,
		"deleted": true,
	})
}

// GetRange returns the day records between the start and end query dates
func (h *HTTPHandlerImpl) GetRange(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" || end == "" {
		RespondWithError(w, http.StatusBadRequest, "Both start and end query parameters are required")
		return
	}

	if err := h.validator.ValidateRange(start, end, h.maxRangeDays); err != nil {
		logging.Warn("Unusual user input", "start", start, "end", end)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	days := h.daysInRange(start, end)

	response := map[string]interface{}{
		"start": start,
		"end":   end,
		"count": len(days),
		"days":  days,
	}

	RespondWithJSON(w, http.StatusOK, response)
}

// SearchDrugs searches stored drugs by name, ignoring case and diacritics
func (h *HTTPHandlerImpl) SearchDrugs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.validator.ValidateSearchTerm(name); err != nil {
		logging.Warn("Unusual user input", "name", name)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	results := h.index.SearchByName(name)
	if results == nil {
		results = []interfaces.DrugEntry{}
	}

	// Always return 200 with results array (empty if no matches)
	RespondWithJSON(w, http.StatusOK, results)
}

// CheckDuplicate probes the index for a drug already stored under the same
// name, skipping the entry the editor is currently working on
func (h *HTTPHandlerImpl) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.validator.ValidateSearchTerm(name); err != nil {
		logging.Warn("Unusual user input", "name", name)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	excludeDate := r.URL.Query().Get("excludeDate")
	if excludeDate != "" {
		if err := h.validator.ValidateDate(excludeDate); err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	excludeID := r.URL.Query().Get("excludeId")

	metrics.DuplicateProbesTotal.Inc()

	entry, found := h.index.FindDuplicate(name, excludeDate, excludeID)
	if !found {
		RespondWithJSON(w, http.StatusOK, map[string]interface{}{"found": false})
		return
	}

	metrics.DuplicateHitsTotal.Inc()
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"found": true,
		"date":  entry.Date,
		"drug":  entry.Drug,
	})
}

// DownloadReport renders the day records in the requested range into a PDF
// and serves it as a file download
func (h *HTTPHandlerImpl) DownloadReport(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" || end == "" {
		RespondWithError(w, http.StatusBadRequest, "Both start and end query parameters are required")
		return
	}

	if err := h.validator.ValidateRange(start, end, h.maxRangeDays); err != nil {
		logging.Warn("Unusual user input", "start", start, "end", end)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	days := h.daysInRange(start, end)

	pdf, pages, err := h.renderer.Render(days, start, end)
	if err != nil {
		if errors.Is(err, report.ErrNoData) {
			metrics.ReportsGeneratedTotal.WithLabelValues("empty").Inc()
			logging.Info("Report requested for an empty range", "start", start, "end", end)
			RespondWithError(w, http.StatusNotFound, "No records in the requested range")
			return
		}
		metrics.ReportsGeneratedTotal.WithLabelValues("error").Inc()
		logging.Error("Failed to generate report", "start", start, "end", end, "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to generate the report")
		return
	}

	metrics.ReportsGeneratedTotal.WithLabelValues("ok").Inc()
	metrics.ReportPages.Observe(float64(pages))
	logging.Info("Report generated", "start", start, "end", end, "pages", pages, "bytes", len(pdf))

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(start, end)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

type completeRequest struct {
	DrugName string `json:"drugName"`
}

// CompleteDrug fills a drug record from its name using the text completion
// service
func (h *HTTPHandlerImpl) CompleteDrug(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := h.validator.ValidateSearchTerm(req.DrugName); err != nil {
		logging.Warn("Unusual user input", "drugName", req.DrugName)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	drug, err := h.completer.CompleteDrugProfile(r.Context(), req.DrugName)
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			metrics.AIRequestsTotal.WithLabelValues("complete", "unavailable").Inc()
			RespondWithError(w, http.StatusServiceUnavailable, "Text completion is not configured")
			return
		}
		metrics.AIRequestsTotal.WithLabelValues("complete", "error").Inc()
		logging.Error("Drug profile completion failed", "drugName", req.DrugName, "error", err)
		RespondWithError(w, http.StatusBadGateway, "Text completion failed")
		return
	}

	metrics.AIRequestsTotal.WithLabelValues("complete", "ok").Inc()
	RespondWithJSON(w, http.StatusOK, drug)
}

type quizRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Count int    `json:"count"`
}

// GenerateQuiz builds multiple-choice questions from the day records in the
// requested range
func (h *HTTPHandlerImpl) GenerateQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Count == 0 {
		req.Count = defaultQuizCount
	}

	if err := h.validator.ValidateRange(req.Start, req.End, h.maxRangeDays); err != nil {
		logging.Warn("Unusual user input", "start", req.Start, "end", req.End)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validator.ValidateQuizCount(req.Count); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	days := h.daysInRange(req.Start, req.End)
	total := 0
	for _, day := range days {
		total += len(day.Drugs)
	}
	if total == 0 {
		metrics.AIRequestsTotal.WithLabelValues("quiz", "empty").Inc()
		logging.Info("Quiz requested for an empty range", "start", req.Start, "end", req.End)
		RespondWithError(w, http.StatusNotFound, "No records in the requested range")
		return
	}

	questions, err := h.completer.GenerateQuiz(r.Context(), days, req.Count)
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			metrics.AIRequestsTotal.WithLabelValues("quiz", "unavailable").Inc()
			RespondWithError(w, http.StatusServiceUnavailable, "Quiz generation is not configured")
			return
		}
		metrics.AIRequestsTotal.WithLabelValues("quiz", "error").Inc()
		logging.Error("Quiz generation failed", "start", req.Start, "end", req.End, "error", err)
		RespondWithError(w, http.StatusBadGateway, "Quiz generation failed")
		return
	}

	metrics.AIRequestsTotal.WithLabelValues("quiz", "ok").Inc()
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(questions),
		"questions": questions,
	})
}

type sessionRequest struct {
	PIN string `json:"pin"`
}

// IssueSession exchanges the department edit pin for a signed session token
func (h *HTTPHandlerImpl) IssueSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := h.validator.ValidatePIN(req.PIN); err != nil {
		logging.Warn("Unusual user input", "remote", r.RemoteAddr)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sessions.VerifyPIN(req.PIN); err != nil {
		logging.Warn("Rejected pin attempt", "remote", r.RemoteAddr)
		RespondWithError(w, http.StatusUnauthorized, "Incorrect pin")
		return
	}

	token, expiresAt, err := h.sessions.IssueToken()
	if err != nil {
		logging.Error("Failed to issue session token", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to issue a session token")
		return
	}

	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string                 `json:"status"`
	UptimeSeconds float64                `json:"uptime_seconds"`
	Uptime        string                 `json:"uptime"`
	Data          map[string]interface{} `json:"data"`
	System        map[string]interface{} `json:"system"`
}

// formatUptimeHuman formats duration into a human-readable string
func formatUptimeHuman(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string

	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}

// HealthCheck returns server health information
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, data, httpStatus := h.health.HealthCheck(r.Context())

	// Get memory statistics
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(h.index.GetServerStartTime())

	response := HealthResponse{
		Status:        status,
		UptimeSeconds: uptime.Seconds(),
		Uptime:        formatUptimeHuman(uptime),
		Data:          data,
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc_mb":       int(m.Alloc / 1024 / 1024),
				"total_alloc_mb": int(m.TotalAlloc / 1024 / 1024),
				"sys_mb":         int(m.Sys / 1024 / 1024),
				"num_gc":         m.NumGC,
			},
		},
	}

	RespondWithJSON(w, httpStatus, response)
}

// ServiceIndex describes the service and its endpoints
func (h *HTTPHandlerImpl) ServiceIndex(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"service": serviceName,
		"version": serviceVersion,
		"status":  "running",
		"endpoints": map[string]string{
			"GET /health":                         "service health",
			"GET /highlights?start=&end=":         "day records in a date range",
			"GET /highlights/{date}":              "one day record",
			"PUT /highlights/{date}":              "save a day record (session)",
			"DELETE /highlights/{date}":           "delete a day record (session)",
			"GET /highlights/search/{name}":       "search stored drugs by name",
			"GET /duplicates/{name}":              "probe for an already stored drug",
			"GET /reports/highlights?start=&end=": "PDF report for a date range",
			"POST /auth/pin":                      "exchange the edit pin for a session token",
			"POST /ai/complete":                   "AI drug profile completion (session)",
			"POST /ai/quiz":                       "AI quiz generation (session)",
		},
	})
}
