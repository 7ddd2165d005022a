package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pharmaboard/highlights-api/ai"
	"github.com/pharmaboard/highlights-api/auth"
	"github.com/pharmaboard/highlights-api/data"
	"github.com/pharmaboard/highlights-api/handlers"
	"github.com/pharmaboard/highlights-api/health"
	"github.com/pharmaboard/highlights-api/highlights"
	"github.com/pharmaboard/highlights-api/interfaces"
	"github.com/pharmaboard/highlights-api/logging"
	"github.com/pharmaboard/highlights-api/report"
	"github.com/pharmaboard/highlights-api/storage"
	"github.com/pharmaboard/highlights-api/validation"
)

// memoryStore keeps day records in a map so the full edit flow can run
// against real handlers without a real table.
type memoryStore struct {
	mu            sync.RWMutex
	items         map[string]highlights.DailyHighlight
	lastUpdatedBy string
}

var _ interfaces.HighlightStore = (*memoryStore)(nil)

func newMemoryStore() *memoryStore {
	return &memoryStore{items: make(map[string]highlights.DailyHighlight)}
}

func (s *memoryStore) Get(ctx context.Context, date string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day, ok := s.items[date]
	if !ok {
		return nil, false, nil
	}
	return day, true, nil
}

func (s *memoryStore) Put(ctx context.Context, day highlights.DailyHighlight, updatedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[day.Date] = day
	s.lastUpdatedBy = updatedBy
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[date]; !ok {
		return storage.ErrNotFound
	}
	delete(s.items, date)
	return nil
}

func (s *memoryStore) Range(ctx context.Context, start, end string) ([]interfaces.RawDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []interfaces.RawDay
	for date, day := range s.items {
		if date >= start && date <= end {
			out = append(out, interfaces.RawDay{Date: date, Item: day})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *memoryStore) LoadAll(ctx context.Context) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.items))
	for date, day := range s.items {
		out[date] = day
	}
	return out, nil
}

func (s *memoryStore) Ping(ctx context.Context) error {
	return nil
}

const testEditPIN = "424242"

// Global test stack, assembled once in TestMain
var (
	testIndex    *data.Index
	testStore    *memoryStore
	testSessions *auth.SessionServiceImpl
	testHandler  interfaces.HTTPHandler
)

func testDrug(id, name, class string) highlights.DrugHighlight {
	return highlights.DrugHighlight{
		ID:        id,
		DrugName:  name,
		DrugClass: class,
		Mechanism: "Mechanism of " + name,
		Uses:      "Uses of " + name,
		OffLabelUse: highlights.InfoWithReference{
			Value:      "Off-label use of " + name,
			References: []string{"https://pubmed.example.org/" + id},
		},
	}
}

func seededDays() map[string]highlights.DailyHighlight {
	return map[string]highlights.DailyHighlight{
		"2025-03-10": {
			Date:  "2025-03-10",
			Drugs: []highlights.DrugHighlight{testDrug("drug-0001", "Metoprolol", "Beta blocker")},
		},
		"2025-03-11": {
			Date: "2025-03-11",
			Drugs: []highlights.DrugHighlight{
				testDrug("drug-0002", "Aspirin", "NSAID"),
				testDrug("drug-0003", "Lisinopril", "ACE inhibitor"),
			},
		},
		"2025-03-12": {
			Date:  "2025-03-12",
			Drugs: []highlights.DrugHighlight{testDrug("drug-0004", "Warfarin", "Anticoagulant")},
		},
	}
}

func TestMain(m *testing.M) {
	fmt.Println("Initializing test fixtures...")
	logging.InitLogger("")

	testIndex = data.NewIndex()
	testIndex.SetServerStartTime(time.Now())
	testStore = newMemoryStore()

	days := seededDays()
	for date, day := range days {
		testStore.items[date] = day
	}
	testIndex.ReplaceAll(days)

	// No API key, so the AI endpoints answer 503 instead of calling out
	completer, err := ai.NewCompleter(context.Background(), "", "")
	if err != nil {
		fmt.Println("Failed to build completer:", err)
		os.Exit(1)
	}

	testSessions = auth.NewSessionService(testEditPIN, "integration-test-secret-0123456789abcdef", time.Hour)

	testHandler = handlers.NewHTTPHandler(
		testIndex,
		testStore,
		completer,
		report.NewRenderer("Department of Pharmacology"),
		testSessions,
		validation.NewRequestValidator(),
		health.NewHealthChecker(testIndex, testStore, 15),
		366,
	)

	fmt.Printf("Fixtures ready: %d days, %d drugs\n", testIndex.DayCount(), testIndex.DrugCount())
	os.Exit(m.Run())
}

// newTestRouter wires the handler the way the server does, without the
// middleware chain, which has its own tests
func newTestRouter() chi.Router {
	router := chi.NewRouter()

	router.Get("/", testHandler.ServiceIndex)
	router.Get("/health", testHandler.HealthCheck)
	router.Post("/auth/pin", testHandler.IssueSession)

	router.Get("/highlights", testHandler.GetRange)
	router.Get("/highlights/search/{name}", testHandler.SearchDrugs)
	router.Get("/highlights/{date}", testHandler.GetDay)
	router.With(testSessions.RequireEditor).Put("/highlights/{date}", testHandler.SaveDay)
	router.With(testSessions.RequireEditor).Delete("/highlights/{date}", testHandler.DeleteDay)

	router.Get("/duplicates/{name}", testHandler.CheckDuplicate)
	router.Get("/reports/highlights", testHandler.DownloadReport)
	router.With(testSessions.RequireEditor).Post("/ai/complete", testHandler.CompleteDrug)
	router.With(testSessions.RequireEditor).Post("/ai/quiz", testHandler.GenerateQuiz)

	return router
}

func TestEndpoints(t *testing.T) {
	testCases := []struct {
		name     string
		method   string
		endpoint string
		expected int
	}{
		{"service index", "GET", "/", http.StatusOK},
		{"health", "GET", "/health", http.StatusOK},
		{"stored day", "GET", "/highlights/2025-03-10", http.StatusOK},
		{"stored day with trailing slash", "GET", "/highlights/2025-03-10/", http.StatusNotFound}, // Chi doesn't handle trailing slash
		{"absent day reads as empty", "GET", "/highlights/2099-01-01", http.StatusOK},
		{"malformed date", "GET", "/highlights/03-10-2025", http.StatusBadRequest},
		{"impossible calendar date", "GET", "/highlights/2025-02-30", http.StatusBadRequest},
		{"range", "GET", "/highlights?start=2025-03-10&end=2025-03-12", http.StatusOK},
		{"range missing params", "GET", "/highlights", http.StatusBadRequest},
		{"range inverted", "GET", "/highlights?start=2025-03-12&end=2025-03-10", http.StatusBadRequest},
		{"search", "GET", "/highlights/search/aspirin", http.StatusOK},
		{"search single character", "GET", "/highlights/search/a", http.StatusBadRequest},
		{"duplicate probe", "GET", "/duplicates/metoprolol", http.StatusOK},
		{"report", "GET", "/reports/highlights?start=2025-03-10&end=2025-03-12", http.StatusOK},
		{"report empty range", "GET", "/reports/highlights?start=2020-01-01&end=2020-01-05", http.StatusNotFound},
		{"unknown route", "GET", "/nothing", http.StatusNotFound},
	}

	router := newTestRouter()

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.endpoint, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tt.expected {
				t.Errorf("%s %s returned wrong status code: got %v want %v",
					tt.method, tt.endpoint, rr.Code, tt.expected)
			}
		})
	}
}

// issueSessionToken runs the pin exchange and returns the token
func issueSessionToken(t *testing.T, router chi.Router) string {
	t.Helper()

	body := bytes.NewBufferString(`{"pin": "` + testEditPIN + `"}`)
	req := httptest.NewRequest("POST", "/auth/pin", body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Pin exchange failed with status %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expiresAt"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal session response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("Pin exchange returned an empty token")
	}
	return resp.Token
}

func TestEditFlow(t *testing.T) {
	router := newTestRouter()

	t.Run("wrong pin is rejected", func(t *testing.T) {
		body := bytes.NewBufferString(`{"pin": "999999"}`)
		req := httptest.NewRequest("POST", "/auth/pin", body)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401 for a wrong pin, got %d", rr.Code)
		}
	})

	t.Run("write without a session is rejected", func(t *testing.T) {
		body := bytes.NewBufferString(`{"drugs": [{"drugName": "Amoxicillin"}]}`)
		req := httptest.NewRequest("PUT", "/highlights/2025-04-01", body)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401 without a session, got %d", rr.Code)
		}
	})

	token := issueSessionToken(t, router)

	t.Run("save, read back, delete", func(t *testing.T) {
		// The date inside the body must lose to the path date
		body := bytes.NewBufferString(`{"date": "1999-01-01", "drugs": [{"drugName": "Amoxicillin", "drugClass": "Penicillin antibiotic"}]}`)
		req := httptest.NewRequest("PUT", "/highlights/2025-04-01", body)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Save failed with status %d: %s", rr.Code, rr.Body.String())
		}

		var saved highlights.DailyHighlight
		if err := json.Unmarshal(rr.Body.Bytes(), &saved); err != nil {
			t.Fatalf("Failed to unmarshal saved day: %v", err)
		}
		if saved.Date != "2025-04-01" {
			t.Errorf("Expected the path date 2025-04-01, got %s", saved.Date)
		}
		if len(saved.Drugs) != 1 {
			t.Fatalf("Expected 1 drug, got %d", len(saved.Drugs))
		}
		if saved.Drugs[0].ID == "" {
			t.Error("Saved drug should have a generated id")
		}

		if !strings.HasPrefix(testStore.lastUpdatedBy, "editor-") {
			t.Errorf("Store should record the editor identity, got %q", testStore.lastUpdatedBy)
		}

		// Read back through the index
		req = httptest.NewRequest("GET", "/highlights/2025-04-01", nil)
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Read back failed with status %d", rr.Code)
		}
		var read highlights.DailyHighlight
		if err := json.Unmarshal(rr.Body.Bytes(), &read); err != nil {
			t.Fatalf("Failed to unmarshal read day: %v", err)
		}
		if read.Drugs[0].DrugName != "Amoxicillin" {
			t.Errorf("Expected Amoxicillin, got %s", read.Drugs[0].DrugName)
		}

		// Delete and verify it is gone
		req = httptest.NewRequest("DELETE", "/highlights/2025-04-01", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Delete failed with status %d: %s", rr.Code, rr.Body.String())
		}
		if _, ok := testIndex.Get("2025-04-01"); ok {
			t.Error("Deleted day should be gone from the index")
		}

		// A second delete finds nothing
		req = httptest.NewRequest("DELETE", "/highlights/2025-04-01", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected 404 for a second delete, got %d", rr.Code)
		}
	})

	t.Run("legacy single drug body is lifted", func(t *testing.T) {
		body := bytes.NewBufferString(`{"drugName": "Ibuprofen", "drugClass": "NSAID"}`)
		req := httptest.NewRequest("PUT", "/highlights/2025-04-02", body)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Save failed with status %d: %s", rr.Code, rr.Body.String())
		}

		var saved highlights.DailyHighlight
		if err := json.Unmarshal(rr.Body.Bytes(), &saved); err != nil {
			t.Fatalf("Failed to unmarshal saved day: %v", err)
		}
		if len(saved.Drugs) != 1 || saved.Drugs[0].DrugName != "Ibuprofen" {
			t.Errorf("Expected the bare drug to become a one-drug day, got %+v", saved.Drugs)
		}

		// Clean up so other tests see the seeded snapshot
		req = httptest.NewRequest("DELETE", "/highlights/2025-04-02", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("Cleanup delete failed with status %d", rr.Code)
		}
	})

	t.Run("day without drugs is rejected", func(t *testing.T) {
		body := bytes.NewBufferString(`{"drugs": []}`)
		req := httptest.NewRequest("PUT", "/highlights/2025-04-03", body)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for a day without drugs, got %d", rr.Code)
		}
	})
}

func TestDuplicateProbe(t *testing.T) {
	router := newTestRouter()

	t.Run("finds a stored drug by name", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/duplicates/aspirin", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Probe failed with status %d", rr.Code)
		}

		var resp map[string]interface{}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to unmarshal probe response: %v", err)
		}
		if resp["found"] != true {
			t.Errorf("Expected found true for aspirin, got %v", resp["found"])
		}
		if resp["date"] != "2025-03-11" {
			t.Errorf("Expected date 2025-03-11, got %v", resp["date"])
		}
	})

	t.Run("reports no duplicate for an unknown name", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/duplicates/propofol", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Probe failed with status %d", rr.Code)
		}

		var resp map[string]interface{}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to unmarshal probe response: %v", err)
		}
		if resp["found"] != false {
			t.Errorf("Expected found false for propofol, got %v", resp["found"])
		}
	})
}

func TestReportDownload(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/reports/highlights?start=2025-03-10&end=2025-03-12", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Report download failed with status %d: %s", rr.Code, rr.Body.String())
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Expected Content-Type application/pdf, got %s", ct)
	}

	disposition := rr.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "attachment") || !strings.Contains(disposition, ".pdf") {
		t.Errorf("Expected a pdf attachment disposition, got %s", disposition)
	}

	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF-")) {
		t.Error("Report body should start with the PDF magic bytes")
	}
}

func TestAIEndpointsWithoutKey(t *testing.T) {
	router := newTestRouter()
	token := issueSessionToken(t, router)

	t.Run("complete answers unavailable", func(t *testing.T) {
		body := bytes.NewBufferString(`{"drugName": "Metoprolol"}`)
		req := httptest.NewRequest("POST", "/ai/complete", body)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503 without an API key, got %d", rr.Code)
		}
	})

	t.Run("quiz answers unavailable", func(t *testing.T) {
		body := bytes.NewBufferString(`{"start": "2025-03-10", "end": "2025-03-12"}`)
		req := httptest.NewRequest("POST", "/ai/quiz", body)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503 without an API key, got %d", rr.Code)
		}
	})
}

func TestHealthPayload(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Health endpoint returned status %d", rr.Code)
	}

	var healthResponse map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &healthResponse); err != nil {
		t.Fatalf("Failed to unmarshal health response: %v", err)
	}

	topLevelFields := []string{"status", "uptime_seconds", "uptime", "data", "system"}
	for _, field := range topLevelFields {
		if _, exists := healthResponse[field]; !exists {
			t.Errorf("Health response missing %s field", field)
		}
	}

	if healthResponse["status"] != "healthy" {
		t.Errorf("Expected status healthy, got %v", healthResponse["status"])
	}

	if dataSection, ok := healthResponse["data"].(map[string]interface{}); ok {
		dataFields := []string{"last_refresh", "next_refresh", "days", "drugs", "is_refreshing", "store_reachable"}
		for _, field := range dataFields {
			if _, exists := dataSection[field]; !exists {
				t.Errorf("Health response data section missing %s field", field)
			}
		}
	} else {
		t.Error("Health response data section is not a map")
	}

	if systemSection, ok := healthResponse["system"].(map[string]interface{}); ok {
		systemFields := []string{"goroutines", "memory"}
		for _, field := range systemFields {
			if _, exists := systemSection[field]; !exists {
				t.Errorf("Health response system section missing %s field", field)
			}
		}
	} else {
		t.Error("Health response system section is not a map")
	}
}
