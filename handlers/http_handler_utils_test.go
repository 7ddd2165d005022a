package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pharmaboard/highlights-api/auth"
	"github.com/pharmaboard/highlights-api/data"
	"github.com/pharmaboard/highlights-api/highlights"
	"github.com/pharmaboard/highlights-api/interfaces"
	"github.com/pharmaboard/highlights-api/validation"
)

const (
	testPIN    = "123456"
	testSecret = "test-session-secret-0123456789abcdef"
)

// ============================================================================
// TEST DATA FACTORY
// ============================================================================

// TestDataFactory creates consistent test data across all tests
type TestDataFactory struct{}

func NewTestDataFactory() *TestDataFactory {
	return &TestDataFactory{}
}

// CreateDrug creates a single fully populated drug record
func (f *TestDataFactory) CreateDrug(id int, name string) highlights.DrugHighlight {
	return highlights.DrugHighlight{
		ID:                    fmt.Sprintf("drug-%04d", id),
		DrugName:              name,
		DrugClass:             "Beta blocker",
		Mechanism:             "Competitive antagonist at beta-1 adrenergic receptors",
		Uses:                  "Hypertension, angina pectoris",
		SideEffects:           "Bradycardia, fatigue",
		RouteOfAdministration: "Oral",
		Dose:                  "50 mg once daily",
		DosageForm:            "Film-coated tablet",
		HalfLife:              "6 hours",
		ClinicalUses:          "Rate control in atrial fibrillation",
		Contraindication:      "Severe bradycardia, cardiogenic shock",
		OffLabelUse: highlights.InfoWithReference{
			Value:      "Migraine prophylaxis",
			References: []string{"https://pubmed.example.org/12345"},
		},
		FunFact: "Among the most prescribed cardiovascular drugs worldwide",
	}
}

// CreateDay creates a day record holding one drug per given name
func (f *TestDataFactory) CreateDay(date string, names ...string) highlights.DailyHighlight {
	drugs := make([]highlights.DrugHighlight, 0, len(names))
	for i, name := range names {
		drugs = append(drugs, f.CreateDrug(i+1, name))
	}
	return highlights.DailyHighlight{Date: date, Drugs: drugs}
}

// ============================================================================
// FAKE COLLABORATORS
// ============================================================================

// fakeStore implements interfaces.HighlightStore and records mutations
type fakeStore struct {
	puts      []highlights.DailyHighlight
	updatedBy []string
	deleted   []string
	putErr    error
	deleteErr error
}

var _ interfaces.HighlightStore = (*fakeStore)(nil)

func (s *fakeStore) Get(ctx context.Context, date string) (any, bool, error) {
	return nil, false, nil
}

func (s *fakeStore) Put(ctx context.Context, day highlights.DailyHighlight, updatedBy string) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.puts = append(s.puts, day)
	s.updatedBy = append(s.updatedBy, updatedBy)
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, date string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, date)
	return nil
}

func (s *fakeStore) Range(ctx context.Context, start, end string) ([]interfaces.RawDay, error) {
	return nil, nil
}

func (s *fakeStore) LoadAll(ctx context.Context) (map[string]any, error) {
	return map[string]any{}, nil
}

func (s *fakeStore) Ping(ctx context.Context) error {
	return nil
}

// fakeCompleter implements interfaces.Completer with canned responses
type fakeCompleter struct {
	drug      highlights.DrugHighlight
	questions []highlights.QuizQuestion
	err       error

	lastDrugName string
	lastCount    int
	gotDays      []highlights.DailyHighlight
}

var _ interfaces.Completer = (*fakeCompleter)(nil)

func (c *fakeCompleter) CompleteDrugProfile(ctx context.Context, drugName string) (highlights.DrugHighlight, error) {
	c.lastDrugName = drugName
	if c.err != nil {
		return highlights.DrugHighlight{}, c.err
	}
	return c.drug, nil
}

func (c *fakeCompleter) GenerateQuiz(ctx context.Context, days []highlights.DailyHighlight, count int) ([]highlights.QuizQuestion, error) {
	c.gotDays = days
	c.lastCount = count
	if c.err != nil {
		return nil, c.err
	}
	return c.questions, nil
}

// fakeRenderer implements interfaces.ReportRenderer with canned bytes
type fakeRenderer struct {
	pdf   []byte
	pages int
	err   error

	lastStart string
	lastEnd   string
	gotDays   []highlights.DailyHighlight
}

var _ interfaces.ReportRenderer = (*fakeRenderer)(nil)

func (r *fakeRenderer) Render(days []highlights.DailyHighlight, start, end string) ([]byte, int, error) {
	r.gotDays = days
	r.lastStart = start
	r.lastEnd = end
	if r.err != nil {
		return nil, 0, r.err
	}
	return r.pdf, r.pages, nil
}

// fakeHealth implements interfaces.HealthChecker with a fixed verdict
type fakeHealth struct {
	status     string
	data       map[string]any
	httpStatus int
}

var _ interfaces.HealthChecker = (*fakeHealth)(nil)

func (h *fakeHealth) HealthCheck(ctx context.Context) (string, map[string]any, int) {
	return h.status, h.data, h.httpStatus
}

func (h *fakeHealth) NextRefresh() time.Time {
	return time.Now().Add(15 * time.Minute)
}

// ============================================================================
// FIXTURE
// ============================================================================

// handlerFixture wires a handler over a real index and validator with fake
// store, completer, renderer and health collaborators. Fakes are mutated in
// place before issuing requests.
type handlerFixture struct {
	index     *data.Index
	store     *fakeStore
	completer *fakeCompleter
	renderer  *fakeRenderer
	sessions  *auth.SessionServiceImpl
	health    *fakeHealth
	handler   interfaces.HTTPHandler
}

func newHandlerFixture(days ...highlights.DailyHighlight) *handlerFixture {
	index := data.NewIndex()
	all := make(map[string]highlights.DailyHighlight, len(days))
	for _, day := range days {
		all[day.Date] = day
	}
	index.ReplaceAll(all)
	index.SetServerStartTime(time.Now())

	store := &fakeStore{}
	completer := &fakeCompleter{}
	renderer := &fakeRenderer{pdf: []byte("%PDF-1.3 test"), pages: 1}
	sessions := auth.NewSessionService(testPIN, testSecret, time.Hour)
	health := &fakeHealth{
		status:     "healthy",
		data:       map[string]any{"days": len(days)},
		httpStatus: http.StatusOK,
	}

	handler := NewHTTPHandler(index, store, completer, renderer, sessions,
		validation.NewRequestValidator(), health, 366)

	return &handlerFixture{
		index:     index,
		store:     store,
		completer: completer,
		renderer:  renderer,
		sessions:  sessions,
		health:    health,
		handler:   handler,
	}
}

// newParamRequest builds a request carrying chi URL parameters
func newParamRequest(method, target string, params map[string]string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for key, value := range params {
			rctx.URLParams.Add(key, value)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	return req
}
