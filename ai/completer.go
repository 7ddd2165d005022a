// Package ai generates drug record suggestions and review quizzes with
// the Gemini API. Both operations run in JSON mode with a response schema
// so the output decodes straight into the canonical shapes.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/pharmaboard/highlights-api/highlights"
	"github.com/pharmaboard/highlights-api/interfaces"
)

// ErrUnavailable reports that no API key is configured. The rest of the
// service runs fine without one; only the AI endpoints refuse.
var ErrUnavailable = errors.New("ai service is not configured")

const defaultModel = "gemini-2.5-flash"

const completePromptFormat = `You are helping a hospital pharmacology department fill in its daily drug highlight board.
Provide an accurate, concise study record for the drug %q.
Keep each field under two sentences and use plain clinical language.
For the off-label use, cite one or two real literature references as absolute URLs.`

const quizPromptFormat = `You are quizzing pharmacology residents on their daily drug highlights.
Write %d multiple-choice questions drawn only from the records below.
Each question has exactly four options and one correct answer, and the correct answer must appear verbatim among the options.

Records:
%s`

// Completer talks to Gemini. A zero client means no key was configured
// and every call returns ErrUnavailable.
type Completer struct {
	client *genai.Client
	model  string
}

// Ensure Completer implements the Completer interface
var _ interfaces.Completer = (*Completer)(nil)

// NewCompleter builds a Completer. An empty apiKey yields a disabled one
// so the service can start without AI configured.
func NewCompleter(ctx context.Context, apiKey, model string) (*Completer, error) {
	if model == "" {
		model = defaultModel
	}
	if apiKey == "" {
		return &Completer{model: model}, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Completer{client: client, model: model}, nil
}

// CompleteDrugProfile returns a populated record suggestion for the named
// drug. Single attempt; failures surface to the caller for a user-driven
// retry.
func (c *Completer) CompleteDrugProfile(ctx context.Context, drugName string) (highlights.DrugHighlight, error) {
	if c.client == nil {
		return highlights.DrugHighlight{}, ErrUnavailable
	}

	prompt := fmt.Sprintf(completePromptFormat, drugName)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   drugProfileSchema,
	})
	if err != nil {
		return highlights.DrugHighlight{}, fmt.Errorf("failed to generate drug profile: %w", err)
	}

	return decodeDrugProfile(resp.Text(), drugName)
}

// GenerateQuiz derives count multiple-choice questions from the given
// records. Questions the model malforms are dropped rather than failing
// the whole call.
func (c *Completer) GenerateQuiz(ctx context.Context, days []highlights.DailyHighlight, count int) ([]highlights.QuizQuestion, error) {
	if c.client == nil {
		return nil, ErrUnavailable
	}
	if len(days) == 0 {
		return nil, errors.New("no records to build a quiz from")
	}

	material, err := json.Marshal(days)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize quiz material: %w", err)
	}

	prompt := fmt.Sprintf(quizPromptFormat, count, material)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   quizSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate quiz: %w", err)
	}

	return decodeQuiz(resp.Text(), count)
}

// decodeDrugProfile parses the model output and pushes it through the
// normalizer, so missing or oddly shaped fields degrade to blanks instead
// of failing the request. The requested name backstops a blank drugName.
func decodeDrugProfile(text, drugName string) (highlights.DrugHighlight, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return highlights.DrugHighlight{}, fmt.Errorf("failed to decode drug profile: %w", err)
	}

	drug := highlights.NormalizeDrug(raw)
	if strings.TrimSpace(drug.DrugName) == "" {
		drug.DrugName = drugName
	}
	return drug, nil
}

// decodeQuiz parses the model output, drops malformed questions and caps
// the result at count.
func decodeQuiz(text string, count int) ([]highlights.QuizQuestion, error) {
	var questions []highlights.QuizQuestion
	if err := json.Unmarshal([]byte(text), &questions); err != nil {
		return nil, fmt.Errorf("failed to decode quiz: %w", err)
	}

	kept := make([]highlights.QuizQuestion, 0, len(questions))
	for _, q := range questions {
		if !validQuizQuestion(q) {
			continue
		}
		kept = append(kept, q)
		if len(kept) == count {
			break
		}
	}
	if len(kept) == 0 {
		return nil, errors.New("model returned no usable questions")
	}
	return kept, nil
}

// validQuizQuestion keeps only questions with exactly four non-blank
// options, one of which is the correct answer.
func validQuizQuestion(q highlights.QuizQuestion) bool {
	if strings.TrimSpace(q.Question) == "" || len(q.Options) != 4 {
		return false
	}
	answerListed := false
	for _, option := range q.Options {
		if strings.TrimSpace(option) == "" {
			return false
		}
		if option == q.CorrectAnswer {
			answerListed = true
		}
	}
	return answerListed
}

// drugProfileSchema mirrors the canonical record fields. The off-label
// entry carries its references so suggestions arrive citation-ready.
var drugProfileSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"drugName":              {Type: genai.TypeString},
		"drugClass":             {Type: genai.TypeString},
		"mechanism":             {Type: genai.TypeString},
		"uses":                  {Type: genai.TypeString},
		"sideEffects":           {Type: genai.TypeString},
		"routeOfAdministration": {Type: genai.TypeString},
		"dose":                  {Type: genai.TypeString},
		"dosageForm":            {Type: genai.TypeString},
		"halfLife":              {Type: genai.TypeString},
		"clinicalUses":          {Type: genai.TypeString},
		"contraindication":      {Type: genai.TypeString},
		"offLabelUse": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"value": {Type: genai.TypeString},
				"references": {
					Type:  genai.TypeArray,
					Items: &genai.Schema{Type: genai.TypeString},
				},
			},
		},
		"funFact": {Type: genai.TypeString},
	},
	Required: []string{"drugName"},
}

var quizSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"question": {Type: genai.TypeString},
			"options": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
			"correctAnswer": {Type: genai.TypeString},
		},
		Required: []string{"question", "options", "correctAnswer"},
	},
}
