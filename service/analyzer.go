package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mnansary/DocSignerNML/config"
	"github.com/mnansary/DocSignerNML/model"
)

// RequirementAnalyzer catalogs the input fields a blank template page
// demands from the signer. Implementations must return empty lists,
// never nil responses, for pages without fields, and must never
// fabricate a marker that is not present verbatim in the page text.
type RequirementAnalyzer interface {
	AnalyzePage(ctx context.Context, pageNumber int, pageText string) (*model.PageRequirements, error)
}

// AnalyzerService is the production RequirementAnalyzer: a client for
// an OpenAI-compatible chat-completions backend. Responses are
// schema-validated at this boundary; anything malformed is an error,
// never silently coerced.
type AnalyzerService struct {
	config     *config.AnalyzerConfig
	httpClient *http.Client
}

func NewAnalyzerService(cfg *config.AnalyzerConfig) *AnalyzerService {
	return &AnalyzerService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// pageAnalysisPayload is the JSON object the backend must return.
type pageAnalysisPayload struct {
	RequiredInputs  []model.RequiredField  `json:"required_inputs"`
	PrefilledInputs []model.PrefilledField `json:"prefilled_inputs"`
}

const analysisPrompt = `You are a document processing specialist. Examine the following text from a single page of a blank, non-signed document and catalog every location where a user must enter information.

For each input field:
- "marker_text" is the exact machine-printed label anchoring the field, copied verbatim from the text with its original punctuation and capitalization. Never paraphrase.
- "input_type" is one of: signature, date, full_name, initials, checkbox, address, other.
- "description" is a one-sentence explanation of what the user must provide.

Fields that already carry a value on this page belong in "prefilled_inputs" with their "value" instead.

If the page is purely informational with no input fields, return empty lists. Respond with a single JSON object of the form {"required_inputs": [...], "prefilled_inputs": [...]} and nothing else.

Page text:
---
%s
---`

// AnalyzePage submits one NSV page's text for requirement analysis.
// Pages with no text cannot anchor any verbatim marker, so they yield
// an empty catalog without a backend call.
func (s *AnalyzerService) AnalyzePage(ctx context.Context, pageNumber int, pageText string) (*model.PageRequirements, error) {
	requirements := &model.PageRequirements{
		PageNumber:      pageNumber,
		RequiredInputs:  []model.RequiredField{},
		PrefilledInputs: []model.PrefilledField{},
	}

	if strings.TrimSpace(pageText) == "" {
		return requirements, nil
	}

	reqBody := chatRequest{
		Model: s.config.Model,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf(analysisPrompt, pageText)},
		},
		MaxTokens:      s.config.MaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.APIURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("analysis backend error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("analysis backend returned no choices")
	}

	payload, err := parseAnalysisPayload(result.Choices[0].Message.Content, pageText)
	if err != nil {
		return nil, err
	}

	requirements.RequiredInputs = payload.RequiredInputs
	requirements.PrefilledInputs = payload.PrefilledInputs
	return requirements, nil
}

// parseAnalysisPayload enforces the schema boundary on the model's
// output: valid JSON, known input types, and marker texts present
// verbatim in the page the model was shown.
func parseAnalysisPayload(content, pageText string) (*pageAnalysisPayload, error) {
	var payload pageAnalysisPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &payload); err != nil {
		return nil, fmt.Errorf("schema-invalid analysis response: %w", err)
	}

	if payload.RequiredInputs == nil {
		payload.RequiredInputs = []model.RequiredField{}
	}
	if payload.PrefilledInputs == nil {
		payload.PrefilledInputs = []model.PrefilledField{}
	}

	for _, field := range payload.RequiredInputs {
		if !model.ValidInputType(field.InputType) {
			return nil, fmt.Errorf("schema-invalid analysis response: unknown input type %q", field.InputType)
		}
		if field.MarkerText == "" {
			return nil, fmt.Errorf("schema-invalid analysis response: empty marker text")
		}
		if !strings.Contains(pageText, field.MarkerText) {
			return nil, fmt.Errorf("schema-invalid analysis response: marker %q not present in page text", field.MarkerText)
		}
	}
	for _, field := range payload.PrefilledInputs {
		if !model.ValidInputType(field.InputType) {
			return nil, fmt.Errorf("schema-invalid analysis response: unknown input type %q", field.InputType)
		}
		if field.MarkerText == "" {
			return nil, fmt.Errorf("schema-invalid analysis response: empty marker text")
		}
	}

	return &payload, nil
}
