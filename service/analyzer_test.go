package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mnansary/DocSignerNML/config"
	"github.com/mnansary/DocSignerNML/model"
)

func analyzerBackend(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("Expected Authorization header")
		}

		response := chatResponse{}
		response.Choices = []struct {
			Message chatMessage `json:"message"`
		}{
			{Message: chatMessage{Role: "assistant", Content: content}},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
}

func analyzerConfig(url string) *config.AnalyzerConfig {
	return &config.AnalyzerConfig{
		APIURL:     url,
		APIKey:     "test-key",
		Model:      "test-model",
		TimeoutSec: 5,
		MaxTokens:  512,
	}
}

func TestAnalyzerServiceValidResponse(t *testing.T) {
	pageText := "Employment Agreement\nName: ______\nSignature: ______"
	content := `{
		"required_inputs": [
			{"input_type": "full_name", "marker_text": "Name:", "description": "Full legal name"},
			{"input_type": "signature", "marker_text": "Signature:", "description": "Signature of the employee"}
		],
		"prefilled_inputs": []
	}`

	server := analyzerBackend(t, content)
	defer server.Close()

	svc := NewAnalyzerService(analyzerConfig(server.URL))
	requirements, err := svc.AnalyzePage(context.Background(), 1, pageText)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if requirements.PageNumber != 1 {
		t.Errorf("Expected page 1, got %d", requirements.PageNumber)
	}
	if len(requirements.RequiredInputs) != 2 {
		t.Fatalf("Expected 2 required inputs, got %d", len(requirements.RequiredInputs))
	}
	if requirements.RequiredInputs[0].InputType != model.InputFullName {
		t.Errorf("Expected full_name, got %s", requirements.RequiredInputs[0].InputType)
	}
	if requirements.RequiredInputs[1].MarkerText != "Signature:" {
		t.Errorf("Expected marker 'Signature:', got %q", requirements.RequiredInputs[1].MarkerText)
	}
}

func TestAnalyzerServiceEmptyPageSkipsBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Backend must not be called for empty page text")
	}))
	defer server.Close()

	svc := NewAnalyzerService(analyzerConfig(server.URL))
	requirements, err := svc.AnalyzePage(context.Background(), 3, "  \n ")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(requirements.RequiredInputs) != 0 || len(requirements.PrefilledInputs) != 0 {
		t.Errorf("Expected empty catalog, got %+v", requirements)
	}
	if requirements.RequiredInputs == nil || requirements.PrefilledInputs == nil {
		t.Error("Expected empty lists, not nil")
	}
}

func TestAnalyzerServiceFabricatedMarkerRejected(t *testing.T) {
	content := `{
		"required_inputs": [
			{"input_type": "full_name", "marker_text": "Employee Name:", "description": "paraphrased label"}
		],
		"prefilled_inputs": []
	}`

	server := analyzerBackend(t, content)
	defer server.Close()

	svc := NewAnalyzerService(analyzerConfig(server.URL))
	_, err := svc.AnalyzePage(context.Background(), 1, "Name: ______")
	if err == nil {
		t.Fatal("Expected error for marker not present in page text")
	}
	if !strings.Contains(err.Error(), "schema-invalid") {
		t.Errorf("Expected schema-invalid error, got %v", err)
	}
}

func TestAnalyzerServiceUnknownInputTypeRejected(t *testing.T) {
	content := `{
		"required_inputs": [
			{"input_type": "fingerprint", "marker_text": "Name:", "description": "bad type"}
		],
		"prefilled_inputs": []
	}`

	server := analyzerBackend(t, content)
	defer server.Close()

	svc := NewAnalyzerService(analyzerConfig(server.URL))
	_, err := svc.AnalyzePage(context.Background(), 1, "Name: ______")
	if err == nil {
		t.Fatal("Expected error for unknown input type")
	}
}

func TestAnalyzerServiceMalformedJSONRejected(t *testing.T) {
	server := analyzerBackend(t, "I found two fields on this page.")
	defer server.Close()

	svc := NewAnalyzerService(analyzerConfig(server.URL))
	_, err := svc.AnalyzePage(context.Background(), 1, "Name: ______")
	if err == nil {
		t.Fatal("Expected error for non-JSON response")
	}
	if !strings.Contains(err.Error(), "schema-invalid") {
		t.Errorf("Expected schema-invalid error, got %v", err)
	}
}

func TestAnalyzerServiceBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error": {"message": "model overloaded"}}`))
	}))
	defer server.Close()

	svc := NewAnalyzerService(analyzerConfig(server.URL))
	_, err := svc.AnalyzePage(context.Background(), 1, "Name: ______")
	if err == nil {
		t.Fatal("Expected error for backend error envelope")
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("Expected backend message in error, got %v", err)
	}
}

func TestParseAnalysisPayloadNilListsNormalized(t *testing.T) {
	payload, err := parseAnalysisPayload(`{}`, "any text")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if payload.RequiredInputs == nil || payload.PrefilledInputs == nil {
		t.Error("Expected missing lists normalized to empty, not nil")
	}
}
