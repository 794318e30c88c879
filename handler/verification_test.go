package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mnansary/DocSignerNML/config"
	"github.com/mnansary/DocSignerNML/model"
	"github.com/mnansary/DocSignerNML/service"
)

func newTestVerificationHandler() *VerificationHandler {
	return &VerificationHandler{
		store:  service.GetVerificationStore(),
		config: &config.Config{},
	}
}

func tenantRouter(tenant string, register func(*gin.Engine)) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("tenant", tenant)
		c.Next()
	})
	register(router)
	return router
}

func TestVerificationHandlerListScopedToTenant(t *testing.T) {
	handler := newTestVerificationHandler()

	handler.store.Save(&model.Verification{ID: "list-a", Tenant: "tenant-list-1", CreatedAt: time.Now()})
	handler.store.Save(&model.Verification{ID: "list-b", Tenant: "tenant-list-1", CreatedAt: time.Now()})
	handler.store.Save(&model.Verification{ID: "list-c", Tenant: "tenant-list-2", CreatedAt: time.Now()})

	router := tenantRouter("tenant-list-1", func(r *gin.Engine) {
		r.GET("/verifications", handler.List)
	})

	req := httptest.NewRequest("GET", "/verifications", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Verifications []map[string]interface{} `json:"verifications"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(response.Verifications) != 2 {
		t.Errorf("Expected 2 verifications for tenant, got %d", len(response.Verifications))
	}
}

func TestVerificationHandlerGetDeniesOtherTenant(t *testing.T) {
	handler := newTestVerificationHandler()

	handler.store.Save(&model.Verification{ID: "get-x", Tenant: "tenant-owner", CreatedAt: time.Now()})

	router := tenantRouter("tenant-other", func(r *gin.Engine) {
		r.GET("/verifications/:id", handler.Get)
	})

	req := httptest.NewRequest("GET", "/verifications/get-x", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for another tenant's run, got %d", w.Code)
	}
}

func TestVerificationHandlerGetStatus(t *testing.T) {
	handler := newTestVerificationHandler()

	handler.store.Save(&model.Verification{
		ID:        "status-x",
		Tenant:    "tenant-status",
		Status:    model.StatusFailed,
		ErrorMsg:  "page count mismatch: NSV has 2 pages, SV has 3 pages",
		CreatedAt: time.Now(),
	})

	router := tenantRouter("tenant-status", func(r *gin.Engine) {
		r.GET("/verifications/:id/status", handler.GetStatus)
	})

	req := httptest.NewRequest("GET", "/verifications/status-x/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["status"] != model.StatusFailed {
		t.Errorf("Expected status %s, got %s", model.StatusFailed, response["status"])
	}
	if response["error_msg"] == "" {
		t.Error("Expected error message in status response")
	}
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for field, filename := range files {
		part, err := writer.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		part.Write([]byte("%PDF-1.4 test content"))
	}
	writer.Close()
	return &buf, writer.FormDataContentType()
}

func TestVerificationHandlerVerifyMissingFile(t *testing.T) {
	handler := newTestVerificationHandler()

	router := tenantRouter("tenant-verify", func(r *gin.Engine) {
		r.POST("/verify", handler.Verify)
	})

	body, contentType := multipartBody(t, map[string]string{"nsv_file": "template.pdf"})
	req := httptest.NewRequest("POST", "/verify", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing sv_file, got %d", w.Code)
	}
}

func TestVerificationHandlerVerifyRejectsNonPDF(t *testing.T) {
	handler := newTestVerificationHandler()

	router := tenantRouter("tenant-verify", func(r *gin.Engine) {
		r.POST("/verify", handler.Verify)
	})

	body, contentType := multipartBody(t, map[string]string{
		"nsv_file": "template.docx",
		"sv_file":  "signed.pdf",
	})
	req := httptest.NewRequest("POST", "/verify", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-PDF upload, got %d", w.Code)
	}
}

func TestRunDeadline(t *testing.T) {
	cfg := &config.Config{}
	cfg.Extractor.TimeoutSec = 300
	cfg.Analyzer.TimeoutSec = 120

	if got := RunDeadline(cfg); got != 420*time.Second {
		t.Errorf("Expected 420s run deadline, got %s", got)
	}
}

func TestRecordTerminalEvent(t *testing.T) {
	handler := newTestVerificationHandler()

	handler.store.Save(&model.Verification{
		ID:        "terminal-complete",
		Tenant:    "tenant-terminal",
		Status:    model.StatusProcessing,
		CreatedAt: time.Now(),
	})
	handler.store.Save(&model.Verification{
		ID:        "terminal-error",
		Tenant:    "tenant-terminal",
		Status:    model.StatusProcessing,
		CreatedAt: time.Now(),
	})

	report := &model.VerificationReport{OverallStatus: model.OverallSuccess, PageCount: 1}
	handler.recordTerminalEvent("terminal-complete", service.Event{
		Type:   service.EventComplete,
		Report: report,
	})

	stored := handler.store.Get("terminal-complete")
	if stored.Status != model.StatusCompleted {
		t.Errorf("Expected status %s, got %s", model.StatusCompleted, stored.Status)
	}
	if stored.Report == nil {
		t.Error("Expected report to be persisted")
	}

	handler.recordTerminalEvent("terminal-error", service.Event{
		Type:    service.EventError,
		Message: "page extraction failed for the NSV document",
	})

	stored = handler.store.Get("terminal-error")
	if stored.Status != model.StatusFailed {
		t.Errorf("Expected status %s, got %s", model.StatusFailed, stored.Status)
	}
	if stored.ErrorMsg == "" {
		t.Error("Expected error message to be persisted")
	}
}
