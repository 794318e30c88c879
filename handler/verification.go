package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mnansary/DocSignerNML/config"
	"github.com/mnansary/DocSignerNML/middleware"
	"github.com/mnansary/DocSignerNML/model"
	"github.com/mnansary/DocSignerNML/service"
)

// VerifyRunner runs one verification and streams its progress events.
type VerifyRunner interface {
	Run(ctx context.Context, req *service.VerifyRequest) <-chan service.Event
}

type VerificationHandler struct {
	minioService  *service.MinioService
	verifyService VerifyRunner
	store         *service.VerificationStore
	config        *config.Config
}

func NewVerificationHandler(minioSvc *service.MinioService, verifySvc VerifyRunner, cfg *config.Config) *VerificationHandler {
	return &VerificationHandler{
		minioService:  minioSvc,
		verifyService: verifySvc,
		store:         service.GetVerificationStore(),
		config:        cfg,
	}
}

// Verify accepts the document pair, archives both files, runs the
// verification and streams progress as server-sent events. The stream
// ends with exactly one terminal event.
func (h *VerificationHandler) Verify(c *gin.Context) {
	tenant := middleware.GetTenant(c)

	nsvData, nsvHeader, ok := readDocumentFile(c, "nsv_file")
	if !ok {
		return
	}
	svData, svHeader, ok := readDocumentFile(c, "sv_file")
	if !ok {
		return
	}

	verificationID := uuid.New().String()
	nsvObject := service.DocumentObjectName(tenant, verificationID, "nsv", nsvHeader.Filename)
	svObject := service.DocumentObjectName(tenant, verificationID, "sv", svHeader.Filename)

	ctx := c.Request.Context()
	if err := h.minioService.UploadFile(ctx, nsvObject, bytes.NewReader(nsvData), int64(len(nsvData)), "application/pdf"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to archive original document: " + err.Error()})
		return
	}
	if err := h.minioService.UploadFile(ctx, svObject, bytes.NewReader(svData), int64(len(svData)), "application/pdf"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to archive signed document: " + err.Error()})
		return
	}

	// The extraction backend pulls both documents through presigned URLs.
	nsvURL, err := h.minioService.GetPresignedURL(ctx, nsvObject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate URL: " + err.Error()})
		return
	}
	svURL, err := h.minioService.GetPresignedURL(ctx, svObject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate URL: " + err.Error()})
		return
	}

	now := time.Now()
	verification := &model.Verification{
		ID:          verificationID,
		Tenant:      tenant,
		NSVFilename: nsvHeader.Filename,
		SVFilename:  svHeader.Filename,
		NSVObject:   nsvObject,
		SVObject:    svObject,
		Status:      model.StatusProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	h.store.Save(verification)

	runCtx, cancel := context.WithTimeout(ctx, RunDeadline(h.config))
	defer cancel()

	events := h.verifyService.Run(runCtx, &service.VerifyRequest{
		ID:          verificationID,
		NSVFilename: nsvHeader.Filename,
		SVFilename:  svHeader.Filename,
		NSVData:     nsvData,
		SVData:      svData,
		NSVURL:      nsvURL,
		SVURL:       svURL,
	})

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Verification-ID", verificationID)

	c.Stream(func(w io.Writer) bool {
		event, ok := <-events
		if !ok {
			return false
		}

		if event.Terminal() {
			h.recordTerminalEvent(verificationID, event)
		}

		c.SSEvent(string(event.Type), event)
		return !event.Terminal()
	})

	// If the client disconnected mid-run the pipeline is still emitting.
	// Drain so it can deliver its terminal event, and record that
	// outcome so the run never stays stuck in processing.
	go func() {
		for event := range events {
			if event.Terminal() {
				h.recordTerminalEvent(verificationID, event)
			}
		}
	}()
}

// RunDeadline bounds one verification run. A run spans both external
// collaborators, extraction and per-page analysis, so the budget is
// the sum of their timeouts.
func RunDeadline(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Extractor.TimeoutSec+cfg.Analyzer.TimeoutSec) * time.Second
}

// recordTerminalEvent persists the outcome of a run so the report stays
// retrievable after the stream has ended.
func (h *VerificationHandler) recordTerminalEvent(id string, event service.Event) {
	switch event.Type {
	case service.EventComplete, service.EventFailed:
		h.store.UpdateReport(id, event.Report)
	case service.EventError:
		h.store.UpdateStatus(id, model.StatusFailed, event.Message)
	}
}

// readDocumentFile reads one uploaded PDF into memory. It writes the
// error response itself and reports success through the bool.
func readDocumentFile(c *gin.Context, field string) ([]byte, *multipart.FileHeader, bool) {
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file: " + field})
		return nil, nil, false
	}
	defer file.Close()

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".pdf" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF files are allowed"})
		return nil, nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return nil, nil, false
	}

	return data, header, true
}

// List returns all verification runs for the current tenant
func (h *VerificationHandler) List(c *gin.Context) {
	tenant := middleware.GetTenant(c)
	verifications := h.store.GetByTenant(tenant)

	// Reports are omitted from the list view
	result := make([]gin.H, len(verifications))
	for i, v := range verifications {
		result[i] = gin.H{
			"id":           v.ID,
			"nsv_filename": v.NSVFilename,
			"sv_filename":  v.SVFilename,
			"status":       v.Status,
			"created_at":   v.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			"updated_at":   v.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	c.JSON(http.StatusOK, gin.H{"verifications": result})
}

// Get returns a single verification run with its full report
func (h *VerificationHandler) Get(c *gin.Context) {
	tenant := middleware.GetTenant(c)
	id := c.Param("id")

	verification := h.store.Get(id)
	if verification == nil || verification.Tenant != tenant {
		c.JSON(http.StatusNotFound, gin.H{"error": "Verification not found"})
		return
	}

	c.JSON(http.StatusOK, verification)
}

// GetStatus returns the processing status of a verification run
func (h *VerificationHandler) GetStatus(c *gin.Context) {
	tenant := middleware.GetTenant(c)
	id := c.Param("id")

	verification := h.store.Get(id)
	if verification == nil || verification.Tenant != tenant {
		c.JSON(http.StatusNotFound, gin.H{"error": "Verification not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        verification.ID,
		"status":    verification.Status,
		"error_msg": verification.ErrorMsg,
	})
}

// Delete removes a verification run and its archived documents
func (h *VerificationHandler) Delete(c *gin.Context) {
	tenant := middleware.GetTenant(c)
	id := c.Param("id")

	verification := h.store.Get(id)
	if verification == nil || verification.Tenant != tenant {
		c.JSON(http.StatusNotFound, gin.H{"error": "Verification not found"})
		return
	}

	if err := h.minioService.DeleteRunObjects(c.Request.Context(), verification.NSVObject, verification.SVObject); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete archived documents: " + err.Error()})
		return
	}

	h.store.Delete(id)

	c.JSON(http.StatusOK, gin.H{"message": "Verification deleted"})
}
