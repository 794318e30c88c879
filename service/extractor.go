package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/mnansary/DocSignerNML/config"
	"github.com/mnansary/DocSignerNML/model"
)

// PageExtractor renders a document into an ordered sequence of
// per-page bundles: page number, page image, best-effort page text.
// Implementations must fail with a distinguishable error whenever the
// page count cannot be determined; a partial list is never returned
// silently.
type PageExtractor interface {
	Extract(ctx context.Context, documentURL string) ([]model.PageBundle, error)
}

// ExtractorService is the client for the external page-extraction
// backend. The backend works task-based: a task is created for a
// document URL, polled until done, and the result is downloaded as a
// ZIP holding a page manifest plus one PNG per page.
type ExtractorService struct {
	config     *config.ExtractorConfig
	httpClient *http.Client
}

// ExtractTaskRequest represents the request to create an extraction task
type ExtractTaskRequest struct {
	URL string `json:"url"`
}

// ExtractTaskResponse represents the response from task creation
type ExtractTaskResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
}

// ExtractTaskStatusResponse represents the task status query response
type ExtractTaskStatusResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		TaskID          string `json:"task_id"`
		State           string `json:"state"` // pending, running, done, failed
		FullZipURL      string `json:"full_zip_url,omitempty"`
		ErrorMsg        string `json:"err_msg,omitempty"`
		ExtractProgress struct {
			ExtractedPages int `json:"extracted_pages"`
			TotalPages     int `json:"total_pages"`
		} `json:"extract_progress,omitempty"`
	} `json:"data"`
}

// pageManifestEntry is one entry of the pages.json manifest inside the
// result ZIP.
type pageManifestEntry struct {
	PageNum int    `json:"page_num"`
	Text    string `json:"text"`
	Image   string `json:"image"`
}

func NewExtractorService(cfg *config.ExtractorConfig) *ExtractorService {
	return &ExtractorService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Extract runs the full create-poll-download cycle for one document.
func (s *ExtractorService) Extract(ctx context.Context, documentURL string) ([]model.PageBundle, error) {
	task, err := s.CreateTask(ctx, documentURL)
	if err != nil {
		return nil, err
	}

	zipURL, err := s.waitForResult(ctx, task.Data.TaskID)
	if err != nil {
		return nil, err
	}

	return s.FetchZipAndExtractPages(ctx, zipURL)
}

// CreateTask creates a new extraction task for the document URL.
func (s *ExtractorService) CreateTask(ctx context.Context, documentURL string) (*ExtractTaskResponse, error) {
	jsonData, err := json.Marshal(ExtractTaskRequest{URL: documentURL})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.APIURL+"/extract/task", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
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

	var result ExtractTaskResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w, body: %s", err, string(body))
	}

	if result.Code != 0 {
		return nil, fmt.Errorf("extraction API error: %s", result.Message)
	}

	return &result, nil
}

// GetTaskStatus queries the status of a task.
func (s *ExtractorService) GetTaskStatus(ctx context.Context, taskID string) (*ExtractTaskStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/extract/task/%s", s.config.APIURL, taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result ExtractTaskStatusResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Code != 0 {
		return nil, fmt.Errorf("extraction API error: %s", result.Message)
	}

	return &result, nil
}

// waitForResult polls the task until it reaches a terminal state or
// the context expires.
func (s *ExtractorService) waitForResult(ctx context.Context, taskID string) (string, error) {
	interval := time.Duration(s.config.PollIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("extraction timed out: %w", ctx.Err())
		case <-ticker.C:
		}

		status, err := s.GetTaskStatus(ctx, taskID)
		if err != nil {
			return "", err
		}

		switch status.Data.State {
		case "done":
			if status.Data.FullZipURL == "" {
				return "", fmt.Errorf("extraction finished without a result URL for task %s", taskID)
			}
			return status.Data.FullZipURL, nil
		case "failed":
			return "", fmt.Errorf("extraction task failed: %s", status.Data.ErrorMsg)
		}
	}
}

// FetchZipAndExtractPages downloads the result ZIP and assembles the
// ordered page bundles from its manifest and page images.
func (s *ExtractorService) FetchZipAndExtractPages(ctx context.Context, zipURL string) ([]model.PageBundle, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", zipURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download ZIP: %w", err)
	}
	defer resp.Body.Close()

	zipData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ZIP: %w", err)
	}

	zipReader, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return nil, fmt.Errorf("failed to open ZIP: %w", err)
	}

	manifest, err := readManifest(zipReader)
	if err != nil {
		return nil, err
	}

	sort.Slice(manifest, func(i, j int) bool {
		return manifest[i].PageNum < manifest[j].PageNum
	})

	bundles := make([]model.PageBundle, 0, len(manifest))
	for i, entry := range manifest {
		if entry.PageNum != i+1 {
			return nil, fmt.Errorf("page manifest has a gap: expected page %d, got %d", i+1, entry.PageNum)
		}

		img, err := readPageImage(zipReader, entry.Image)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", entry.PageNum, err)
		}

		bundles = append(bundles, model.PageBundle{
			PageNumber: entry.PageNum,
			Image:      img,
			Text:       entry.Text,
		})
	}

	if len(bundles) == 0 {
		return nil, fmt.Errorf("extraction result contains no pages")
	}

	return bundles, nil
}

func readManifest(zipReader *zip.Reader) ([]pageManifestEntry, error) {
	for _, file := range zipReader.File {
		if file.Name != "pages.json" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open page manifest: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read page manifest: %w", err)
		}

		var manifest []pageManifestEntry
		if err := json.Unmarshal(content, &manifest); err != nil {
			return nil, fmt.Errorf("failed to parse page manifest: %w", err)
		}
		return manifest, nil
	}

	return nil, fmt.Errorf("no page manifest found in extraction result")
}

func readPageImage(zipReader *zip.Reader, name string) (image.Image, error) {
	for _, file := range zipReader.File {
		if file.Name != name {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open page image %s: %w", name, err)
		}
		defer rc.Close()

		img, err := png.Decode(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode page image %s: %w", name, err)
		}
		return img, nil
	}

	return nil, fmt.Errorf("page image %s missing from extraction result", name)
}
