package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"

	"github.com/mnansary/DocSignerNML/config"
	"github.com/mnansary/DocSignerNML/model"
	"github.com/mnansary/DocSignerNML/pkg/logger"
)

// VerifyRequest is one verification run: a signed document (SV)
// audited against its original blank version (NSV). The URLs are
// presigned object-storage locations handed to the extraction backend.
type VerifyRequest struct {
	ID          string
	NSVFilename string
	SVFilename  string
	NSVData     []byte
	SVData      []byte
	NSVURL      string
	SVURL       string
}

// VerifyService orchestrates the two-phase verification workflow:
// phase 1 catalogs required inputs per NSV page, phase 2 audits each
// page pair in page order. Pages are processed sequentially because
// phase 2 depends on the complete phase-1 catalog and because the
// event stream guarantees ordered, incremental progress; within one
// page the structural and visual diffs run concurrently.
type VerifyService struct {
	extractor PageExtractor
	analyzer  RequirementAnalyzer
	differ    *VisualDiffer
	cfg       *config.AuditConfig
	pageCount func(path string) (int, error)
}

func NewVerifyService(extractor PageExtractor, analyzer RequirementAnalyzer, cfg *config.AuditConfig) *VerifyService {
	return &VerifyService{
		extractor: extractor,
		analyzer:  analyzer,
		differ:    NewVisualDiffer(cfg),
		cfg:       cfg,
		pageCount: api.PageCountFile,
	}
}

// Run executes the workflow and emits ordered events on the returned
// channel. The channel carries exactly one terminal event and is then
// closed; a fatal collaborator error surfaces as a terminal error
// event with a stable message while the raw cause is only logged.
func (s *VerifyService) Run(ctx context.Context, req *VerifyRequest) <-chan Event {
	events := make(chan Event, 8)

	go func() {
		defer close(events)

		ctx := context.WithValue(ctx, logger.VerificationIDKey, req.ID)
		report, err := s.run(ctx, req, events)
		if err != nil {
			logger.Error(ctx, "verification pipeline failed", "error", err)
			emit(ctx, events, Event{Type: EventError, Message: terminalMessage(err)})
			return
		}

		if report.OverallStatus == model.OverallSuccess {
			emit(ctx, events, Event{Type: EventComplete, Message: "document verified successfully", Report: report})
		} else {
			emit(ctx, events, Event{Type: EventFailed, Message: "document failed verification", Report: report})
		}
	}()

	return events
}

func (s *VerifyService) run(ctx context.Context, req *VerifyRequest, events chan<- Event) (*model.VerificationReport, error) {
	// One scoped workspace per request, removed on every exit path.
	workspace, err := os.MkdirTemp(s.cfg.TempDir, "verify-"+req.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	nsvPath := filepath.Join(workspace, "nsv.pdf")
	svPath := filepath.Join(workspace, "sv.pdf")
	if err := os.WriteFile(nsvPath, req.NSVData, 0o600); err != nil {
		return nil, fmt.Errorf("failed to stage NSV document: %w", err)
	}
	if err := os.WriteFile(svPath, req.SVData, 0o600); err != nil {
		return nil, fmt.Errorf("failed to stage SV document: %w", err)
	}

	// Page counts are compared before any upload or extraction work so
	// a mismatch fails fast at the document level.
	nsvPages, err := s.pageCount(nsvPath)
	if err != nil {
		return nil, &ExtractionError{Document: "NSV", Err: err}
	}
	svPages, err := s.pageCount(svPath)
	if err != nil {
		return nil, &ExtractionError{Document: "SV", Err: err}
	}
	if nsvPages != svPages {
		return nil, &PageCountMismatchError{NSVPages: nsvPages, SVPages: svPages}
	}

	emit(ctx, events, Event{Type: EventStatus, Message: fmt.Sprintf("extracting content from %d pages", nsvPages)})

	var nsvBundles, svBundles []model.PageBundle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bundles, err := s.extractor.Extract(gctx, req.NSVURL)
		if err != nil {
			return &ExtractionError{Document: "NSV", Err: err}
		}
		nsvBundles = bundles
		return nil
	})
	g.Go(func() error {
		bundles, err := s.extractor.Extract(gctx, req.SVURL)
		if err != nil {
			return &ExtractionError{Document: "SV", Err: err}
		}
		svBundles = bundles
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The extractor's page counts must agree with the local ones.
	if len(nsvBundles) != len(svBundles) {
		return nil, &PageCountMismatchError{NSVPages: len(nsvBundles), SVPages: len(svBundles)}
	}

	// Phase 1: build the requirement catalog from the NSV alone. The
	// catalog is read-only for the rest of the run.
	emit(ctx, events, Event{Type: EventStatus, Message: "analyzing template requirements"})

	catalog := make([]*model.PageRequirements, len(nsvBundles))
	for i, bundle := range nsvBundles {
		requirements, err := s.analyzer.AnalyzePage(ctx, bundle.PageNumber, bundle.Text)
		if err != nil {
			return nil, &AnalysisError{Page: bundle.PageNumber, Err: err}
		}
		catalog[i] = requirements
		emit(ctx, events, Event{Type: EventPageRequirements, Page: bundle.PageNumber, Requirements: requirements})
	}

	// Phase 2: audit page pairs in page order.
	emit(ctx, events, Event{Type: EventStatus, Message: "auditing pages"})

	pageResults := make([]model.PageAuditResult, 0, len(nsvBundles))
	for i := range nsvBundles {
		pageNumber := i + 1

		result, definitive, err := s.auditPage(ctx, pageNumber, nsvBundles[i], svBundles[i], catalog[i])
		if err != nil {
			return nil, &AuditError{Page: pageNumber, Err: err}
		}

		pageResults = append(pageResults, *result)
		emit(ctx, events, Event{Type: EventPageResult, Page: pageNumber, PageResult: result})

		// Once a page is known to fail irrecoverably (unchanged page
		// with unmet requirements), continuing is wasted work. This
		// early abort is a deliberate product decision, configurable
		// via audit.abort_on_definitive_failure.
		if definitive && *s.cfg.AbortOnDefinitiveFailure {
			logger.Warn(ctx, "aborting on definitive page failure", "page", pageNumber)
			break
		}
	}

	return AggregateReport(req.NSVFilename, req.SVFilename, len(nsvBundles), pageResults), nil
}

// auditPage runs the per-page evidence channels and resolves the page
// verdict. The structural and visual differs are independent and run
// concurrently; no shared state is touched during the fan-out. The
// returned definitive flag marks the short-circuit branch: page text
// unchanged while required fields remain, which no later page can
// repair.
func (s *VerifyService) auditPage(ctx context.Context, pageNumber int, nsv, sv model.PageBundle, requirements *model.PageRequirements) (*model.PageAuditResult, bool, error) {
	var diffs []model.DiffEntry
	var visual *model.VisualDiffResult

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		diffs = StructuralDiff(nsv.Text, sv.Text)
		return nil
	})
	g.Go(func() error {
		result, err := s.differ.Compare(nsv.Image, sv.Image)
		if err != nil {
			return err
		}
		visual = result
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	required := requirements.RequiredInputs
	audited, contentDiffs := AuditFields(required, diffs)

	// A dimension mismatch between the page images is itself a
	// reportable signal, not something resizing may normalize away.
	if !visual.SourceMatch {
		contentDiffs = append(contentDiffs, model.ContentDifference{
			DifferenceType: model.DifferenceModification,
			Description:    "page dimensions differ from the original; the signed page was resized for comparison",
		})
	}

	// Image-only pages leave no text evidence; pixel differences there
	// must not pass silently.
	if len(diffs) == 0 && !visual.ContentMatch && nsv.Text == "" && sv.Text == "" {
		contentDiffs = append(contentDiffs, model.ContentDifference{
			DifferenceType: model.DifferenceModification,
			Description: fmt.Sprintf("%d pixel-level difference regions detected on an image-only page",
				len(visual.DifferenceBBoxes)),
		})
	}

	result := &model.PageAuditResult{
		PageNumber:         pageNumber,
		PageStatus:         ResolvePageStatus(audited, contentDiffs),
		RequiredInputs:     audited,
		ContentDifferences: contentDiffs,
		VisualDiff:         visual,
	}

	definitive := len(diffs) == 0 && len(required) > 0
	return result, definitive, nil
}

// terminalMessage maps a pipeline error to the stable, user-facing
// message of the terminal error event. Raw collaborator errors are
// logged server-side, never forwarded verbatim.
func terminalMessage(err error) string {
	var pageCount *PageCountMismatchError
	if errors.As(err, &pageCount) {
		return pageCount.Error()
	}
	var extraction *ExtractionError
	if errors.As(err, &extraction) {
		return fmt.Sprintf("page extraction failed for the %s document", extraction.Document)
	}
	var analysis *AnalysisError
	if errors.As(err, &analysis) {
		return fmt.Sprintf("requirement analysis failed for page %d", analysis.Page)
	}
	var audit *AuditError
	if errors.As(err, &audit) {
		return fmt.Sprintf("audit failed for page %d", audit.Page)
	}
	return "document verification failed due to an internal error"
}

// emit delivers one event. Progress events are dropped once the run
// context is canceled; terminal events are always sent, so the stream
// ends with exactly one terminal event even for a canceled run. The
// consumer drains the buffered channel until close, so the terminal
// send cannot wedge the goroutine.
func emit(ctx context.Context, events chan<- Event, event Event) {
	if event.Terminal() {
		events <- event
		return
	}
	select {
	case events <- event:
	case <-ctx.Done():
	}
}
