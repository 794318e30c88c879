package service

import "fmt"

// PageCountMismatchError is the document-level fatal error raised when
// the NSV and SV page counts differ. It aborts the run before any
// per-page audit.
type PageCountMismatchError struct {
	NSVPages int
	SVPages  int
}

func (e *PageCountMismatchError) Error() string {
	return fmt.Sprintf("page count mismatch: NSV has %d pages, SV has %d pages", e.NSVPages, e.SVPages)
}

// ExtractionError wraps a failure of the page-extraction backend for
// one document. Fatal for the request; never retried automatically.
type ExtractionError struct {
	Document string // "NSV" or "SV"
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.Document, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// AnalysisError wraps a phase-1 requirement-analysis failure for one
// NSV page. An incomplete requirement catalog makes every downstream
// audit unsound, so this aborts before phase 2 begins.
type AnalysisError struct {
	Page int
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("requirement analysis failed for page %d: %v", e.Page, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// AuditError wraps a phase-2 processing failure for a specific page.
// Fatal for the request; partial reports are never emitted as success.
type AuditError struct {
	Page int
	Err  error
}

func (e *AuditError) Error() string {
	return fmt.Sprintf("audit failed for page %d: %v", e.Page, e.Err)
}

func (e *AuditError) Unwrap() error { return e.Err }
