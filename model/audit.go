package model

import "image"

// InputType classifies what a required field expects from the signer.
type InputType string

const (
	InputSignature InputType = "signature"
	InputDate      InputType = "date"
	InputFullName  InputType = "full_name"
	InputInitials  InputType = "initials"
	InputCheckbox  InputType = "checkbox"
	InputAddress   InputType = "address"
	InputOther     InputType = "other"
)

// ValidInputType reports whether t is one of the known input types.
func ValidInputType(t InputType) bool {
	switch t {
	case InputSignature, InputDate, InputFullName, InputInitials,
		InputCheckbox, InputAddress, InputOther:
		return true
	}
	return false
}

// ValueBearing reports whether the type requires an extractable value
// beyond the mere presence of a mark.
func (t InputType) ValueBearing() bool {
	return t != InputSignature && t != InputCheckbox
}

// PageBundle is the per-page extraction result for one document:
// a rendered page image plus best-effort page text. Text is empty for
// image-only (scanned) pages.
type PageBundle struct {
	PageNumber int
	Image      image.Image
	Text       string
}

// RequiredField is an input field the blank template demands from the
// signer. MarkerText is the verbatim printed label anchoring the field
// in the NSV page text; it is never paraphrased.
type RequiredField struct {
	InputType   InputType `json:"input_type"`
	MarkerText  string    `json:"marker_text"`
	Description string    `json:"description"`
}

// PrefilledField is a field already filled in the NSV itself. It is
// excluded from the required set.
type PrefilledField struct {
	InputType  InputType `json:"input_type"`
	MarkerText string    `json:"marker_text"`
	Value      string    `json:"value"`
}

// PageRequirements is the phase-1 analysis result for one NSV page.
type PageRequirements struct {
	PageNumber      int              `json:"page_number"`
	RequiredInputs  []RequiredField  `json:"required_inputs"`
	PrefilledInputs []PrefilledField `json:"prefilled_inputs"`
}

// ChangeType labels one structural diff entry.
type ChangeType string

const (
	ChangeAddition ChangeType = "Addition"
	ChangeDeletion ChangeType = "Deletion"
	ChangeReplace  ChangeType = "Replace"
)

// LineSpan is a literal range of lines on one side of a diff.
// StartLine/EndLine are 1-indexed and inclusive of the lines carried
// in Content; an empty span has StartLine = EndLine+1 semantics
// matching the opcode boundaries.
type LineSpan struct {
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Content   string `json:"content"`
}

// DiffEntry is one maximal non-equal block of the line-level edit
// script between NSV and SV page text. Entries are ordered top to
// bottom in document order.
type DiffEntry struct {
	ChangeType   ChangeType `json:"change_type"`
	OriginalSpan LineSpan   `json:"original_span"`
	NewSpan      LineSpan   `json:"new_span"`
}

// BBox is a pixel-space bounding box (x1,y1)-(x2,y2).
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// VisualDiffResult is the pixel-level comparison of two page images.
// ContentMatch true implies no difference boxes, and vice versa.
// SourceMatch is false when the two images did not share dimensions
// and the SV side had to be resized before comparison; that mismatch
// is a signal in its own right, not something to normalize away.
type VisualDiffResult struct {
	SourceMatch      bool   `json:"source_match"`
	ContentMatch     bool   `json:"content_match"`
	DifferenceBBoxes []BBox `json:"difference_bboxes"`
}

// AuditedField is a RequiredField plus the fulfillment decision for it.
// AuditNotes quotes the exact extracted value whenever IsFulfilled is
// true for a value-bearing type.
type AuditedField struct {
	InputType   InputType `json:"input_type"`
	MarkerText  string    `json:"marker_text"`
	Description string    `json:"description"`
	IsFulfilled bool      `json:"is_fulfilled"`
	AuditNotes  string    `json:"audit_notes"`
}

// DifferenceType classifies an unauthorized content change.
type DifferenceType string

const (
	DifferenceAddition     DifferenceType = "addition"
	DifferenceDeletion     DifferenceType = "deletion"
	DifferenceModification DifferenceType = "modification"
)

// ContentDifference is a structural diff classified as an unauthorized
// change to static content.
type ContentDifference struct {
	NSVText        string         `json:"nsv_text"`
	SVText         string         `json:"sv_text"`
	DifferenceType DifferenceType `json:"difference_type"`
	Description    string         `json:"description"`
}

// PageStatus is the per-page verdict.
type PageStatus string

const (
	PageVerified        PageStatus = "Verified"
	PageInputMissing    PageStatus = "Input Missing"
	PageContentMismatch PageStatus = "Content Mismatch"
	PageBothFailures    PageStatus = "Input Missing and Content Mismatch"
)

// PageAuditResult is the complete audit outcome for one page.
type PageAuditResult struct {
	PageNumber         int                 `json:"page_number"`
	PageStatus         PageStatus          `json:"page_status"`
	RequiredInputs     []AuditedField      `json:"required_inputs"`
	ContentDifferences []ContentDifference `json:"content_differences"`
	VisualDiff         *VisualDiffResult   `json:"visual_diff,omitempty"`
}

// OverallStatus is the document-level outcome.
type OverallStatus string

const (
	OverallSuccess OverallStatus = "Success"
	OverallFailure OverallStatus = "Failure"
)

// VerificationReport is the final document-level report. OverallStatus
// is Failure iff any page status differs from Verified.
type VerificationReport struct {
	OverallStatus OverallStatus     `json:"overall_status"`
	NSVFilename   string            `json:"nsv_filename"`
	SVFilename    string            `json:"sv_filename"`
	PageCount     int               `json:"page_count"`
	PageResults   []PageAuditResult `json:"page_results"`
}
