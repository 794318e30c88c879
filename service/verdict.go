package service

import "github.com/mnansary/DocSignerNML/model"

// ResolvePageStatus combines per-field fulfillment and content
// difference findings into one of the four page statuses. A page with
// zero required fields counts as all-fulfilled.
func ResolvePageStatus(audited []model.AuditedField, contentDiffs []model.ContentDifference) model.PageStatus {
	allFulfilled := true
	for _, field := range audited {
		if !field.IsFulfilled {
			allFulfilled = false
			break
		}
	}
	noDiffs := len(contentDiffs) == 0

	switch {
	case allFulfilled && noDiffs:
		return model.PageVerified
	case !allFulfilled && noDiffs:
		return model.PageInputMissing
	case allFulfilled && !noDiffs:
		return model.PageContentMismatch
	default:
		return model.PageBothFailures
	}
}

// AggregateReport folds all page verdicts into the document-level
// outcome: Success iff every page verified. pageCount is the document
// page count, which may exceed len(pageResults) when the pipeline
// aborted on a definitive failure.
func AggregateReport(nsvFilename, svFilename string, pageCount int, pageResults []model.PageAuditResult) *model.VerificationReport {
	status := model.OverallSuccess
	for _, result := range pageResults {
		if result.PageStatus != model.PageVerified {
			status = model.OverallFailure
			break
		}
	}

	return &model.VerificationReport{
		OverallStatus: status,
		NSVFilename:   nsvFilename,
		SVFilename:    svFilename,
		PageCount:     pageCount,
		PageResults:   pageResults,
	}
}
