package service

import (
	"fmt"
	"strings"

	"github.com/mnansary/DocSignerNML/model"
)

// AuditFields is the fulfillment decision core. Given the requirement
// catalog for a page and the structural diff between its NSV and SV
// text, it decides per required field whether the field was fulfilled,
// and classifies every diff not consumed by a field as an unauthorized
// content change.
//
// The central invariant: absence of a diff near a required marker is
// proof of non-fulfillment, never proof of fulfillment. A field is
// only ever marked fulfilled with an explicit, quotable extracted
// value (see fulfilledField).
func AuditFields(required []model.RequiredField, diffs []model.DiffEntry) ([]model.AuditedField, []model.ContentDifference) {
	audited := make([]model.AuditedField, 0, len(required))

	// An unchanged page can never fulfill anything; skip the per-field
	// search entirely.
	if len(diffs) == 0 {
		for _, field := range required {
			audited = append(audited, unfulfilledField(field, fmt.Sprintf(
				"page text is identical to the original; no value was ever entered for %q", field.MarkerText)))
		}
		return audited, nil
	}

	// claims[i] holds the marker texts that consumed diff entry i.
	claims := make(map[int][]string)

	for _, field := range required {
		idx := matchDiff(field.MarkerText, diffs, claims)
		if idx < 0 {
			audited = append(audited, unfulfilledField(field, fmt.Sprintf(
				"no change detected near marker %q; the field was never filled in", field.MarkerText)))
			continue
		}
		claims[idx] = append(claims[idx], field.MarkerText)
		audited = append(audited, auditMatchedField(field, diffs[idx]))
	}

	var contentDiffs []model.ContentDifference
	for i, entry := range diffs {
		markers, consumed := claims[i]
		if !consumed {
			contentDiffs = append(contentDiffs, classifyDiff(entry))
			continue
		}
		// A consumed entry may still carry changed lines outside the
		// matched fields' anchor lines; attribute those separately.
		contentDiffs = append(contentDiffs, spilloverDifferences(entry, markers)...)
	}

	return audited, contentDiffs
}

// matchDiff finds the earliest diff entry whose literal content on
// either side contains the marker and that has not already been
// claimed for the same marker. Duplicate labels on one page therefore
// bind to distinct entries in page order.
func matchDiff(marker string, diffs []model.DiffEntry, claims map[int][]string) int {
	for i, entry := range diffs {
		if !strings.Contains(entry.OriginalSpan.Content, marker) &&
			!strings.Contains(entry.NewSpan.Content, marker) {
			continue
		}
		if containsString(claims[i], marker) {
			continue
		}
		return i
	}
	return -1
}

// auditMatchedField parses the candidate value out of the SV side of
// the matched diff entry and applies type-specific validation.
func auditMatchedField(field model.RequiredField, entry model.DiffEntry) model.AuditedField {
	lineNo, line, ok := markerLine(entry.NewSpan, field.MarkerText)
	if !ok {
		return unfulfilledField(field, fmt.Sprintf(
			"the line carrying %q was removed in the signed version (original lines %d-%d)",
			field.MarkerText, entry.OriginalSpan.StartLine, entry.OriginalSpan.EndLine))
	}

	if field.InputType.ValueBearing() {
		value := valueAfterMarker(line, field.MarkerText)
		if value == "" {
			return unfulfilledField(field, fmt.Sprintf(
				"marker %q changed but no value follows it on signed line %d", field.MarkerText, lineNo))
		}
		return fulfilledField(field, value, fmt.Sprintf(
			"extracted value %q from signed line %d", value, lineNo))
	}

	// Presence types (signature, checkbox) only need a non-blank mark
	// on the marker line.
	mark := presenceMark(line, field.MarkerText)
	if mark == "" {
		return unfulfilledField(field, fmt.Sprintf(
			"no mark found near %q on signed line %d", field.MarkerText, lineNo))
	}
	return fulfilledField(field, mark, fmt.Sprintf(
		"mark present for %q: signed line %d reads %q", field.MarkerText, lineNo, line))
}

// fulfilledField is the only constructor for a fulfilled audit entry.
// It demands the literal extracted value up front, so a field can
// never be marked fulfilled without quotable evidence.
func fulfilledField(field model.RequiredField, value, notes string) model.AuditedField {
	if strings.TrimSpace(value) == "" {
		return unfulfilledField(field, fmt.Sprintf(
			"no extractable evidence for %q", field.MarkerText))
	}
	return model.AuditedField{
		InputType:   field.InputType,
		MarkerText:  field.MarkerText,
		Description: field.Description,
		IsFulfilled: true,
		AuditNotes:  notes,
	}
}

func unfulfilledField(field model.RequiredField, notes string) model.AuditedField {
	return model.AuditedField{
		InputType:   field.InputType,
		MarkerText:  field.MarkerText,
		Description: field.Description,
		IsFulfilled: false,
		AuditNotes:  notes,
	}
}

// markerLine locates the first line of the span containing the marker.
// The returned line number is absolute within the page.
func markerLine(span model.LineSpan, marker string) (int, string, bool) {
	for i, line := range splitLines(span.Content) {
		if strings.Contains(line, marker) {
			return span.StartLine + i, line, true
		}
	}
	return 0, "", false
}

// valueAfterMarker extracts the trimmed text following the marker on
// its line, with blank-field placeholders stripped.
func valueAfterMarker(line, marker string) string {
	idx := strings.Index(line, marker)
	if idx < 0 {
		return ""
	}
	return stripPlaceholders(line[idx+len(marker):])
}

// presenceMark returns whatever non-blank content remains on the line
// once the marker and blank-field placeholders are removed. Checkbox
// marks may precede their label, so the whole line is considered.
func presenceMark(line, marker string) string {
	remainder := strings.Replace(line, marker, "", 1)
	return stripPlaceholders(remainder)
}

// stripPlaceholders removes the glyphs templates use to draw an empty
// field: empty checkboxes, empty parens, and underscore runs at the
// edges. Interior underscores are kept so values like usernames or
// email addresses are quoted verbatim in the audit notes.
func stripPlaceholders(s string) string {
	s = strings.NewReplacer("□", "", "☐", "", "[ ]", "", "[]", "", "( )", "").Replace(s)
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "_")
	return strings.TrimSpace(s)
}

// classifyDiff turns an unconsumed diff entry into an unauthorized
// content change, carrying the literal text of both sides.
func classifyDiff(entry model.DiffEntry) model.ContentDifference {
	switch entry.ChangeType {
	case model.ChangeAddition:
		return model.ContentDifference{
			SVText:         entry.NewSpan.Content,
			DifferenceType: model.DifferenceAddition,
			Description: fmt.Sprintf("text added at lines %d-%d of the signed version",
				entry.NewSpan.StartLine, entry.NewSpan.EndLine),
		}
	case model.ChangeDeletion:
		return model.ContentDifference{
			NSVText:        entry.OriginalSpan.Content,
			DifferenceType: model.DifferenceDeletion,
			Description: fmt.Sprintf("text removed from lines %d-%d of the original",
				entry.OriginalSpan.StartLine, entry.OriginalSpan.EndLine),
		}
	default:
		return model.ContentDifference{
			NSVText:        entry.OriginalSpan.Content,
			SVText:         entry.NewSpan.Content,
			DifferenceType: model.DifferenceModification,
			Description: fmt.Sprintf("static text altered at lines %d-%d",
				entry.OriginalSpan.StartLine, entry.OriginalSpan.EndLine),
		}
	}
}

// spilloverDifferences reports line pairs inside a consumed diff entry
// that changed but carry none of the markers that consumed it. The
// authorized fill-in of a field never hides an adjacent tamper.
func spilloverDifferences(entry model.DiffEntry, markers []string) []model.ContentDifference {
	origLines := splitLines(entry.OriginalSpan.Content)
	newLines := splitLines(entry.NewSpan.Content)

	var out []model.ContentDifference
	for i := 0; i < max(len(origLines), len(newLines)); i++ {
		var origLine, svLine string
		if i < len(origLines) {
			origLine = origLines[i]
		}
		if i < len(newLines) {
			svLine = newLines[i]
		}
		if origLine == svLine {
			continue
		}
		if lineHasAnyMarker(origLine, markers) || lineHasAnyMarker(svLine, markers) {
			continue
		}
		switch {
		case origLine == "":
			out = append(out, model.ContentDifference{
				SVText:         svLine,
				DifferenceType: model.DifferenceAddition,
				Description:    "text added outside any required field",
			})
		case svLine == "":
			out = append(out, model.ContentDifference{
				NSVText:        origLine,
				DifferenceType: model.DifferenceDeletion,
				Description:    "text removed outside any required field",
			})
		default:
			out = append(out, model.ContentDifference{
				NSVText:        origLine,
				SVText:         svLine,
				DifferenceType: model.DifferenceModification,
				Description:    "static text altered outside any required field",
			})
		}
	}
	return out
}

func lineHasAnyMarker(line string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
