package service

import (
	"strings"

	"github.com/mnansary/DocSignerNML/model"
	"github.com/pmezard/go-difflib/difflib"
)

// StructuralDiff computes the line-level edit script between NSV and
// SV page text. Line granularity tolerates OCR jitter within a line
// while still localizing changes precisely enough for marker matching.
// The output is deterministic: one entry per maximal non-equal opcode
// block, in document order, with 1-indexed line ranges and the literal
// content of both sides. Equal blocks are omitted.
func StructuralDiff(nsvText, svText string) []model.DiffEntry {
	nsvLines := splitLines(nsvText)
	svLines := splitLines(svText)

	matcher := difflib.NewMatcher(nsvLines, svLines)

	var entries []model.DiffEntry
	for _, op := range matcher.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}

		var changeType model.ChangeType
		switch op.Tag {
		case 'i':
			changeType = model.ChangeAddition
		case 'd':
			changeType = model.ChangeDeletion
		default: // 'r'
			changeType = model.ChangeReplace
		}

		entries = append(entries, model.DiffEntry{
			ChangeType: changeType,
			OriginalSpan: model.LineSpan{
				StartLine: op.I1 + 1,
				EndLine:   op.I2,
				Content:   strings.Join(nsvLines[op.I1:op.I2], "\n"),
			},
			NewSpan: model.LineSpan{
				StartLine: op.J1 + 1,
				EndLine:   op.J2,
				Content:   strings.Join(svLines[op.J1:op.J2], "\n"),
			},
		})
	}

	return entries
}

// splitLines splits text into an ordered line sequence. An empty
// string yields an empty sequence, not a single empty line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.TrimSuffix(normalized, "\n")
	return strings.Split(normalized, "\n")
}
