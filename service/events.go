package service

import "github.com/mnansary/DocSignerNML/model"

// EventType labels one element of the verification progress stream.
type EventType string

const (
	// EventStatus is a coarse progress update.
	EventStatus EventType = "status"
	// EventPageRequirements carries the phase-1 catalog for one page.
	EventPageRequirements EventType = "page_requirements"
	// EventPageResult carries the phase-2 audit result for one page.
	EventPageResult EventType = "page_result"
	// EventComplete is the terminal event of a run whose report passed.
	EventComplete EventType = "complete"
	// EventFailed is the terminal event of a run whose report failed.
	// The engine may abort early, so consumers must not assume all
	// pages were audited before receiving it.
	EventFailed EventType = "failed"
	// EventError is the terminal event of a run that could not finish.
	EventError EventType = "error"
)

// Event is one element of the ordered progress stream a verification
// run emits. Events arrive in emission order; the stream is finite,
// ends with exactly one terminal event, and is not restartable.
type Event struct {
	Type         EventType                 `json:"type"`
	Message      string                    `json:"message,omitempty"`
	Page         int                       `json:"page,omitempty"`
	Requirements *model.PageRequirements   `json:"requirements,omitempty"`
	PageResult   *model.PageAuditResult    `json:"page_result,omitempty"`
	Report       *model.VerificationReport `json:"report,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventFailed || e.Type == EventError
}
