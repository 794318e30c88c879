package model

import (
	"time"
)

// Verification represents one verification run: a signed document
// audited against its original blank version.
type Verification struct {
	ID          string              `json:"id"`
	Tenant      string              `json:"tenant"`
	NSVFilename string              `json:"nsv_filename"`
	SVFilename  string              `json:"sv_filename"`
	NSVObject   string              `json:"nsv_object,omitempty"`
	SVObject    string              `json:"sv_object,omitempty"`
	Status      string              `json:"status"` // pending, processing, completed, failed
	Report      *VerificationReport `json:"report,omitempty"`
	ErrorMsg    string              `json:"error_msg,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Verification status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)
