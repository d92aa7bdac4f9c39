package domain

import (
	"strings"
	"time"
)

// CaptureEvent is one inbound lead/demo submission. Front-end capture flows
// fire these repeatedly and partially for the same identity.
type CaptureEvent struct {
	Email          string
	Name           string
	Company        string
	CompanySize    string
	ReferralSource string
	StepCompleted  int
}

// Validate rejects events before any store access.
func (e CaptureEvent) Validate() error {
	if strings.TrimSpace(e.Email) == "" {
		return Validationf("capture identity (email) is required")
	}
	if e.StepCompleted < 0 {
		return Validationf("step_completed must be >= 0, got %d", e.StepCompleted)
	}
	return nil
}

// CaptureRecord is the merged identity built from repeated partial
// submissions. Version backs the optimistic concurrency check on writes.
type CaptureRecord struct {
	Email          string
	Name           string
	Company        string
	CompanySize    string
	ReferralSource string
	StepCompleted  int
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewCaptureRecord starts a record from the first sighting of an identity.
func NewCaptureRecord(e CaptureEvent) *CaptureRecord {
	now := time.Now().UTC()
	return &CaptureRecord{
		Email:          e.Email,
		Name:           e.Name,
		Company:        e.Company,
		CompanySize:    e.CompanySize,
		ReferralSource: e.ReferralSource,
		StepCompleted:  e.StepCompleted,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Merge folds an event into the record. step_completed is monotonically
// non-decreasing; attribute fields are patch-merged, an empty incoming value
// never erases captured data.
func (r *CaptureRecord) Merge(e CaptureEvent) {
	if e.StepCompleted > r.StepCompleted {
		r.StepCompleted = e.StepCompleted
	}
	r.Name = keepNonEmpty(e.Name, r.Name)
	r.Company = keepNonEmpty(e.Company, r.Company)
	r.CompanySize = keepNonEmpty(e.CompanySize, r.CompanySize)
	r.ReferralSource = keepNonEmpty(e.ReferralSource, r.ReferralSource)
	r.UpdatedAt = time.Now().UTC()
}

func keepNonEmpty(incoming, existing string) string {
	if strings.TrimSpace(incoming) != "" {
		return incoming
	}
	return existing
}
