package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ValidStatus reports whether s is a known job status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether a job in this status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo validates the state machine: queued -> processing ->
// {completed | failed}. Terminal states have no outgoing transitions; a retry
// is a new job, never a resurrected one.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

type GenerationMode string

const (
	ModeFull                 GenerationMode = "full"
	ModeResumeFromCheckpoint GenerationMode = "resume_from_checkpoint"
)

// ResumeParams carries the fields that only exist for
// resume_from_checkpoint jobs.
type ResumeParams struct {
	// PlanRef points at the partial plan produced by the preview run.
	PlanRef string
	// SourceArtifactID is the preview artifact being continued.
	SourceArtifactID string
}

// Metadata is the scheduling envelope of a job. It is a closed structure
// keyed on Mode rather than an open key/value bag: full-mode jobs carry no
// Resume block, resume jobs must carry one.
type Metadata struct {
	Mode              GenerationMode
	Priority          Priority
	QueuedAt          time.Time
	EstimatedDuration time.Duration
	Resume            *ResumeParams
}

// Validate checks mode/variant coherence.
func (m Metadata) Validate() error {
	switch m.Mode {
	case ModeFull:
		if m.Resume != nil {
			return Validationf("full generation carries no resume parameters")
		}
	case ModeResumeFromCheckpoint:
		if m.Resume == nil || m.Resume.PlanRef == "" || m.Resume.SourceArtifactID == "" {
			return Validationf("resume generation requires plan reference and source artifact")
		}
	default:
		return Validationf("unknown generation mode %q", m.Mode)
	}
	switch m.Priority {
	case PriorityNormal, PriorityHigh:
	default:
		return Validationf("unknown priority %q", m.Priority)
	}
	if m.QueuedAt.IsZero() {
		return Validationf("queued_at is required")
	}
	return nil
}

// Job is one unit of course-generation work. Rows are an append-only audit
// trail: jobs terminalize, they are never deleted.
type Job struct {
	ID              string
	Status          Status
	TotalUnits      int
	UnitIDs         []string
	CurrentPhase    string
	ProgressPct     int
	SuccessfulUnits int
	FailedUnits     int
	FailureReason   string
	Metadata        Metadata
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// NewJob builds a queued job for the given units.
func NewJob(unitIDs []string, meta Metadata) (*Job, error) {
	if len(unitIDs) == 0 {
		return nil, Validationf("job requires at least one unit")
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Job{
		ID:         uuid.NewString(),
		Status:     StatusQueued,
		TotalUnits: len(unitIDs),
		UnitIDs:    unitIDs,
		Metadata:   meta,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ProgressUpdate is a processor-reported progress write. Applied only while
// the job is processing; percentage and counters may never regress.
type ProgressUpdate struct {
	Phase           string
	ProgressPct     int
	SuccessfulUnits int
	FailedUnits     int
}

// Validate checks the update against the job it targets.
func (p ProgressUpdate) Validate(j *Job) error {
	if j.Status != StatusProcessing {
		return Conflictf("progress writes require status %s, job %s is %s", StatusProcessing, j.ID, j.Status)
	}
	if p.ProgressPct < 0 || p.ProgressPct > 100 {
		return Validationf("progress percentage %d out of range", p.ProgressPct)
	}
	if p.ProgressPct < j.ProgressPct {
		return Conflictf("progress percentage may not regress (%d -> %d)", j.ProgressPct, p.ProgressPct)
	}
	if p.SuccessfulUnits < j.SuccessfulUnits || p.FailedUnits < j.FailedUnits {
		return Conflictf("unit counters may not regress")
	}
	if p.SuccessfulUnits+p.FailedUnits > j.TotalUnits {
		return Validationf("unit counters exceed total of %d", j.TotalUnits)
	}
	return nil
}

// AllUnitsAccounted reports whether every unit has landed in a counter,
// the precondition for completing the job.
func (j *Job) AllUnitsAccounted() bool {
	return j.SuccessfulUnits+j.FailedUnits == j.TotalUnits
}
