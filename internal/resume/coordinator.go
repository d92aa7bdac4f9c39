// Package resume turns an approved preview into a queued job that continues
// generation from its checkpoint instead of starting over.
package resume

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/you/courseq/internal/domain"
)

// Store is the slice of storage the coordinator needs.
type Store interface {
	PreviewAssignment(ctx context.Context, artifactID string) (*domain.Assignment, error)
	ResumeJobForArtifact(ctx context.Context, artifactID string) (*domain.Job, error)
	// EnqueueResumeJob inserts the job and flips the assignment to approved.
	// The Postgres implementation does both in one transaction; idempotent
	// replay below is the safety net for stores that cannot.
	EnqueueResumeJob(ctx context.Context, j *domain.Job, assignmentID string) error
}

type Coordinator struct {
	store Store
	log   *zap.SugaredLogger
	now   func() time.Time
}

func New(store Store, log *zap.SugaredLogger) *Coordinator {
	return NewWithClock(store, log, time.Now)
}

// NewWithClock fixes the coordinator's clock for deterministic queued_at
// stamps in tests.
func NewWithClock(store Store, log *zap.SugaredLogger, now func() time.Time) *Coordinator {
	return &Coordinator{store: store, log: log, now: now}
}

// estimate for a single-course continuation; the full pass already happened
const resumeEstimate = 5 * time.Minute

// Resume queues a continuation job for the approved preview of artifactID
// and marks the assignment approved. Returns the new job's id.
//
// Idempotent on artifactID: a second invocation finds the preview flag
// already cleared and returns the previously queued job instead of failing
// or queueing a duplicate. A human has already invested attention in an
// approved preview, so resume jobs go in at high priority.
func (c *Coordinator) Resume(ctx context.Context, artifactID, checkpointRef string) (string, error) {
	if artifactID == "" {
		return "", domain.Validationf("artifact id is required")
	}
	if checkpointRef == "" {
		return "", domain.Validationf("checkpoint reference is required")
	}

	assignment, err := c.store.PreviewAssignment(ctx, artifactID)
	if domain.IsNotFound(err) {
		// Either the artifact never had a preview, or a previous run
		// already flipped it. A queued resume job distinguishes the two.
		prior, jerr := c.store.ResumeJobForArtifact(ctx, artifactID)
		switch {
		case jerr == nil:
			c.log.Infow("resume replayed, returning existing job",
				"artifact_id", artifactID, "job_id", prior.ID)
			return prior.ID, nil
		case domain.IsNotFound(jerr):
			return "", err
		default:
			// A failed replay check is a store problem, not a missing
			// preview; reporting NotFound here would hide it.
			return "", jerr
		}
	}
	if err != nil {
		return "", err
	}

	job, err := domain.NewJob([]string{assignment.UnitID}, domain.Metadata{
		Mode:     domain.ModeResumeFromCheckpoint,
		Priority: domain.PriorityHigh,
		QueuedAt: c.now().UTC(),
		Resume: &domain.ResumeParams{
			PlanRef:          checkpointRef,
			SourceArtifactID: artifactID,
		},
		EstimatedDuration: resumeEstimate,
	})
	if err != nil {
		return "", err
	}

	if err := c.store.EnqueueResumeJob(ctx, job, assignment.ID); err != nil {
		return "", err
	}

	c.log.Infow("resume job queued",
		"job_id", job.ID,
		"artifact_id", artifactID,
		"unit_id", assignment.UnitID,
		"checkpoint", checkpointRef)
	return job.ID, nil
}
