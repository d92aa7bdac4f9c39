package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/you/courseq/internal/domain"
)

const assignmentColumns = `id, unit_id, artifact_id, owner_id, is_preview,
approval_status, created_at, updated_at`

// PreviewAssignment returns the single preview assignment for an artifact.
// A partial unique index enforces at most one preview per artifact.
func (s *Store) PreviewAssignment(ctx context.Context, artifactID string) (*domain.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+assignmentColumns+` from assignments
		  where artifact_id = $1 and is_preview`, artifactID)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("no preview assignment for artifact %s", artifactID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get preview assignment")
	}
	return a, nil
}

// ResumeJobForArtifact finds the resume job previously queued for an
// artifact, if any. Used to make resume idempotent after the preview flag
// has already been flipped.
func (s *Store) ResumeJobForArtifact(ctx context.Context, artifactID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `
select `+jobColumns+` from jobs
 where source_artifact_id = $1 and generation_mode = $2
 order by created_at desc
 limit 1`, artifactID, domain.ModeResumeFromCheckpoint)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("no resume job for artifact %s", artifactID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get resume job")
	}
	return j, nil
}

// EnqueueResumeJob inserts the resume job and flips the preview assignment to
// approved in one transaction. The assignment update is conditioned on
// is_preview so a replay that lost the race is a conflict, not a double flip.
func (s *Store) EnqueueResumeJob(ctx context.Context, j *domain.Job, assignmentID string) error {
	unitIDs, err := json.Marshal(j.UnitIDs)
	if err != nil {
		return errors.Wrap(err, "marshal unit ids")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin resume tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `insert into jobs(
id, status, total_units, unit_ids, current_phase,
progress_pct, successful_units, failed_units, failure_reason,
generation_mode, priority, resume_plan_ref, source_artifact_id,
estimated_duration_secs, queued_at, created_at, updated_at
) values ($1,$2,$3,$4,'',0,0,0,'',$5,$6,$7,$8,$9,$10,$11,$12)`,
		j.ID, j.Status, j.TotalUnits, unitIDs,
		j.Metadata.Mode, j.Metadata.Priority,
		nullString(resumePlanRef(j)), nullString(sourceArtifactID(j)),
		int(j.Metadata.EstimatedDuration.Seconds()),
		j.Metadata.QueuedAt, j.CreatedAt, j.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.Conflictf("job %s already exists", j.ID)
		}
		return errors.Wrap(err, "insert resume job")
	}

	res, err := tx.ExecContext(ctx, `
update assignments set is_preview = false,
                       approval_status = $2,
                       updated_at = now()
 where id = $1 and is_preview`,
		assignmentID, domain.ApprovalApproved)
	if err != nil {
		return errors.Wrap(err, "approve assignment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return domain.Conflictf("assignment %s is no longer a preview", assignmentID)
	}

	return errors.Wrap(tx.Commit(), "commit resume tx")
}

func scanAssignment(row rowScanner) (*domain.Assignment, error) {
	var a domain.Assignment
	if err := row.Scan(
		&a.ID, &a.UnitID, &a.ArtifactID, &a.OwnerID, &a.IsPreview,
		&a.ApprovalStatus, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}
