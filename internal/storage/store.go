// Package storage persists jobs, assignments and capture records in Postgres
// (source of truth). Redis only ever carries advisory signals derived from
// these tables.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/you/courseq/internal/domain"
)

type Store struct{ db *sql.DB }

func New(db *sql.DB) *Store { return &Store{db} }

const jobColumns = `id, status, total_units, unit_ids, current_phase,
progress_pct, successful_units, failed_units, failure_reason,
generation_mode, priority, resume_plan_ref, source_artifact_id,
estimated_duration_secs, queued_at, created_at, updated_at, started_at, completed_at`

// InsertJob persists a new job. Jobs always enter in status queued.
func (s *Store) InsertJob(ctx context.Context, j *domain.Job) error {
	if j.Status != domain.StatusQueued {
		return domain.Conflictf("job %s must be inserted as %s, got %s", j.ID, domain.StatusQueued, j.Status)
	}
	unitIDs, err := json.Marshal(j.UnitIDs)
	if err != nil {
		return errors.Wrap(err, "marshal unit ids")
	}
	_, err = s.db.ExecContext(ctx, `insert into jobs(
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
	)
	if isUniqueViolation(err) {
		return domain.Conflictf("job %s already exists", j.ID)
	}
	return errors.Wrap(err, "insert job")
}

// HasPendingWork reports whether at least one queued job exists. This is the
// scheduler's trigger predicate: cheap to ask, authoritative.
func (s *Store) HasPendingWork(ctx context.Context) (bool, error) {
	var pending bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from jobs where status = $1)`,
		domain.StatusQueued).Scan(&pending)
	return pending, errors.Wrap(err, "check pending work")
}

// ClaimNext atomically moves the next queued job to processing and returns
// it, or (nil, nil) when the queue is empty. High-priority jobs are served
// strictly before normal ones; ties break on queued_at ascending, so normal
// jobs drain in FIFO order once the high lane is empty. The conditional
// update plus SKIP LOCKED guarantees exactly one claimer per job.
func (s *Store) ClaimNext(ctx context.Context) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `
update jobs set status = $1, started_at = now(), updated_at = now()
 where id = (
       select id from jobs
        where status = $2
        order by (priority = $3) desc, queued_at asc, id asc
        limit 1
          for update skip locked)
   and status = $2
returning `+jobColumns,
		domain.StatusProcessing, domain.StatusQueued, domain.PriorityHigh)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "claim next job")
	}
	return j, nil
}

// UpdateProgress applies a processor progress report. The write is guarded in
// SQL so a stale or regressing report can never land: status must still be
// processing and percentage/counters must be monotonic.
func (s *Store) UpdateProgress(ctx context.Context, jobID string, p domain.ProgressUpdate) error {
	if p.ProgressPct < 0 || p.ProgressPct > 100 {
		return domain.Validationf("progress percentage %d out of range", p.ProgressPct)
	}
	res, err := s.db.ExecContext(ctx, `
update jobs set current_phase = $2,
                progress_pct = $3,
                successful_units = $4,
                failed_units = $5,
                updated_at = now()
 where id = $1
   and status = $6
   and progress_pct <= $3
   and successful_units <= $4
   and failed_units <= $5
   and $4 + $5 <= total_units`,
		jobID, p.Phase, p.ProgressPct, p.SuccessfulUnits, p.FailedUnits,
		domain.StatusProcessing)
	if err != nil {
		return errors.Wrap(err, "update job progress")
	}
	return s.explainNoRows(ctx, res, jobID, "progress write rejected")
}

// CompleteJob terminalizes a processing job whose every unit is accounted
// for in the success/failure counters.
func (s *Store) CompleteJob(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `
update jobs set status = $2,
                progress_pct = 100,
                completed_at = now(),
                updated_at = now()
 where id = $1
   and status = $3
   and successful_units + failed_units = total_units`,
		jobID, domain.StatusCompleted, domain.StatusProcessing)
	if err != nil {
		return errors.Wrap(err, "complete job")
	}
	return s.explainNoRows(ctx, res, jobID, "completion rejected")
}

// FailJob terminalizes a processing job with a human-readable reason.
func (s *Store) FailJob(ctx context.Context, jobID, reason string) error {
	if reason == "" {
		return domain.Validationf("a failure reason is required")
	}
	res, err := s.db.ExecContext(ctx, `
update jobs set status = $2,
                failure_reason = $3,
                completed_at = now(),
                updated_at = now()
 where id = $1
   and status = $4`,
		jobID, domain.StatusFailed, reason, domain.StatusProcessing)
	if err != nil {
		return errors.Wrap(err, "fail job")
	}
	return s.explainNoRows(ctx, res, jobID, "failure rejected")
}

// GetJob fetches one job for inspection.
func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+jobColumns+` from jobs where id = $1`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("job %s not found", jobID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get job")
	}
	return j, nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, status *domain.Status, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows *sql.Rows
		err  error
	)
	if status != nil {
		if !domain.ValidStatus(*status) {
			return nil, domain.Validationf("unknown status %q", *status)
		}
		rows, err = s.db.QueryContext(ctx,
			`select `+jobColumns+` from jobs where status = $1 order by created_at desc limit $2`,
			*status, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`select `+jobColumns+` from jobs order by created_at desc limit $1`, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		out = append(out, j)
	}
	return out, errors.Wrap(rows.Err(), "list jobs")
}

// explainNoRows classifies a guarded update that matched nothing: either the
// job is gone (NotFound) or its current state rejected the write (Conflict).
func (s *Store) explainNoRows(ctx context.Context, res sql.Result, jobID, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n > 0 {
		return nil
	}
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return domain.Conflictf("%s: job %s is %s", what, jobID, j.Status)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		j                 domain.Job
		unitIDs           []byte
		planRef, artifact sql.NullString
		estimatedSecs     int
		startedAt         sql.NullTime
		completedAt       sql.NullTime
	)
	if err := row.Scan(
		&j.ID, &j.Status, &j.TotalUnits, &unitIDs, &j.CurrentPhase,
		&j.ProgressPct, &j.SuccessfulUnits, &j.FailedUnits, &j.FailureReason,
		&j.Metadata.Mode, &j.Metadata.Priority, &planRef, &artifact,
		&estimatedSecs, &j.Metadata.QueuedAt, &j.CreatedAt, &j.UpdatedAt,
		&startedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(unitIDs, &j.UnitIDs); err != nil {
		return nil, errors.Wrap(err, "unmarshal unit ids")
	}
	j.Metadata.EstimatedDuration = time.Duration(estimatedSecs) * time.Second
	if j.Metadata.Mode == domain.ModeResumeFromCheckpoint {
		j.Metadata.Resume = &domain.ResumeParams{
			PlanRef:          planRef.String,
			SourceArtifactID: artifact.String,
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func resumePlanRef(j *domain.Job) string {
	if j.Metadata.Resume != nil {
		return j.Metadata.Resume.PlanRef
	}
	return ""
}

func sourceArtifactID(j *domain.Job) string {
	if j.Metadata.Resume != nil {
		return j.Metadata.Resume.SourceArtifactID
	}
	return ""
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
