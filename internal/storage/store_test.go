package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/courseq/internal/domain"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

var jobCols = []string{
	"id", "status", "total_units", "unit_ids", "current_phase",
	"progress_pct", "successful_units", "failed_units", "failure_reason",
	"generation_mode", "priority", "resume_plan_ref", "source_artifact_id",
	"estimated_duration_secs", "queued_at", "created_at", "updated_at",
	"started_at", "completed_at",
}

func jobRow(id string, status domain.Status, mode domain.GenerationMode) *sqlmock.Rows {
	now := time.Now().UTC()
	planRef, artifact := any(nil), any(nil)
	if mode == domain.ModeResumeFromCheckpoint {
		planRef, artifact = "plan-v1", "course-42"
	}
	return sqlmock.NewRows(jobCols).AddRow(
		id, string(status), 1, []byte(`["emp-7"]`), "outlining",
		10, 0, 0, "",
		string(mode), string(domain.PriorityHigh), planRef, artifact,
		300, now, now, now, nil, nil,
	)
}

func TestHasPendingWork(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("select exists").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	pending, err := store.HasPendingWork(context.Background())
	require.NoError(t, err)
	assert.True(t, pending)

	mock.ExpectQuery("select exists").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	pending, err = store.HasPendingWork(context.Background())
	require.NoError(t, err)
	assert.False(t, pending)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// claimQuery pins the shape that makes the claim safe and fair: the
// conditional status flip, priority served before age with FIFO ties, and
// the skip-locked row lock that keeps two claimers off the same job.
const claimQuery = `update jobs set status = \$1, started_at = now\(\).*` +
	`order by \(priority = \$3\) desc, queued_at asc, id asc ` +
	`limit 1 for update skip locked\) and status = \$2 returning`

func TestClaimNext_EmptyQueue(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(claimQuery).WillReturnError(sql.ErrNoRows)

	job, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job, "empty queue claims nothing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNext_ReturnsClaimedJob(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(claimQuery).
		WillReturnRows(jobRow("job-1", domain.StatusProcessing, domain.ModeResumeFromCheckpoint))

	job, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, domain.StatusProcessing, job.Status)
	assert.Equal(t, []string{"emp-7"}, job.UnitIDs)
	require.NotNil(t, job.Metadata.Resume)
	assert.Equal(t, "plan-v1", job.Metadata.Resume.PlanRef)
	assert.Equal(t, "course-42", job.Metadata.Resume.SourceArtifactID)
	assert.Equal(t, 5*time.Minute, job.Metadata.EstimatedDuration)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertJob_MustBeQueued(t *testing.T) {
	store, _ := newMock(t)

	err := store.InsertJob(context.Background(), &domain.Job{
		ID:     "job-1",
		Status: domain.StatusProcessing,
	})
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
}

func TestInsertJob(t *testing.T) {
	store, mock := newMock(t)

	job, err := domain.NewJob([]string{"emp-1"}, domain.Metadata{
		Mode:     domain.ModeFull,
		Priority: domain.PriorityNormal,
		QueuedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	mock.ExpectExec("insert into jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.InsertJob(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProgress_RejectedWriteIsConflict(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("update jobs set current_phase").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("from jobs where id").
		WillReturnRows(jobRow("job-1", domain.StatusCompleted, domain.ModeFull))

	err := store.UpdateProgress(context.Background(), "job-1", domain.ProgressUpdate{
		Phase:       "generating",
		ProgressPct: 50,
	})
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProgress_MissingJobIsNotFound(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("update jobs set current_phase").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("from jobs where id").WillReturnError(sql.ErrNoRows)

	err := store.UpdateProgress(context.Background(), "ghost", domain.ProgressUpdate{ProgressPct: 10})
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteJob(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("update jobs set status").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.CompleteJob(context.Background(), "job-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailJob_RequiresReason(t *testing.T) {
	store, _ := newMock(t)

	err := store.FailJob(context.Background(), "job-1", "")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestEnqueueResumeJob_CommitsInsertAndApproval(t *testing.T) {
	store, mock := newMock(t)

	job, err := domain.NewJob([]string{"emp-7"}, domain.Metadata{
		Mode:     domain.ModeResumeFromCheckpoint,
		Priority: domain.PriorityHigh,
		QueuedAt: time.Now().UTC(),
		Resume:   &domain.ResumeParams{PlanRef: "plan-v1", SourceArtifactID: "course-42"},
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("insert into jobs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update assignments set is_preview").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.EnqueueResumeJob(context.Background(), job, "asg-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueResumeJob_AlreadyFlippedRollsBack(t *testing.T) {
	store, mock := newMock(t)

	job, err := domain.NewJob([]string{"emp-7"}, domain.Metadata{
		Mode:     domain.ModeResumeFromCheckpoint,
		Priority: domain.PriorityHigh,
		QueuedAt: time.Now().UTC(),
		Resume:   &domain.ResumeParams{PlanRef: "plan-v1", SourceArtifactID: "course-42"},
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("insert into jobs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update assignments set is_preview").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = store.EnqueueResumeJob(context.Background(), job, "asg-1")
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreviewAssignment_NotFound(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("from assignments").WillReturnError(sql.ErrNoRows)

	_, err := store.PreviewAssignment(context.Background(), "course-42")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
