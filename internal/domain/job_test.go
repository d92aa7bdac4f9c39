package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusQueued, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusQueued, StatusCompleted, false},
		{StatusQueued, StatusFailed, false},
		{StatusProcessing, StatusQueued, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusQueued, false},
		{StatusFailed, StatusProcessing, false},
		{StatusFailed, StatusCompleted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func fullMeta() Metadata {
	return Metadata{
		Mode:     ModeFull,
		Priority: PriorityNormal,
		QueuedAt: time.Now().UTC(),
	}
}

func TestNewJob(t *testing.T) {
	job, err := NewJob([]string{"emp-1", "emp-2"}, fullMeta())
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, 2, job.TotalUnits)
	assert.Equal(t, []string{"emp-1", "emp-2"}, job.UnitIDs)
	assert.Zero(t, job.ProgressPct)
}

func TestNewJob_RequiresUnits(t *testing.T) {
	_, err := NewJob(nil, fullMeta())
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestMetadataValidate(t *testing.T) {
	now := time.Now().UTC()
	resume := &ResumeParams{PlanRef: "plan-1", SourceArtifactID: "course-1"}

	tests := []struct {
		name string
		meta Metadata
		ok   bool
	}{
		{"full", Metadata{Mode: ModeFull, Priority: PriorityNormal, QueuedAt: now}, true},
		{"resume", Metadata{Mode: ModeResumeFromCheckpoint, Priority: PriorityHigh, QueuedAt: now, Resume: resume}, true},
		{"full with resume params", Metadata{Mode: ModeFull, Priority: PriorityNormal, QueuedAt: now, Resume: resume}, false},
		{"resume without params", Metadata{Mode: ModeResumeFromCheckpoint, Priority: PriorityHigh, QueuedAt: now}, false},
		{"resume without plan", Metadata{Mode: ModeResumeFromCheckpoint, Priority: PriorityHigh, QueuedAt: now, Resume: &ResumeParams{SourceArtifactID: "course-1"}}, false},
		{"unknown mode", Metadata{Mode: "partial", Priority: PriorityNormal, QueuedAt: now}, false},
		{"unknown priority", Metadata{Mode: ModeFull, Priority: "urgent", QueuedAt: now}, false},
		{"missing queued_at", Metadata{Mode: ModeFull, Priority: PriorityNormal}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
			}
		})
	}
}

func TestProgressUpdateValidate(t *testing.T) {
	job := &Job{
		ID:              "job-1",
		Status:          StatusProcessing,
		TotalUnits:      4,
		ProgressPct:     50,
		SuccessfulUnits: 1,
		FailedUnits:     1,
	}

	t.Run("monotonic advance", func(t *testing.T) {
		err := ProgressUpdate{Phase: "generating lessons", ProgressPct: 75, SuccessfulUnits: 2, FailedUnits: 1}.Validate(job)
		assert.NoError(t, err)
	})
	t.Run("percentage regression", func(t *testing.T) {
		err := ProgressUpdate{ProgressPct: 25, SuccessfulUnits: 2, FailedUnits: 1}.Validate(job)
		assert.True(t, IsConflict(err))
	})
	t.Run("counter regression", func(t *testing.T) {
		err := ProgressUpdate{ProgressPct: 75, SuccessfulUnits: 0, FailedUnits: 1}.Validate(job)
		assert.True(t, IsConflict(err))
	})
	t.Run("counters exceed total", func(t *testing.T) {
		err := ProgressUpdate{ProgressPct: 75, SuccessfulUnits: 3, FailedUnits: 2}.Validate(job)
		assert.True(t, IsValidation(err))
	})
	t.Run("percentage out of range", func(t *testing.T) {
		err := ProgressUpdate{ProgressPct: 110, SuccessfulUnits: 2, FailedUnits: 1}.Validate(job)
		assert.True(t, IsValidation(err))
	})
	t.Run("not processing", func(t *testing.T) {
		queued := &Job{ID: "job-2", Status: StatusQueued, TotalUnits: 1}
		err := ProgressUpdate{ProgressPct: 10}.Validate(queued)
		assert.True(t, IsConflict(err))
	})
}

func TestAllUnitsAccounted(t *testing.T) {
	job := &Job{TotalUnits: 3, SuccessfulUnits: 2, FailedUnits: 0}
	assert.False(t, job.AllUnitsAccounted())
	job.FailedUnits = 1
	assert.True(t, job.AllUnitsAccounted())
}
