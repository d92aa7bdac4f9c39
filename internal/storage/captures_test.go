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

func TestGetCapture(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("from captures where email").
		WillReturnRows(sqlmock.NewRows([]string{
			"email", "name", "company", "company_size", "referral_source",
			"step_completed", "version", "created_at", "updated_at",
		}).AddRow("a@x.com", "Ada", "Acme", "", "webinar", 3, 2, now, now))

	rec, err := store.GetCapture(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada", rec.Name)
	assert.Equal(t, 3, rec.StepCompleted)
	assert.Equal(t, 2, rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCapture_NotFound(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("from captures where email").WillReturnError(sql.ErrNoRows)

	_, err := store.GetCapture(context.Background(), "b@x.com")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestUpdateCapture_VersionConflict(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("update captures set name").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := &domain.CaptureRecord{Email: "a@x.com", Version: 1, UpdatedAt: time.Now().UTC()}
	err := store.UpdateCapture(context.Background(), rec)
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.Equal(t, 1, rec.Version, "version must not bump on a rejected write")
}

func TestUpdateCapture_BumpsVersion(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("update captures set name").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &domain.CaptureRecord{Email: "a@x.com", Version: 1, UpdatedAt: time.Now().UTC()}
	require.NoError(t, store.UpdateCapture(context.Background(), rec))
	assert.Equal(t, 2, rec.Version)
}
