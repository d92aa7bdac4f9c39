// Package capture merges repeated partial lead submissions into one record
// per identity. Capture forms fire on every step, so the same email arrives
// many times with different subsets of fields filled in.
package capture

import (
	"context"

	"go.uber.org/zap"

	"github.com/you/courseq/internal/domain"
)

// Store is the slice of storage the merger needs.
type Store interface {
	GetCapture(ctx context.Context, email string) (*domain.CaptureRecord, error)
	InsertCapture(ctx context.Context, r *domain.CaptureRecord) error
	// UpdateCapture fails with a conflict when the record's version moved
	// underneath the caller.
	UpdateCapture(ctx context.Context, r *domain.CaptureRecord) error
}

type Merger struct {
	store      Store
	maxRetries int
	log        *zap.SugaredLogger
}

func New(store Store, maxRetries int, log *zap.SugaredLogger) *Merger {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Merger{store: store, maxRetries: maxRetries, log: log}
}

// Merge folds one capture event into the record for its identity and returns
// the merged result. The read-modify-write is optimistic: a version conflict
// means another submission landed first, so we re-read and fold again. Both
// submissions' fields survive either ordering.
func (m *Merger) Merge(ctx context.Context, ev domain.CaptureEvent) (*domain.CaptureRecord, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		rec, err := m.merge(ctx, ev)
		if err == nil {
			return rec, nil
		}
		if !domain.IsConflict(err) {
			return nil, err
		}
		lastErr = err
		m.log.Debugw("capture merge conflict, retrying",
			"email", ev.Email, "attempt", attempt+1)
	}
	m.log.Warnw("capture merge retries exhausted",
		"email", ev.Email, "retries", m.maxRetries, "error", lastErr)
	return nil, lastErr
}

func (m *Merger) merge(ctx context.Context, ev domain.CaptureEvent) (*domain.CaptureRecord, error) {
	existing, err := m.store.GetCapture(ctx, ev.Email)
	switch {
	case domain.IsNotFound(err):
		rec := domain.NewCaptureRecord(ev)
		if err := m.store.InsertCapture(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	case err != nil:
		return nil, err
	}

	existing.Merge(ev)
	if err := m.store.UpdateCapture(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}
