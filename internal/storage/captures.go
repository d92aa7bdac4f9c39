package storage

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/you/courseq/internal/domain"
)

const captureColumns = `email, name, company, company_size, referral_source,
step_completed, version, created_at, updated_at`

// GetCapture fetches the merged record for an identity.
func (s *Store) GetCapture(ctx context.Context, email string) (*domain.CaptureRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+captureColumns+` from captures where email = $1`, email)
	var r domain.CaptureRecord
	err := row.Scan(
		&r.Email, &r.Name, &r.Company, &r.CompanySize, &r.ReferralSource,
		&r.StepCompleted, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("no capture record for %s", email)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get capture")
	}
	return &r, nil
}

// InsertCapture creates the first record for an identity. A concurrent first
// sighting of the same identity surfaces as a conflict for the merger to
// retry against the now-existing row.
func (s *Store) InsertCapture(ctx context.Context, r *domain.CaptureRecord) error {
	_, err := s.db.ExecContext(ctx, `insert into captures(
email, name, company, company_size, referral_source,
step_completed, version, created_at, updated_at
) values ($1,$2,$3,$4,$5,$6,1,$7,$8)`,
		r.Email, r.Name, r.Company, r.CompanySize, r.ReferralSource,
		r.StepCompleted, r.CreatedAt, r.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.Conflictf("capture record for %s already exists", r.Email)
	}
	return errors.Wrap(err, "insert capture")
}

// UpdateCapture writes a merged record guarded by the version read during the
// merge. A concurrent writer bumps the version first and this write matches
// nothing; the merger re-reads and retries.
func (s *Store) UpdateCapture(ctx context.Context, r *domain.CaptureRecord) error {
	res, err := s.db.ExecContext(ctx, `
update captures set name = $2,
                    company = $3,
                    company_size = $4,
                    referral_source = $5,
                    step_completed = $6,
                    version = version + 1,
                    updated_at = $7
 where email = $1 and version = $8`,
		r.Email, r.Name, r.Company, r.CompanySize, r.ReferralSource,
		r.StepCompleted, r.UpdatedAt, r.Version,
	)
	if err != nil {
		return errors.Wrap(err, "update capture")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return domain.Conflictf("capture record for %s changed concurrently", r.Email)
	}
	r.Version++
	return nil
}
