package domain

import "time"

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Assignment links a unit of work (an employee) to a produced artifact (a
// course) and its approval workflow. At most one assignment per artifact may
// be a preview: a preview is a single checkpoint awaiting approval, not a
// queue. The only mutation this subsystem performs is the approval flip on
// resume.
type Assignment struct {
	ID             string
	UnitID         string
	ArtifactID     string
	OwnerID        string
	IsPreview      bool
	ApprovalStatus ApprovalStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
