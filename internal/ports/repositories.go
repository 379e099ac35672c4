package ports

import (
	"context"
	"time"

	"croaudit/internal/domain"
)

// SiteRepository stores audited sites by registrable domain (eTLD+1).
type SiteRepository interface {
	GetOrCreate(ctx context.Context, registrable string) (siteID string, err error)
}

// SessionRecord is the persisted trace of one scan.
type SessionRecord struct {
	ID            string
	SiteID        string
	Inputs        domain.AuditInputs
	Status        domain.ScanStatus
	State         domain.SessionState
	AuditID       string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SessionRepository tracks scan sessions from start to a terminal status.
type SessionRepository interface {
	Create(ctx context.Context, siteID string, in domain.AuditInputs) (scanID string, err error)
	UpdateProgress(ctx context.Context, scanID string, state domain.SessionState) error
	MarkCompleted(ctx context.Context, scanID, auditID string) error
	MarkFailed(ctx context.Context, scanID, reason string) error
	MarkCancelled(ctx context.Context, scanID string) error
	Get(ctx context.Context, scanID string) (SessionRecord, error)
}

// ReportRepository keeps finalized reports by audit id.
type ReportRepository interface {
	Save(ctx context.Context, scanID string, report domain.AuditReport) error
	Get(ctx context.Context, auditID string) (domain.AuditReport, error)
}

// ContactRepository stores leads. Save is idempotent on (audit id, email);
// created is false when the pair was already stored.
type ContactRepository interface {
	Save(ctx context.Context, c domain.Contact) (created bool, err error)
}
