package ports

import (
	"context"
	"io"

	"croaudit/internal/domain"
)

// SessionView is what callers see of a scan: the live state while it runs,
// the last persisted state afterwards.
type SessionView struct {
	ScanID  string
	Status  domain.ScanStatus
	State   domain.SessionState
	AuditID string
	Error   string
}

// Auditor starts and tracks audit scans.
type Auditor interface {
	Start(ctx context.Context, in domain.AuditInputs) (scanID string, err error)
	Status(ctx context.Context, scanID string) (SessionView, error)
	Cancel(ctx context.Context, scanID string) error
	Wait(ctx context.Context, scanID string) (domain.AuditReport, error)
	Report(ctx context.Context, auditID string) (domain.AuditReport, error)
}

// Contacts captures leads against finished audits.
type Contacts interface {
	Submit(ctx context.Context, c domain.Contact) (created bool, err error)
}

// Screenshots serves the image behind a screenshot reference.
type Screenshots interface {
	Fetch(ctx context.Context, websiteURL string) (body io.ReadCloser, contentType string, err error)
}
