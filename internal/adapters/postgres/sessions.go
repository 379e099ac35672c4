package postgres

import (
	"context"
	"time"

	"croaudit/internal/domain"
	"croaudit/internal/ports"
)

// Sessions implements ports.SessionRepository over audit_sessions.
type Sessions struct{ db *DB }

func NewSessions(db *DB) *Sessions { return &Sessions{db: db} }

func (s *Sessions) Create(ctx context.Context, siteID string, in domain.AuditInputs) (string, error) {
	var id string
	err := s.db.Pool.QueryRow(ctx, `
        INSERT INTO audit_sessions (site_id, inputs, status)
        VALUES ($1, $2, 'running')
        RETURNING id::text
    `, siteID, in).Scan(&id)
	return id, translate(err)
}

// UpdateProgress only touches running sessions so a late write cannot undo a
// terminal status.
func (s *Sessions) UpdateProgress(ctx context.Context, scanID string, st domain.SessionState) error {
	checklist := st.RevealedChecklist
	if checklist == nil {
		checklist = []string{}
	}
	_, err := s.db.Pool.Exec(ctx, `
        UPDATE audit_sessions
        SET progress=$2, elapsed_ms=$3, phase_label=$4, phase_tag=$5,
            revealed_checklist=$6, issues_found=$7, screenshot_url=$8, updated_at=now()
        WHERE id=$1 AND status='running'
    `, scanID, st.Progress, st.ElapsedMS, st.CurrentPhaseLabel, st.CurrentPhaseTag,
		checklist, st.IssuesFound, st.ScreenshotURL)
	return translate(err)
}

func (s *Sessions) MarkCompleted(ctx context.Context, scanID, auditID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return mustAffect(s.db.Pool.Exec(ctx, `
        UPDATE audit_sessions
        SET status='completed', progress=100, audit_id=$2, updated_at=now(), finished_at=now()
        WHERE id=$1
    `, scanID, auditID))
}

func (s *Sessions) MarkFailed(ctx context.Context, scanID, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return mustAffect(s.db.Pool.Exec(ctx, `
        UPDATE audit_sessions
        SET status='failed', failure_reason=$2, updated_at=now(), finished_at=now()
        WHERE id=$1
    `, scanID, reason))
}

func (s *Sessions) MarkCancelled(ctx context.Context, scanID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return mustAffect(s.db.Pool.Exec(ctx, `
        UPDATE audit_sessions
        SET status='cancelled', updated_at=now(), finished_at=now()
        WHERE id=$1
    `, scanID))
}

func (s *Sessions) Get(ctx context.Context, scanID string) (ports.SessionRecord, error) {
	var (
		rec     ports.SessionRecord
		status  string
		auditID *string
	)
	err := s.db.Pool.QueryRow(ctx, `
        SELECT id::text, site_id::text, inputs, status, progress, elapsed_ms, phase_label, phase_tag,
               revealed_checklist, issues_found, screenshot_url, audit_id, failure_reason,
               created_at, updated_at
        FROM audit_sessions
        WHERE id = $1
    `, scanID).Scan(
		&rec.ID, &rec.SiteID, &rec.Inputs, &status,
		&rec.State.Progress, &rec.State.ElapsedMS, &rec.State.CurrentPhaseLabel, &rec.State.CurrentPhaseTag,
		&rec.State.RevealedChecklist, &rec.State.IssuesFound, &rec.State.ScreenshotURL,
		&auditID, &rec.FailureReason, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return ports.SessionRecord{}, translate(err)
	}
	rec.Status = domain.ScanStatus(status)
	if auditID != nil {
		rec.AuditID = *auditID
	}
	rec.State = rec.State.Clone()
	return rec, nil
}
