package postgres

import (
	"context"

	"croaudit/internal/domain"
)

// Reports implements ports.ReportRepository; the report is stored as JSONB.
type Reports struct{ db *DB }

func NewReports(db *DB) *Reports { return &Reports{db: db} }

func (r *Reports) Save(ctx context.Context, scanID string, report domain.AuditReport) error {
	_, err := r.db.Pool.Exec(ctx, `
        INSERT INTO audit_reports (audit_id, session_id, payload, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (audit_id) DO NOTHING
    `, report.AuditID, scanID, report, report.CreatedAt)
	return translate(err)
}

func (r *Reports) Get(ctx context.Context, auditID string) (domain.AuditReport, error) {
	var rep domain.AuditReport
	err := r.db.Pool.QueryRow(ctx, `SELECT payload FROM audit_reports WHERE audit_id = $1`, auditID).Scan(&rep)
	if err != nil {
		return domain.AuditReport{}, translate(err)
	}
	return rep, nil
}
