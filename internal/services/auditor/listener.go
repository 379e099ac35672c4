package auditor

import (
	"context"
	"fmt"
	"time"

	"croaudit/internal/domain"
	"croaudit/internal/logger"
	"croaudit/internal/metrics"
)

const persistTimeout = 5 * time.Second

func persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), persistTimeout)
}

// sessionListener mirrors one scheduler into the repositories.
type sessionListener struct {
	svc *Service
	run *run
	log logger.Logger
}

func (l *sessionListener) OnProgress(state domain.SessionState) {
	ctx, cancel := persistContext()
	defer cancel()
	if err := l.svc.sessions.UpdateProgress(ctx, l.run.id, state); err != nil {
		l.log.Warn("persist progress", map[string]interface{}{"error": err.Error()})
	}
}

func (l *sessionListener) OnCompleted(report domain.AuditReport) {
	ctx, cancel := persistContext()
	defer cancel()

	var err error
	if err = l.svc.reports.Save(ctx, l.run.id, report); err != nil {
		err = fmt.Errorf("save report: %w", err)
		l.log.Error("persist report", map[string]interface{}{"audit_id": report.AuditID, "error": err.Error()})
		if mErr := l.svc.sessions.MarkFailed(ctx, l.run.id, err.Error()); mErr != nil {
			l.log.Error("mark session failed", map[string]interface{}{"error": mErr.Error()})
		}
	} else if mErr := l.svc.sessions.MarkCompleted(ctx, l.run.id, report.AuditID); mErr != nil {
		l.log.Error("mark session completed", map[string]interface{}{"error": mErr.Error()})
	}

	metrics.MonthlyUplift.Observe(float64(report.RevenuePotential.MonthlyRevenueUplift))
	l.log.Info("scan completed", map[string]interface{}{
		"audit_id":       report.AuditID,
		"issues":         report.TotalIssues(),
		"monthly_uplift": report.RevenuePotential.MonthlyRevenueUplift,
	})
	l.finish("completed", report, err)
}

func (l *sessionListener) OnFailed(err error) {
	ctx, cancel := persistContext()
	defer cancel()
	if mErr := l.svc.sessions.MarkFailed(ctx, l.run.id, err.Error()); mErr != nil {
		l.log.Error("mark session failed", map[string]interface{}{"error": mErr.Error()})
	}
	l.log.Error("scan failed", map[string]interface{}{"error": err.Error()})
	l.finish("failed", domain.AuditReport{}, err)
}

func (l *sessionListener) OnCancelled() {
	ctx, cancel := persistContext()
	defer cancel()
	if err := l.svc.sessions.MarkCancelled(ctx, l.run.id); err != nil {
		l.log.Error("mark session cancelled", map[string]interface{}{"error": err.Error()})
	}
	l.log.Info("scan cancelled", nil)
	l.finish("cancelled", domain.AuditReport{}, domain.ErrCancelled)
}

func (l *sessionListener) finish(outcome string, report domain.AuditReport, err error) {
	l.svc.forget(l.run.id)
	metrics.ScansFinished.WithLabelValues(outcome).Inc()
	metrics.ScansActive.Dec()
	l.run.report = report
	l.run.err = err
	close(l.run.done)
}
