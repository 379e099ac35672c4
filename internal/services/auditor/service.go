// Package auditor runs audit scans: one scheduler per scan, persisted
// progress, and the finished report.
package auditor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"

	"croaudit/internal/domain"
	"croaudit/internal/logger"
	"croaudit/internal/metrics"
	"croaudit/internal/ports"
	"croaudit/internal/workers/scanrunner"
)

type Service struct {
	builder   scanrunner.ReportBuilder
	phases    []domain.ScanPhase
	sites     ports.SiteRepository
	sessions  ports.SessionRepository
	reports   ports.ReportRepository
	log       logger.Logger
	tracer    trace.Tracer
	maxActive int
	schedOpts []scanrunner.Option

	mu       sync.Mutex
	active   map[string]*run
	reserved int
}

type run struct {
	id     string
	sched  *scanrunner.Scheduler
	done   chan struct{}
	report domain.AuditReport
	err    error
}

type Option func(*Service)

// WithPhases replaces scanrunner.DefaultPhases.
func WithPhases(phases []domain.ScanPhase) Option {
	return func(s *Service) { s.phases = phases }
}

// WithMaxActive bounds the number of scans in flight; 0 means unbounded.
func WithMaxActive(n int) Option {
	return func(s *Service) { s.maxActive = n }
}

// WithSchedulerOptions is applied to every scheduler the service creates.
func WithSchedulerOptions(opts ...scanrunner.Option) Option {
	return func(s *Service) { s.schedOpts = append(s.schedOpts, opts...) }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func New(builder scanrunner.ReportBuilder, sites ports.SiteRepository, sessions ports.SessionRepository, reports ports.ReportRepository, opts ...Option) *Service {
	s := &Service{
		builder:  builder,
		phases:   scanrunner.DefaultPhases,
		sites:    sites,
		sessions: sessions,
		reports:  reports,
		log:      logger.NewNoOpLogger(),
		tracer:   otel.Tracer("croaudit/auditor"),
		active:   map[string]*run{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start validates in, records a session and starts its scan.
func (s *Service) Start(ctx context.Context, in domain.AuditInputs) (string, error) {
	ctx, span := s.tracer.Start(ctx, "auditor.Start", trace.WithAttributes(
		attribute.String("website_url", in.WebsiteURL),
	))
	defer span.End()

	if err := s.builder.Validate(in); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if err := s.reserve(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	reserved := true
	defer func() {
		if reserved {
			s.release()
		}
	}()

	siteID, err := s.sites.GetOrCreate(ctx, RegistrableDomain(in.WebsiteURL))
	if err != nil {
		return "", fmt.Errorf("resolve site: %w", err)
	}
	scanID, err := s.sessions.Create(ctx, siteID, in)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	span.SetAttributes(attribute.String("scan_id", scanID))

	r := &run{id: scanID, done: make(chan struct{})}
	log := s.log.WithFields(map[string]interface{}{"scan_id": scanID})
	opts := append([]scanrunner.Option{}, s.schedOpts...)
	opts = append(opts, scanrunner.WithListener(&sessionListener{svc: s, run: r, log: log}), scanrunner.WithLogger(log))
	sched, err := scanrunner.New(s.builder, s.phases, opts...)
	if err != nil {
		s.markFailed(scanID, err)
		return "", err
	}
	r.sched = sched

	s.mu.Lock()
	s.active[scanID] = r
	s.reserved--
	reserved = false
	s.mu.Unlock()

	metrics.ScansStarted.Inc()
	metrics.ScansActive.Inc()
	if err := sched.Start(in); err != nil {
		s.forget(scanID)
		metrics.ScansActive.Dec()
		s.markFailed(scanID, err)
		return "", err
	}
	log.Info("scan started", map[string]interface{}{
		"site_id":     siteID,
		"website_url": in.WebsiteURL,
	})
	return scanID, nil
}

// Status returns the live state of a running scan, or the persisted one.
// A scan that has ended but is still being persisted is reported once its
// listener has recorded the outcome.
func (s *Service) Status(ctx context.Context, scanID string) (ports.SessionView, error) {
	if r, ok := s.lookup(scanID); ok {
		if st, live := r.sched.State(); live {
			return ports.SessionView{ScanID: scanID, Status: domain.ScanRunning, State: st}, nil
		}
		switch status := r.sched.Status(); status {
		case domain.ScanIdle, domain.ScanRunning:
			// not started yet, or started since State; the session row is current
		default:
			select {
			case <-r.done:
			case <-ctx.Done():
				return ports.SessionView{ScanID: scanID, Status: status}, nil
			}
		}
	}
	rec, err := s.sessions.Get(ctx, scanID)
	if err != nil {
		return ports.SessionView{}, err
	}
	return ports.SessionView{
		ScanID:  scanID,
		Status:  rec.Status,
		State:   rec.State.Clone(),
		AuditID: rec.AuditID,
		Error:   rec.FailureReason,
	}, nil
}

// Cancel stops a running scan.
func (s *Service) Cancel(ctx context.Context, scanID string) error {
	if r, ok := s.lookup(scanID); ok {
		return r.sched.Cancel()
	}
	if _, err := s.sessions.Get(ctx, scanID); err != nil {
		return err
	}
	return domain.ErrNotRunning
}

// Wait blocks until the scan delivers its report. When ctx ends first the
// scan is cancelled.
func (s *Service) Wait(ctx context.Context, scanID string) (domain.AuditReport, error) {
	ctx, span := s.tracer.Start(ctx, "auditor.Wait", trace.WithAttributes(attribute.String("scan_id", scanID)))
	defer span.End()

	r, ok := s.lookup(scanID)
	if !ok {
		return s.finished(ctx, scanID)
	}
	select {
	case <-r.done:
		return r.report, r.err
	case <-ctx.Done():
		if err := r.sched.Cancel(); errors.Is(err, domain.ErrNotRunning) {
			// already ended; its listener is persisting the outcome
			<-r.done
			return r.report, r.err
		}
		s.log.Warn("scan cancelled by caller deadline", map[string]interface{}{"scan_id": scanID})
		span.SetStatus(codes.Error, ctx.Err().Error())
		return domain.AuditReport{}, fmt.Errorf("wait for scan %s: %w", scanID, ctx.Err())
	}
}

func (s *Service) finished(ctx context.Context, scanID string) (domain.AuditReport, error) {
	rec, err := s.sessions.Get(ctx, scanID)
	if err != nil {
		return domain.AuditReport{}, err
	}
	switch rec.Status {
	case domain.ScanCompleted:
		return s.reports.Get(ctx, rec.AuditID)
	case domain.ScanFailed:
		return domain.AuditReport{}, &domain.ScanFailedError{Phase: rec.State.CurrentPhaseTag, Err: errors.New(rec.FailureReason)}
	case domain.ScanCancelled:
		return domain.AuditReport{}, domain.ErrCancelled
	}
	// running in another process
	return domain.AuditReport{}, domain.ErrNotFound
}

// Report returns a finished report by audit id.
func (s *Service) Report(ctx context.Context, auditID string) (domain.AuditReport, error) {
	ctx, span := s.tracer.Start(ctx, "auditor.Report", trace.WithAttributes(attribute.String("audit_id", auditID)))
	defer span.End()
	return s.reports.Get(ctx, auditID)
}

// Close cancels every scan in flight.
func (s *Service) Close() {
	s.mu.Lock()
	runs := make([]*run, 0, len(s.active))
	for _, r := range s.active {
		runs = append(runs, r)
	}
	s.mu.Unlock()

	for _, r := range runs {
		_ = r.sched.Cancel()
	}
}

// Active reports the number of scans in flight.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Service) reserve() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxActive > 0 && len(s.active)+s.reserved >= s.maxActive {
		return domain.ErrCapacity
	}
	s.reserved++
	return nil
}

func (s *Service) release() {
	s.mu.Lock()
	s.reserved--
	s.mu.Unlock()
}

func (s *Service) lookup(scanID string) (*run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.active[scanID]
	return r, ok
}

func (s *Service) forget(scanID string) {
	s.mu.Lock()
	delete(s.active, scanID)
	s.mu.Unlock()
}

func (s *Service) markFailed(scanID string, cause error) {
	ctx, cancel := persistContext()
	defer cancel()
	if err := s.sessions.MarkFailed(ctx, scanID, cause.Error()); err != nil {
		s.log.Error("mark session failed", map[string]interface{}{"scan_id": scanID, "error": err.Error()})
	}
}

// RegistrableDomain returns the eTLD+1 of a site URL, falling back to the host.
func RegistrableDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(raw)
	}
	host := strings.ToLower(u.Hostname())
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return registrable
}
