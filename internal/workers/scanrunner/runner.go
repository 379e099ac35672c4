// Package scanrunner drives the simulated audit scan: an ordered table of
// timed phases that move progress, reveal checklist items and bump the
// issues counter, then finalize into an AuditReport.
package scanrunner

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"croaudit/internal/domain"
	"croaudit/internal/logger"
	"croaudit/internal/metrics"
	"croaudit/internal/revenue"
)

// ReportBuilder validates inputs and produces the revenue side of the report.
// *revenue.Model satisfies it.
type ReportBuilder interface {
	Validate(in domain.AuditInputs) error
	Analyze(in domain.AuditInputs) (*revenue.Analysis, error)
}

// Scheduler runs one scan at a time. Starting while a scan is running is
// rejected with *domain.AlreadyRunningError.
//
// Phase boundaries are applied either by Tick or, when a clock is configured,
// by one timer per phase. Every timer carries the run generation and phase
// index it was armed for, and does nothing once either has moved on.
type Scheduler struct {
	phases    []domain.ScanPhase
	checklist []string
	total     time.Duration
	builder   ReportBuilder
	counter   IssueCounter
	shots     Screenshotter
	clock     clockwork.Clock
	scale     float64
	newID     func() string
	log       logger.Logger
	listeners []Listener

	mu         sync.Mutex
	gen        uint64
	status     domain.ScanStatus
	inputs     domain.AuditInputs
	idx        int
	cumulative time.Duration
	state      *domain.SessionState
	timer      clockwork.Timer
	stopRun    context.CancelFunc
	issued     uint64

	dmu    sync.Mutex
	cond   *sync.Cond
	served uint64
}

type Option func(*Scheduler)

// WithClock arms a timer per phase on c. Without a clock the scheduler only
// moves on Tick.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithTimeScale multiplies every timer wait by f. Reported elapsed time and
// progress are unaffected.
func WithTimeScale(f float64) Option {
	return func(s *Scheduler) { s.scale = f }
}

func WithIssueCounter(c IssueCounter) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.counter = c
		}
	}
}

func WithChecklist(items []string) Option {
	return func(s *Scheduler) { s.checklist = slices.Clone(items) }
}

func WithScreenshotter(sh Screenshotter) Option {
	return func(s *Scheduler) { s.shots = sh }
}

func WithListener(l Listener) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithIDGenerator replaces uuid.NewString for audit ids.
func WithIDGenerator(f func() string) Option {
	return func(s *Scheduler) {
		if f != nil {
			s.newID = f
		}
	}
}

// New validates the phase table and returns an idle scheduler.
func New(builder ReportBuilder, phases []domain.ScanPhase, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		phases:    slices.Clone(phases),
		checklist: slices.Clone(DefaultChecklist),
		builder:   builder,
		counter:   NewRandomIssueCounter(nil, DefaultIssueProbability),
		scale:     1,
		newID:     uuid.NewString,
		log:       logger.NewNoOpLogger(),
		status:    domain.ScanIdle,
	}
	s.cond = sync.NewCond(&s.dmu)
	for _, opt := range opts {
		opt(s)
	}
	if builder == nil {
		return nil, &domain.ConfigurationError{Reason: "no report builder"}
	}
	if s.scale < 0 || math.IsNaN(s.scale) || math.IsInf(s.scale, 0) {
		return nil, &domain.ConfigurationError{Reason: fmt.Sprintf("invalid time scale %v", s.scale)}
	}
	if err := validatePhases(s.phases, s.checklist); err != nil {
		return nil, err
	}
	s.total = TotalDuration(s.phases)
	return s, nil
}

// Start validates in and begins a new run. On error nothing changes.
func (s *Scheduler) Start(in domain.AuditInputs) error {
	if err := s.builder.Validate(in); err != nil {
		return err
	}

	s.mu.Lock()
	if s.status == domain.ScanRunning {
		phase := s.state.CurrentPhaseTag
		s.mu.Unlock()
		return &domain.AlreadyRunningError{Phase: phase}
	}
	s.gen++
	gen := s.gen
	s.status = domain.ScanRunning
	s.inputs = in
	s.idx = 0
	s.cumulative = 0
	s.state = &domain.SessionState{
		CurrentPhaseLabel: s.phases[0].Label,
		CurrentPhaseTag:   s.phases[0].Tag,
		RevealedChecklist: []string{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopRun = cancel
	s.arm()
	ticket := s.take()
	initial := s.state.Clone()
	s.mu.Unlock()

	s.log.Debug("scan started", map[string]interface{}{
		"website_url": in.WebsiteURL,
		"phases":      len(s.phases),
	})
	s.dispatch(ticket, []event{{kind: eventProgress, state: initial}})

	if s.shots != nil {
		go s.capture(ctx, gen, in.WebsiteURL)
	}
	return nil
}

// Tick applies the next phase boundary immediately.
func (s *Scheduler) Tick() error {
	s.mu.Lock()
	if s.status != domain.ScanRunning {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	evs := s.advance()
	ticket := s.take()
	s.mu.Unlock()

	s.dispatch(ticket, evs)
	return nil
}

// Cancel stops a running scan. No report is produced afterwards, even by a
// timer that was already due.
func (s *Scheduler) Cancel() error {
	s.mu.Lock()
	if s.status != domain.ScanRunning {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	s.gen++
	phase := s.phases[s.idx].Tag
	s.stop(domain.ScanCancelled)
	ticket := s.take()
	s.mu.Unlock()

	s.log.Debug("scan cancelled", map[string]interface{}{"phase": phase})
	s.dispatch(ticket, []event{{kind: eventCancelled}})
	return nil
}

func (s *Scheduler) Status() domain.ScanStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// State returns a copy of the live session state; ok is false when no scan
// is running.
func (s *Scheduler) State() (state domain.SessionState, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return domain.SessionState{}, false
	}
	return s.state.Clone(), true
}

func (s *Scheduler) Phases() []domain.ScanPhase { return slices.Clone(s.phases) }

// arm schedules the boundary of the current phase. Caller holds mu.
func (s *Scheduler) arm() {
	if s.clock == nil {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	gen, idx := s.gen, s.idx
	wait := time.Duration(float64(s.phases[idx].Duration) * s.scale)
	s.timer = s.clock.AfterFunc(wait, func() { s.fire(gen, idx) })
}

func (s *Scheduler) fire(gen uint64, idx int) {
	s.mu.Lock()
	if gen != s.gen || idx != s.idx || s.status != domain.ScanRunning {
		s.mu.Unlock()
		return
	}
	evs := s.advance()
	ticket := s.take()
	s.mu.Unlock()

	s.dispatch(ticket, evs)
}

// advance applies the boundary of phase s.idx. Caller holds mu.
func (s *Scheduler) advance() []event {
	i := s.idx
	phase := s.phases[i]

	n, err := s.counter.Next(phase)
	if err == nil && n < 0 {
		err = fmt.Errorf("negative issue count %d", n)
	}
	if err != nil {
		return s.fail(phase, err)
	}

	s.cumulative += phase.Duration
	st := s.state
	st.ElapsedMS = s.cumulative.Milliseconds()
	st.CurrentPhaseLabel = phase.Label
	st.CurrentPhaseTag = phase.Tag
	st.Progress = progressAt(s.phases, s.cumulative, s.total, i)
	if i < len(s.checklist) {
		st.RevealedChecklist = append(st.RevealedChecklist, s.checklist[i])
	}
	st.IssuesFound += n
	metrics.PhaseTransitions.WithLabelValues(phase.Tag).Inc()

	evs := []event{{kind: eventProgress, state: st.Clone()}}
	s.idx++
	if s.idx < len(s.phases) {
		s.arm()
		return evs
	}
	return append(evs, s.finish()...)
}

// finish builds the report after the last phase. Caller holds mu.
func (s *Scheduler) finish() []event {
	last := s.phases[len(s.phases)-1]
	a, err := s.builder.Analyze(s.inputs)
	if err != nil {
		return s.fail(last, err)
	}

	s.state.Progress = 100
	final := s.state.Clone()
	report := domain.AuditReport{
		AuditID:            s.newID(),
		WebsiteURL:         s.inputs.WebsiteURL,
		ScreenshotURL:      final.ScreenshotURL,
		CurrentMetrics:     a.CurrentMetrics,
		RevenuePotential:   a.Potential,
		ConfidenceScore:    a.ConfidenceScore,
		IssuesFound:        a.Issues,
		CompetitorAnalysis: a.Competitors,
		Recommendations:    a.Recommendations,
		CreatedAt:          s.now().UTC(),
	}
	s.stop(domain.ScanCompleted)
	return []event{
		{kind: eventProgress, state: final},
		{kind: eventCompleted, report: report},
	}
}

// fail ends the run in the failed state. Caller holds mu.
func (s *Scheduler) fail(phase domain.ScanPhase, err error) []event {
	s.log.Warn("scan failed", map[string]interface{}{"phase": phase.Tag, "error": err.Error()})
	s.stop(domain.ScanFailed)
	return []event{{kind: eventFailed, err: &domain.ScanFailedError{Phase: phase.Tag, Err: err}}}
}

// stop moves to a terminal status and drops the session. Caller holds mu.
func (s *Scheduler) stop(status domain.ScanStatus) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.stopRun != nil {
		s.stopRun()
		s.stopRun = nil
	}
	s.status = status
	s.state = nil
}

func (s *Scheduler) capture(ctx context.Context, gen uint64, websiteURL string) {
	ref, err := s.shots.Capture(ctx, websiteURL)
	if err != nil {
		s.log.Debug("screenshot unavailable", map[string]interface{}{"error": err.Error()})
		return
	}

	s.mu.Lock()
	if gen != s.gen || s.status != domain.ScanRunning {
		s.mu.Unlock()
		return
	}
	s.state.ScreenshotURL = ref
	ticket := s.take()
	st := s.state.Clone()
	s.mu.Unlock()

	s.dispatch(ticket, []event{{kind: eventProgress, state: st}})
}

func (s *Scheduler) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now()
}

// take reserves the next delivery slot. Caller holds mu.
func (s *Scheduler) take() uint64 {
	t := s.issued
	s.issued++
	return t
}

// dispatch delivers evs once every earlier slot has been delivered.
func (s *Scheduler) dispatch(ticket uint64, evs []event) {
	s.dmu.Lock()
	for s.served != ticket {
		s.cond.Wait()
	}
	s.dmu.Unlock()

	defer func() {
		s.dmu.Lock()
		s.served++
		s.cond.Broadcast()
		s.dmu.Unlock()
	}()
	for _, e := range evs {
		for _, l := range s.listeners {
			e.deliver(l)
		}
	}
}
