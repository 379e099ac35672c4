package scanrunner

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"croaudit/internal/domain"
	"croaudit/internal/logger"
	"croaudit/internal/revenue"
)

type recorder struct {
	mu        sync.Mutex
	states    []domain.SessionState
	reports   []domain.AuditReport
	errs      []error
	cancelled int
	once      sync.Once
	done      chan struct{}
}

func newRecorder() *recorder { return &recorder{done: make(chan struct{})} }

func (r *recorder) OnProgress(s domain.SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) OnCompleted(rep domain.AuditReport) {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *recorder) OnFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) OnCancelled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled++
}

func (r *recorder) snapshot() ([]domain.SessionState, []domain.AuditReport, []error, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.SessionState(nil), r.states...),
		append([]domain.AuditReport(nil), r.reports...),
		append([]error(nil), r.errs...),
		r.cancelled
}

func threePhases() []domain.ScanPhase {
	return []domain.ScanPhase{
		{Label: "Capturing", Tag: "a", Duration: 100 * time.Millisecond},
		{Label: "Analyzing", Tag: "b", Duration: 100 * time.Millisecond},
		{Label: "Finalizing", Tag: "c", Duration: 100 * time.Millisecond},
	}
}

func validInputs() domain.AuditInputs {
	return domain.AuditInputs{
		WebsiteURL:            "https://shop.example.com",
		MonthlyVisitors:       50000,
		CurrentConversionRate: 2.5,
		AverageOrderValue:     125,
		PrimaryGoal:           domain.GoalConversionRate,
	}
}

func oneIssue() IssueCounter {
	return IssueCounterFunc(func(domain.ScanPhase) (int, error) { return 1, nil })
}

func newTestScheduler(t *testing.T, phases []domain.ScanPhase, rec *recorder, opts ...Option) *Scheduler {
	t.Helper()
	base := []Option{
		WithListener(rec),
		WithIssueCounter(oneIssue()),
		WithIDGenerator(func() string { return "audit-1" }),
		WithLogger(logger.NewTestLogger(t)),
	}
	s, err := New(revenue.NewModel(nil), phases, append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func TestScheduler_TickedRunCompletes(t *testing.T) {
	rec := newRecorder()
	s := newTestScheduler(t, threePhases(), rec)

	require.NoError(t, s.Start(validInputs()))
	for range 3 {
		require.NoError(t, s.Tick())
	}

	states, reports, errs, _ := rec.snapshot()
	require.Empty(t, errs)
	require.Len(t, states, 5)

	initial := states[0]
	assert.Zero(t, initial.Progress)
	assert.Equal(t, "Capturing", initial.CurrentPhaseLabel)
	assert.Empty(t, initial.RevealedChecklist)
	assert.Zero(t, initial.IssuesFound)

	ticks := states[1:4]
	for i, st := range ticks {
		assert.Len(t, st.RevealedChecklist, i+1)
		assert.LessOrEqual(t, st.Progress, ProgressCap)
		if i > 0 {
			assert.Greater(t, st.Progress, ticks[i-1].Progress)
		}
		assert.Equal(t, int64((i+1)*100), st.ElapsedMS)
	}
	assert.Equal(t, ProgressCap, ticks[2].Progress)
	assert.Equal(t, "Finalizing", ticks[2].CurrentPhaseLabel)
	assert.Equal(t, []string{"Page Speed Analysis", "Mobile Optimization", "Conversion Funnel Review"}, ticks[2].RevealedChecklist)
	assert.Equal(t, 3, ticks[2].IssuesFound)

	final := states[4]
	assert.Equal(t, 100.0, final.Progress)

	require.Len(t, reports, 1)
	rep := reports[0]
	assert.Equal(t, "audit-1", rep.AuditID)
	assert.Equal(t, "https://shop.example.com", rep.WebsiteURL)
	assert.Equal(t, int64(101563), rep.RevenuePotential.MonthlyRevenueUplift)
	assert.Len(t, rep.CriticalIssues(), 4)

	assert.Equal(t, domain.ScanCompleted, s.Status())
	_, live := s.State()
	assert.False(t, live)
	assert.ErrorIs(t, s.Tick(), domain.ErrNotRunning)
}

func TestScheduler_CancelSuppressesReport(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rec := newRecorder()
	s := newTestScheduler(t, threePhases(), rec, WithClock(fc))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Start(validInputs()))
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(100 * time.Millisecond)
	require.NoError(t, fc.BlockUntilContext(ctx, 1))

	s.mu.Lock()
	staleGen, staleIdx := s.gen, s.idx
	s.mu.Unlock()

	require.NoError(t, s.Cancel())
	fc.Advance(time.Second)
	// a timer callback that was already running when Cancel took the lock
	s.fire(staleGen, staleIdx)

	_, reports, errs, cancelled := rec.snapshot()
	assert.Empty(t, reports)
	assert.Empty(t, errs)
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, domain.ScanCancelled, s.Status())
	_, live := s.State()
	assert.False(t, live)

	assert.ErrorIs(t, s.Cancel(), domain.ErrNotRunning)
	assert.ErrorIs(t, s.Tick(), domain.ErrNotRunning)
}

func TestScheduler_TimerDrivenRun(t *testing.T) {
	tests := []struct {
		name  string
		scale float64
		step  time.Duration
	}{
		{"real time", 1, 100 * time.Millisecond},
		{"compressed", 0.5, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := clockwork.NewFakeClock()
			rec := newRecorder()
			s := newTestScheduler(t, threePhases(), rec, WithClock(fc), WithTimeScale(tt.scale))

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			require.NoError(t, s.Start(validInputs()))
			for range 3 {
				require.NoError(t, fc.BlockUntilContext(ctx, 1))
				fc.Advance(tt.step)
			}

			select {
			case <-rec.done:
			case <-ctx.Done():
				t.Fatal("report was not delivered")
			}

			states, reports, _, _ := rec.snapshot()
			require.Len(t, reports, 1)
			assert.Equal(t, fc.Now().UTC(), reports[0].CreatedAt)
			last := states[len(states)-1]
			assert.Equal(t, 100.0, last.Progress)
			assert.Equal(t, int64(300), last.ElapsedMS)
			assert.Equal(t, domain.ScanCompleted, s.Status())
		})
	}
}

func TestScheduler_InvalidInputLeavesNoState(t *testing.T) {
	rec := newRecorder()
	s := newTestScheduler(t, threePhases(), rec)

	in := validInputs()
	in.CurrentConversionRate = -1
	err := s.Start(in)

	var invalid *domain.InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "current_conversion_rate", invalid.Field)
	assert.Equal(t, domain.ScanIdle, s.Status())
	_, live := s.State()
	assert.False(t, live)

	states, reports, errs, _ := rec.snapshot()
	assert.Empty(t, states)
	assert.Empty(t, reports)
	assert.Empty(t, errs)
}

func TestNew_ConfigurationErrors(t *testing.T) {
	model := revenue.NewModel(nil)
	tests := []struct {
		name    string
		builder ReportBuilder
		phases  []domain.ScanPhase
		opts    []Option
	}{
		{"no phases", model, nil, nil},
		{"negative duration", model, []domain.ScanPhase{{Label: "x", Duration: -time.Millisecond}}, nil},
		{"empty label", model, []domain.ScanPhase{{Duration: time.Millisecond}}, nil},
		{"duplicate checklist", model, threePhases(), []Option{WithChecklist([]string{"a", "a"})}},
		{"nil builder", nil, threePhases(), nil},
		{"negative time scale", model, threePhases(), []Option{WithTimeScale(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.builder, tt.phases, tt.opts...)
			var conf *domain.ConfigurationError
			require.ErrorAs(t, err, &conf)
			assert.Equal(t, domain.ErrCodeConfiguration, domain.CodeOf(err))
		})
	}
}

func TestScheduler_ZeroDurationPhasesStillTransition(t *testing.T) {
	phases := []domain.ScanPhase{
		{Label: "first", Tag: "a"},
		{Label: "second", Tag: "b", Duration: 100 * time.Millisecond},
		{Label: "third", Tag: "c"},
	}
	rec := newRecorder()
	s := newTestScheduler(t, phases, rec)

	require.NoError(t, s.Start(validInputs()))
	for range 3 {
		require.NoError(t, s.Tick())
	}

	states, reports, _, _ := rec.snapshot()
	require.Len(t, states, 5)
	assert.Equal(t, "first", states[1].CurrentPhaseLabel)
	assert.Len(t, states[1].RevealedChecklist, 1)
	assert.Zero(t, states[1].Progress)
	assert.Equal(t, "second", states[2].CurrentPhaseLabel)
	assert.Equal(t, ProgressCap, states[2].Progress)
	assert.Equal(t, "third", states[3].CurrentPhaseLabel)
	assert.Len(t, states[3].RevealedChecklist, 3)
	require.Len(t, reports, 1)
}

func TestScheduler_AllZeroPhasesProgressEvenly(t *testing.T) {
	phases := []domain.ScanPhase{{Label: "a"}, {Label: "b"}, {Label: "c"}, {Label: "d"}}
	rec := newRecorder()
	s := newTestScheduler(t, phases, rec)

	require.NoError(t, s.Start(validInputs()))
	for range 4 {
		require.NoError(t, s.Tick())
	}

	states, _, _, _ := rec.snapshot()
	require.Len(t, states, 6)
	assert.Equal(t, 25.0, states[1].Progress)
	assert.Equal(t, 50.0, states[2].Progress)
	assert.Equal(t, 75.0, states[3].Progress)
	assert.Equal(t, ProgressCap, states[4].Progress)
	assert.Equal(t, 100.0, states[5].Progress)
}

func TestScheduler_RejectsStartWhileRunning(t *testing.T) {
	rec := newRecorder()
	s := newTestScheduler(t, threePhases(), rec)

	require.NoError(t, s.Start(validInputs()))
	require.NoError(t, s.Tick())

	err := s.Start(validInputs())
	var running *domain.AlreadyRunningError
	require.ErrorAs(t, err, &running)
	assert.Equal(t, "a", running.Phase)

	st, ok := s.State()
	require.True(t, ok)
	assert.Len(t, st.RevealedChecklist, 1)

	require.NoError(t, s.Cancel())
	require.NoError(t, s.Start(validInputs()))
	st, ok = s.State()
	require.True(t, ok)
	assert.Empty(t, st.RevealedChecklist)
	assert.Zero(t, st.IssuesFound)
	assert.Equal(t, domain.ScanRunning, s.Status())
}

func TestScheduler_CounterErrorFailsRun(t *testing.T) {
	cause := errors.New("entropy source closed")
	calls := 0
	counter := IssueCounterFunc(func(domain.ScanPhase) (int, error) {
		calls++
		if calls == 2 {
			return 0, cause
		}
		return 2, nil
	})
	rec := newRecorder()
	s := newTestScheduler(t, threePhases(), rec, WithIssueCounter(counter))

	require.NoError(t, s.Start(validInputs()))
	require.NoError(t, s.Tick())
	require.NoError(t, s.Tick())

	states, reports, errs, _ := rec.snapshot()
	assert.Len(t, states, 2)
	assert.Empty(t, reports)
	require.Len(t, errs, 1)

	var failed *domain.ScanFailedError
	require.ErrorAs(t, errs[0], &failed)
	assert.Equal(t, "b", failed.Phase)
	assert.ErrorIs(t, errs[0], cause)

	assert.Equal(t, domain.ScanFailed, s.Status())
	assert.ErrorIs(t, s.Tick(), domain.ErrNotRunning)
}

func TestScheduler_ShortChecklist(t *testing.T) {
	rec := newRecorder()
	s := newTestScheduler(t, threePhases(), rec, WithChecklist([]string{"only"}))

	require.NoError(t, s.Start(validInputs()))
	for range 3 {
		require.NoError(t, s.Tick())
	}

	states, _, _, _ := rec.snapshot()
	assert.Equal(t, []string{"only"}, states[len(states)-1].RevealedChecklist)
}

type stubShots struct {
	ref string
	err error
}

func (s stubShots) Capture(context.Context, string) (string, error) { return s.ref, s.err }

func TestScheduler_Screenshot(t *testing.T) {
	t.Run("decorates state and report", func(t *testing.T) {
		rec := newRecorder()
		s := newTestScheduler(t, threePhases(), rec, WithScreenshotter(stubShots{ref: "https://shots.example.com/a.png"}),
			WithLogger(logger.NewNoOpLogger()))

		require.NoError(t, s.Start(validInputs()))
		require.Eventually(t, func() bool {
			st, ok := s.State()
			return ok && st.ScreenshotURL != ""
		}, time.Second, 5*time.Millisecond)
		for range 3 {
			require.NoError(t, s.Tick())
		}

		_, reports, _, _ := rec.snapshot()
		require.Len(t, reports, 1)
		assert.Equal(t, "https://shots.example.com/a.png", reports[0].ScreenshotURL)
	})

	t.Run("failure is ignored", func(t *testing.T) {
		rec := newRecorder()
		s := newTestScheduler(t, threePhases(), rec, WithScreenshotter(stubShots{err: errors.New("quota")}),
			WithLogger(logger.NewNoOpLogger()))

		require.NoError(t, s.Start(validInputs()))
		for range 3 {
			require.NoError(t, s.Tick())
		}

		_, reports, errs, _ := rec.snapshot()
		assert.Empty(t, errs)
		require.Len(t, reports, 1)
		assert.Empty(t, reports[0].ScreenshotURL)
	})
}

func TestRandomIssueCounter(t *testing.T) {
	a := NewRandomIssueCounter(rand.NewPCG(1, 2), DefaultIssueProbability)
	b := NewRandomIssueCounter(rand.NewPCG(1, 2), DefaultIssueProbability)

	var hits int
	for range 200 {
		x, err := a.Next(domain.ScanPhase{})
		require.NoError(t, err)
		y, _ := b.Next(domain.ScanPhase{})
		assert.Equal(t, x, y)
		assert.Contains(t, []int{0, 1, 2}, x)
		if x > 0 {
			hits++
		}
	}
	assert.Greater(t, hits, 50)
	assert.Less(t, hits, 150)

	never := NewRandomIssueCounter(rand.NewPCG(3, 4), 0)
	n, err := never.Next(domain.ScanPhase{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDefaultPhases(t *testing.T) {
	assert.Len(t, DefaultPhases, 11)
	assert.Equal(t, 22000*time.Millisecond, TotalDuration(DefaultPhases))
	assert.NoError(t, validatePhases(DefaultPhases, DefaultChecklist))
}
