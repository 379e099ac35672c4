package scanrunner

import (
	"fmt"
	"time"

	"croaudit/internal/domain"
)

// DefaultPhases is the phase table the audit UI animates, 22s in total.
var DefaultPhases = []domain.ScanPhase{
	{Label: "Capturing website screenshot...", Tag: "screenshot", Duration: 2000 * time.Millisecond},
	{Label: "Analyzing page structure and layout...", Tag: "structure", Duration: 2500 * time.Millisecond},
	{Label: "Checking mobile responsiveness...", Tag: "mobile", Duration: 2200 * time.Millisecond},
	{Label: "Evaluating page load speed...", Tag: "performance", Duration: 1800 * time.Millisecond},
	{Label: "Scanning conversion funnels...", Tag: "funnels", Duration: 2000 * time.Millisecond},
	{Label: "Analyzing checkout process...", Tag: "checkout", Duration: 1900 * time.Millisecond},
	{Label: "Checking trust signals and security...", Tag: "trust", Duration: 1600 * time.Millisecond},
	{Label: "Reviewing user experience patterns...", Tag: "ux", Duration: 2300 * time.Millisecond},
	{Label: "Running competitor analysis...", Tag: "competitors", Duration: 2400 * time.Millisecond},
	{Label: "Calculating revenue opportunities...", Tag: "revenue", Duration: 1800 * time.Millisecond},
	{Label: "Finalizing recommendations...", Tag: "final", Duration: 1500 * time.Millisecond},
}

// DefaultChecklist is revealed one item per phase; later phases reveal nothing.
var DefaultChecklist = []string{
	"Page Speed Analysis",
	"Mobile Optimization",
	"Conversion Funnel Review",
	"Trust Signal Assessment",
	"Checkout Process Audit",
	"User Experience Evaluation",
	"Competitor Benchmarking",
	"Revenue Opportunity Calculation",
}

// ProgressCap is the highest progress reported before the report is built.
const ProgressCap = 95.0

// TotalDuration sums the configured phase durations.
func TotalDuration(phases []domain.ScanPhase) time.Duration {
	var total time.Duration
	for _, p := range phases {
		total += p.Duration
	}
	return total
}

func validatePhases(phases []domain.ScanPhase, checklist []string) error {
	if len(phases) == 0 {
		return &domain.ConfigurationError{Reason: "no phases configured"}
	}
	for i, p := range phases {
		if p.Label == "" {
			return &domain.ConfigurationError{Reason: fmt.Sprintf("phase %d has an empty label", i)}
		}
		if p.Duration < 0 {
			return &domain.ConfigurationError{Reason: fmt.Sprintf("phase %q has a negative duration", p.Label)}
		}
	}
	seen := make(map[string]struct{}, len(checklist))
	for _, item := range checklist {
		if _, dup := seen[item]; dup {
			return &domain.ConfigurationError{Reason: fmt.Sprintf("duplicate checklist item %q", item)}
		}
		seen[item] = struct{}{}
	}
	return nil
}

// progressAt is the capped progress after phases[0..i] have elapsed.
// With an all-zero table each phase counts as an equal share.
func progressAt(phases []domain.ScanPhase, cumulative, total time.Duration, i int) float64 {
	var p float64
	if total > 0 {
		p = float64(cumulative) / float64(total) * 100
	} else {
		p = float64(i+1) / float64(len(phases)) * 100
	}
	return min(p, ProgressCap)
}
