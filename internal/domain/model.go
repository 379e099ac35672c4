package domain

import (
	"slices"
	"time"
)

// Core domain models used internally. Transport shapes live in the http
// adapter; these carry the json tags the report is published with.

// Goal is the primary conversion goal picked in the intake form.
type Goal string

const (
	GoalConversionRate  Goal = "Increase overall conversion rate"
	GoalCartAbandonment Goal = "Reduce cart abandonment"
	GoalAverageOrder    Goal = "Improve average order value"
	GoalMobile          Goal = "Boost mobile conversions"
	GoalCheckout        Goal = "Optimize checkout process"
	GoalUserExperience  Goal = "Enhance user experience"
)

// Goals returns the fixed goal list in form order.
func Goals() []Goal {
	return []Goal{
		GoalConversionRate,
		GoalCartAbandonment,
		GoalAverageOrder,
		GoalMobile,
		GoalCheckout,
		GoalUserExperience,
	}
}

// Valid reports whether g is one of the six form goals.
func (g Goal) Valid() bool {
	return slices.Contains(Goals(), g)
}

// AuditInputs is what the intake wizard hands over once it is complete.
// ConversionRate is in percentage points (2.5 means 2.5%).
type AuditInputs struct {
	WebsiteURL            string  `json:"website_url"`
	MonthlyVisitors       int64   `json:"monthly_visitors"`
	CurrentConversionRate float64 `json:"current_conversion_rate"`
	AverageOrderValue     float64 `json:"average_order_value"`
	PrimaryGoal           Goal    `json:"primary_goal"`
}

type RevenuePotential struct {
	CurrentMonthlyRevenue   int64   `json:"current_monthly_revenue"`
	PotentialMonthlyRevenue int64   `json:"potential_monthly_revenue"`
	MonthlyRevenueUplift    int64   `json:"monthly_revenue_uplift"`
	AnnualRevenueUplift     int64   `json:"annual_revenue_uplift"`
	TotalUpliftPercentage   float64 `json:"total_uplift_percentage"`
	CurrentConversionRate   float64 `json:"current_conversion_rate"`
	PotentialConversionRate float64 `json:"potential_conversion_rate"`
}

type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

// Rank orders severities; higher is more severe. Unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

type Issue struct {
	Category        string   `json:"category"`
	Severity        Severity `json:"severity"`
	Issue           string   `json:"issue"`
	Description     string   `json:"description"`
	PotentialUplift int      `json:"potential_uplift"`
	ImpactScore     int      `json:"impact_score,omitempty"`
}

type Competitor struct {
	Name             string  `json:"name"`
	KeyAdvantage     string  `json:"key_advantage"`
	ConversionRate   float64 `json:"conversion_rate"`
	EstimatedRevenue int64   `json:"estimated_revenue"`
}

// ScanPhase is one timed step of the simulated scan.
type ScanPhase struct {
	Label    string
	Tag      string
	Duration time.Duration
}

type CurrentMetrics struct {
	MonthlyVisitors   int64   `json:"monthly_visitors"`
	ConversionRate    float64 `json:"conversion_rate"`
	AverageOrderValue float64 `json:"average_order_value"`
	MonthlyRevenue    int64   `json:"monthly_revenue"`
}

// CriticalIssueCount is how many issues the report headlines.
const CriticalIssueCount = 4

// AuditReport is created once per completed scan and never modified.
type AuditReport struct {
	AuditID            string           `json:"audit_id"`
	WebsiteURL         string           `json:"website_url"`
	ScreenshotURL      string           `json:"website_screenshot,omitempty"`
	CurrentMetrics     CurrentMetrics   `json:"current_metrics"`
	RevenuePotential   RevenuePotential `json:"revenue_potential"`
	ConfidenceScore    int              `json:"confidence_score"`
	IssuesFound        []Issue          `json:"issues_found"`
	CompetitorAnalysis []Competitor     `json:"competitor_analysis"`
	Recommendations    []string         `json:"recommendations"`
	CreatedAt          time.Time        `json:"created_at"`
}

// CriticalIssues returns the leading issues of the (severity ordered) list.
func (r *AuditReport) CriticalIssues() []Issue {
	n := min(len(r.IssuesFound), CriticalIssueCount)
	return slices.Clone(r.IssuesFound[:n])
}

func (r *AuditReport) TotalIssues() int { return len(r.IssuesFound) }

type ScanStatus string

const (
	ScanIdle      ScanStatus = "idle"
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanCancelled ScanStatus = "cancelled"
	ScanFailed    ScanStatus = "failed"
)

// Terminal reports whether no further transition happens without a new start.
func (s ScanStatus) Terminal() bool {
	return s == ScanCompleted || s == ScanCancelled || s == ScanFailed
}

// SessionState is the observable state of a scan in flight.
type SessionState struct {
	Progress          float64  `json:"progress_percent"`
	ElapsedMS         int64    `json:"elapsed_ms"`
	CurrentPhaseLabel string   `json:"current_phase_label"`
	CurrentPhaseTag   string   `json:"current_phase_tag"`
	RevealedChecklist []string `json:"revealed_checklist"`
	IssuesFound       int      `json:"issues_found_counter"`
	ScreenshotURL     string   `json:"screenshot_url,omitempty"`
}

// Clone returns a copy that shares no memory with s.
func (s SessionState) Clone() SessionState {
	out := s
	out.RevealedChecklist = slices.Clone(s.RevealedChecklist)
	if out.RevealedChecklist == nil {
		out.RevealedChecklist = []string{}
	}
	return out
}

// Contact is a lead captured against a finished audit.
type Contact struct {
	AuditID     string
	Name        string
	Email       string
	Phone       string
	SubmittedAt time.Time
}
