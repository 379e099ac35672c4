// Package revenue turns the intake metrics into the revenue opportunity part
// of an audit report. Everything here is a pure function of its arguments.
package revenue

import (
	"math"
	"slices"
	"strings"

	"croaudit/internal/domain"
)

// DefaultUpliftFactor is the share of current revenue the report promises.
const DefaultUpliftFactor = 0.65

// maxRevenue keeps results inside the range where float64 holds integers exactly.
const maxRevenue = 1 << 53

// UpliftMode selects how the uplift factor is derived.
type UpliftMode string

const (
	UpliftFixed         UpliftMode = "fixed"
	UpliftIssueWeighted UpliftMode = "issue_weighted"
)

// issueWeight discounts the summed uplift of the top issues.
const (
	issueWeight     = 0.7
	weightedTopN    = 5
	percentageScale = 100
)

// Validate checks the fields the model depends on.
func Validate(in domain.AuditInputs) error {
	if strings.TrimSpace(in.WebsiteURL) == "" {
		return &domain.InvalidInputError{Field: "website_url", Value: in.WebsiteURL, Reason: "must not be empty"}
	}
	return validateMetrics(in.MonthlyVisitors, in.CurrentConversionRate, in.AverageOrderValue)
}

func validateMetrics(visitors int64, rate, aov float64) error {
	if visitors < 0 {
		return &domain.InvalidInputError{Field: "monthly_visitors", Value: visitors, Reason: "must be >= 0"}
	}
	if err := checkNonNegative("current_conversion_rate", rate); err != nil {
		return err
	}
	return checkNonNegative("average_order_value", aov)
}

func checkNonNegative(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &domain.InvalidInputError{Field: field, Value: v, Reason: "must be finite"}
	}
	if v < 0 {
		return &domain.InvalidInputError{Field: field, Value: v, Reason: "must be >= 0"}
	}
	return nil
}

// round is half away from zero, i.e. half-up for the non-negative values used here.
func round(v float64) int64 { return int64(math.Round(v)) }

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func roundedRevenue(field string, v float64) (int64, error) {
	r := math.Round(v)
	if r > maxRevenue {
		return 0, &domain.InvalidInputError{Field: field, Value: v, Reason: "revenue out of range"}
	}
	return int64(r), nil
}

// CurrentMonthlyRevenue is round(visitors * rate/100 * aov).
func CurrentMonthlyRevenue(visitors int64, rate, aov float64) (int64, error) {
	if err := validateMetrics(visitors, rate, aov); err != nil {
		return 0, err
	}
	return roundedRevenue("monthly_visitors", float64(visitors)*(rate/100)*aov)
}

// ComputePotential applies factor to the current monthly revenue.
// potential == current + monthly uplift and annual == 12 * monthly hold exactly.
func ComputePotential(visitors int64, rate, aov, factor float64) (domain.RevenuePotential, error) {
	if err := checkNonNegative("uplift_factor", factor); err != nil {
		return domain.RevenuePotential{}, err
	}
	current, err := CurrentMonthlyRevenue(visitors, rate, aov)
	if err != nil {
		return domain.RevenuePotential{}, err
	}
	uplift, err := roundedRevenue("uplift_factor", float64(current)*factor)
	if err != nil {
		return domain.RevenuePotential{}, err
	}
	return domain.RevenuePotential{
		CurrentMonthlyRevenue:   current,
		PotentialMonthlyRevenue: current + uplift,
		MonthlyRevenueUplift:    uplift,
		AnnualRevenueUplift:     uplift * 12,
		TotalUpliftPercentage:   float64(round(factor * percentageScale)),
		CurrentConversionRate:   round2(rate),
		PotentialConversionRate: round2(rate * (1 + factor)),
	}, nil
}

// Analysis is everything the scheduler needs to assemble a report.
type Analysis struct {
	CurrentMetrics  domain.CurrentMetrics
	Potential       domain.RevenuePotential
	Issues          []domain.Issue
	Competitors     []domain.Competitor
	Recommendations []string
	ConfidenceScore int
}

// Model combines the revenue formulas with a Catalog.
type Model struct {
	catalog Catalog
	factor  float64
	mode    UpliftMode
}

type ModelOption func(*Model)

// WithUpliftFactor overrides DefaultUpliftFactor for UpliftFixed.
func WithUpliftFactor(f float64) ModelOption {
	return func(m *Model) { m.factor = f }
}

func WithUpliftMode(mode UpliftMode) ModelOption {
	return func(m *Model) { m.mode = mode }
}

// NewModel returns a model over c; a nil catalog means the static one.
func NewModel(c Catalog, opts ...ModelOption) *Model {
	if c == nil {
		c = StaticCatalog{}
	}
	m := &Model{catalog: c, factor: DefaultUpliftFactor, mode: UpliftFixed}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Validate(in domain.AuditInputs) error { return Validate(in) }

// SelectIssues returns the catalog issues ordered by non-increasing severity.
// The sort is stable, so catalog order is kept within a severity.
func (m *Model) SelectIssues(in domain.AuditInputs) ([]domain.Issue, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	issues := slices.Clone(m.catalog.Issues(in))
	slices.SortStableFunc(issues, func(a, b domain.Issue) int {
		return b.Severity.Rank() - a.Severity.Rank()
	})
	return issues, nil
}

// EstimateCompetitors prices each catalog competitor slot against the inputs.
func (m *Model) EstimateCompetitors(in domain.AuditInputs) ([]domain.Competitor, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	profiles := m.catalog.Competitors(in)
	out := make([]domain.Competitor, 0, len(profiles))
	for _, p := range profiles {
		rev, err := roundedRevenue("monthly_visitors",
			float64(in.MonthlyVisitors)*p.TrafficMultiplier*(p.ConversionRate/100)*in.AverageOrderValue)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Competitor{
			Name:             p.Name,
			KeyAdvantage:     p.KeyAdvantage,
			ConversionRate:   p.ConversionRate,
			EstimatedRevenue: rev,
		})
	}
	return out, nil
}

// UpliftFactor returns the factor used for issues under the model's mode.
func (m *Model) UpliftFactor(issues []domain.Issue) float64 {
	if m.mode != UpliftIssueWeighted {
		return m.factor
	}
	sum := 0
	for _, is := range issues[:min(len(issues), weightedTopN)] {
		sum += is.PotentialUplift
	}
	return math.Round(float64(sum)*issueWeight*10) / 10 / percentageScale
}

// Potential computes the revenue potential for in given the selected issues.
func (m *Model) Potential(in domain.AuditInputs, issues []domain.Issue) (domain.RevenuePotential, error) {
	return ComputePotential(in.MonthlyVisitors, in.CurrentConversionRate, in.AverageOrderValue, m.UpliftFactor(issues))
}

// Analyze runs every part of the model for in.
func (m *Model) Analyze(in domain.AuditInputs) (*Analysis, error) {
	issues, err := m.SelectIssues(in)
	if err != nil {
		return nil, err
	}
	potential, err := m.Potential(in, issues)
	if err != nil {
		return nil, err
	}
	competitors, err := m.EstimateCompetitors(in)
	if err != nil {
		return nil, err
	}
	return &Analysis{
		CurrentMetrics: domain.CurrentMetrics{
			MonthlyVisitors:   in.MonthlyVisitors,
			ConversionRate:    in.CurrentConversionRate,
			AverageOrderValue: in.AverageOrderValue,
			MonthlyRevenue:    potential.CurrentMonthlyRevenue,
		},
		Potential:       potential,
		Issues:          issues,
		Competitors:     competitors,
		Recommendations: slices.Clone(m.catalog.Recommendations(in, issues)),
		ConfidenceScore: min(max(m.catalog.ConfidenceScore(in), 0), 100),
	}, nil
}
