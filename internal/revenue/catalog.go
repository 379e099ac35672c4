package revenue

import "croaudit/internal/domain"

// Catalog supplies the findings content of a report. Implementations must be
// deterministic for a given input so that Model stays a pure function.
type Catalog interface {
	Issues(in domain.AuditInputs) []domain.Issue
	Competitors(in domain.AuditInputs) []CompetitorProfile
	Recommendations(in domain.AuditInputs, issues []domain.Issue) []string
	ConfidenceScore(in domain.AuditInputs) int
}

// CompetitorProfile is a competitor slot. Its revenue is estimated from the
// audited site's traffic scaled by TrafficMultiplier at ConversionRate percent.
type CompetitorProfile struct {
	Name              string
	KeyAdvantage      string
	TrafficMultiplier float64
	ConversionRate    float64
}

// StaticCatalog is the fixed reference data set; it ignores its inputs.
type StaticCatalog struct{}

var staticIssues = []domain.Issue{
	{
		Category:        "Checkout Optimization",
		Severity:        domain.SeverityHigh,
		Issue:           "Complex checkout process with 5+ steps",
		Description:     "Your checkout has too many steps, causing 67% cart abandonment",
		PotentialUplift: 23,
	},
	{
		Category:        "Mobile Experience",
		Severity:        domain.SeverityHigh,
		Issue:           "Mobile site loads 4.2s slower than desktop",
		Description:     "Mobile users are abandoning due to slow load times",
		PotentialUplift: 18,
	},
	{
		Category:        "Trust Signals",
		Severity:        domain.SeverityMedium,
		Issue:           "Missing security badges and testimonials",
		Description:     "Lack of trust indicators reducing conversion confidence",
		PotentialUplift: 12,
	},
	{
		Category:        "Product Pages",
		Severity:        domain.SeverityMedium,
		Issue:           "Product images lack zoom functionality",
		Description:     "Customers can't examine products closely before buying",
		PotentialUplift: 8,
	},
}

var staticCompetitors = []CompetitorProfile{
	{
		Name:              "Top Competitor A",
		KeyAdvantage:      "One-click checkout with Apple Pay integration",
		TrafficMultiplier: 1.2,
		ConversionRate:    4.2,
	},
	{
		Name:              "Top Competitor B",
		KeyAdvantage:      "Advanced product filtering and search",
		TrafficMultiplier: 1.1,
		ConversionRate:    3.8,
	},
}

var staticRecommendations = []string{
	"Implement single-page checkout with guest option",
	"Add mobile-first design with progressive web app features",
	"Install trust badges, reviews, and security certifications",
	"Create urgency with limited-time offers and stock counters",
	"Optimize product images with 360° view and zoom",
	"Add exit-intent popups with discount incentives",
}

const staticConfidence = 87

func (StaticCatalog) Issues(domain.AuditInputs) []domain.Issue {
	out := make([]domain.Issue, len(staticIssues))
	copy(out, staticIssues)
	return out
}

func (StaticCatalog) Competitors(domain.AuditInputs) []CompetitorProfile {
	out := make([]CompetitorProfile, len(staticCompetitors))
	copy(out, staticCompetitors)
	return out
}

func (StaticCatalog) Recommendations(domain.AuditInputs, []domain.Issue) []string {
	out := make([]string, len(staticRecommendations))
	copy(out, staticRecommendations)
	return out
}

func (StaticCatalog) ConfidenceScore(domain.AuditInputs) int { return staticConfidence }
