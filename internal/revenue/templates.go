package revenue

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"croaudit/internal/domain"
)

// TemplateCatalog draws a varied finding set from category templates. The
// generator is seeded from the inputs, so equal inputs give equal reports.
type TemplateCatalog struct{}

type issueTemplate struct {
	category    string
	issues      []string
	description func(n int) string
	descRange   [2]int
}

var issueTemplates = []issueTemplate{
	{
		category: "Checkout Process",
		issues: []string{
			"Multi-step checkout causing 34% cart abandonment",
			"Missing trust badges on checkout page",
			"No guest checkout option available",
			"Payment method limitations detected",
			"Unexpected shipping costs revealed at checkout",
		},
		description: func(n int) string {
			return fmt.Sprintf("This checkout issue is costing you approximately %d%% of potential conversions.", n)
		},
		descRange: [2]int{20, 50},
	},
	{
		category: "Product Pages",
		issues: []string{
			"Product images lacking zoom functionality",
			"Missing product reviews and ratings",
			"Unclear product descriptions and benefits",
			"No size guide or product specifications",
			"Poor mobile product page experience",
		},
		description: func(n int) string {
			return fmt.Sprintf("Product page optimization could increase conversion rates by %d%%.", n)
		},
		descRange: [2]int{10, 25},
	},
	{
		category: "Site Performance",
		issues: []string{
			"Page load time exceeding 3.2 seconds",
			"Mobile site speed issues detected",
			"Images not optimized for web",
			"Third-party scripts slowing site",
			"Core Web Vitals failing Google standards",
		},
		description: func(n int) string {
			return fmt.Sprintf("Site speed improvements typically result in %d%% conversion uplift.", n)
		},
		descRange: [2]int{15, 30},
	},
	{
		category: "User Experience",
		issues: []string{
			"No live chat or customer support visible",
			"Search functionality returning poor results",
			"Navigation menu too complex",
			"Missing breadcrumb navigation",
			"No clear value proposition on homepage",
		},
		description: func(n int) string {
			return fmt.Sprintf("UX improvements in this area show average gains of %d%%.", n)
		},
		descRange: [2]int{12, 28},
	},
	{
		category: "Social Proof",
		issues: []string{
			"No customer testimonials displayed",
			"Missing social media integration",
			"No urgency or scarcity indicators",
			"Return policy not prominently displayed",
			"No security certifications visible",
		},
		description: func(n int) string {
			return fmt.Sprintf("Adding social proof elements can boost conversions by %d%%.", n)
		},
		descRange: [2]int{8, 22},
	},
}

var categoryRecommendations = map[string][]string{
	"Checkout Process": {
		"Implement single-page checkout with progress indicators",
		"Add multiple payment options including digital wallets",
		"Display trust badges and security certifications prominently",
		"Offer guest checkout option alongside account creation",
		"Show all costs upfront including shipping and taxes",
	},
	"Product Pages": {
		"Add high-quality product images with 360° view capability",
		"Implement user-generated content and review system",
		"Create detailed product specifications and size guides",
		"Add related product recommendations",
		"Optimize product page layout for mobile devices",
	},
	"Site Performance": {
		"Optimize images and implement lazy loading",
		"Minimize and compress CSS/JavaScript files",
		"Implement Content Delivery Network (CDN)",
		"Remove unused third-party scripts",
		"Upgrade hosting infrastructure for better performance",
	},
	"User Experience": {
		"Add live chat or chatbot for instant customer support",
		"Improve site search with filters and autocomplete",
		"Simplify navigation menu structure",
		"Add clear call-to-action buttons throughout the site",
		"Create mobile-first responsive design",
	},
	"Social Proof": {
		"Display customer testimonials on key pages",
		"Add social media feeds and sharing options",
		"Implement urgency indicators (stock levels, time-limited offers)",
		"Prominently display return and refund policies",
		"Show security badges and certifications",
	},
}

var generalRecommendations = []string{
	"Implement A/B testing framework for continuous optimization",
	"Set up conversion tracking and analytics dashboards",
	"Create abandoned cart email recovery sequence",
	"Optimize for mobile-first user experience",
	"Implement exit-intent popups with compelling offers",
}

var competitorNames = []string{
	"Market Leader Pro",
	"Industry Pioneer",
	"Conversion Expert Co",
}

var competitorAdvantages = []string{
	"Superior checkout experience",
	"Advanced personalization engine",
	"Comprehensive review system",
	"Mobile-first design approach",
	"AI-powered product recommendations",
	"Optimized email marketing funnel",
}

const (
	minTemplateIssues      = 8
	maxTemplateIssues      = 15
	maxRecommendations     = 8
	recommendationSources  = 5
	generalRecommendationN = 2
	lowConversionThreshold = 2.0
)

type severityBand struct {
	severity             domain.Severity
	impactMin, impactMax int
	upliftMin, upliftMax float64
}

var severityBands = map[domain.Severity]severityBand{
	domain.SeverityHigh:   {domain.SeverityHigh, 70, 95, 15, 45},
	domain.SeverityMedium: {domain.SeverityMedium, 40, 69, 8, 20},
	domain.SeverityLow:    {domain.SeverityLow, 15, 39, 2, 10},
}

// seeded returns a generator keyed on the inputs and a per-use salt.
func seeded(in domain.AuditInputs, salt string) *rand.Rand {
	d := xxhash.New()
	_, _ = d.WriteString(in.WebsiteURL)
	_, _ = d.WriteString("|" + strconv.FormatInt(in.MonthlyVisitors, 10))
	_, _ = d.WriteString("|" + strconv.FormatUint(math.Float64bits(in.CurrentConversionRate), 16))
	_, _ = d.WriteString("|" + strconv.FormatUint(math.Float64bits(in.AverageOrderValue), 16))
	_, _ = d.WriteString("|" + string(in.PrimaryGoal))
	seed := d.Sum64()
	return rand.New(rand.NewPCG(seed, xxhash.Sum64String(salt)))
}

// between returns an int in [lo, hi].
func between(r *rand.Rand, lo, hi int) int { return lo + r.IntN(hi-lo+1) }

func uniform(r *rand.Rand, lo, hi float64) float64 { return lo + r.Float64()*(hi-lo) }

func pickSeverity(r *rand.Rand, rate float64) domain.Severity {
	// weights High/Medium/Low: 0.4/0.4/0.2 below the threshold, 0.2/0.4/0.4 above
	high := 0.2
	if rate < lowConversionThreshold {
		high = 0.4
	}
	x := r.Float64()
	switch {
	case x < high:
		return domain.SeverityHigh
	case x < high+0.4:
		return domain.SeverityMedium
	}
	return domain.SeverityLow
}

// Issues returns 8 to 15 distinct findings ordered by impact score.
func (TemplateCatalog) Issues(in domain.AuditInputs) []domain.Issue {
	r := seeded(in, "issues")
	n := between(r, minTemplateIssues, maxTemplateIssues)
	used := make(map[string]bool, n)
	out := make([]domain.Issue, 0, n)
	// 25 template issues, so an exhausted category is redrawn rather than skipped
	for len(out) < n {
		tpl := issueTemplates[r.IntN(len(issueTemplates))]
		var avail []string
		for _, text := range tpl.issues {
			if !used[text] {
				avail = append(avail, text)
			}
		}
		if len(avail) == 0 {
			continue
		}
		text := avail[r.IntN(len(avail))]
		used[text] = true

		band := severityBands[pickSeverity(r, in.CurrentConversionRate)]
		out = append(out, domain.Issue{
			Category:        tpl.category,
			Severity:        band.severity,
			Issue:           text,
			Description:     tpl.description(between(r, tpl.descRange[0], tpl.descRange[1])),
			PotentialUplift: int(math.Round(uniform(r, band.upliftMin, band.upliftMax))),
			ImpactScore:     between(r, band.impactMin, band.impactMax),
		})
	}
	slices.SortStableFunc(out, func(a, b domain.Issue) int { return b.ImpactScore - a.ImpactScore })
	return out
}

// Competitors returns three slots converting 0.5 to 2.5 points better than the site.
func (TemplateCatalog) Competitors(in domain.AuditInputs) []CompetitorProfile {
	r := seeded(in, "competitors")
	out := make([]CompetitorProfile, 0, len(competitorNames))
	for _, name := range competitorNames {
		out = append(out, CompetitorProfile{
			Name:              name,
			KeyAdvantage:      competitorAdvantages[r.IntN(len(competitorAdvantages))],
			TrafficMultiplier: round2(uniform(r, 0.8, 1.6)),
			ConversionRate:    round2(in.CurrentConversionRate + uniform(r, 0.5, 2.5)),
		})
	}
	return out
}

// Recommendations picks one remedy per category of the five most impactful
// issues, then two general ones.
func (TemplateCatalog) Recommendations(in domain.AuditInputs, issues []domain.Issue) []string {
	r := seeded(in, "recommendations")
	top := slices.Clone(issues)
	slices.SortStableFunc(top, func(a, b domain.Issue) int { return b.ImpactScore - a.ImpactScore })

	var out []string
	for _, is := range top[:min(len(top), recommendationSources)] {
		recs := categoryRecommendations[is.Category]
		if len(recs) == 0 {
			continue
		}
		rec := recs[r.IntN(len(recs))]
		if !slices.Contains(out, rec) {
			out = append(out, rec)
		}
	}
	general := slices.Clone(generalRecommendations)
	r.Shuffle(len(general), func(i, j int) { general[i], general[j] = general[j], general[i] })
	out = append(out, general[:generalRecommendationN]...)
	return out[:min(len(out), maxRecommendations)]
}

func (TemplateCatalog) ConfidenceScore(in domain.AuditInputs) int {
	return between(seeded(in, "confidence"), 85, 97)
}
