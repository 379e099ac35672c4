// Package reportpdf renders a finished audit report as a downloadable PDF.
package reportpdf

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/phpdave11/gofpdf"

	"croaudit/internal/domain"
)

const fontFamily = "Helvetica"

// Render writes report to w as a single PDF document.
func Render(w io.Writer, report domain.AuditReport) error {
	pdf := build(report)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func build(report domain.AuditReport) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(true, 14)
	pdf.SetTitle("CRO Audit Report", true)
	if !report.CreatedAt.IsZero() {
		pdf.SetCreationDate(report.CreatedAt)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(0, 9, "CRO Audit Report", "", 1, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 6, tr("Website: "+report.WebsiteURL), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Audit ID: "+report.AuditID, "", 1, "L", false, 0, "")
	if !report.CreatedAt.IsZero() {
		pdf.CellFormat(0, 6, "Generated at: "+report.CreatedAt.UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Confidence score: %d%%", report.ConfidenceScore), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	m := report.CurrentMetrics
	sectionTitle(pdf, "1. Current Metrics")
	kv(pdf, "Monthly visitors", groupThousands(m.MonthlyVisitors))
	kv(pdf, "Conversion rate", fmt.Sprintf("%.2f%%", m.ConversionRate))
	kv(pdf, "Average order value", "$"+strconv.FormatFloat(m.AverageOrderValue, 'f', 2, 64))
	kv(pdf, "Monthly revenue", money(m.MonthlyRevenue))
	pdf.Ln(2)

	p := report.RevenuePotential
	sectionTitle(pdf, "2. Revenue Potential")
	kv(pdf, "Potential monthly revenue", money(p.PotentialMonthlyRevenue))
	kv(pdf, "Monthly uplift", money(p.MonthlyRevenueUplift))
	kv(pdf, "Annual uplift", money(p.AnnualRevenueUplift))
	kv(pdf, "Total uplift", fmt.Sprintf("%.0f%%", p.TotalUpliftPercentage))
	kv(pdf, "Potential conversion rate", fmt.Sprintf("%.2f%%", p.PotentialConversionRate))
	pdf.Ln(2)

	sectionTitle(pdf, fmt.Sprintf("3. Issues (%d found)", report.TotalIssues()))
	if len(report.IssuesFound) == 0 {
		empty(pdf)
	}
	for i, is := range report.IssuesFound {
		pdf.SetFont(fontFamily, "B", 10)
		pdf.SetTextColor(20, 20, 20)
		pdf.MultiCell(0, 5, tr(fmt.Sprintf("%d. [%s] %s: %s (+%d%%)", i+1, is.Severity, is.Category, is.Issue, is.PotentialUplift)), "", "L", false)
		if is.Description != "" {
			pdf.SetFont(fontFamily, "", 9)
			pdf.SetTextColor(60, 60, 60)
			pdf.MultiCell(0, 4.5, tr(is.Description), "", "L", false)
		}
		pdf.Ln(1)
	}
	pdf.Ln(2)

	sectionTitle(pdf, "4. Competitor Analysis")
	if len(report.CompetitorAnalysis) == 0 {
		empty(pdf)
	}
	for _, c := range report.CompetitorAnalysis {
		pdf.SetFont(fontFamily, "", 10)
		pdf.SetTextColor(30, 30, 30)
		line := fmt.Sprintf("%s: %.1f%% conversion, %s/month. %s", c.Name, c.ConversionRate, money(c.EstimatedRevenue), c.KeyAdvantage)
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}
	pdf.Ln(2)

	sectionTitle(pdf, "5. Recommendations")
	if len(report.Recommendations) == 0 {
		empty(pdf)
	}
	for _, rec := range report.Recommendations {
		pdf.SetFont(fontFamily, "", 10)
		pdf.SetTextColor(30, 30, 30)
		pdf.MultiCell(0, 5, tr("- "+rec), "", "L", false)
	}
	return pdf
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont(fontFamily, "B", 12)
	pdf.SetTextColor(10, 10, 10)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
}

func kv(pdf *gofpdf.Fpdf, key, value string) {
	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(60, 5.5, key, "", 0, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	pdf.CellFormat(0, 5.5, value, "", 1, "L", false, 0, "")
}

func empty(pdf *gofpdf.Fpdf) {
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(90, 90, 90)
	pdf.MultiCell(0, 5, "(none)", "", "L", false)
}

func money(v int64) string {
	return "$" + groupThousands(v)
}

// groupThousands formats v with comma separators, e.g. 1218756 -> 1,218,756.
func groupThousands(v int64) string {
	s := strconv.FormatInt(v, 10)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}
