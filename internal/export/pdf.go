package export

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/medireport/platform/internal/catalog"
	"github.com/medireport/platform/internal/report"
	"github.com/medireport/platform/internal/storage"
)

const (
	margin     = 20.0
	lineHeight = 5.0
	dateLayout = "January 2, 2006"
)

var whitespace = regexp.MustCompile(`\s+`)

// Filename returns the download name for a report, e.g.
// MediReport_P-001_Lipid_Profile_2025-01-31.pdf
func Filename(tr *storage.TestResult, now time.Time) string {
	display := whitespace.ReplaceAllString(catalog.DisplayName(tr.TestType), "_")
	return fmt.Sprintf("MediReport_%s_%s_%s.pdf", tr.PatientID, display, now.UTC().Format("2006-01-02"))
}

// renderer wraps one document being written
type renderer struct {
	pdf   *fpdf.Fpdf
	tr    func(string) string
	width float64
}

// Render writes the PDF for a test result and its report to w
func Render(w io.Writer, tr *storage.TestResult, now time.Time) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.AliasNbPages("")
	pdf.SetCreationDate(now)
	pdf.SetModificationDate(now)
	pdf.SetCreator("MediReport AI", false)
	pdf.SetTitle(fmt.Sprintf("%s report for %s", catalog.DisplayName(tr.TestType), tr.PatientID), true)

	pageWidth, _ := pdf.GetPageSize()
	r := &renderer{
		pdf:   pdf,
		tr:    pdf.UnicodeTranslatorFromDescriptor(""),
		width: pageWidth - 2*margin,
	}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(r.width/2, 10, r.text("Generated by MediReport AI - "+now.Format(dateLayout)), "", 0, "L", false, 0, "")
		pdf.CellFormat(r.width/2, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	r.header(pageWidth)
	r.title(tr)
	r.patientInfo(tr, now)

	ai := tr.AIReport
	if ai != nil && ai.Summary != "" {
		r.section("Executive Summary")
		r.paragraph(ai.Summary)
	}

	r.parametersTable(tr)

	if ai != nil {
		r.keyFindings(ai.KeyFindings)
		r.numbered("Clinical Recommendations", ai.Recommendations)
		r.treatment(ai.TreatmentOptions)
		if ai.OverallAssessment != "" {
			r.section("Overall Assessment")
			r.paragraph(ai.OverallAssessment)
		}
		r.criticalFlags(ai.CriticalFlags)
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.Output(w)
}

// text converts UTF-8 to the core font code page. Greek mu is mapped to the
// micro sign, which the code page has.
func (r *renderer) text(s string) string {
	return r.tr(strings.ReplaceAll(s, "μ", "µ"))
}

func (r *renderer) header(pageWidth float64) {
	pdf := r.pdf
	pdf.SetFillColor(41, 128, 185)
	pdf.Rect(0, 0, pageWidth, 40, "F")

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.Text(margin, 25, "MediReport AI")
	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(margin, 35, "Medical Test Analysis Report")

	pdf.SetTextColor(0, 0, 0)
	pdf.SetY(52)
}

func (r *renderer) title(tr *storage.TestResult) {
	r.pdf.SetFont("Helvetica", "B", 16)
	r.pdf.MultiCell(r.width, 7, r.text(fmt.Sprintf("Understanding your %s Test Results", catalog.DisplayName(tr.TestType))), "", "L", false)
	r.pdf.Ln(6)
}

func (r *renderer) patientInfo(tr *storage.TestResult, now time.Time) {
	r.section("Patient Information")
	r.pdf.SetFont("Helvetica", "", 10)

	lines := []string{
		"Patient ID: " + tr.PatientID,
		"Test Type: " + catalog.DisplayName(tr.TestType),
		"Test Date: " + tr.CreatedAt.Format(dateLayout),
		"Report Generated: " + now.Format(dateLayout),
		"Risk Level: " + strings.ToUpper(string(report.RiskLevel(tr.AIReport, tr.Parameters))),
	}
	for _, line := range lines {
		r.pdf.CellFormat(r.width, 7, r.text(line), "", 1, "L", false, 0, "")
	}
	r.pdf.Ln(6)
}

func (r *renderer) section(title string) {
	r.pdf.SetFont("Helvetica", "B", 14)
	r.pdf.SetTextColor(0, 0, 0)
	r.pdf.CellFormat(r.width, 9, r.text(title), "", 1, "L", false, 0, "")
	r.pdf.Ln(2)
}

func (r *renderer) paragraph(s string) {
	r.pdf.SetFont("Helvetica", "", 10)
	r.pdf.MultiCell(r.width, lineHeight, r.text(s), "", "L", false)
	r.pdf.Ln(8)
}

func (r *renderer) parametersTable(tr *storage.TestResult) {
	pdf := r.pdf
	r.section("Test Parameters & Results")

	col := r.width / 4
	pdf.SetFont("Helvetica", "B", 9)
	for _, h := range []string{"Parameter", "Result", "Reference Range", "Status"} {
		pdf.CellFormat(col, 7, h, "B", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	var findings []report.KeyFinding
	if tr.AIReport != nil {
		findings = tr.AIReport.KeyFindings
	}
	for _, name := range tr.Parameters.InCatalogOrder(tr.TestType) {
		refRange, status := "N/A", "Normal"
		if f := findingFor(findings, name); f != nil {
			if f.ReferenceRange != "" {
				refRange = f.ReferenceRange
			}
			if f.Status != "" {
				status = string(f.Status)
			}
		}
		pdf.CellFormat(col, 8, r.text(name), "", 0, "L", false, 0, "")
		pdf.CellFormat(col, 8, r.text(tr.Parameters[name]), "", 0, "L", false, 0, "")
		pdf.CellFormat(col, 8, r.text(refRange), "", 0, "L", false, 0, "")
		pdf.CellFormat(col, 8, r.text(status), "", 1, "L", false, 0, "")
	}
	pdf.Ln(8)
}

// findingFor returns the first finding whose parameter contains name,
// ignoring case
func findingFor(findings []report.KeyFinding, name string) *report.KeyFinding {
	lower := strings.ToLower(name)
	for i := range findings {
		if strings.Contains(strings.ToLower(findings[i].Parameter), lower) {
			return &findings[i]
		}
	}
	return nil
}

func (r *renderer) keyFindings(findings []report.KeyFinding) {
	if len(findings) == 0 {
		return
	}
	pdf := r.pdf
	r.section("Key Findings")

	for i, f := range findings {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(r.width, 7, r.text(fmt.Sprintf("%d. %s", i+1, f.Parameter)), "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "", 10)
		for _, line := range []string{
			"Value: " + string(f.Value),
			"Reference Range: " + f.ReferenceRange,
			"Status: " + string(f.Status),
			"Interpretation: " + f.Interpretation,
		} {
			pdf.SetX(margin + 10)
			pdf.MultiCell(r.width-10, lineHeight, r.text(line), "", "L", false)
		}
		pdf.Ln(4)
	}
	pdf.Ln(4)
}

func (r *renderer) numbered(title string, items []string) {
	if len(items) == 0 {
		return
	}
	r.section(title)
	r.pdf.SetFont("Helvetica", "", 10)
	for i, item := range items {
		r.pdf.MultiCell(r.width, lineHeight, r.text(fmt.Sprintf("%d. %s", i+1, item)), "", "L", false)
		r.pdf.Ln(2)
	}
	r.pdf.Ln(6)
}

func (r *renderer) treatment(opts *report.TreatmentOptions) {
	if opts == nil {
		return
	}
	r.section("Treatment Considerations")

	groups := []struct {
		label string
		items []string
	}{
		{"Lifestyle Modifications:", opts.Lifestyle},
		{"Medical Interventions:", opts.Medical},
		{"Common Medications:", opts.Medications},
	}
	for _, g := range groups {
		if len(g.items) == 0 {
			continue
		}
		r.pdf.SetFont("Helvetica", "B", 12)
		r.pdf.CellFormat(r.width, 8, g.label, "", 1, "L", false, 0, "")
		r.bullets(g.items)
		r.pdf.Ln(6)
	}
}

func (r *renderer) bullets(items []string) {
	r.pdf.SetFont("Helvetica", "", 10)
	for _, item := range items {
		r.pdf.MultiCell(r.width, lineHeight, r.text("• "+item), "", "L", false)
		r.pdf.Ln(1)
	}
}

func (r *renderer) criticalFlags(flags []string) {
	if len(flags) == 0 {
		return
	}
	pdf := r.pdf
	pdf.SetFillColor(255, 0, 0)
	pdf.SetTextColor(255, 255, 255)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(r.width, 9, "CRITICAL FLAGS", "", 1, "L", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, flag := range flags {
		pdf.MultiCell(r.width, 6, r.text("• "+flag), "", "L", true)
	}

	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(8)
}
