// Package report renders the date-range PDF export of the highlight board.
//
// Layout is managed manually: automatic page breaking is disabled and every
// break decision is made against the measured height of the next piece, so
// the document header can be re-emitted on each physical page.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/pharmaboard/highlights-api/highlights"
	"github.com/pharmaboard/highlights-api/interfaces"
)

// ErrNoData reports that the filtered range holds no records. Not a
// failure: the caller surfaces it as an informational notice.
var ErrNoData = errors.New("no records in the requested range")

const (
	marginLeft  = 15.0
	marginTop   = 15.0
	marginRight = 15.0
	bottomGuard = 18.0

	labelWidth = 45.0
	lineHeight = 5.0

	headerGap       = 4.0
	dayBannerHeight = 8.0
	separatorHeight = 6.0
)

// Renderer lays out day records into an A4 document.
type Renderer struct {
	institution string
}

// Ensure Renderer implements the ReportRenderer interface
var _ interfaces.ReportRenderer = (*Renderer)(nil)

// NewRenderer creates a Renderer. The institution name heads every page.
func NewRenderer(institution string) *Renderer {
	return &Renderer{institution: institution}
}

// Filename is the download name for a range report.
func Filename(start, end string) string {
	return fmt.Sprintf("pharmacology-highlights-%s-to-%s.pdf", start, end)
}

// Render lays the given days out into a document and returns the bytes
// and the physical page count. Days outside [start, end] are dropped and
// the rest render in ascending date order. An empty result is ErrNoData.
func (r *Renderer) Render(days []highlights.DailyHighlight, start, end string) ([]byte, int, error) {
	days = filterDays(days, start, end)
	if len(days) == 0 {
		return nil, 0, ErrNoData
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Pharmacology Daily Drug Highlights", true)
	pdf.SetMargins(marginLeft, marginTop, marginRight)
	pdf.SetAutoPageBreak(false, 0)

	pageWidth, pageHeight := pdf.GetPageSize()
	l := &layout{
		pdf:    pdf,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		width:  pageWidth - marginLeft - marginRight,
		bottom: pageHeight - bottomGuard,
	}

	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(l.width, 7, l.tr(r.institution), "", 1, "C", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(l.width, 6, "Daily Drug Highlight Report", "", 1, "C", false, 0, "")

		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(90, 90, 90)
		pdf.CellFormat(l.width/2, 5, fmt.Sprintf("%s to %s", start, end), "", 0, "L", false, 0, "")
		pdf.CellFormat(l.width/2, 5, fmt.Sprintf("Page %d", pdf.PageNo()), "", 1, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)

		pdf.SetDrawColor(120, 120, 120)
		pdf.SetLineWidth(0.4)
		y := pdf.GetY() + 1
		pdf.Line(marginLeft, y, pageWidth-marginRight, y)
		pdf.SetY(y + headerGap)
	})
	pdf.AddPage()

	for i, day := range days {
		// Never leave a day banner stranded at the bottom of a page.
		l.ensureRoom(dayBannerHeight + 2*lineHeight)
		l.dayBanner(day.Date)

		for j, drug := range day.Drugs {
			if j > 0 {
				l.separator()
			}
			for _, row := range fieldRows(drug) {
				l.fieldRow(row.label, row.value)
			}
		}
		if i < len(days)-1 {
			pdf.Ln(4)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, 0, fmt.Errorf("failed to assemble report: %w", err)
	}
	return buf.Bytes(), pdf.PageCount(), nil
}

// layout tracks the cursor against the printable region of the current
// page. One instance per Render call, so renders can run concurrently.
type layout struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	width  float64
	bottom float64
}

// ensureRoom breaks to a fresh page when fewer than h millimeters remain.
func (l *layout) ensureRoom(h float64) {
	if l.pdf.GetY()+h > l.bottom {
		l.pdf.AddPage()
	}
}

func (l *layout) dayBanner(date string) {
	l.pdf.SetFillColor(228, 234, 243)
	l.pdf.SetFont("Helvetica", "B", 12)
	l.pdf.CellFormat(l.width, dayBannerHeight, l.tr(formatDayHeading(date)), "", 1, "L", true, 0, "")
	l.pdf.Ln(1)
}

// separator draws a thin rule between two drugs on the same day. When the
// rule itself would overflow, break to a new page instead: the page edge
// already separates the records.
func (l *layout) separator() {
	if l.pdf.GetY()+separatorHeight > l.bottom {
		l.pdf.AddPage()
		return
	}
	y := l.pdf.GetY() + separatorHeight/2
	l.pdf.SetDrawColor(185, 185, 185)
	l.pdf.SetLineWidth(0.2)
	l.pdf.Line(marginLeft+10, y, marginLeft+l.width-10, y)
	l.pdf.SetY(y + separatorHeight/2)
}

// fieldRow renders one labeled value, wrapping the text to the value
// column and breaking across pages when the wrapped block is taller than
// the room left. The label prints only next to the first chunk.
func (l *layout) fieldRow(label, value string) {
	valueWidth := l.width - labelWidth

	l.pdf.SetFont("Helvetica", "", 9)
	lines := l.pdf.SplitText(l.tr(value), valueWidth)
	if len(lines) == 0 {
		lines = []string{""}
	}

	first := true
	for len(lines) > 0 {
		if l.pdf.GetY()+lineHeight > l.bottom {
			l.pdf.AddPage()
		}

		room := int((l.bottom - l.pdf.GetY()) / lineHeight)
		if room < 1 {
			room = 1
		}
		take := len(lines)
		if take > room {
			take = room
		}
		chunk := strings.Join(lines[:take], "\n")
		lines = lines[take:]

		l.pdf.SetFont("Helvetica", "B", 9)
		labelText := ""
		if first {
			labelText = label
		}
		l.pdf.CellFormat(labelWidth, lineHeight, labelText, "", 0, "L", false, 0, "")

		l.pdf.SetFont("Helvetica", "", 9)
		l.pdf.MultiCell(valueWidth, lineHeight, chunk, "", "L", false)

		first = false
	}
}

type labeledField struct {
	label string
	value string
}

// fieldRows builds the fixed label order of the board. Blank values still
// render so every record shows the same scaffold.
func fieldRows(drug highlights.DrugHighlight) []labeledField {
	return []labeledField{
		{"Drug Name", drug.DrugName},
		{"Drug Class", drug.DrugClass},
		{"Mechanism of Action", drug.Mechanism},
		{"Uses", drug.Uses},
		{"Side Effects", drug.SideEffects},
		{"Route of Administration", drug.RouteOfAdministration},
		{"Dose", drug.Dose},
		{"Dosage Form", drug.DosageForm},
		{"Half-life", drug.HalfLife},
		{"Clinical Uses", drug.ClinicalUses},
		{"Contraindication", drug.Contraindication},
		{"Off-Label Use", offLabelText(drug.OffLabelUse)},
		{"Fun Fact", drug.FunFact},
	}
}

// offLabelText renders the value followed by a References: block with one
// URL per line, when any exist.
func offLabelText(info highlights.InfoWithReference) string {
	if len(info.References) == 0 {
		return info.Value
	}
	parts := make([]string, 0, len(info.References)+2)
	if info.Value != "" {
		parts = append(parts, info.Value)
	}
	parts = append(parts, "References:")
	parts = append(parts, info.References...)
	return strings.Join(parts, "\n")
}

// filterDays keeps days inside [start, end] in ascending date order.
// Lexicographic comparison is correct because the keys are zero-padded.
// Days with no drugs carry nothing to lay out and are dropped.
func filterDays(days []highlights.DailyHighlight, start, end string) []highlights.DailyHighlight {
	kept := make([]highlights.DailyHighlight, 0, len(days))
	for _, day := range days {
		if day.Date < start || day.Date > end || len(day.Drugs) == 0 {
			continue
		}
		kept = append(kept, day)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Date < kept[j].Date })
	return kept
}

// formatDayHeading turns 2025-03-10 into "Monday, 10 March 2025", falling
// back to the raw key when it does not parse.
func formatDayHeading(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("Monday, 2 January 2006")
}
