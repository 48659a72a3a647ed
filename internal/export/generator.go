package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fdg312/informes-hub/internal/render"
	"github.com/fdg312/informes-hub/internal/report"
	"github.com/jung-kurt/gofpdf"
)

// Generate renders rep in format.
func Generate(rep *report.GeneratedReport, title, format string) ([]byte, error) {
	if rep == nil {
		return nil, ErrNoReport
	}
	switch format {
	case FormatJSON:
		return EncodeJSON(rep)
	case FormatPDF:
		return generatePDF(render.Present(rep), title)
	case FormatCSV:
		return generateCSV(render.Present(rep))
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// EncodeJSON is the JSON download: the report as received, indented by
// two spaces, with section and field order kept.
func EncodeJSON(rep *report.GeneratedReport) ([]byte, error) {
	if rep == nil {
		return nil, ErrNoReport
	}
	out := *rep
	if out.Sections == nil {
		out.Sections = []report.Section{}
	}
	return json.MarshalIndent(out, "", "  ")
}

// generateCSV writes one row per section field. Sections without fields
// still get a row so their message is not lost.
func generateCSV(v render.View) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"section", "title", "severity", "block_name", "message", "field", "value"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, s := range v.Sections {
		base := []string{strconv.Itoa(s.Index + 1), s.Title, string(s.Severity), s.BlockName, s.Message}
		if len(s.Fields) == 0 {
			if err := w.Write(append(base, "", "")); err != nil {
				return nil, err
			}
			continue
		}
		for _, f := range s.Fields {
			row := append(append([]string{}, base...), f.Key, f.Value)
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// generatePDF uses the core Helvetica font; text goes through the cp1252
// translator so Spanish accents survive.
func generatePDF(v render.View, title string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	const font = "Helvetica"

	if title == "" {
		title = DefaultTitle
	}

	pdf.SetTitle(title, true)
	pdf.AddPage()

	pdf.SetFont(font, "B", 16)
	pdf.Cell(0, 10, tr(title))
	pdf.Ln(10)

	if v.Empty && v.ContractType == "" {
		pdf.SetFont(font, "", 11)
		pdf.Cell(0, 8, tr(v.EmptyMessage))
		return output(pdf)
	}

	pdf.SetFont(font, "", 12)
	pdf.Cell(0, 7, tr(fmt.Sprintf("Tipo de contrato: %s", v.ContractType)))
	pdf.Ln(6)
	pdf.Cell(0, 7, tr(fmt.Sprintf("Año: %d", v.Year)))
	pdf.Ln(8)
	if v.Context != "" {
		pdf.SetFont(font, "I", 10)
		pdf.MultiCell(0, 5, tr(v.Context), "", "L", false)
		pdf.Ln(2)
	}

	pdf.SetFont(font, "B", 11)
	pdf.Cell(0, 7, tr(fmt.Sprintf("Críticos: %d   Advertencias: %d   Informativos: %d",
		v.Counts.Critical, v.Counts.Warning, v.Counts.Info)))
	pdf.Ln(10)

	for _, s := range v.Sections {
		pdf.SetFont(font, "B", 13)
		pdf.Cell(0, 8, tr(fmt.Sprintf("%d. %s", s.Index+1, s.Title)))
		pdf.Ln(8)

		if len(s.Fields) > 0 {
			drawFieldsTable(pdf, tr, font, s.Fields)
			pdf.Ln(2)
		}

		if s.Budget != nil {
			pdf.SetFont(font, "", 10)
			pdf.Cell(0, 6, tr(fmt.Sprintf("Ejecución: %.1f%% (%s). %s",
				s.Budget.Ratio, s.Budget.Tier.Label(), s.Budget.Analysis)))
			pdf.Ln(6)
		}

		r, g, b := severityColor(s.Severity)
		pdf.SetTextColor(r, g, b)
		pdf.SetFont(font, "B", 10)
		pdf.MultiCell(0, 5, tr(fmt.Sprintf("%s: %s", s.Severity, s.Message)), "", "L", false)
		pdf.SetTextColor(0, 0, 0)
		pdf.Ln(4)
	}

	return output(pdf)
}

func drawFieldsTable(pdf *gofpdf.Fpdf, tr func(string) string, font string, fields []render.FieldView) {
	pdf.SetFont(font, "B", 9)
	pdf.CellFormat(70, 6, tr("Campo"), "1", 0, "L", false, 0, "")
	pdf.CellFormat(110, 6, tr("Valor"), "1", 1, "L", false, 0, "")

	pdf.SetFont(font, "", 9)
	for _, f := range fields {
		pdf.CellFormat(70, 6, tr(truncate(f.Key, 45)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(110, 6, tr(truncate(f.Value, 70)), "1", 1, "L", false, 0, "")
	}
}

func severityColor(s report.Severity) (int, int, int) {
	switch s {
	case report.SeverityCritical:
		return 185, 28, 28
	case report.SeverityWarning:
		return 161, 98, 7
	default:
		return 30, 64, 175
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}
