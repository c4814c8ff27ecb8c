package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Line is one labelled amount on a billing document.
type Line struct {
	Description string
	Amount      string
}

// BillingDocument is the content of an invoice or official receipt.
type BillingDocument struct {
	Title      string
	SchoolName string
	Number     string
	IssuedAt   time.Time
	BilledTo   string
	Details    [][2]string
	Lines      []Line
	Totals     []Line
	Footer     string
}

// PDFExporter renders billing documents and plain tables.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderBilling produces an A4 invoice or receipt.
func (e *PDFExporter) RenderBilling(doc BillingDocument) ([]byte, error) {
	if doc.Number == "" {
		return nil, fmt.Errorf("billing document requires a number")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle(doc.Title+" "+doc.Number, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 15)
	pdf.CellFormat(0, 8, tr(doc.SchoolName), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, strings.ToUpper(doc.Title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	header := append([][2]string{
		{"No.", doc.Number},
		{"Date", doc.IssuedAt.Format("January 2, 2006")},
		{"Billed to", doc.BilledTo},
	}, doc.Details...)
	for _, kv := range header {
		pdf.CellFormat(35, 6, tr(kv[0]+":"), "", 0, "", false, 0, "")
		pdf.CellFormat(0, 6, tr(kv[1]), "", 1, "", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(130, 8, "Description", "1", 0, "", true, 0, "")
	pdf.CellFormat(50, 8, "Amount", "1", 1, "R", true, 0, "")
	pdf.SetFont("Arial", "", 10)
	for _, line := range doc.Lines {
		pdf.CellFormat(130, 7, tr(line.Description), "1", 0, "", false, 0, "")
		pdf.CellFormat(50, 7, line.Amount, "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 10)
	for _, total := range doc.Totals {
		pdf.CellFormat(130, 7, tr(total.Description), "", 0, "R", false, 0, "")
		pdf.CellFormat(50, 7, total.Amount, "1", 1, "R", false, 0, "")
	}

	if doc.Footer != "" {
		pdf.Ln(8)
		pdf.SetFont("Arial", "I", 9)
		pdf.MultiCell(0, 5, tr(doc.Footer), "", "C", false)
	}

	return output(pdf)
}

// RenderTable creates a PDF with an optional title and a table body.
func (e *PDFExporter) RenderTable(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 9)
	colWidth := 277.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return output(pdf)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
