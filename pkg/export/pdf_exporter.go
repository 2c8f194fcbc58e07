package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageMargin = 10.0
	rowHeight  = 7.0
	// wideTable switches the page to landscape.
	wideTable = 6
)

// PDFExporter lays a dataset out as a titled table with the headline metrics
// above it. The header row repeats on every page.
type PDFExporter struct {
	// Footer is printed left of the page number when set.
	Footer string
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{Footer: "Campus Events"}
}

func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	records, err := data.Records()
	if err != nil {
		return nil, err
	}

	orientation := "P"
	if len(data.Headers) > wideTable {
		orientation = "L"
	}
	doc := gofpdf.New(orientation, "mm", "A4", "")
	doc.SetMargins(pageMargin, pageMargin+5, pageMargin)
	doc.SetAutoPageBreak(true, pageMargin+5)
	doc.AliasNbPages("")
	doc.SetFooterFunc(func() {
		doc.SetY(-12)
		doc.SetFont("Arial", "I", 8)
		doc.CellFormat(0, 6, fmt.Sprintf("%s  %d/{nb}", e.Footer, doc.PageNo()), "", 0, "R", false, 0, "")
	})

	pageWidth, _ := doc.GetPageSize()
	colWidth := (pageWidth - 2*pageMargin) / float64(len(data.Headers))
	header := func() {
		doc.SetFont("Arial", "B", 10)
		doc.SetFillColor(230, 230, 230)
		for _, h := range data.Headers {
			doc.CellFormat(colWidth, rowHeight+1, h, "1", 0, "C", true, 0, "")
		}
		doc.Ln(-1)
		doc.SetFont("Arial", "", 9)
	}

	doc.AddPage()
	if title != "" {
		doc.SetFont("Arial", "B", 14)
		doc.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
		doc.Ln(3)
	}
	for _, m := range data.Summary {
		doc.SetFont("Arial", "B", 10)
		doc.CellFormat(55, rowHeight, m.Label, "", 0, "", false, 0, "")
		doc.SetFont("Arial", "", 10)
		doc.CellFormat(0, rowHeight, m.Value, "", 1, "", false, 0, "")
	}
	if len(data.Summary) > 0 {
		doc.Ln(4)
	}

	header()
	_, pageHeight := doc.GetPageSize()
	for _, record := range records {
		if doc.GetY()+rowHeight > pageHeight-pageMargin-5 {
			doc.AddPage()
			header()
		}
		for _, cell := range record {
			doc.CellFormat(colWidth, rowHeight, fit(doc, cell, colWidth-2), "1", 0, "", false, 0, "")
		}
		doc.Ln(-1)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf output: %w", err)
	}
	return buf.Bytes(), nil
}

// fit shortens text with an ellipsis until it fits the width in the current font.
func fit(doc *gofpdf.Fpdf, text string, width float64) string {
	if doc.GetStringWidth(text) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if doc.GetStringWidth(candidate) <= width {
			return candidate
		}
	}
	return ""
}
