package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter writes a dataset as a single CSV table. Headline metrics are
// left to the PDF rendition.
type CSVExporter struct {
	// Neutralize prefixes formula-like cells with a quote.
	Neutralize bool
}

// NewCSVExporter returns an exporter that neutralizes formula cells.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{Neutralize: true}
}

func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	records, err := data.Records()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	for _, record := range records {
		if e.Neutralize {
			for i := range record {
				record[i] = neutralize(record[i])
			}
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush: %w", err)
	}
	return buf.Bytes(), nil
}
