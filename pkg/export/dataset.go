package export

import (
	"errors"
	"strings"
)

// ErrNoColumns is returned when a dataset has no headers to render.
var ErrNoColumns = errors.New("export: dataset has no columns")

// Metric is a labelled headline figure printed above the table.
type Metric struct {
	Label string
	Value string
}

// Dataset is a table keyed by header name plus optional headline metrics.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
	Summary []Metric
}

// Records flattens the rows in header order. Missing cells are empty.
func (d Dataset) Records() ([][]string, error) {
	if len(d.Headers) == 0 {
		return nil, ErrNoColumns
	}
	out := make([][]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		record := make([]string, len(d.Headers))
		for i, header := range d.Headers {
			record[i] = row[header]
		}
		out = append(out, record)
	}
	return out, nil
}

// neutralize keeps spreadsheet applications from evaluating user supplied
// text such as event names as formulas.
func neutralize(cell string) string {
	if cell == "" {
		return cell
	}
	if strings.ContainsRune("=+-@\t\r", rune(cell[0])) {
		return "'" + cell
	}
	return cell
}
