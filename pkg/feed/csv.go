// Package feed supplies per-expansion data rows at config-load time: a
// templated TestSpec plus a data source expands into one concrete
// spec.TestSpec per row, consumed once before a run starts. The core never
// imports this package.
package feed

import (
	"encoding/csv"
	"fmt"
	"os"
)

// Feeder yields successive data rows. A config-time data source
// implements this so pkg/config can expand a templated test once per row.
type Feeder interface {
	// Len returns the number of distinct rows.
	Len() int
	// Row returns the i-th row, keyed by CSV header column name.
	Row(i int) map[string]string
}

// CSVFeeder holds every row of a CSV file in memory, read once at config
// load time.
type CSVFeeder struct {
	records []map[string]string
}

// NewCSVFeeder reads and validates path: a header row plus at least one
// data row, with no empty header fields.
func NewCSVFeeder(path string) (*CSVFeeder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv data source: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv data source: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("csv data source %q must have a header and at least one row", path)
	}

	headers := rows[0]
	for _, h := range headers {
		if h == "" {
			return nil, fmt.Errorf("csv data source %q has an empty header field", path)
		}
	}

	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(map[string]string, len(headers))
		for i, val := range row {
			if i < len(headers) {
				record[headers[i]] = val
			}
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv data source %q has no data rows", path)
	}

	return &CSVFeeder{records: records}, nil
}

func (f *CSVFeeder) Len() int { return len(f.records) }

func (f *CSVFeeder) Row(i int) map[string]string { return f.records[i%len(f.records)] }
