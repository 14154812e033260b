package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// TimeLayout is the timestamp format used on the wire and in CSV exports.
const TimeLayout = "2006-01-02T15:04:05"

// WriteCSV writes the table with a "time" column followed by one column per
// variable in table order. Missing values are written as empty fields.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(t.order)+1)
	header = append(header, "time")
	for _, v := range t.order {
		header = append(header, string(v))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(header))
	for i, ts := range t.times {
		record[0] = ts.UTC().Format(TimeLayout)
		for j, v := range t.order {
			value := t.cols[v][i]
			if IsMissing(value) {
				record[j+1] = ""
			} else {
				record[j+1] = strconv.FormatFloat(value, 'f', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a table previously produced by WriteCSV. Empty fields become
// missing values.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 || len(records[0]) == 0 || records[0][0] != "time" {
		return nil, fmt.Errorf("%w: csv missing time column", ErrMalformedDataset)
	}

	vars := make([]Variable, 0, len(records[0])-1)
	for _, name := range records[0][1:] {
		vars = append(vars, Variable(name))
	}

	t := &Table{cols: make(map[Variable][]float64)}
	columns := make([][]float64, len(vars))
	for _, record := range records[1:] {
		if len(record) != len(records[0]) {
			return nil, fmt.Errorf("%w: ragged csv row", ErrMalformedDataset)
		}
		ts, err := time.ParseInLocation(TimeLayout, record[0], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: bad timestamp %q", ErrMalformedDataset, record[0])
		}
		t.times = append(t.times, ts)
		for j, field := range record[1:] {
			if field == "" {
				columns[j] = append(columns[j], Missing())
				continue
			}
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad value %q", ErrMalformedDataset, field)
			}
			columns[j] = append(columns[j], value)
		}
	}
	for j, v := range vars {
		t.addColumn(v, columns[j])
	}
	return t, nil
}
