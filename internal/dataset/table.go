package dataset

import (
	"sort"
	"time"
)

// Table is the normalized, time-indexed view of a dataset: one row per
// timestamp, one column per variable. Rows whose values are all missing are
// retained so sample counts stay meaningful for probability calculations.
type Table struct {
	times []time.Time
	order []Variable
	cols  map[Variable][]float64
	meta  Meta
}

// Normalize flattens a provider dataset into a Table. Vector-valued rows keep
// their first (nearest) cell; empty rows become missing. Requested variables
// absent from the dataset are simply not added as columns. The dataset's
// structural invariants are checked first.
func Normalize(d *Dataset) (*Table, error) {
	if err := d.check(); err != nil {
		return nil, err
	}

	t := &Table{
		times: append([]time.Time(nil), d.Times...),
		cols:  make(map[Variable][]float64),
		meta:  d.Meta,
	}

	for _, v := range sortedVariables(d) {
		if values, ok := d.Series[v]; ok {
			t.addColumn(v, append([]float64(nil), values...))
			continue
		}
		rows := d.Cells[v]
		flat := make([]float64, len(rows))
		for i, row := range rows {
			if len(row) == 0 {
				flat[i] = Missing()
			} else {
				flat[i] = row[0]
			}
		}
		t.addColumn(v, flat)
	}

	return t, nil
}

// sortedVariables gives Normalize a stable column order.
func sortedVariables(d *Dataset) []Variable {
	vars := d.Variables()
	sort.Slice(vars, func(i, j int) bool { return vars[i] < vars[j] })
	return vars
}

func (t *Table) addColumn(v Variable, values []float64) {
	if _, exists := t.cols[v]; !exists {
		t.order = append(t.order, v)
	}
	t.cols[v] = values
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.times) }

// Times returns the row timestamps in ascending order.
func (t *Table) Times() []time.Time { return t.times }

// Meta returns the provenance carried over from the source dataset.
func (t *Table) Meta() Meta { return t.meta }

// Variables returns the column names in table order.
func (t *Table) Variables() []Variable {
	return append([]Variable(nil), t.order...)
}

// Column returns the values for v, aligned with Times.
func (t *Table) Column(v Variable) ([]float64, bool) {
	values, ok := t.cols[v]
	return values, ok
}

// Row returns the values at index i keyed by variable.
func (t *Table) Row(i int) map[Variable]float64 {
	row := make(map[Variable]float64, len(t.order))
	for _, v := range t.order {
		row[v] = t.cols[v][i]
	}
	return row
}

// Select returns a new table containing the rows where mask is true. The mask
// must be aligned with Times.
func (t *Table) Select(mask []bool) *Table {
	sub := &Table{cols: make(map[Variable][]float64), meta: t.meta}
	for i, keep := range mask {
		if i >= len(t.times) {
			break
		}
		if keep {
			sub.times = append(sub.times, t.times[i])
		}
	}
	for _, v := range t.order {
		src := t.cols[v]
		values := make([]float64, 0, len(sub.times))
		for i, keep := range mask {
			if i >= len(src) {
				break
			}
			if keep {
				values = append(values, src[i])
			}
		}
		sub.addColumn(v, values)
	}
	return sub
}

// MatchMonthDay returns a row mask selecting timestamps whose calendar month
// and day equal the arguments, in any year.
func (t *Table) MatchMonthDay(month, day int) []bool {
	mask := make([]bool, len(t.times))
	for i, ts := range t.times {
		mask[i] = int(ts.Month()) == month && ts.Day() == day
	}
	return mask
}
