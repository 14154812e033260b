// Package dataset defines the intermediate form shared by all provider
// adapters and the normalized time-indexed table that the statistics
// engine operates on.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrMalformedDataset is returned when a provider payload is structurally
	// unusable: missing or empty time axis, or value series misaligned with it.
	ErrMalformedDataset = errors.New("dataset: malformed dataset")

	// ErrUnsupportedStatistic is returned for resample statistics outside
	// mean, sum, max, min.
	ErrUnsupportedStatistic = errors.New("dataset: unsupported statistic")

	// ErrUnsupportedFrequency is returned for resample frequency strings that
	// cannot be parsed.
	ErrUnsupportedFrequency = errors.New("dataset: unsupported resample frequency")

	// ErrUnknownVariable is returned when an operation names a variable the
	// table has no column for.
	ErrUnknownVariable = errors.New("dataset: variable not present")
)

// Missing is the in-memory sentinel for an absent sample.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is the missing-value sentinel.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Location is the query point a dataset was fetched for.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Meta carries provenance for a fetched dataset.
type Meta struct {
	Source       string   `json:"data_source"`
	Location     Location `json:"location"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	AccessMethod string   `json:"access_method,omitempty"`
}

// Dataset is the uniform intermediate structure every provider adapter
// returns. Times is ordered non-decreasing. Series holds scalar samples
// aligned positionally with Times (NaN marks a missing sample). Cells holds
// per-timestamp value vectors for grid sources that return more than one
// spatial cell per sample; a variable appears in Series or Cells, not both.
type Dataset struct {
	Times  []time.Time
	Series map[Variable][]float64
	Cells  map[Variable][][]float64
	Meta   Meta
}

// New returns an empty dataset for the given time axis.
func New(times []time.Time, meta Meta) *Dataset {
	return &Dataset{
		Times:  times,
		Series: make(map[Variable][]float64),
		Meta:   meta,
	}
}

// SetSeries attaches a scalar value series for v.
func (d *Dataset) SetSeries(v Variable, values []float64) {
	if d.Series == nil {
		d.Series = make(map[Variable][]float64)
	}
	d.Series[v] = values
}

// SetCells attaches a per-timestamp vector series for v.
func (d *Dataset) SetCells(v Variable, rows [][]float64) {
	if d.Cells == nil {
		d.Cells = make(map[Variable][][]float64)
	}
	d.Cells[v] = rows
}

// Variables lists every variable the dataset carries, scalar or vector.
func (d *Dataset) Variables() []Variable {
	vars := make([]Variable, 0, len(d.Series)+len(d.Cells))
	for v := range d.Series {
		vars = append(vars, v)
	}
	for v := range d.Cells {
		vars = append(vars, v)
	}
	return vars
}

// check verifies the structural invariant: a non-empty time axis and every
// series aligned with it.
func (d *Dataset) check() error {
	if d == nil || len(d.Times) == 0 {
		return fmt.Errorf("%w: missing or empty time axis", ErrMalformedDataset)
	}
	n := len(d.Times)
	for v, values := range d.Series {
		if len(values) != n {
			return fmt.Errorf("%w: variable %s has %d values for %d timestamps",
				ErrMalformedDataset, v, len(values), n)
		}
	}
	for v, rows := range d.Cells {
		if len(rows) != n {
			return fmt.Errorf("%w: variable %s has %d rows for %d timestamps",
				ErrMalformedDataset, v, len(rows), n)
		}
	}
	return nil
}

// DailyRange returns one midnight-UTC timestamp per day from start through
// end inclusive. All adapters share this axis for daily products.
func DailyRange(start, end time.Time) []time.Time {
	start = start.UTC().Truncate(24 * time.Hour)
	end = end.UTC().Truncate(24 * time.Hour)
	var times []time.Time
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, 1) {
		times = append(times, cur)
	}
	return times
}
