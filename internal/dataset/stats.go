package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Exceedance returns, per requested variable, the percentage of non-missing
// samples strictly above the threshold. Variables without a column in the
// table are omitted; a column with no valid samples reports 0.
func Exceedance(t *Table, thresholds map[Variable]float64) map[Variable]float64 {
	out := make(map[Variable]float64, len(thresholds))
	for v, threshold := range thresholds {
		values, ok := t.Column(v)
		if !ok {
			continue
		}
		var valid, above int
		for _, value := range values {
			if IsMissing(value) {
				continue
			}
			valid++
			if value > threshold {
				above++
			}
		}
		if valid == 0 {
			out[v] = 0
			continue
		}
		out[v] = float64(above) / float64(valid) * 100
	}
	return out
}

// Summary holds simple distribution statistics for one variable.
type Summary struct {
	Mean   float64
	Median float64
	P10    float64
	P90    float64
	Count  int
}

// Summarize computes a Summary over the non-missing samples of v. The second
// return is false when the table has no such column.
func Summarize(t *Table, v Variable) (Summary, bool) {
	values, ok := t.Column(v)
	if !ok {
		return Summary{}, false
	}
	valid := make([]float64, 0, len(values))
	for _, value := range values {
		if !IsMissing(value) {
			valid = append(valid, value)
		}
	}
	s := Summary{Count: len(valid)}
	if len(valid) == 0 {
		s.Mean, s.Median, s.P10, s.P90 = Missing(), Missing(), Missing(), Missing()
		return s, true
	}
	var sum float64
	for _, value := range valid {
		sum += value
	}
	sort.Float64s(valid)
	s.Mean = sum / float64(len(valid))
	s.Median = quantileSorted(valid, 0.5)
	s.P10 = quantileSorted(valid, 0.1)
	s.P90 = quantileSorted(valid, 0.9)
	return s, true
}

// Quantile returns the q-th quantile (0..1) of the non-missing samples using
// linear interpolation between order statistics. An empty sample is missing.
func Quantile(values []float64, q float64) float64 {
	valid := make([]float64, 0, len(values))
	for _, value := range values {
		if !IsMissing(value) {
			valid = append(valid, value)
		}
	}
	if len(valid) == 0 {
		return Missing()
	}
	sort.Float64s(valid)
	return quantileSorted(valid, q)
}

func quantileSorted(sorted []float64, q float64) float64 {
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// SelectAroundDay returns the rows matching the given month/day across all
// years. When fewer than minRows match, the filter widens to the same
// month/day shifted by every offset in ±1..±3 at once and the row masks are
// unioned, so widening never shrinks the match count.
func SelectAroundDay(t *Table, month, day, minRows int) *Table {
	mask := t.MatchMonthDay(month, day)
	if countTrue(mask) >= minRows {
		return t.Select(mask)
	}
	for offset := -3; offset <= 3; offset++ {
		m, d := approxMonthDay(month, day, offset)
		if m < 1 || m > 12 || d < 1 || d > 31 {
			continue
		}
		for i, hit := range t.MatchMonthDay(m, d) {
			if hit {
				mask[i] = true
			}
		}
	}
	return t.Select(mask)
}

// approxMonthDay shifts a day by offset treating every month as 31 days, one
// adjustment step and no year rollover. Out-of-range results are discarded
// by the caller.
func approxMonthDay(month, day, offset int) (int, int) {
	day += offset
	if day <= 0 {
		month--
		day += 31
	} else if day > 31 {
		month++
		day -= 31
	}
	return month, day
}

func countTrue(mask []bool) int {
	n := 0
	for _, hit := range mask {
		if hit {
			n++
		}
	}
	return n
}

// Resample buckets the table by the given frequency and aggregates every
// column with the named statistic. Frequencies are an optional count followed
// by one of H, D, W, M or Y (for example "3H", "1D", "M"); statistics are
// mean, sum, max and min. Bucket rows are labelled with the bucket start, and
// missing samples are skipped. A bucket with no valid samples yields 0 for
// sum and a missing value otherwise.
func Resample(t *Table, freq, stat string) (*Table, error) {
	agg, err := aggregator(stat)
	if err != nil {
		return nil, err
	}
	bucket, err := bucketFunc(freq)
	if err != nil {
		return nil, err
	}

	starts := make([]time.Time, 0)
	index := make(map[time.Time]int)
	for _, ts := range t.times {
		start := bucket(ts)
		if _, seen := index[start]; !seen {
			index[start] = len(starts)
			starts = append(starts, start)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for i, start := range starts {
		index[start] = i
	}

	out := &Table{times: starts, cols: make(map[Variable][]float64), meta: t.meta}
	for _, v := range t.order {
		src := t.cols[v]
		groups := make([][]float64, len(starts))
		for i, ts := range t.times {
			value := src[i]
			if IsMissing(value) {
				continue
			}
			gi := index[bucket(ts)]
			groups[gi] = append(groups[gi], value)
		}
		values := make([]float64, len(starts))
		for i, group := range groups {
			values[i] = agg(group)
		}
		out.addColumn(v, values)
	}
	return out, nil
}

func aggregator(stat string) (func([]float64) float64, error) {
	switch strings.ToLower(stat) {
	case "mean":
		return func(values []float64) float64 {
			if len(values) == 0 {
				return Missing()
			}
			var sum float64
			for _, value := range values {
				sum += value
			}
			return sum / float64(len(values))
		}, nil
	case "sum":
		return func(values []float64) float64 {
			var sum float64
			for _, value := range values {
				sum += value
			}
			return sum
		}, nil
	case "max":
		return func(values []float64) float64 {
			if len(values) == 0 {
				return Missing()
			}
			max := values[0]
			for _, value := range values[1:] {
				if value > max {
					max = value
				}
			}
			return max
		}, nil
	case "min":
		return func(values []float64) float64 {
			if len(values) == 0 {
				return Missing()
			}
			min := values[0]
			for _, value := range values[1:] {
				if value < min {
					min = value
				}
			}
			return min
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStatistic, stat)
	}
}

func bucketFunc(freq string) (func(time.Time) time.Time, error) {
	if freq == "" {
		return nil, fmt.Errorf("%w: empty frequency", ErrUnsupportedFrequency)
	}
	upper := strings.ToUpper(strings.TrimSpace(freq))
	unit := upper[len(upper)-1]
	count := 1
	if digits := upper[:len(upper)-1]; digits != "" {
		n, err := strconv.Atoi(digits)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedFrequency, freq)
		}
		count = n
	}

	switch unit {
	case 'H':
		step := time.Duration(count) * time.Hour
		return func(ts time.Time) time.Time { return ts.Truncate(step) }, nil
	case 'D':
		step := time.Duration(count) * 24 * time.Hour
		return func(ts time.Time) time.Time { return ts.Truncate(step) }, nil
	case 'W':
		step := time.Duration(count) * 7 * 24 * time.Hour
		return func(ts time.Time) time.Time { return ts.Truncate(step) }, nil
	case 'M':
		return func(ts time.Time) time.Time {
			idx := ts.Year()*12 + int(ts.Month()) - 1
			idx -= idx % count
			return time.Date(idx/12, time.Month(idx%12+1), 1, 0, 0, 0, 0, time.UTC)
		}, nil
	case 'Y':
		return func(ts time.Time) time.Time {
			year := ts.Year() - ts.Year()%count
			return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFrequency, freq)
	}
}
