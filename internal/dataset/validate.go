package dataset

import "fmt"

// Validate runs advisory quality checks over a table and returns warnings:
// empty time axis, requested variables the providers never delivered, columns
// that are mostly missing, and samples outside the plausible range of the
// variable catalog. Warnings never fail a request; callers attach them to the
// response and move on.
func Validate(t *Table, requested []Variable) []string {
	var warnings []string
	if t.Len() == 0 {
		warnings = append(warnings, "time axis is empty")
		return warnings
	}
	for _, v := range requested {
		if _, ok := t.Column(v); !ok {
			warnings = append(warnings, fmt.Sprintf("%s: missing in dataset", v))
		}
	}
	for _, v := range t.order {
		values := t.cols[v]
		valid := 0
		outside := 0
		info, ranged := Info(v)
		for _, value := range values {
			if IsMissing(value) {
				continue
			}
			valid++
			if ranged && (value < info.Min || value > info.Max) {
				outside++
			}
		}
		if frac := float64(valid) / float64(len(values)); frac < 0.5 {
			warnings = append(warnings, fmt.Sprintf("%s: only %.0f%% of %d samples are valid", v, frac*100, len(values)))
		}
		if outside > 0 {
			warnings = append(warnings, fmt.Sprintf("%s: %d samples outside plausible range [%g, %g]", v, outside, info.Min, info.Max))
		}
	}
	return warnings
}
