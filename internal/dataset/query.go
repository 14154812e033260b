package dataset

import "time"

// Query asks a provider for a point time series. Start and End are inclusive
// civil dates at midnight UTC.
type Query struct {
	Location  Location
	Start     time.Time
	End       time.Time
	Variables []Variable
}

// Days returns the inclusive number of days covered by the query.
func (q Query) Days() int {
	return int(q.End.Sub(q.Start).Hours()/24) + 1
}
