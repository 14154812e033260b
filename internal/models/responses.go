package models

import (
	"math"

	"github.com/planmyfest/weather-backend/internal/dataset"
	"github.com/planmyfest/weather-backend/internal/services"
)

// Validation is the advisory quality report attached to data responses.
type Validation struct {
	OK     bool     `json:"ok"`
	Issues []string `json:"issues"`
}

func NewValidation(warnings []string) Validation {
	if warnings == nil {
		warnings = []string{}
	}
	return Validation{OK: len(warnings) == 0, Issues: warnings}
}

type Coordinates struct {
	Time []string `json:"time"`
}

type SeriesColumn struct {
	Values      []*float64 `json:"values"`
	Unit        string     `json:"unit,omitempty"`
	Description string     `json:"description,omitempty"`
}

// SeriesData is the tabular payload of a weather response: one shared time
// axis plus one column per variable, missing samples as null.
type SeriesData struct {
	Coordinates Coordinates             `json:"coordinates"`
	Variables   map[string]SeriesColumn `json:"variables"`
	Metadata    dataset.Meta            `json:"metadata"`
}

func NewSeriesData(t *dataset.Table) SeriesData {
	times := make([]string, t.Len())
	for i, ts := range t.Times() {
		times[i] = ts.UTC().Format(dataset.TimeLayout)
	}
	variables := make(map[string]SeriesColumn, len(t.Variables()))
	for _, v := range t.Variables() {
		values, _ := t.Column(v)
		column := SeriesColumn{Values: NullableSeries(values)}
		if info, ok := dataset.Info(v); ok {
			column.Unit = info.Unit
			column.Description = info.Description
		}
		variables[string(v)] = column
	}
	return SeriesData{
		Coordinates: Coordinates{Time: times},
		Variables:   variables,
		Metadata:    t.Meta(),
	}
}

type WeatherResponse struct {
	Success    bool       `json:"success"`
	Source     string     `json:"source"`
	Data       SeriesData `json:"data"`
	Validation Validation `json:"validation"`
}

type ProbabilityResponse struct {
	Probabilities map[string]float64 `json:"probabilities"`
	NSamples      int                `json:"n_samples"`
	Source        string             `json:"source"`
	Validation    Validation         `json:"validation"`
}

type DOYProbabilityResponse struct {
	Probabilities map[string]float64             `json:"probabilities"`
	NSamples      int                            `json:"n_samples"`
	Source        string                         `json:"source"`
	Validation    Validation                     `json:"validation"`
	Summary       map[string]DistributionSummary `json:"summary"`
}

type DistributionSummary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P10    float64 `json:"p10"`
	P90    float64 `json:"p90"`
}

// NewProbabilities rekeys exceedance results for the wire.
func NewProbabilities(probs map[dataset.Variable]float64) map[string]float64 {
	out := make(map[string]float64, len(probs))
	for v, p := range probs {
		out[string(v)] = p
	}
	return out
}

// NewDOYSummary renders the temperature summary, empty when there were no
// valid samples.
func NewDOYSummary(summary *dataset.Summary) map[string]DistributionSummary {
	out := map[string]DistributionSummary{}
	if summary == nil || summary.Count == 0 {
		return out
	}
	out[string(dataset.VarTemperature)] = DistributionSummary{
		Mean:   summary.Mean,
		Median: summary.Median,
		P10:    summary.P10,
		P90:    summary.P90,
	}
	return out
}

type StatsSeries struct {
	Variable string     `json:"variable"`
	Stat     string     `json:"stat"`
	Freq     string     `json:"freq"`
	Time     []string   `json:"time"`
	Values   []*float64 `json:"values"`
}

type StatsResponse struct {
	Stats StatsSeries `json:"stats"`
}

func NewStatsSeries(res *services.StatsResult) StatsSeries {
	times := make([]string, res.Table.Len())
	for i, ts := range res.Table.Times() {
		times[i] = ts.UTC().Format(dataset.TimeLayout)
	}
	values, _ := res.Table.Column(res.Variable)
	return StatsSeries{
		Variable: string(res.Variable),
		Stat:     res.Stat,
		Freq:     res.Freq,
		Time:     times,
		Values:   NullableSeries(values),
	}
}

type SuggestionItem struct {
	Lat    float64  `json:"lat"`
	Lon    float64  `json:"lon"`
	T2M    *float64 `json:"t2m"`
	Rain   *float64 `json:"rain"`
	QV     *float64 `json:"qv"`
	PS     *float64 `json:"ps"`
	WS     *float64 `json:"ws"`
	Source string   `json:"source"`
	Score  float64  `json:"score"`
	Reason string   `json:"reason"`
	Name   string   `json:"name"`
}

type SuggestionsResponse struct {
	Suggestions       []SuggestionItem `json:"suggestions"`
	Center            dataset.Location `json:"center"`
	RadiusKm          int              `json:"radius_km"`
	TotalCandidates   int              `json:"total_candidates"`
	SuccessfulFetches int              `json:"successful_fetches"`
}

func NewSuggestionsResponse(res *services.SuggestionResult) SuggestionsResponse {
	items := make([]SuggestionItem, len(res.Suggestions))
	for i, s := range res.Suggestions {
		items[i] = SuggestionItem{
			Lat:    s.Lat,
			Lon:    s.Lon,
			T2M:    Nullable(s.Estimate.T2M),
			Rain:   Nullable(s.Estimate.Rain),
			QV:     Nullable(s.Estimate.QV),
			PS:     Nullable(s.Estimate.PS),
			WS:     Nullable(s.Estimate.WS),
			Source: s.Estimate.Source,
			Score:  s.Score,
			Reason: s.Reason,
			Name:   s.Name,
		}
	}
	return SuggestionsResponse{
		Suggestions:       items,
		Center:            res.Center,
		RadiusKm:          res.RadiusKm,
		TotalCandidates:   res.TotalCandidates,
		SuccessfulFetches: res.SuccessfulFetches,
	}
}

// Nullable converts a possibly missing sample into its wire form.
func Nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func NullableSeries(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = Nullable(v)
	}
	return out
}
