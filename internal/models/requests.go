package models

import (
	"errors"
	"time"

	"github.com/planmyfest/weather-backend/internal/dataset"
)

// DateLayout is the civil date format accepted on the wire.
const DateLayout = "2006-01-02"

var errDateOrder = errors.New("end_date before start_date")

type WeatherQuery struct {
	Latitude  float64  `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64  `json:"longitude" validate:"min=-180,max=180"`
	StartDate string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string   `json:"end_date" validate:"required,datetime=2006-01-02"`
	Variables []string `json:"variables"`
}

// DatasetQuery converts the request into a provider query. An empty variable
// list falls back to the default set.
func (q WeatherQuery) DatasetQuery() (dataset.Query, error) {
	start, end, err := parseDateRange(q.StartDate, q.EndDate)
	if err != nil {
		return dataset.Query{}, err
	}
	vars := dataset.ParseVariables(q.Variables)
	if len(vars) == 0 {
		vars = dataset.DefaultVariables()
	}
	return dataset.Query{
		Location:  dataset.Location{Latitude: q.Latitude, Longitude: q.Longitude},
		Start:     start,
		End:       end,
		Variables: vars,
	}, nil
}

type ProbabilityQuery struct {
	Latitude   float64            `json:"latitude" validate:"min=-90,max=90"`
	Longitude  float64            `json:"longitude" validate:"min=-180,max=180"`
	StartDate  string             `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string             `json:"end_date" validate:"required,datetime=2006-01-02"`
	Variables  []string           `json:"variables"`
	Thresholds map[string]float64 `json:"thresholds" validate:"required,min=1"`
}

func (q ProbabilityQuery) DatasetQuery() (dataset.Query, error) {
	return WeatherQuery{
		Latitude:  q.Latitude,
		Longitude: q.Longitude,
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
		Variables: q.Variables,
	}.DatasetQuery()
}

// VariableThresholds rekeys the wire thresholds by catalog variable.
func (q ProbabilityQuery) VariableThresholds() map[dataset.Variable]float64 {
	return variableThresholds(q.Thresholds)
}

type DOYProbabilityQuery struct {
	Latitude   float64            `json:"latitude" validate:"min=-90,max=90"`
	Longitude  float64            `json:"longitude" validate:"min=-180,max=180"`
	StartYear  int                `json:"start_year" validate:"min=1980,max=2100"`
	EndYear    int                `json:"end_year" validate:"min=1980,max=2100,gtefield=StartYear"`
	Month      int                `json:"month" validate:"required,min=1,max=12"`
	Day        int                `json:"day" validate:"required,min=1,max=31"`
	Variables  []string           `json:"variables"`
	Thresholds map[string]float64 `json:"thresholds" validate:"required,min=1"`
}

// DefaultDOYProbabilityQuery seeds the year range used when the body omits it.
func DefaultDOYProbabilityQuery() DOYProbabilityQuery {
	return DOYProbabilityQuery{StartYear: 2020, EndYear: 2024}
}

func (q DOYProbabilityQuery) VariableThresholds() map[dataset.Variable]float64 {
	return variableThresholds(q.Thresholds)
}

// ResolvedVariables returns the requested variables or the default set.
func (q DOYProbabilityQuery) ResolvedVariables() []dataset.Variable {
	vars := dataset.ParseVariables(q.Variables)
	if len(vars) == 0 {
		vars = dataset.DefaultVariables()
	}
	return vars
}

type StatsQuery struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
	StartDate string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string  `json:"end_date" validate:"required,datetime=2006-01-02"`
	Variable  string  `json:"variable" validate:"required"`
	Stat      string  `json:"stat"`
	Freq      string  `json:"freq"`
}

// DefaultStatsQuery seeds the aggregation defaults used when the body omits
// them.
func DefaultStatsQuery() StatsQuery {
	return StatsQuery{Stat: "mean", Freq: "1D"}
}

func (q StatsQuery) DateRange() (time.Time, time.Time, error) {
	return parseDateRange(q.StartDate, q.EndDate)
}

type DownloadQuery struct {
	Latitude  float64  `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64  `json:"longitude" validate:"min=-180,max=180"`
	StartDate string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string   `json:"end_date" validate:"required,datetime=2006-01-02"`
	Variables []string `json:"variables" validate:"required,min=1"`
}

func (q DownloadQuery) DatasetQuery() (dataset.Query, error) {
	return WeatherQuery{
		Latitude:  q.Latitude,
		Longitude: q.Longitude,
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
		Variables: q.Variables,
	}.DatasetQuery()
}

type SuggestionQuery struct {
	Latitude  float64 `query:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `query:"longitude" validate:"min=-180,max=180"`
	Date      string  `query:"date" validate:"required,datetime=2006-01-02"`
	RadiusKm  int     `query:"radius_km"`
	Limit     int     `query:"limit"`
}

// DefaultSuggestionQuery seeds the radius and limit used when the query
// string omits them.
func DefaultSuggestionQuery() SuggestionQuery {
	return SuggestionQuery{RadiusKm: 5, Limit: 5}
}

func (q SuggestionQuery) ParsedDate() (time.Time, error) {
	return time.ParseInLocation(DateLayout, q.Date, time.UTC)
}

func parseDateRange(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(DateLayout, startDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.ParseInLocation(DateLayout, endDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errDateOrder
	}
	return start, end, nil
}

func variableThresholds(raw map[string]float64) map[dataset.Variable]float64 {
	thresholds := make(map[dataset.Variable]float64, len(raw))
	for name, value := range raw {
		thresholds[dataset.Variable(name)] = value
	}
	return thresholds
}
