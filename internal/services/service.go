package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/planmyfest/weather-backend/internal/dataset"
)

// Historical archives lag the calendar. Lookups for years that have not
// finished yet are shifted onto the most recent complete year.
const (
	firstIncompleteYear = 2025
	lastCompleteYear    = 2024
)

// minDOYRows is the sample size below which the day-of-year filter widens to
// neighboring calendar days.
const minDOYRows = 10

// Geocoder names coordinates for suggestion output.
type Geocoder interface {
	ShortName(ctx context.Context, lat, lon float64) string
}

// Chains groups the provider orderings used per operation.
type Chains struct {
	// Weather serves point series, probabilities and CSV export.
	Weather *Chain
	// DOY serves day-of-year statistics; it carries no synthetic provider
	// so that climatology noise never enters historical probabilities.
	DOY *Chain
	// Stats serves resampling queries and needs hourly resolution.
	Stats *Chain
	// Suggest estimates conditions for suggestion candidates.
	Suggest *Chain
}

// Service implements the weather operations behind the HTTP surface.
type Service struct {
	chains   Chains
	geocoder Geocoder
	logger   *zap.Logger
}

func NewService(chains Chains, geocoder Geocoder, logger *zap.Logger) *Service {
	return &Service{
		chains:   chains,
		geocoder: geocoder,
		logger:   logger,
	}
}

// PointSeries serves the plain weather lookup. Dates in years the archives
// have not finished yet are shifted back before fetching.
func (s *Service) PointSeries(ctx context.Context, q dataset.Query) (*dataset.Table, error) {
	q = remapIncompleteYears(q, s.logger)
	return s.fetchNormalized(ctx, s.chains.Weather, q)
}

// ProbabilityResult carries exceedance probabilities over a fetched range.
type ProbabilityResult struct {
	Probabilities map[dataset.Variable]float64
	Samples       int
	Table         *dataset.Table
}

// Probability computes, per thresholded variable, the share of samples
// strictly above the threshold.
func (s *Service) Probability(ctx context.Context, q dataset.Query, thresholds map[dataset.Variable]float64) (*ProbabilityResult, error) {
	table, err := s.fetchNormalized(ctx, s.chains.Weather, q)
	if err != nil {
		return nil, err
	}
	return &ProbabilityResult{
		Probabilities: dataset.Exceedance(table, thresholds),
		Samples:       table.Len(),
		Table:         table,
	}, nil
}

// DOYQuery asks for the distribution of one calendar day across years.
type DOYQuery struct {
	Location  dataset.Location
	StartYear int
	EndYear   int
	Month     int
	Day       int
	Variables []dataset.Variable
}

// DOYResult adds the temperature summary to the exceedance numbers.
type DOYResult struct {
	Probabilities map[dataset.Variable]float64
	Samples       int
	Summary       *dataset.Summary // nil when no temperature column
	Table         *dataset.Table
}

// DOYProbability samples one calendar day across the year range, widening to
// neighboring days when fewer than minDOYRows match, and computes exceedance
// probabilities over that sample.
func (s *Service) DOYProbability(ctx context.Context, q DOYQuery, thresholds map[dataset.Variable]float64) (*DOYResult, error) {
	start := time.Date(q.StartYear, time.Month(q.Month), q.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -3)
	end := time.Date(q.EndYear, time.Month(q.Month), q.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 3)

	full, err := s.fetchNormalized(ctx, s.chains.DOY, dataset.Query{
		Location:  q.Location,
		Start:     start,
		End:       end,
		Variables: q.Variables,
	})
	if err != nil {
		return nil, err
	}

	table := dataset.SelectAroundDay(full, q.Month, q.Day, minDOYRows)
	s.logger.Info("Day-of-year sample built",
		zap.Int("month", q.Month),
		zap.Int("day", q.Day),
		zap.Int("rows", table.Len()),
		zap.Int("fetched", full.Len()))

	result := &DOYResult{
		Probabilities: dataset.Exceedance(table, thresholds),
		Samples:       table.Len(),
		Table:         table,
	}
	if summary, ok := dataset.Summarize(table, dataset.VarTemperature); ok {
		result.Summary = &summary
	}
	return result, nil
}

// StatsQuery asks for one variable resampled to a coarser frequency.
type StatsQuery struct {
	Location dataset.Location
	Start    time.Time
	End      time.Time
	Variable dataset.Variable
	Stat     string
	Freq     string
}

// StatsResult is the resampled column plus its provenance.
type StatsResult struct {
	Table    *dataset.Table
	Variable dataset.Variable
	Stat     string
	Freq     string
}

// ResampledStats fetches the hourly series and aggregates it into buckets.
// Unknown variables, statistics and frequencies are invalid queries.
func (s *Service) ResampledStats(ctx context.Context, q StatsQuery) (*StatsResult, error) {
	table, err := s.fetchNormalized(ctx, s.chains.Stats, dataset.Query{
		Location:  q.Location,
		Start:     q.Start,
		End:       q.End,
		Variables: []dataset.Variable{q.Variable},
	})
	if err != nil {
		return nil, err
	}
	if _, ok := table.Column(q.Variable); !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrInvalidQuery, dataset.ErrUnknownVariable, q.Variable)
	}

	resampled, err := dataset.Resample(table, q.Freq, q.Stat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return &StatsResult{
		Table:    resampled,
		Variable: q.Variable,
		Stat:     q.Stat,
		Freq:     q.Freq,
	}, nil
}

// CSV renders the point series for the query as RFC-4180 rows. The second
// return value is the answering provider's label.
func (s *Service) CSV(ctx context.Context, q dataset.Query) ([]byte, string, error) {
	table, err := s.fetchNormalized(ctx, s.chains.Weather, q)
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	if err := dataset.WriteCSV(&buf, table); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), table.Meta().Source, nil
}

func (s *Service) fetchNormalized(ctx context.Context, chain *Chain, q dataset.Query) (*dataset.Table, error) {
	ds, err := chain.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return dataset.Normalize(ds)
}

func remapIncompleteYears(q dataset.Query, logger *zap.Logger) dataset.Query {
	if q.Start.Year() < firstIncompleteYear {
		return q
	}
	shift := q.Start.Year() - lastCompleteYear
	q.Start = q.Start.AddDate(-shift, 0, 0)
	q.End = q.End.AddDate(-shift, 0, 0)
	logger.Info("Remapped request onto the most recent complete year",
		zap.String("start", q.Start.Format("2006-01-02")),
		zap.String("end", q.End.Format("2006-01-02")))
	return q
}
