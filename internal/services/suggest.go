package services

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/planmyfest/weather-backend/internal/dataset"
)

const (
	maxCandidates         = 20
	suggestionBatchSize   = 5
	suggestionBatchPause  = 100 * time.Millisecond
	suggestionNameWorkers = 3
)

// Candidate is one probe location inside the search radius.
type Candidate struct {
	Lat      float64
	Lon      float64
	Distance float64
}

// Estimate is the weather snapshot a candidate is scored on. U10M and V10M
// may be NaN when no provider answered; the scored fields never are.
type Estimate struct {
	T2M    float64
	Rain   float64
	QV     float64
	PS     float64
	WS     float64
	U10M   float64
	V10M   float64
	Source string
}

// Suggestion is one ranked location.
type Suggestion struct {
	Lat      float64
	Lon      float64
	Estimate Estimate
	Score    float64
	Reason   string
	Name     string
}

// SuggestionRequest asks for comfortable spots around a center point.
type SuggestionRequest struct {
	Latitude  float64
	Longitude float64
	Date      time.Time
	RadiusKm  int
	Limit     int
}

// SuggestionResult is the ranked answer plus search bookkeeping.
type SuggestionResult struct {
	Suggestions       []Suggestion
	Center            dataset.Location
	RadiusKm          int
	TotalCandidates   int
	SuccessfulFetches int
}

func suggestionVariables() []dataset.Variable {
	return []dataset.Variable{
		dataset.VarTemperature,
		dataset.VarPrecipitation,
		dataset.VarHumidity,
		dataset.VarPressure,
		dataset.VarWindSpeed,
		dataset.VarWindEast,
		dataset.VarWindNorth,
	}
}

// Suggest ranks nearby points by expected weather comfort on the given day.
// One provider fetch estimates the center; other candidates get
// coordinate-seeded variations of it, so a repeated request sees the same
// values for the same point.
func (s *Service) Suggest(ctx context.Context, req SuggestionRequest) (*SuggestionResult, error) {
	radius := clampInt(req.RadiusKm, 5, 10)
	limit := clampInt(req.Limit, 1, 10)

	candidates := candidatePoints(req.Latitude, req.Longitude, radius, limit)
	center := s.centerEstimate(ctx, dataset.Location{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}, req.Date)

	pacer := rate.NewLimiter(rate.Every(suggestionBatchPause), 1)
	suggestions := make([]Suggestion, 0, len(candidates))
	for start := 0; start < len(candidates); start += suggestionBatchSize {
		if err := pacer.Wait(ctx); err != nil {
			return nil, err
		}
		end := start + suggestionBatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		for _, c := range candidates[start:end] {
			est := center
			if c.Lat != req.Latitude || c.Lon != req.Longitude {
				est = variationEstimate(center, c.Lat, c.Lon)
			}
			score := math.Round(scoreEstimate(est)*1000) / 1000
			suggestions = append(suggestions, Suggestion{
				Lat:      c.Lat,
				Lon:      c.Lon,
				Estimate: est,
				Score:    score,
				Reason:   describeEstimate(est),
			})
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	top := suggestions
	if len(top) > limit {
		top = top[:limit]
	}

	s.nameSuggestions(ctx, top)

	s.logger.Info("Suggestions ranked",
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(top)),
		zap.String("center_source", center.Source))

	return &SuggestionResult{
		Suggestions: top,
		Center: dataset.Location{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
		},
		RadiusKm:          radius,
		TotalCandidates:   len(candidates),
		SuccessfulFetches: len(suggestions),
	}, nil
}

// candidatePoints builds the center, two concentric rings and a seeded
// scatter, deduplicated at 4-decimal precision, closest first, capped at
// maxCandidates.
func candidatePoints(lat, lon float64, radiusKm, limit int) []Candidate {
	latDegPerKm := 1.0 / 111.0
	lonDegPerKm := 1.0 / (111.0 * math.Max(0.1, math.Cos(lat*math.Pi/180)))

	candidates := []Candidate{{Lat: lat, Lon: lon, Distance: 0}}

	for ringIdx, points := range []int{8, 16} {
		ringRadius := float64(radiusKm) * float64(ringIdx+1) / 3.0
		for i := 0; i < points; i++ {
			angle := 2 * math.Pi * float64(i) / float64(points)
			newLat := lat + ringRadius*math.Cos(angle)*latDegPerKm
			newLon := lon + ringRadius*math.Sin(angle)*lonDegPerKm
			if newLat < -90 || newLat > 90 || newLon < -180 || newLon > 180 {
				continue
			}
			candidates = append(candidates, Candidate{Lat: newLat, Lon: newLon, Distance: ringRadius})
		}
	}

	rng := rand.New(rand.NewSource(int64(lat*1000 + lon*1000)))
	for i := 0; i < clampInt(limit, 5, 10); i++ {
		angle := rng.Float64() * 2 * math.Pi
		distance := rng.Float64() * float64(radiusKm)
		newLat := lat + distance*math.Cos(angle)*latDegPerKm
		newLon := lon + distance*math.Sin(angle)*lonDegPerKm
		if newLat < -90 || newLat > 90 || newLon < -180 || newLon > 180 {
			continue
		}
		candidates = append(candidates, Candidate{Lat: newLat, Lon: newLon, Distance: distance})
	}

	seen := make(map[[2]float64]bool, len(candidates))
	unique := candidates[:0]
	for _, c := range candidates {
		key := [2]float64{roundTo(c.Lat, 4), roundTo(c.Lon, 4)}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, c)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Distance < unique[j].Distance
	})
	if len(unique) > maxCandidates {
		unique = unique[:maxCandidates]
	}
	return unique
}

// centerEstimate fetches real conditions for the center point, degrading to
// latitude-adjusted defaults when every provider fails.
func (s *Service) centerEstimate(ctx context.Context, loc dataset.Location, day time.Time) Estimate {
	ds, err := s.chains.Suggest.Fetch(ctx, dataset.Query{
		Location:  loc,
		Start:     day,
		End:       day,
		Variables: suggestionVariables(),
	})
	if err == nil {
		if table, nerr := dataset.Normalize(ds); nerr == nil && table.Len() > 0 {
			return estimateFromRow(table.Row(0), table.Meta().Source)
		}
	}
	s.logger.Warn("Center estimate fell back to defaults",
		zap.Float64("latitude", loc.Latitude),
		zap.Float64("longitude", loc.Longitude),
		zap.Error(err))
	return defaultEstimate(loc.Latitude)
}

func estimateFromRow(row map[dataset.Variable]float64, source string) Estimate {
	est := Estimate{
		T2M:    safeValue(row, dataset.VarTemperature, 20.0),
		Rain:   safeValue(row, dataset.VarPrecipitation, 0.0),
		QV:     safeValue(row, dataset.VarHumidity, 8.0),
		PS:     safeValue(row, dataset.VarPressure, 101.3),
		U10M:   safeValue(row, dataset.VarWindEast, 0.0),
		V10M:   safeValue(row, dataset.VarWindNorth, 0.0),
		Source: source,
	}
	if !math.IsNaN(est.U10M) && !math.IsNaN(est.V10M) {
		est.WS = math.Hypot(est.U10M, est.V10M)
	} else {
		est.WS = safeValue(row, dataset.VarWindSpeed, 3.0)
	}
	return est
}

// defaultEstimate approximates conditions from latitude alone. Wind
// components stay unknown.
func defaultEstimate(lat float64) Estimate {
	return Estimate{
		T2M:    20.0 - math.Abs(lat)*0.3,
		Rain:   1.0,
		QV:     8.0,
		PS:     101.3 - math.Abs(lat)*0.1,
		WS:     3.0,
		U10M:   math.NaN(),
		V10M:   math.NaN(),
		Source: "Default estimates",
	}
}

// variationEstimate perturbs the center estimate with a coordinate-seeded
// RNG. Wind speed is recomputed from the perturbed components when both are
// known, otherwise perturbed directly.
func variationEstimate(center Estimate, lat, lon float64) Estimate {
	rng := rand.New(rand.NewSource(int64(lat*1000 + lon*1000)))
	est := Estimate{
		T2M:    center.T2M + uniform(rng, -1.0, 1.0),
		Rain:   math.Max(0, center.Rain+uniform(rng, -0.8, 0.8)),
		QV:     math.Max(0, center.QV+uniform(rng, -0.6, 0.6)),
		PS:     center.PS + uniform(rng, -0.5, 0.5),
		U10M:   center.U10M + uniform(rng, -0.5, 0.5),
		V10M:   center.V10M + uniform(rng, -0.5, 0.5),
		Source: "Variation of " + center.Source,
	}
	if !math.IsNaN(est.U10M) && !math.IsNaN(est.V10M) {
		est.WS = math.Hypot(est.U10M, est.V10M)
	} else {
		est.WS = math.Max(0, center.WS+uniform(rng, -0.7, 0.7))
	}
	return est
}

// scoreEstimate rates conditions for outdoor plans: mild temperature, dry,
// a light breeze, comfortable humidity, stable pressure.
func scoreEstimate(est Estimate) float64 {
	var tempScore float64
	switch {
	case est.T2M >= 22 && est.T2M <= 25:
		tempScore = 1.0
	case est.T2M >= 18 && est.T2M <= 30:
		tempScore = 0.8 - math.Abs(est.T2M-23.5)/15.0
	default:
		tempScore = math.Max(0, 0.5-math.Abs(est.T2M-23.5)/20.0)
	}

	rainScore := math.Exp(-est.Rain / 3.0)

	var windScore float64
	switch {
	case est.WS >= 2 && est.WS <= 6:
		windScore = 1.0
	case est.WS < 10:
		windScore = math.Max(0.3, 1.0-math.Abs(est.WS-4)/8.0)
	default:
		windScore = 0.1
	}

	humidityScore := 1.0
	if est.QV < 6 || est.QV > 12 {
		humidityScore = math.Max(0.2, 1.0-math.Abs(est.QV-9)/8.0)
	}

	pressureScore := math.Max(0.5, 1.0-math.Abs(est.PS-101.3)/5.0)

	score := 0.35*tempScore + 0.30*rainScore + 0.20*windScore + 0.10*humidityScore + 0.05*pressureScore
	return math.Max(0, math.Min(1, score))
}

// describeEstimate summarizes the estimate for display, with a dash for
// unknowns.
func describeEstimate(est Estimate) string {
	return fmt.Sprintf("Temp %s, Rain %s, Wind %s, Humidity %s",
		formatMetric(est.T2M, "%.1f°C"),
		formatMetric(est.Rain, "%.1fmm"),
		formatMetric(est.WS, "%.1fm/s"),
		formatMetric(est.QV, "%.1fg/kg"))
}

func formatMetric(v float64, format string) string {
	if math.IsNaN(v) {
		return "–"
	}
	return fmt.Sprintf(format, v)
}

// nameSuggestions attaches display names to the winners, a few lookups at a
// time.
func (s *Service) nameSuggestions(ctx context.Context, top []Suggestion) {
	if s.geocoder == nil {
		for i := range top {
			top[i].Name = fmt.Sprintf("%.4f, %.4f", top[i].Lat, top[i].Lon)
		}
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(suggestionNameWorkers)
	for i := range top {
		i := i
		g.Go(func() error {
			top[i].Name = s.geocoder.ShortName(ctx, top[i].Lat, top[i].Lon)
			return nil
		})
	}
	_ = g.Wait()
}

func safeValue(row map[dataset.Variable]float64, v dataset.Variable, def float64) float64 {
	value, ok := row[v]
	if !ok || math.IsNaN(value) {
		return def
	}
	return value
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
