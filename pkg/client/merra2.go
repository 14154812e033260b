package client

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/planmyfest/weather-backend/internal/dataset"
	"github.com/planmyfest/weather-backend/pkg/dap"
)

const (
	// DefaultEarthdataBaseURL is the GES DISC OPeNDAP host serving MERRA-2.
	DefaultEarthdataBaseURL = "https://goldsmr4.gesdisc.eosdis.nasa.gov"

	merraCollection = "M2T1NXSLV.5.12.4"
	merraFilePrefix = "tavg1_2d_slv_Nx"
	merraMaxDays    = 7
)

// merraVariables maps canonical variable names to the M2T1NXSLV catalog.
// Wind speed is not in the collection and precipitation is served as PRECTOT.
var merraVariables = map[dataset.Variable]string{
	dataset.VarTemperature:   "T2M",
	dataset.VarWindEast:      "U10M",
	dataset.VarWindNorth:     "V10M",
	dataset.VarPressure:      "PS",
	dataset.VarHumidity:      "QV2M",
	dataset.VarPrecipitation: "PRECTOT",
}

// Merra2Config configures access to the GES DISC OPeNDAP server.
type Merra2Config struct {
	BaseURL     string
	Credentials dap.Credentials // resolved from the environment and ~/.netrc when empty
	NetrcPath   string
	Timeout     time.Duration
	UserAgent   string
	HTTPClient  *http.Client // overrides the Earthdata session, for tests
}

// Merra2Client reads hourly single-level diagnostics from MERRA-2 granules
// over OPeNDAP, one file per requested day.
type Merra2Client struct {
	config Merra2Config
	logger *zap.Logger
}

func NewMerra2Client(config Merra2Config, logger *zap.Logger) *Merra2Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultEarthdataBaseURL
	}
	return &Merra2Client{config: config, logger: logger}
}

// Label identifies the provider in response metadata and logs.
func (c *Merra2Client) Label() string { return "MERRA-2 " + merraCollection }

func (c *Merra2Client) Fetch(ctx context.Context, q dataset.Query) (*dataset.Dataset, error) {
	if q.Days() > merraMaxDays {
		return nil, fmt.Errorf("%w: MERRA-2 requests are limited to %d days", ErrRangeTooLarge, merraMaxDays)
	}

	requested := make([]dataset.Variable, 0, len(q.Variables))
	for _, v := range q.Variables {
		if _, ok := merraVariables[v]; ok {
			requested = append(requested, v)
			continue
		}
		c.logger.Warn("Variable not available from MERRA-2, skipping",
			zap.String("variable", string(v)))
	}
	if len(requested) == 0 {
		return nil, fmt.Errorf("%w: no valid variables for MERRA-2", ErrNoData)
	}

	dapClient, err := c.open()
	if err != nil {
		return nil, err
	}

	days := dataset.DailyRange(q.Start, q.End)
	firstURL := c.fileURL(days[0])

	dds, err := dapClient.FetchDDS(ctx, firstURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch MERRA-2 descriptor: %w", err)
	}
	latName, lonName, err := coordinateNames(dds)
	if err != nil {
		return nil, err
	}

	present := make([]dataset.Variable, 0, len(requested))
	for _, v := range requested {
		if _, ok := dds.Lookup(merraVariables[v]); ok {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return nil, fmt.Errorf("%w: none of the requested variables exist in %s", ErrNoData, merraCollection)
	}
	firstName := merraVariables[present[0]]

	_, axes, err := dapClient.FetchData(ctx, firstURL, latName+","+lonName)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch MERRA-2 coordinates: %w", err)
	}
	latIdx, err := nearestIndex(axes[latName], q.Location.Latitude)
	if err != nil {
		return nil, fmt.Errorf("%w: latitude axis: %v", ErrNoData, err)
	}
	lonIdx, err := nearestIndex(axes[lonName], q.Location.Longitude)
	if err != nil {
		return nil, fmt.Errorf("%w: longitude axis: %v", ErrNoData, err)
	}

	constraint := pointConstraint(present, timeSteps(dds, firstName), latIdx, lonIdx)

	var (
		times  []time.Time
		series = make(map[dataset.Variable][]float64, len(present))
		fills  map[string]float64
	)
	for _, day := range days {
		dayURL := c.fileURL(day)
		_, values, err := dapClient.FetchData(ctx, dayURL, constraint)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch MERRA-2 data for %s: %w", day.Format("2006-01-02"), err)
		}

		das, dasErr := dapClient.FetchDAS(ctx, dayURL)
		if dasErr != nil {
			c.logger.Warn("MERRA-2 attribute listing unavailable, using hourly fallback",
				zap.String("day", day.Format("2006-01-02")),
				zap.Error(dasErr))
		}
		if fills == nil && dasErr == nil {
			fills = fillValues(das, present)
		}

		n := len(values[firstName])
		stamps := dayTimestamps(das, values[firstName+".time"], day, n)
		times = append(times, stamps...)

		for _, v := range present {
			name := merraVariables[v]
			data := values[name]
			for i := 0; i < n; i++ {
				sample := math.NaN()
				if i < len(data) {
					sample = data[i]
					if fill, ok := fills[name]; ok && float32(sample) == float32(fill) {
						sample = math.NaN()
					}
				}
				series[v] = append(series[v], sample)
			}
		}
	}

	sortByTime(times, series)

	ds := dataset.New(times, dataset.Meta{
		Source:       c.Label(),
		Location:     q.Location,
		StartDate:    q.Start.Format("2006-01-02"),
		EndDate:      q.End.Format("2006-01-02"),
		AccessMethod: "NASA GES DISC OPeNDAP",
	})
	for _, v := range present {
		ds.SetSeries(v, series[v])
	}

	c.logger.Info("MERRA-2 fetch successful",
		zap.Float64("latitude", q.Location.Latitude),
		zap.Float64("longitude", q.Location.Longitude),
		zap.Int("days", len(days)),
		zap.Int("samples", len(times)),
		zap.Int("variables", len(present)))

	return ds, nil
}

// open resolves Earthdata credentials and builds the OPeNDAP client. The
// lookup order is explicit config, then the environment, then ~/.netrc.
func (c *Merra2Client) open() (*dap.Client, error) {
	opts := dap.Options{
		Timeout:    c.config.Timeout,
		UserAgent:  c.config.UserAgent,
		HTTPClient: c.config.HTTPClient,
	}
	if opts.HTTPClient != nil {
		return dap.NewClient(dap.Credentials{}, opts)
	}

	creds := c.config.Credentials
	if !creds.Valid() {
		creds = dap.Credentials{
			Username: os.Getenv("EARTHDATA_USERNAME"),
			Password: os.Getenv("EARTHDATA_PASSWORD"),
		}
	}
	if !creds.Valid() {
		path := c.config.NetrcPath
		if path == "" {
			if home, err := os.UserHomeDir(); err == nil {
				path = filepath.Join(home, ".netrc")
			}
		}
		if path != "" {
			if fromNetrc, err := dap.CredentialsFromNetrc(path, dap.DefaultAuthHost); err == nil {
				creds = fromNetrc
			}
		}
	}
	if !creds.Valid() {
		return nil, fmt.Errorf("%w: set EARTHDATA_USERNAME and EARTHDATA_PASSWORD or add %s to ~/.netrc",
			dap.ErrMissingCredentials, dap.DefaultAuthHost)
	}

	return dap.NewClient(creds, opts)
}

// fileURL builds the OPeNDAP dataset URL for one day of the collection.
func (c *Merra2Client) fileURL(day time.Time) string {
	return fmt.Sprintf("%s/opendap/MERRA2/%s/%04d/%02d/MERRA2_%s.%s.%s.nc4",
		c.config.BaseURL, merraCollection, day.Year(), int(day.Month()),
		merraStream(day.Year()), merraFilePrefix, day.Format("20060102"))
}

// merraStream returns the MERRA-2 production stream for a year.
func merraStream(year int) string {
	switch {
	case year <= 1991:
		return "100"
	case year <= 2000:
		return "200"
	case year <= 2010:
		return "300"
	default:
		return "400"
	}
}

// coordinateNames resolves the spatial axis names. Some granules spell the
// axes out in full.
func coordinateNames(dds *dap.DDS) (string, string, error) {
	latName := ""
	for _, name := range []string{"lat", "latitude"} {
		if _, ok := dds.Lookup(name); ok {
			latName = name
			break
		}
	}
	lonName := ""
	for _, name := range []string{"lon", "longitude"} {
		if _, ok := dds.Lookup(name); ok {
			lonName = name
			break
		}
	}
	if latName == "" || lonName == "" {
		return "", "", fmt.Errorf("%w: dataset has no lat/lon axes", ErrNoData)
	}
	return latName, lonName, nil
}

// timeSteps reads the time dimension length of the named grid, defaulting to
// the collection's hourly cadence.
func timeSteps(dds *dap.DDS, name string) int {
	v, ok := dds.Lookup(name)
	if !ok {
		return 24
	}
	var dims []dap.Dim
	switch {
	case v.Grid != nil:
		dims = v.Grid.Array.Dims
	case v.Array != nil:
		dims = v.Array.Dims
	}
	for _, d := range dims {
		if d.Name == "time" {
			return d.Size
		}
	}
	if len(dims) > 0 {
		return dims[0].Size
	}
	return 24
}

// pointConstraint projects each grid at one cell across the whole day, as in
// "T2M[0:23][182][312],PS[0:23][182][312]". Constraining the grid by name
// slices its maps the same way, so the time offsets travel with each reply.
func pointConstraint(vars []dataset.Variable, steps, latIdx, lonIdx int) string {
	parts := make([]string, 0, len(vars))
	for _, v := range vars {
		parts = append(parts, fmt.Sprintf("%s[0:%d][%d][%d]", merraVariables[v], steps-1, latIdx, lonIdx))
	}
	return strings.Join(parts, ",")
}

// nearestIndex returns the index of the axis value closest to target.
func nearestIndex(axis []float64, target float64) (int, error) {
	if len(axis) == 0 {
		return 0, fmt.Errorf("empty coordinate axis")
	}
	best := 0
	for i, v := range axis {
		if math.Abs(v-target) < math.Abs(axis[best]-target) {
			best = i
		}
	}
	return best, nil
}

// fillValues extracts the fill markers declared for each variable.
func fillValues(das dap.DAS, vars []dataset.Variable) map[string]float64 {
	fills := make(map[string]float64)
	for _, v := range vars {
		name := merraVariables[v]
		for _, attr := range []string{"_FillValue", "missing_value"} {
			raw, ok := das.Attr(name, attr)
			if !ok {
				continue
			}
			if fill, err := strconv.ParseFloat(raw, 64); err == nil {
				fills[name] = fill
				break
			}
		}
	}
	return fills
}

// dayTimestamps converts raw time offsets to wall-clock stamps using the
// file's CF units. When the listing or the offsets are unusable it falls back
// to hourly samples starting half past midnight, the collection's layout.
func dayTimestamps(das dap.DAS, offsets []float64, day time.Time, n int) []time.Time {
	if das != nil && len(offsets) == n {
		if units, ok := das.Attr("time", "units"); ok {
			if epoch, step, err := dap.ParseTimeUnits(units); err == nil {
				stamps := make([]time.Time, n)
				for i, off := range offsets {
					stamps[i] = epoch.Add(time.Duration(off * float64(step)))
				}
				return stamps
			}
		}
	}
	stamps := make([]time.Time, n)
	base := day.Add(30 * time.Minute)
	for i := range stamps {
		stamps[i] = base.Add(time.Duration(i) * time.Hour)
	}
	return stamps
}

// sortByTime orders the merged days chronologically in place.
func sortByTime(times []time.Time, series map[dataset.Variable][]float64) {
	order := make([]int, len(times))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return times[order[a]].Before(times[order[b]])
	})

	sortedTimes := make([]time.Time, len(times))
	for i, j := range order {
		sortedTimes[i] = times[j]
	}
	copy(times, sortedTimes)

	for v, values := range series {
		sorted := make([]float64, len(values))
		for i, j := range order {
			sorted[i] = values[j]
		}
		series[v] = sorted
	}
}
