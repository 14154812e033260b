package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/planmyfest/weather-backend/internal/dataset"
)

// DefaultPowerBaseURL is the NASA POWER daily point endpoint.
const DefaultPowerBaseURL = "https://power.larc.nasa.gov/api/temporal/daily/point"

// powerFillValue marks missing samples in POWER payloads.
const powerFillValue = -999.0

// powerVariables maps canonical variable names to the POWER daily catalog.
var powerVariables = map[dataset.Variable]string{
	dataset.VarTemperature:   "T2M",
	dataset.VarWindEast:      "U10M",
	dataset.VarWindNorth:     "V10M",
	dataset.VarPressure:      "PS",
	dataset.VarHumidity:      "QV2M",
	dataset.VarWindSpeed:     "WS10M",
	dataset.VarPrecipitation: "PRECTOTCORR",
}

// PowerClient fetches daily point data from the NASA POWER API.
type PowerClient struct {
	*BaseClient
	baseURL string
}

type powerResponse struct {
	Properties struct {
		Parameter map[string]map[string]*float64 `json:"parameter"`
	} `json:"properties"`
}

func NewPowerClient(baseURL string, config ClientConfig, logger *zap.Logger) *PowerClient {
	if baseURL == "" {
		baseURL = DefaultPowerBaseURL
	}
	return &PowerClient{
		BaseClient: NewBaseClient("nasa-power", config, logger),
		baseURL:    baseURL,
	}
}

// Label identifies the provider in response metadata and logs.
func (c *PowerClient) Label() string { return "NASA POWER API" }

func (c *PowerClient) Fetch(ctx context.Context, q dataset.Query) (*dataset.Dataset, error) {
	mapped := make([]string, 0, len(q.Variables))
	for _, v := range q.Variables {
		name, ok := powerVariables[v]
		if !ok {
			c.logger.Warn("Variable not available from NASA POWER, skipping",
				zap.String("variable", string(v)))
			continue
		}
		mapped = append(mapped, name)
	}
	if len(mapped) == 0 {
		return nil, fmt.Errorf("%w: no valid variables for NASA POWER", ErrNoData)
	}

	params := url.Values{}
	params.Set("start", q.Start.Format("20060102"))
	params.Set("end", q.End.Format("20060102"))
	params.Set("latitude", strconv.FormatFloat(q.Location.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(q.Location.Longitude, 'f', -1, 64))
	params.Set("community", "AG")
	params.Set("parameters", strings.Join(mapped, ","))
	params.Set("format", "JSON")
	params.Set("header", "true")
	params.Set("time-standard", "UTC")

	body, err := c.Get(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch NASA POWER data: %w", err)
	}

	var response powerResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: parsing NASA POWER response: %v", ErrNoData, err)
	}
	if response.Properties.Parameter == nil {
		return nil, fmt.Errorf("%w: NASA POWER response has no parameter block", ErrNoData)
	}

	times := dataset.DailyRange(q.Start, q.End)
	ds := dataset.New(times, dataset.Meta{
		Source:       c.Label(),
		Location:     q.Location,
		StartDate:    q.Start.Format("2006-01-02"),
		EndDate:      q.End.Format("2006-01-02"),
		AccessMethod: "NASA POWER REST API",
	})

	for _, v := range q.Variables {
		name, ok := powerVariables[v]
		if !ok {
			continue
		}
		perDay, ok := response.Properties.Parameter[name]
		if !ok {
			continue
		}
		values := make([]float64, len(times))
		for i, ts := range times {
			sample, ok := perDay[ts.Format("20060102")]
			if !ok || sample == nil || *sample == powerFillValue {
				values[i] = dataset.Missing()
				continue
			}
			values[i] = *sample
		}
		ds.SetSeries(v, values)
	}

	c.logger.Info("NASA POWER fetch successful",
		zap.Float64("latitude", q.Location.Latitude),
		zap.Float64("longitude", q.Location.Longitude),
		zap.Int("days", len(times)),
		zap.Int("variables", len(ds.Variables())))

	return ds, nil
}
