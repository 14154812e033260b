package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/planmyfest/weather-backend/internal/dataset"
	"github.com/planmyfest/weather-backend/internal/models"
	"github.com/planmyfest/weather-backend/internal/services"
)

type stubProvider struct {
	label string
	ds    *dataset.Dataset
	err   error
	got   dataset.Query
}

func (s *stubProvider) Label() string { return s.label }

func (s *stubProvider) Fetch(ctx context.Context, q dataset.Query) (*dataset.Dataset, error) {
	s.got = q
	if s.err != nil {
		return nil, s.err
	}
	return s.ds, nil
}

type stubGeocoder struct {
	raw json.RawMessage
	err error
}

func (s stubGeocoder) Search(ctx context.Context, query string, limit int) (json.RawMessage, error) {
	return s.raw, s.err
}

func (s stubGeocoder) Reverse(ctx context.Context, lat, lon float64) (json.RawMessage, error) {
	return s.raw, s.err
}

type stubProbe struct {
	status map[string]interface{}
}

func (s stubProbe) GetStatus() map[string]interface{} { return s.status }

func testApp(provider services.Provider, geocoder GeocodeProxy, probe HealthProbe) *fiber.App {
	chain := services.NewChain(zap.NewNop(), provider)
	svc := services.NewService(services.Chains{
		Weather: chain,
		DOY:     chain,
		Stats:   chain,
		Suggest: chain,
	}, nil, zap.NewNop())

	handler := NewHandler(svc, geocoder, probe, "testdata/no-frontend", zap.NewNop())
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	SetupRoutes(app, handler, "testdata/no-images", zap.NewNop())
	return app
}

func dailyDataset(source string, values ...float64) *dataset.Dataset {
	times := make([]time.Time, len(values))
	for i := range times {
		times[i] = time.Date(2023, 9, 25, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
	}
	ds := dataset.New(times, dataset.Meta{Source: source})
	ds.SetSeries(dataset.VarTemperature, values)
	return ds
}

func postJSON(t *testing.T, app *fiber.App, path, body string) *jsonResponse {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	return &jsonResponse{status: resp.StatusCode, raw: raw, header: resp.Header.Get}
}

func getPath(t *testing.T, app *fiber.App, path string) *jsonResponse {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	return &jsonResponse{status: resp.StatusCode, raw: raw, header: resp.Header.Get}
}

type jsonResponse struct {
	status int
	raw    []byte
	header func(string) string
}

func (r *jsonResponse) decode(t *testing.T, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(r.raw, out); err != nil {
		t.Fatalf("decode failed: %v\nbody: %s", err, r.raw)
	}
}

func TestPostWeather(t *testing.T) {
	provider := &stubProvider{label: "power", ds: dailyDataset("NASA POWER API", 21.5, math.NaN())}
	app := testApp(provider, stubGeocoder{}, nil)

	resp := postJSON(t, app, "/weather",
		`{"latitude": 38.9, "longitude": -77.0, "start_date": "2023-09-25", "end_date": "2023-09-26", "variables": ["T2M"]}`)
	if resp.status != fiber.StatusOK {
		t.Fatalf("status = %d, body %s", resp.status, resp.raw)
	}

	var out models.WeatherResponse
	resp.decode(t, &out)
	if !out.Success || out.Source != "NASA POWER API" {
		t.Errorf("response = %+v", out)
	}
	column := out.Data.Variables["T2M"]
	if len(column.Values) != 2 || column.Values[0] == nil || *column.Values[0] != 21.5 {
		t.Errorf("T2M values = %v", column.Values)
	}
	if column.Values[1] != nil {
		t.Errorf("missing sample = %v, want null", column.Values[1])
	}
	if !out.Validation.OK {
		t.Errorf("validation = %+v, want ok", out.Validation)
	}
	if provider.got.Location.Latitude != 38.9 {
		t.Errorf("provider query = %+v", provider.got)
	}
}

func TestPostWeather_ReportsMissingRequestedVariables(t *testing.T) {
	provider := &stubProvider{label: "power", ds: dailyDataset("NASA POWER API", 21.5)}
	app := testApp(provider, stubGeocoder{}, nil)

	resp := postJSON(t, app, "/weather",
		`{"latitude": 38.9, "longitude": -77.0, "start_date": "2023-09-25", "end_date": "2023-09-25"}`)
	if resp.status != fiber.StatusOK {
		t.Fatalf("status = %d, body %s", resp.status, resp.raw)
	}

	var out models.WeatherResponse
	resp.decode(t, &out)
	// The default variable set was requested but only T2M came back.
	if out.Validation.OK || len(out.Validation.Issues) != 4 {
		t.Errorf("validation = %+v, want four missing-variable issues", out.Validation)
	}
}

func TestPostWeather_RejectsBadRequests(t *testing.T) {
	app := testApp(&stubProvider{label: "power", ds: dailyDataset("src", 20)}, stubGeocoder{}, nil)

	cases := map[string]string{
		"latitude out of range": `{"latitude": 200, "longitude": 0, "start_date": "2023-09-25", "end_date": "2023-09-25"}`,
		"missing dates":         `{"latitude": 10, "longitude": 0}`,
		"reversed range":        `{"latitude": 10, "longitude": 0, "start_date": "2023-09-27", "end_date": "2023-09-25"}`,
		"malformed json":        `{"latitude":`,
	}
	for name, body := range cases {
		if resp := postJSON(t, app, "/weather", body); resp.status != fiber.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, resp.status)
		}
	}
}

func TestPostWeather_AllProvidersFailed(t *testing.T) {
	app := testApp(&stubProvider{label: "power", err: errors.New("down")}, stubGeocoder{}, nil)

	resp := postJSON(t, app, "/weather",
		`{"latitude": 10, "longitude": 0, "start_date": "2023-09-25", "end_date": "2023-09-25"}`)
	if resp.status != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503; body %s", resp.status, resp.raw)
	}
	if !strings.Contains(string(resp.raw), "temporarily unavailable") {
		t.Errorf("body = %s", resp.raw)
	}
}

func TestPostProbability(t *testing.T) {
	provider := &stubProvider{label: "power", ds: dailyDataset("NASA POWER API", 10, 20, 30)}
	app := testApp(provider, stubGeocoder{}, nil)

	resp := postJSON(t, app, "/probability",
		`{"latitude": 10, "longitude": 0, "start_date": "2023-09-25", "end_date": "2023-09-27", "variables": ["T2M"], "thresholds": {"T2M": 15}}`)
	if resp.status != fiber.StatusOK {
		t.Fatalf("status = %d, body %s", resp.status, resp.raw)
	}

	var out models.ProbabilityResponse
	resp.decode(t, &out)
	if out.NSamples != 3 {
		t.Errorf("n_samples = %d, want 3", out.NSamples)
	}
	if p := out.Probabilities["T2M"]; math.Abs(p-100.0*2/3) > 1e-9 {
		t.Errorf("probability = %v", p)
	}
	if !out.Validation.OK {
		t.Errorf("validation = %+v", out.Validation)
	}
}

func TestPostProbability_RequiresThresholds(t *testing.T) {
	app := testApp(&stubProvider{label: "power", ds: dailyDataset("src", 20)}, stubGeocoder{}, nil)

	resp := postJSON(t, app, "/probability",
		`{"latitude": 10, "longitude": 0, "start_date": "2023-09-25", "end_date": "2023-09-25", "variables": ["T2M"]}`)
	if resp.status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.status)
	}
}

func doyFixture() *dataset.Dataset {
	var times []time.Time
	var values []float64
	for year := 2020; year <= 2024; year++ {
		for d := 12; d <= 18; d++ {
			times = append(times, time.Date(year, 7, d, 0, 0, 0, 0, time.UTC))
			values = append(values, 20)
		}
	}
	ds := dataset.New(times, dataset.Meta{Source: "NASA POWER API"})
	ds.SetSeries(dataset.VarTemperature, values)
	return ds
}

func TestPostDOYProbability(t *testing.T) {
	provider := &stubProvider{label: "power", ds: doyFixture()}
	app := testApp(provider, stubGeocoder{}, nil)

	resp := postJSON(t, app, "/probability/doy",
		`{"latitude": 40, "longitude": -3, "month": 7, "day": 15, "variables": ["T2M"], "thresholds": {"T2M": 15}}`)
	if resp.status != fiber.StatusOK {
		t.Fatalf("status = %d, body %s", resp.status, resp.raw)
	}

	var out models.DOYProbabilityResponse
	resp.decode(t, &out)
	if out.NSamples != 35 {
		t.Errorf("n_samples = %d, want 35", out.NSamples)
	}
	if out.Probabilities["T2M"] != 100 {
		t.Errorf("probability = %v, want 100", out.Probabilities["T2M"])
	}
	summary, ok := out.Summary["T2M"]
	if !ok || summary.Mean != 20 {
		t.Errorf("summary = %+v", out.Summary)
	}

	// Omitted years fall back to the 2020..2024 window.
	if provider.got.Start.Year() != 2020 || provider.got.End.Year() != 2024 {
		t.Errorf("window = %v..%v", provider.got.Start, provider.got.End)
	}
}

func TestPostDOYProbability_RejectsBadMonth(t *testing.T) {
	app := testApp(&stubProvider{label: "power", ds: doyFixture()}, stubGeocoder{}, nil)

	resp := postJSON(t, app, "/probability/doy",
		`{"latitude": 40, "longitude": -3, "month": 13, "day": 15, "thresholds": {"T2M": 15}}`)
	if resp.status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.status)
	}
}

func hourlyFixture() *dataset.Dataset {
	times := make([]time.Time, 4)
	for i := range times {
		times[i] = time.Date(2023, 9, 25, i, 30, 0, 0, time.UTC)
	}
	ds := dataset.New(times, dataset.Meta{Source: "MERRA-2 M2T1NXSLV.5.12.4"})
	ds.SetSeries(dataset.VarTemperature, []float64{1, 2, 3, 4})
	return ds
}

func TestPostStats(t *testing.T) {
	provider := &stubProvider{label: "merra", ds: hourlyFixture()}
	app := testApp(provider, stubGeocoder{}, nil)

	resp := postJSON(t, app, "/stats",
		`{"latitude": 38.9, "longitude": -77.0, "start_date": "2023-09-25", "end_date": "2023-09-25", "variable": "T2M"}`)
	if resp.status != fiber.StatusOK {
		t.Fatalf("status = %d, body %s", resp.status, resp.raw)
	}

	var out models.StatsResponse
	resp.decode(t, &out)
	if out.Stats.Variable != "T2M" || out.Stats.Stat != "mean" || out.Stats.Freq != "1D" {
		t.Errorf("stats = %+v, want the default mean/1D", out.Stats)
	}
	if len(out.Stats.Values) != 1 || out.Stats.Values[0] == nil || *out.Stats.Values[0] != 2.5 {
		t.Errorf("values = %v, want [2.5]", out.Stats.Values)
	}
}

func TestPostStats_UnsupportedStat(t *testing.T) {
	app := testApp(&stubProvider{label: "merra", ds: hourlyFixture()}, stubGeocoder{}, nil)

	resp := postJSON(t, app, "/stats",
		`{"latitude": 38.9, "longitude": -77.0, "start_date": "2023-09-25", "end_date": "2023-09-25", "variable": "T2M", "stat": "variance"}`)
	if resp.status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body %s", resp.status, resp.raw)
	}
}

func TestPostDownloadCSV(t *testing.T) {
	provider := &stubProvider{label: "power", ds: dailyDataset("NASA POWER API", 20, 21)}
	app := testApp(provider, stubGeocoder{}, nil)

	resp := postJSON(t, app, "/download.csv",
		`{"latitude": 38.9, "longitude": -77.0, "start_date": "2023-09-25", "end_date": "2023-09-26", "variables": ["T2M"]}`)
	if resp.status != fiber.StatusOK {
		t.Fatalf("status = %d, body %s", resp.status, resp.raw)
	}
	if ct := resp.header("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := resp.header("Content-Disposition"); cd != "attachment; filename=nasa_timeseries.csv" {
		t.Errorf("Content-Disposition = %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(string(resp.raw)), "\n")
	if lines[0] != "time,T2M" {
		t.Errorf("header row = %q", lines[0])
	}
	if len(lines) != 3 {
		t.Errorf("rows = %d, want header plus two days", len(lines))
	}
}

func TestPostDownloadCSV_RequiresVariables(t *testing.T) {
	app := testApp(&stubProvider{label: "power", ds: dailyDataset("src", 20)}, stubGeocoder{}, nil)

	resp := postJSON(t, app, "/download.csv",
		`{"latitude": 38.9, "longitude": -77.0, "start_date": "2023-09-25", "end_date": "2023-09-26"}`)
	if resp.status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.status)
	}
}

func suggestFixture() *dataset.Dataset {
	ds := dataset.New([]time.Time{time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}, dataset.Meta{Source: "NASA POWER API"})
	ds.SetSeries(dataset.VarTemperature, []float64{23.5})
	ds.SetSeries(dataset.VarPrecipitation, []float64{0})
	ds.SetSeries(dataset.VarHumidity, []float64{9})
	ds.SetSeries(dataset.VarPressure, []float64{101.3})
	ds.SetSeries(dataset.VarWindEast, []float64{3})
	ds.SetSeries(dataset.VarWindNorth, []float64{0})
	return ds
}

func TestGetSuggestions(t *testing.T) {
	provider := &stubProvider{label: "power", ds: suggestFixture()}
	app := testApp(provider, stubGeocoder{}, nil)

	resp := getPath(t, app, "/weather-suggestions?latitude=40&longitude=-3&date=2024-06-01&radius_km=7&limit=3")
	if resp.status != fiber.StatusOK {
		t.Fatalf("status = %d, body %s", resp.status, resp.raw)
	}

	var out models.SuggestionsResponse
	resp.decode(t, &out)
	if len(out.Suggestions) != 3 {
		t.Fatalf("suggestions = %d, want 3", len(out.Suggestions))
	}
	if out.RadiusKm != 7 || out.TotalCandidates != 20 {
		t.Errorf("bookkeeping = %+v", out)
	}
	top := out.Suggestions[0]
	if top.Lat != 40 || top.Lon != -3 || top.Score != 1 {
		t.Errorf("top suggestion = %+v, want the center at score 1", top)
	}
	if top.Name == "" {
		t.Error("top suggestion has no name")
	}
}

func TestGetSuggestions_RequiresDate(t *testing.T) {
	app := testApp(&stubProvider{label: "power", ds: suggestFixture()}, stubGeocoder{}, nil)

	resp := getPath(t, app, "/weather-suggestions?latitude=40&longitude=-3")
	if resp.status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.status)
	}
}

func TestGetGeocode(t *testing.T) {
	raw := json.RawMessage(`[{"display_name": "Lisbon, Portugal"}]`)
	app := testApp(&stubProvider{label: "power", ds: dailyDataset("src", 20)}, stubGeocoder{raw: raw}, nil)

	resp := getPath(t, app, "/geocode?q=Lisbon")
	if resp.status != fiber.StatusOK {
		t.Fatalf("status = %d, body %s", resp.status, resp.raw)
	}
	if string(resp.raw) != string(raw) {
		t.Errorf("body = %s, want upstream passthrough", resp.raw)
	}
}

func TestGetGeocode_ShortQuery(t *testing.T) {
	app := testApp(&stubProvider{label: "power", ds: dailyDataset("src", 20)}, stubGeocoder{}, nil)

	if resp := getPath(t, app, "/geocode?q=L"); resp.status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.status)
	}
}

func TestGetGeocode_UpstreamFailure(t *testing.T) {
	app := testApp(&stubProvider{label: "power", ds: dailyDataset("src", 20)}, stubGeocoder{err: errors.New("429")}, nil)

	if resp := getPath(t, app, "/geocode?q=Lisbon"); resp.status != fiber.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.status)
	}
}

func TestGetReverseGeocode(t *testing.T) {
	raw := json.RawMessage(`{"display_name": "Rossio, Lisbon"}`)
	app := testApp(&stubProvider{label: "power", ds: dailyDataset("src", 20)}, stubGeocoder{raw: raw}, nil)

	resp := getPath(t, app, "/reverse-geocode?lat=38.7&lon=-9.1")
	if resp.status != fiber.StatusOK {
		t.Fatalf("status = %d, body %s", resp.status, resp.raw)
	}
	if string(resp.raw) != string(raw) {
		t.Errorf("body = %s", resp.raw)
	}

	if resp := getPath(t, app, "/reverse-geocode?lat=38.7"); resp.status != fiber.StatusBadRequest {
		t.Errorf("missing lon: status = %d, want 400", resp.status)
	}
}

func TestGetHealth(t *testing.T) {
	probe := stubProbe{status: map[string]interface{}{"checked": true, "healthy": false}}
	app := testApp(&stubProvider{label: "power", ds: dailyDataset("src", 20)}, stubGeocoder{}, probe)

	resp := getPath(t, app, "/health")
	if resp.status != fiber.StatusOK {
		t.Fatalf("status = %d", resp.status)
	}

	var out map[string]interface{}
	resp.decode(t, &out)
	if out["status"] != "degraded" {
		t.Errorf("status = %v, want degraded while the probe is failing", out["status"])
	}
	if out["probe"] == nil {
		t.Error("probe snapshot missing")
	}
}

func TestGetHome_NoFrontend(t *testing.T) {
	app := testApp(&stubProvider{label: "power", ds: dailyDataset("src", 20)}, stubGeocoder{}, nil)

	resp := getPath(t, app, "/")
	if resp.status != fiber.StatusOK {
		t.Fatalf("status = %d", resp.status)
	}
	if !strings.Contains(string(resp.raw), "Welcome to the Plan My Fest App") {
		t.Errorf("body = %s", resp.raw)
	}
}

func TestUnknownRoute(t *testing.T) {
	app := testApp(&stubProvider{label: "power", ds: dailyDataset("src", 20)}, stubGeocoder{}, nil)

	resp := getPath(t, app, "/nope")
	if resp.status != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.status)
	}
	if !strings.Contains(string(resp.raw), "Endpoint not found") {
		t.Errorf("body = %s", resp.raw)
	}
}
