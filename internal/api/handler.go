package api

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/planmyfest/weather-backend/internal/dataset"
	"github.com/planmyfest/weather-backend/internal/models"
	"github.com/planmyfest/weather-backend/internal/services"
)

var validate = validator.New()

// GeocodeProxy forwards place lookups to the upstream geocoder.
type GeocodeProxy interface {
	Search(ctx context.Context, query string, limit int) (json.RawMessage, error)
	Reverse(ctx context.Context, lat, lon float64) (json.RawMessage, error)
}

// HealthProbe reports the latest provider availability snapshot.
type HealthProbe interface {
	GetStatus() map[string]interface{}
}

type Handler struct {
	service     *services.Service
	geocoder    GeocodeProxy
	probe       HealthProbe
	frontendDir string
	logger      *zap.Logger
}

func NewHandler(service *services.Service, geocoder GeocodeProxy, probe HealthProbe, frontendDir string, logger *zap.Logger) *Handler {
	return &Handler{
		service:     service,
		geocoder:    geocoder,
		probe:       probe,
		frontendDir: frontendDir,
		logger:      logger,
	}
}

// PostWeather handles POST /weather
func (h *Handler) PostWeather(c *fiber.Ctx) error {
	var req models.WeatherQuery
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	q, err := req.DatasetQuery()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	h.logger.Info("Fetching point series",
		zap.Float64("latitude", q.Location.Latitude),
		zap.Float64("longitude", q.Location.Longitude),
		zap.String("start", req.StartDate),
		zap.String("end", req.EndDate))

	table, err := h.service.PointSeries(c.Context(), q)
	if err != nil {
		return err
	}

	return c.JSON(models.WeatherResponse{
		Success:    true,
		Source:     table.Meta().Source,
		Data:       models.NewSeriesData(table),
		Validation: models.NewValidation(dataset.Validate(table, q.Variables)),
	})
}

// PostProbability handles POST /probability
func (h *Handler) PostProbability(c *fiber.Ctx) error {
	var req models.ProbabilityQuery
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	q, err := req.DatasetQuery()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	res, err := h.service.Probability(c.Context(), q, req.VariableThresholds())
	if err != nil {
		return err
	}

	var issues []string
	if res.Samples == 0 {
		issues = []string{"Empty dataset after fetch"}
	}
	return c.JSON(models.ProbabilityResponse{
		Probabilities: models.NewProbabilities(res.Probabilities),
		NSamples:      res.Samples,
		Source:        res.Table.Meta().Source,
		Validation:    models.NewValidation(issues),
	})
}

// PostDOYProbability handles POST /probability/doy
func (h *Handler) PostDOYProbability(c *fiber.Ctx) error {
	req := models.DefaultDOYProbabilityQuery()
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	res, err := h.service.DOYProbability(c.Context(), services.DOYQuery{
		Location:  dataset.Location{Latitude: req.Latitude, Longitude: req.Longitude},
		StartYear: req.StartYear,
		EndYear:   req.EndYear,
		Month:     req.Month,
		Day:       req.Day,
		Variables: req.ResolvedVariables(),
	}, req.VariableThresholds())
	if err != nil {
		return err
	}

	var issues []string
	if res.Samples == 0 {
		issues = []string{"No matching day-of-year samples"}
	}
	return c.JSON(models.DOYProbabilityResponse{
		Probabilities: models.NewProbabilities(res.Probabilities),
		NSamples:      res.Samples,
		Source:        res.Table.Meta().Source,
		Validation:    models.NewValidation(issues),
		Summary:       models.NewDOYSummary(res.Summary),
	})
}

// PostStats handles POST /stats
func (h *Handler) PostStats(c *fiber.Ctx) error {
	req := models.DefaultStatsQuery()
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	start, end, err := req.DateRange()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	res, err := h.service.ResampledStats(c.Context(), services.StatsQuery{
		Location: dataset.Location{Latitude: req.Latitude, Longitude: req.Longitude},
		Start:    start,
		End:      end,
		Variable: dataset.Variable(req.Variable),
		Stat:     req.Stat,
		Freq:     req.Freq,
	})
	if err != nil {
		return err
	}

	return c.JSON(models.StatsResponse{Stats: models.NewStatsSeries(res)})
}

// PostDownloadCSV handles POST /download.csv
func (h *Handler) PostDownloadCSV(c *fiber.Ctx) error {
	var req models.DownloadQuery
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	q, err := req.DatasetQuery()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	data, source, err := h.service.CSV(c.Context(), q)
	if err != nil {
		return err
	}

	h.logger.Info("Serving CSV export",
		zap.String("source", source),
		zap.Int("bytes", len(data)))

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename=nasa_timeseries.csv`)
	return c.Send(data)
}

// GetSuggestions handles GET /weather-suggestions
func (h *Handler) GetSuggestions(c *fiber.Ctx) error {
	req := models.DefaultSuggestionQuery()
	if err := c.QueryParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	date, err := req.ParsedDate()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	res, err := h.service.Suggest(c.Context(), services.SuggestionRequest{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Date:      date,
		RadiusKm:  req.RadiusKm,
		Limit:     req.Limit,
	})
	if err != nil {
		return err
	}

	return c.JSON(models.NewSuggestionsResponse(res))
}

// GetGeocode handles GET /geocode
func (h *Handler) GetGeocode(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if len(q) < 2 {
		return fiber.NewError(fiber.StatusBadRequest, "q must be at least 2 characters")
	}
	limit := c.QueryInt("limit", 8)

	raw, err := h.geocoder.Search(c.Context(), q, limit)
	if err != nil {
		h.logger.Warn("Geocode proxy failed", zap.String("q", q), zap.Error(err))
		return fiber.NewError(fiber.StatusBadGateway, "Geocoding failed")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

// GetReverseGeocode handles GET /reverse-geocode
func (h *Handler) GetReverseGeocode(c *fiber.Ctx) error {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
	if latErr != nil || lonErr != nil {
		return fiber.NewError(fiber.StatusBadRequest, "lat and lon query parameters are required")
	}

	raw, err := h.geocoder.Reverse(c.Context(), lat, lon)
	if err != nil {
		h.logger.Warn("Reverse geocode proxy failed",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err))
		return fiber.NewError(fiber.StatusBadGateway, "Reverse geocoding failed")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

// GetHealth handles GET /health
func (h *Handler) GetHealth(c *fiber.Ctx) error {
	status := "healthy"
	var probeStatus map[string]interface{}
	if h.probe != nil {
		probeStatus = h.probe.GetStatus()
		if checked, ok := probeStatus["checked"].(bool); ok && checked {
			if healthy, ok := probeStatus["healthy"].(bool); ok && !healthy {
				status = "degraded"
			}
		}
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(startTime).String(),
		"probe":     probeStatus,
	})
}

// GetHome handles GET / and GET /home
func (h *Handler) GetHome(c *fiber.Ctx) error {
	index := filepath.Join(h.frontendDir, "index.html")
	if _, err := os.Stat(index); err == nil {
		return c.SendFile(index)
	}
	return c.JSON(fiber.Map{"message": "Welcome to the Plan My Fest App"})
}

var startTime = time.Now()
