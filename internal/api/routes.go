package api

import (
	"errors"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/planmyfest/weather-backend/internal/services"
)

func SetupRoutes(app *fiber.App, handler *Handler, imagesDir string, log *zap.Logger) {
	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST",
	}))

	// Custom logger middleware
	app.Use(logger.New(logger.Config{
		Format:     "${time} ${pid} ${locals:requestid} ${status} - ${method} ${path}\n",
		TimeFormat: time.RFC3339,
	}))

	// Landing page
	app.Get("/", handler.GetHome)
	app.Get("/home", handler.GetHome)

	// Health check
	app.Get("/health", handler.GetHealth)

	// Weather data routes
	app.Post("/weather", handler.PostWeather)
	app.Post("/probability", handler.PostProbability)
	app.Post("/probability/doy", handler.PostDOYProbability)
	app.Post("/stats", handler.PostStats)
	app.Post("/download.csv", handler.PostDownloadCSV)
	app.Get("/weather-suggestions", handler.GetSuggestions)

	// Geocoding proxy routes
	app.Get("/geocode", handler.GetGeocode)
	app.Get("/reverse-geocode", handler.GetReverseGeocode)

	// Static assets, mounted only when the directories exist
	if info, err := os.Stat(handler.frontendDir); err == nil && info.IsDir() {
		app.Static("/static", handler.frontendDir)
	}
	if info, err := os.Stat(imagesDir); err == nil && info.IsDir() {
		app.Static("/images", imagesDir)
	}

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
			"path":  c.Path(),
		})
	})
}

// ErrorHandler maps service failures onto HTTP statuses: invalid queries are
// the client's fault, exhausted provider chains are a temporary outage,
// anything else is a plain 500.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal server error"

		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &fiberErr):
			code = fiberErr.Code
			message = fiberErr.Message
		case errors.Is(err, services.ErrInvalidQuery):
			code = fiber.StatusBadRequest
			message = err.Error()
		case errors.Is(err, services.ErrAllProvidersFailed):
			code = fiber.StatusServiceUnavailable
			message = "All NASA data sources temporarily unavailable. Please try again later."
		}

		if code >= fiber.StatusInternalServerError {
			log.Error("Request failed",
				zap.Int("status", code),
				zap.String("path", c.Path()),
				zap.Error(err))
		} else {
			log.Warn("Request rejected",
				zap.Int("status", code),
				zap.String("path", c.Path()),
				zap.Error(err))
		}

		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}
