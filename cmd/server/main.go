package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/planmyfest/weather-backend/internal/api"
	"github.com/planmyfest/weather-backend/internal/config"
	"github.com/planmyfest/weather-backend/internal/dataset"
	"github.com/planmyfest/weather-backend/internal/scheduler"
	"github.com/planmyfest/weather-backend/internal/services"
	"github.com/planmyfest/weather-backend/pkg/client"
	"github.com/planmyfest/weather-backend/pkg/dap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	logger.Info("Starting Plan My Fest weather backend")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize provider clients
	power := client.NewPowerClient(cfg.Power.BaseURL, client.ClientConfig{
		Timeout:        cfg.Power.Timeout,
		BreakerTimeout: cfg.CircuitBreaker.Timeout,
	}, logger)
	climatology := client.NewClimatologyClient(logger)
	merra := client.NewMerra2Client(client.Merra2Config{
		BaseURL: cfg.Earthdata.BaseURL,
		Credentials: dap.Credentials{
			Username: cfg.Earthdata.Username,
			Password: cfg.Earthdata.Password,
		},
		Timeout: cfg.Earthdata.Timeout,
	}, logger)
	nominatim := client.NewNominatimClient(cfg.Nominatim.BaseURL, cfg.Nominatim.UserAgent, client.ClientConfig{
		Timeout:        cfg.Nominatim.Timeout,
		BreakerTimeout: cfg.CircuitBreaker.Timeout,
	}, logger)

	// Per-operation fallback chains
	chains := services.Chains{
		Weather: services.NewChain(logger, power, climatology, merra),
		DOY:     services.NewChain(logger, power, merra),
		Stats:   services.NewChain(logger, merra),
		Suggest: services.NewChain(logger, power, climatology),
	}
	service := services.NewService(chains, nominatim, logger)

	// Availability probe against the primary source
	probe := scheduler.NewProbe(power, dataset.Location{
		Latitude:  cfg.Probe.Latitude,
		Longitude: cfg.Probe.Longitude,
	}, cfg.Probe.Spec, logger)
	if err := probe.Start(); err != nil {
		logger.Fatal("Failed to start availability probe", zap.Error(err))
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: api.ErrorHandler(logger),
	})

	// Setup handlers and routes
	handler := api.NewHandler(service, nominatim, probe, cfg.Static.FrontendDir, logger)
	api.SetupRoutes(app, handler, cfg.Static.ImagesDir, logger)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("Starting server", zap.String("address", addr))

		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop availability probe
	probe.Stop()

	// Shutdown Fiber app
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}
