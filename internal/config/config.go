package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Server struct {
		Port         string
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
		LogLevel     string
	}

	Power struct {
		BaseURL string
		Timeout time.Duration
	}

	Earthdata struct {
		BaseURL  string
		Username string
		Password string
		Timeout  time.Duration
	}

	Nominatim struct {
		BaseURL   string
		UserAgent string
		Timeout   time.Duration
	}

	CircuitBreaker struct {
		Timeout time.Duration
	}

	Probe struct {
		Spec      string
		Latitude  float64
		Longitude float64
	}

	Static struct {
		FrontendDir string
		ImagesDir   string
	}
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		zap.L().Info("No .env file found, using environment variables")
	}

	cfg := &Config{}

	// Server configuration
	cfg.Server.Port = getEnv("FIBER_PORT", "8000")
	cfg.Server.ReadTimeout = parseDuration(getEnv("FIBER_READ_TIMEOUT", "60s"))
	cfg.Server.WriteTimeout = parseDuration(getEnv("FIBER_WRITE_TIMEOUT", "60s"))
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", "info")

	// NASA POWER configuration
	cfg.Power.BaseURL = getEnv("POWER_BASE_URL", "https://power.larc.nasa.gov/api/temporal/daily/point")
	cfg.Power.Timeout = parseDuration(getEnv("POWER_TIMEOUT", "30s"))

	// NASA Earthdata / GES DISC configuration
	cfg.Earthdata.BaseURL = getEnv("EARTHDATA_BASE_URL", "https://goldsmr4.gesdisc.eosdis.nasa.gov")
	cfg.Earthdata.Username = getEnv("EARTHDATA_USERNAME", "")
	cfg.Earthdata.Password = getEnv("EARTHDATA_PASSWORD", "")
	cfg.Earthdata.Timeout = parseDuration(getEnv("EARTHDATA_TIMEOUT", "60s"))

	// Nominatim geocoding configuration
	cfg.Nominatim.BaseURL = getEnv("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org")
	cfg.Nominatim.UserAgent = getEnv("NOMINATIM_USER_AGENT", "space-weather-planner/1.0 (contact: devnull@example.com)")
	cfg.Nominatim.Timeout = parseDuration(getEnv("NOMINATIM_TIMEOUT", "10s"))

	// Circuit breaker configuration
	cfg.CircuitBreaker.Timeout = parseDuration(getEnv("CIRCUIT_BREAKER_TIMEOUT", "30s"))

	// Availability probe configuration
	cfg.Probe.Spec = getEnv("PROBE_INTERVAL", "@every 15m")
	cfg.Probe.Latitude = parseFloat(getEnv("PROBE_LATITUDE", "38.9072"))
	cfg.Probe.Longitude = parseFloat(getEnv("PROBE_LONGITUDE", "-77.0369"))

	// Static frontend configuration
	cfg.Static.FrontendDir = getEnv("FRONTEND_DIR", "./frontend")
	cfg.Static.ImagesDir = getEnv("IMAGES_DIR", "./images")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		zap.L().Warn("Failed to parse duration", zap.String("value", value), zap.Error(err))
		return 0
	}
	return duration
}

func parseFloat(value string) float64 {
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		zap.L().Warn("Failed to parse float", zap.String("value", value), zap.Error(err))
		return 0
	}
	return floatValue
}
