package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultNominatimBaseURL is the public OSM Nominatim instance.
const DefaultNominatimBaseURL = "https://nominatim.openstreetmap.org"

// DefaultNominatimUserAgent identifies the service as the Nominatim usage
// policy requires. Deployments should override it with a real contact.
const DefaultNominatimUserAgent = "space-weather-planner/1.0 (contact: devnull@example.com)"

// shortNameTimeout bounds each reverse lookup made while ranking
// suggestions, where a slow answer is worth less than a coordinate string.
const shortNameTimeout = 5 * time.Second

// NominatimClient proxies geocoding queries to a Nominatim instance. Calls
// are paced to one per second per the public instance policy.
type NominatimClient struct {
	*BaseClient
	baseURL string
	limiter *rate.Limiter
}

func NewNominatimClient(baseURL, userAgent string, config ClientConfig, logger *zap.Logger) *NominatimClient {
	if baseURL == "" {
		baseURL = DefaultNominatimBaseURL
	}
	if userAgent == "" {
		userAgent = DefaultNominatimUserAgent
	}
	config.UserAgent = userAgent
	return &NominatimClient{
		BaseClient: NewBaseClient("nominatim", config, logger),
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Search proxies a free-text place query and returns the upstream payload
// untouched.
func (c *NominatimClient) Search(ctx context.Context, query string, limit int) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.Get(ctx, c.baseURL+"/search?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to geocode %q: %w", query, err)
	}
	return json.RawMessage(body), nil
}

// Reverse proxies a coordinate lookup and returns the upstream payload
// untouched.
func (c *NominatimClient) Reverse(ctx context.Context, lat, lon float64) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")

	body, err := c.Get(ctx, c.baseURL+"/reverse?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to reverse geocode: %w", err)
	}
	return json.RawMessage(body), nil
}

// ShortName reverse-geocodes at neighborhood zoom and shortens the display
// name to its two leading segments. Any failure degrades to "lat, lon".
func (c *NominatimClient) ShortName(ctx context.Context, lat, lon float64) string {
	fallback := fmt.Sprintf("%.4f, %.4f", lat, lon)

	ctx, cancel := context.WithTimeout(ctx, shortNameTimeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return fallback
	}
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("format", "jsonv2")
	params.Set("zoom", "14")

	body, err := c.Get(ctx, c.baseURL+"/reverse?"+params.Encode())
	if err != nil {
		c.logger.Debug("Reverse geocode for suggestion failed",
			zap.Float64("latitude", lat),
			zap.Float64("longitude", lon),
			zap.Error(err))
		return fallback
	}

	var place struct {
		DisplayName string `json:"display_name"`
		Name        string `json:"name"`
	}
	if err := json.Unmarshal(body, &place); err != nil {
		return fallback
	}

	if place.DisplayName != "" {
		parts := strings.Split(place.DisplayName, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 {
			return parts[0] + ", " + parts[1]
		}
		return parts[0]
	}
	if place.Name != "" {
		return place.Name
	}
	return fallback
}
