package maptiler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/salemap/saled/internal/geocode"
	"github.com/salemap/saled/internal/httpclient"
	"github.com/salemap/saled/internal/metrics"
	"github.com/salemap/saled/internal/rate"
	"github.com/salemap/saled/pkg/model"
)

const (
	DefaultBaseURL = "https://api.maptiler.com/geocoding"
	providerName   = "maptiler"
	breakerName    = "maptiler-geocoding"
)

// KeySource supplies the API key at call time. An empty key means geocoding is not configured.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// Config holds client settings.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	RetryMax int
}

// Client resolves free-text addresses through the MapTiler geocoding API.
type Client struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	keys    KeySource
	baseURL string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[model.Location]
}

// NewClient builds a MapTiler client. rateMgr may be nil.
func NewClient(logger *zap.Logger, cfg Config, keys KeySource, rateMgr *rate.Manager) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	exec := httpclient.New(logger, rateMgr, httpClient, cfg.RetryMax, providerName, nil)

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	breaker := gobreaker.NewCircuitBreaker[model.Location](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("maptiler.breaker_state_changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})

	return &Client{
		logger:  logger,
		exec:    exec,
		keys:    keys,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		breaker: breaker,
	}
}

// Geocode resolves query to the center of the first returned feature.
//
// It returns geocode.ErrNotConfigured when no key is available,
// geocode.ErrNotFound for a non-success status or an unusable payload, and a
// wrapped transport error otherwise.
func (c *Client) Geocode(ctx context.Context, query string) (model.Location, error) {
	key, err := c.apiKey(ctx)
	if err != nil {
		metrics.IncGeocoderRequest(providerName, "error")
		return model.Location{}, err
	}
	if key == "" {
		metrics.IncGeocoderRequest(providerName, "skipped")
		c.logger.Warn("maptiler.missing_api_key")
		return model.Location{}, geocode.ErrNotConfigured
	}

	start := time.Now()
	loc, err := c.breaker.Execute(func() (model.Location, error) {
		return c.fetch(ctx, key, query)
	})
	metrics.ObserveDuration(metrics.GeocoderRequestDuration, start, providerName)

	if err == nil {
		metrics.IncGeocoderRequest(providerName, "ok")
		return loc, nil
	}

	var se *httpclient.StatusError
	switch {
	case errors.Is(err, geocode.ErrNotFound):
		metrics.IncGeocoderRequest(providerName, "not_found")
		c.logger.Warn("maptiler.no_usable_center", zap.String("query", query))
		return model.Location{}, geocode.ErrNotFound
	case errors.As(err, &se):
		metrics.IncGeocoderRequest(providerName, "not_found")
		c.logger.Error("maptiler.geocoding_failed",
			zap.Int("status", se.Code),
			zap.String("message", errorMessage(se.Body)))
		return model.Location{}, fmt.Errorf("%w: status %d", geocode.ErrNotFound, se.Code)
	default:
		metrics.IncGeocoderRequest(providerName, "error")
		return model.Location{}, fmt.Errorf("maptiler: %w", err)
	}
}

func (c *Client) apiKey(ctx context.Context) (string, error) {
	if c.keys == nil {
		return "", nil
	}
	key, err := c.keys.APIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("maptiler api key: %w", err)
	}
	return strings.TrimSpace(key), nil
}

func (c *Client) fetch(ctx context.Context, key, query string) (model.Location, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s.json?key=%s", c.baseURL, url.PathEscape(query), url.QueryEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Location{}, err
	}
	req.Header.Set("Accept", "application/json")

	var payload geocodingResponse
	if err := c.exec.DoJSON(ctx, req, key, &payload); err != nil {
		return model.Location{}, err
	}
	return firstCenter(payload)
}

// firstCenter reads features[0].center as [lng, lat].
func firstCenter(payload geocodingResponse) (model.Location, error) {
	if len(payload.Features) == 0 {
		return model.Location{}, geocode.ErrNotFound
	}
	center := payload.Features[0].Center
	if len(center) < 2 {
		return model.Location{}, geocode.ErrNotFound
	}
	lng, okLng := center[0].(float64)
	lat, okLat := center[1].(float64)
	if !okLng || !okLat || !model.ValidCoordinate(lat, lng) {
		return model.Location{}, geocode.ErrNotFound
	}
	return model.Location{Lat: lat, Lng: lng}, nil
}

// isBreakerSuccess keeps definitive answers from tripping the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, geocode.ErrNotFound) {
		return true
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return !se.Temporary()
	}
	return false
}

func errorMessage(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Message != "" {
		return resp.Message
	}
	return string(body)
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
