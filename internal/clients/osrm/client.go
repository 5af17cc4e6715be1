package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
)

// ErrRateLimited is returned when the routing server keeps answering 429
var ErrRateLimited = errors.New("osrm rate limit exceeded")

// HTTPDoer is the subset of *http.Client the client needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds OSRM connection settings
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	Profile        string        `yaml:"profile"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig points at the public OSRM demo server
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://router.project-osrm.org",
		Profile:        "driving",
		Timeout:        15 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		CacheTTL:       30 * time.Minute,
	}
}

// Client resolves waypoint lists through the OSRM route service. It
// implements routing.Router.
type Client struct {
	cfg        Config
	httpClient HTTPDoer
}

// NewClient creates a new OSRM client
func NewClient(cfg Config) *Client {
	cfg = withDefaults(cfg)
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// NewClientWithHTTPDoer creates a client that sends requests through doer
func NewClientWithHTTPDoer(cfg Config, doer HTTPDoer) *Client {
	return &Client{cfg: withDefaults(cfg), httpClient: doer}
}

// Profile returns the routing profile requests are made with
func (c *Client) Profile() string {
	return c.cfg.Profile
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Profile == "" {
		cfg.Profile = def.Profile
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	return cfg
}

// ResolveRoute requests a full-overview polyline route through waypoints
func (c *Client) ResolveRoute(ctx context.Context, waypoints geo.Polyline) (geo.Polyline, error) {
	if len(waypoints) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 waypoints, got %d", routing.ErrInvalidInput, len(waypoints))
	}
	if err := waypoints.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", routing.ErrInvalidInput, err)
	}

	endpoint := c.routeURL(waypoints)
	backoff := c.cfg.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, err := c.fetch(ctx, endpoint)
		if err == nil {
			return line, nil
		}
		lastErr = err

		if !retryable(err) || attempt == c.cfg.MaxAttempts {
			break
		}

		logging.Warnw(ctx, "OSRM request failed, retrying",
			"attempt", attempt, "backoff", backoff.String(), "error", err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}

	return nil, lastErr
}

// routeURL builds {base}/route/v1/{profile}/{lng,lat;...}?overview=full&geometries=polyline
func (c *Client) routeURL(waypoints geo.Polyline) string {
	coords := make([]string, len(waypoints))
	for i, p := range waypoints {
		coords[i] = fmt.Sprintf("%.6f,%.6f", p.Longitude, p.Latitude)
	}

	q := url.Values{}
	q.Set("overview", "full")
	q.Set("geometries", "polyline")

	return fmt.Sprintf("%s/route/v1/%s/%s?%s",
		c.cfg.BaseURL, url.PathEscape(c.cfg.Profile), strings.Join(coords, ";"), q.Encode())
}

func (c *Client) fetch(ctx context.Context, endpoint string) (geo.Polyline, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var response RouteResponse
	decodeErr := json.Unmarshal(body, &response)

	if resp.StatusCode >= 400 {
		// OSRM reports NoRoute and friends as 400 with a JSON code
		if decodeErr == nil && response.Code != "" && resp.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %s: %s", routing.ErrNoRoute, response.Code, response.Message)
		}
		return nil, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	return processRouteResponse(response)
}

// processRouteResponse extracts the first route geometry
func processRouteResponse(response RouteResponse) (geo.Polyline, error) {
	if response.Code != "Ok" {
		return nil, fmt.Errorf("%w: %s: %s", routing.ErrNoRoute, response.Code, response.Message)
	}
	if len(response.Routes) == 0 {
		return nil, fmt.Errorf("%w: no routes found in response", routing.ErrNoRoute)
	}

	line, err := geo.DecodePolyline(response.Routes[0].Geometry)
	if err != nil {
		return nil, fmt.Errorf("failed to decode route geometry: %w", err)
	}
	if len(line) < 2 {
		return nil, fmt.Errorf("%w: route geometry has %d points", routing.ErrNoRoute, len(line))
	}
	return line, nil
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Body)
}

// retryable reports whether err is a transient failure: rate limiting, a 5xx
// response or a network error
func retryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// RouteResponse is the subset of the OSRM route service response used here
type RouteResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message,omitempty"`
	Routes  []OSRMRoute `json:"routes"`
}

// OSRMRoute is one route alternative
type OSRMRoute struct {
	Geometry string  `json:"geometry"`
	Distance float64 `json:"distance"` // meters
	Duration float64 `json:"duration"` // seconds
}
