package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// DefaultURL is the City of Calgary waste and recycling schedule dataset.
const DefaultURL = "https://data.calgary.ca/resource/jq4t-b745.json"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// ClientConfig holds Open Data client settings.
type ClientConfig struct {
	BaseURL      string        // Dataset endpoint
	RadiusMeters float64       // Search radius around the point
	Timeout      time.Duration // Per-request timeout
	RateLimit    float64       // Requests per second to the portal
}

// DefaultClientConfig returns settings matching the public portal.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:      DefaultURL,
		RadiusMeters: 50,
		Timeout:      10 * time.Second,
		RateLimit:    2,
	}
}

// Client fetches schedule records near a location.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a client. A nil logger uses slog.Default().
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// QueryURL builds the SoQL request for records within the search radius.
func (c *Client) QueryURL(lat, long float64) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}

	where := fmt.Sprintf("within_circle(point, %s, %s, %s)",
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(long, 'f', -1, 64),
		strconv.FormatFloat(c.cfg.RadiusMeters, 'f', -1, 64),
	)

	q := u.Query()
	q.Set("$where", where)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchRecords returns validated records for the location. The raw body
// is returned alongside so callers can cache exactly what was received.
func (c *Client) FetchRecords(ctx context.Context, lat, long float64) ([]Record, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: rate limit wait: %v", ErrUpstream, err)
	}

	endpoint, err := c.QueryURL(lat, long)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}

	c.logger.Debug("fetched schedule records",
		slog.Float64("lat", lat),
		slog.Float64("long", long),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	records, err := Decode(body)
	if err != nil {
		return nil, nil, err
	}
	return records, body, nil
}
