package resrobot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"departureboard/pkg/metrics"
	dotel "departureboard/pkg/otel"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL = "https://api.resrobot.se/v2.1/departureBoard"

	// DefaultDuration is the look-ahead window in minutes.
	DefaultDuration = 60

	userAgent = "departureboard/1.0"
)

// Format selects the upstream payload encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
)

// ParseFormat accepts "json" or "xml".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatXML:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported format %q (want json or xml)", s)
}

// Cache stores raw upstream payloads between cycles.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Response is one departure board payload for a stop.
type Response struct {
	StationID string
	Format    Format
	Body      []byte
	Timestamp time.Time
	Cached    bool
}

type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	format      Format
	duration    int
	maxJourneys int
	cache       Cache
	cacheTTL    time.Duration
	tracer      trace.Tracer
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithFormat(f Format) Option {
	return func(c *Client) { c.format = f }
}

// WithDuration sets the look-ahead window in minutes.
func WithDuration(minutes int) Option {
	return func(c *Client) { c.duration = minutes }
}

// WithMaxJourneys caps the number of departures per request. Zero leaves it to the API.
func WithMaxJourneys(n int) Option {
	return func(c *Client) { c.maxJourneys = n }
}

// WithCache enables payload caching; a nil cache or non-positive ttl disables it.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		if cache == nil || ttl <= 0 {
			return
		}
		c.cache = cache
		c.cacheTTL = ttl
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		apiKey:   apiKey,
		baseURL:  DefaultBaseURL,
		format:   FormatJSON,
		duration: DefaultDuration,
		tracer:   otel.Tracer("resrobot-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Format reports the payload encoding this client requests.
func (c *Client) Format() Format {
	return c.format
}

func cacheKey(stationID string, format Format) string {
	return fmt.Sprintf("departures:%s:%s", stationID, format)
}

// FetchDepartures returns the departure board payload for stationID, served
// from the cache when a fresh copy exists.
func (c *Client) FetchDepartures(ctx context.Context, stationID string) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "resrobot.fetch_departures",
		trace.WithAttributes(
			attribute.String("station.id", stationID),
			attribute.String("resrobot.format", string(c.format)),
		),
	)
	defer span.End()

	key := cacheKey(stationID, c.format)
	if c.cache != nil {
		body, err := c.cache.Get(ctx, key)
		if err != nil {
			// Cache errors fall through to the API.
			slog.Warn("departure cache lookup failed", "station_id", stationID, "error", err)
			dotel.RecordError(span, err, dotel.ErrorTypeCache, true)
		} else {
			metrics.RecordCacheLookup(ctx, body != nil)
			if body != nil {
				span.SetAttributes(attribute.Bool("cache.hit", true))
				dotel.SetSpanOk(span)
				return &Response{
					StationID: stationID,
					Format:    c.format,
					Body:      body,
					Timestamp: time.Now(),
					Cached:    true,
				}, nil
			}
		}
	}

	reqURL, err := c.requestURL(stationID)
	if err != nil {
		dotel.RecordError(span, err, dotel.ErrorTypeValidation, false)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		dotel.RecordError(span, err, dotel.ErrorTypeValidation, false)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if c.format == FormatXML {
		req.Header.Set("Accept", "application/xml")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		errType, transient := dotel.ClassifyTransport(err)
		dotel.RecordError(span, err, errType, transient)
		metrics.RecordError(ctx, "fetch", errType)
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	metrics.RecordUpstreamRequest(ctx, resp.StatusCode, time.Since(start), len(body))

	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.String("http.response.content_type", resp.Header.Get("Content-Type")),
		attribute.Int("response.size_bytes", len(body)),
	)

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(body, 256))
		dotel.RecordError(span, err, dotel.ErrorTypeHTTP, dotel.IsTransientStatus(resp.StatusCode))
		metrics.RecordError(ctx, "fetch", dotel.ErrorTypeHTTP)
		return nil, err
	}
	if readErr != nil {
		dotel.RecordError(span, readErr, dotel.ErrorTypeNetwork, true)
		return nil, fmt.Errorf("failed to read response body: %w", readErr)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, body, c.cacheTTL); err != nil {
			slog.Warn("departure cache store failed", "station_id", stationID, "error", err)
		}
	}

	dotel.SetSpanOk(span)
	return &Response{
		StationID: stationID,
		Format:    c.format,
		Body:      body,
		Timestamp: time.Now(),
	}, nil
}

func (c *Client) requestURL(stationID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("accessId", c.apiKey)
	q.Set("id", stationID)
	q.Set("format", string(c.format))
	if c.duration > 0 {
		q.Set("duration", strconv.Itoa(c.duration))
	}
	if c.maxJourneys > 0 {
		q.Set("maxJourneys", strconv.Itoa(c.maxJourneys))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
