package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ewarn/internal/config"
	"ewarn/internal/logger"
	"ewarn/internal/metrics"
	"ewarn/internal/models"
)

const maxResponseSize = 64 * 1024 * 1024

// Client reads records from the surveillance backend's REST API
type Client struct {
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	fields     map[models.Disease]FieldMap
}

// ClientOption is a functional option for configuring the client
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithFieldMaps replaces the per-disease column layouts
func WithFieldMaps(fields map[models.Disease]FieldMap) ClientOption {
	return func(c *Client) { c.fields = fields }
}

// NewClient creates a feed client from config
func NewClient(cfg config.FeedConfig, opts ...ClientOption) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		http:       &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		fields:     DefaultFieldMaps(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// recordsResponse accepts both a bare row array and {"data": [...]}
type recordsResponse struct {
	Data []Row `json:"data"`
}

// Records fetches every row for the disease and decodes it. Rows that cannot
// be decoded are logged and dropped.
func (c *Client) Records(ctx context.Context, disease models.Disease) ([]models.MonthlyRecord, error) {
	fm, ok := c.fields[disease]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDisease, disease)
	}

	body, err := c.get(ctx, "records", disease)
	if err != nil {
		return nil, err
	}

	rows, err := ParseRows(body)
	if err != nil {
		return nil, err
	}

	records, rowErrs := fm.DecodeRows(disease, rows)
	if len(rowErrs) > 0 {
		metrics.FeedRowsDropped.WithLabelValues(string(disease)).Add(float64(len(rowErrs)))
		log := logger.WithDisease("feed", string(disease))
		log.Warn().
			Int("dropped", len(rowErrs)).
			Int("total", len(rows)).
			Str("first_error", rowErrs[0].Error()).
			Msg("dropped undecodable feed rows")
	}
	return records, nil
}

// ParseRows decodes a feed body: a bare array of rows or {"data": [...]}.
// Numbers are kept as json.Number.
func ParseRows(body []byte) ([]Row, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []Row
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return rows, nil
	}

	var resp recordsResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return resp.Data, nil
}

// latestResponse is the body of the latest-period endpoint
type latestResponse struct {
	Month *int `json:"month"`
	Year  *int `json:"year"`
}

// LatestActual returns the most recent period with actual data, or nil
func (c *Client) LatestActual(ctx context.Context, disease models.Disease) (*models.Period, error) {
	body, err := c.get(ctx, "latest-period", disease)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var resp latestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if resp.Month == nil || resp.Year == nil {
		return nil, nil
	}

	p := models.Period{Month: *resp.Month, Year: *resp.Year}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: latest period: %v", ErrDecode, err)
	}
	return &p, nil
}

var errNotFound = errors.New("not found")

// retryableError marks a failure worth another attempt
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// get performs GET {base}/{disease}/{endpoint} with rate limiting and
// exponential backoff on transport errors, 429 and 5xx
func (c *Client) get(ctx context.Context, endpoint string, disease models.Disease) ([]byte, error) {
	log := logger.WithDisease("feed", string(disease))
	target := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(string(disease)), endpoint)

	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying feed request")

			metrics.FeedRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.do(ctx, endpoint, target)
		if err == nil {
			return body, nil
		}

		lastErr = err
		var retryable retryableError
		if !errors.As(err, &retryable) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("feed %s failed after %d attempts: %w", endpoint, c.maxRetries+1, lastErr)
}

func (c *Client) do(ctx context.Context, endpoint, target string) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.FeedRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.FeedRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retryableError{err}
	}
	defer resp.Body.Close()

	metrics.FeedRequestsTotal.WithLabelValues(endpoint, fmt.Sprint(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, retryableError{fmt.Errorf("read response body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %w: %s", ErrFeedStatus, errNotFound, target)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, retryableError{fmt.Errorf("%w: %s returned %d", ErrFeedStatus, target, resp.StatusCode)}
	default:
		return nil, fmt.Errorf("%w: %s returned %d", ErrFeedStatus, target, resp.StatusCode)
	}
}
