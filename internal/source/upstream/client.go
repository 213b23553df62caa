package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"content_aggregator/internal/domain"
	"content_aggregator/internal/metrics"
	"content_aggregator/internal/retry"
)

const (
	SourceID   = "contents"
	SourceName = "Upstream Content API"

	endpoint = "contents"
)

// Upstream error codes carried in the JSON body of a failed response.
const (
	CodeRateLimited = 401
	CodeTransient   = 419
	CodeTransient2  = 402
)

var ErrPageFailed = errors.New("upstream page fetch failed")

var (
	errRateLimited = errors.New("rate limited")
	errTransient   = errors.New("transient upstream error")
)

const maxBodySize = 16 << 20

// Config holds upstream client configuration.
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RateLimitWait     time.Duration
	Retry             retry.Policy
	RequestsPerSecond float64
}

// Client fetches pages of the upstream contents listing.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	rateLimitWait time.Duration
	policy        retry.Policy
	limiter       *rate.Limiter
	validate      *validator.Validate
	onRetry       backoff.Notify
	logger        *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new upstream client.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		rateLimitWait: cfg.RateLimitWait,
		policy:        cfg.Retry,
		validate:      validator.New(),
		logger:        logger.With("client", SourceID),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the source identifier.
func (c *Client) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (c *Client) Name() string {
	return SourceName
}

// FetchPage fetches one page. Rate-limit responses wait RateLimitWait and
// retry the same page; transient responses retry immediately. Both are
// bounded only by the configured retry policy. Any other failure is returned
// wrapped in ErrPageFailed and the caller should stop paginating.
func (c *Client) FetchPage(ctx context.Context, page int) (*domain.ContentPage, error) {
	url := fmt.Sprintf("%s/api/v1/contents?page=%d", c.baseURL, page)
	attempts := 0

	resp, err := retry.Do(ctx, c.policy, &backoff.ZeroBackOff{}, c.notifyRetry(page), func() (*APIResponse, error) {
		attempts++

		resp, apiErr, err := c.doRequest(ctx, url)
		if err != nil {
			metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "error").Inc()
			return nil, retry.Stop(err)
		}
		if resp != nil {
			metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
			return resp, nil
		}

		switch apiErr.Code {
		case CodeRateLimited:
			metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return nil, retry.After(c.rateLimitWait, fmt.Errorf("%w: code %d", errRateLimited, apiErr.Code))
		case CodeTransient, CodeTransient2:
			metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "transient").Inc()
			return nil, fmt.Errorf("%w: code %d", errTransient, apiErr.Code)
		default:
			metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "failed").Inc()
			c.logger.Error("unexpected upstream error",
				"page", page,
				"code", apiErr.Code,
				"message", apiErr.Message,
			)
			return nil, retry.Stop(fmt.Errorf("code %d: %s", apiErr.Code, apiErr.Message))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: page %d after %d attempts: %w", ErrPageFailed, page, attempts, err)
	}

	return c.transform(page, resp), nil
}

func (c *Client) notifyRetry(page int) backoff.Notify {
	return func(err error, wait time.Duration) {
		if errors.Is(err, errRateLimited) {
			c.logger.Warn("request limit exceeded, sleeping", "page", page, "wait", wait)
		} else {
			c.logger.Warn("transient upstream error, retrying", "page", page, "error", err)
		}
		if c.onRetry != nil {
			c.onRetry(err, wait)
		}
	}
}

// doRequest returns exactly one of a decoded page, a decoded API error, or a
// definitive failure.
func (c *Client) doRequest(ctx context.Context, url string) (*APIResponse, *APIError, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ContentAggregator/1.0")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var apiResp APIResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, nil, fmt.Errorf("decode response: %w", err)
		}
		return &apiResp, nil, nil
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return nil, nil, fmt.Errorf("unexpected status %d: %w", resp.StatusCode, err)
	}
	return nil, &apiErr, nil
}

func (c *Client) transform(page int, resp *APIResponse) *domain.ContentPage {
	result := &domain.ContentPage{
		Number:  page,
		Items:   make([]domain.FetchedItem, 0, len(resp.Data)),
		Next:    resp.Next.Page,
		HasNext: resp.Next.Valid,
	}

	for i, raw := range resp.Data {
		item := domain.FetchedItem{Index: i, Raw: raw}
		item.Content, item.Err = c.parseItem(raw)
		result.Items = append(result.Items, item)
	}

	return result
}

func (c *Client) parseItem(raw json.RawMessage) (*domain.FetchedContent, error) {
	var item Content
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	if err := c.validate.Struct(item); err != nil {
		return nil, fmt.Errorf("missing required field: %w", err)
	}

	content := &domain.FetchedContent{
		UniqueID:     string(*item.UniqueID),
		Title:        *item.Title,
		ThumbnailURL: *item.ThumbnailViewURL,
		BigMetadata:  item.BigMetadata,
		SecretValue:  item.SecretValue,
		Raw:          raw,
	}
	logger := c.logger.With("unique_id", content.UniqueID)

	author, err := c.parseAuthor(item.Author, logger)
	if err != nil {
		return nil, err
	}
	content.Author = author

	if !isNull(item.Timestamp) {
		content.Timestamp = parseTimestampField(item.Timestamp)
		if content.Timestamp == nil {
			logger.Debug("ignoring unparseable timestamp", "timestamp", string(item.Timestamp))
		}
	}

	if !isNull(item.Stats) {
		counts, err := c.parseStats(item.Stats)
		if err != nil {
			logger.Debug("ignoring malformed stats", "stats", string(item.Stats), "error", err)
		}
		content.Counts = counts
	}

	return content, nil
}

func (c *Client) parseStats(raw json.RawMessage) (*domain.EngagementCounts, error) {
	var stats Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	if err := c.validate.Struct(stats); err != nil {
		return nil, fmt.Errorf("invalid stats: %w", err)
	}
	return &domain.EngagementCounts{
		Likes:    stats.Likes,
		Comments: stats.Comments,
		Shares:   stats.Shares,
		Views:    stats.Views,
	}, nil
}

// parseAuthor returns nil for a missing author. An author object without a
// usable unique_name fails the item; other malformed fields are dropped.
func (c *Client) parseAuthor(raw json.RawMessage, logger *slog.Logger) (*domain.FetchedAuthor, error) {
	if isNull(raw) {
		return nil, nil
	}

	var author Author
	if err := json.Unmarshal(raw, &author); err != nil {
		return nil, fmt.Errorf("decode author: %w", err)
	}
	if err := c.validate.Struct(author); err != nil {
		return nil, fmt.Errorf("missing required author field: %w", err)
	}

	name, ok := optionalString(author.FullName)
	if !ok {
		logger.Debug("ignoring malformed author full_name", "full_name", string(author.FullName))
	}
	url, ok := optionalString(author.URL)
	if !ok {
		logger.Debug("ignoring malformed author url", "url", string(author.URL))
	}

	return &domain.FetchedAuthor{
		UniqueID:    string(*author.UniqueName),
		Name:        name,
		URL:         url,
		BigMetadata: author.BigMetadata,
		SecretValue: author.SecretValue,
	}, nil
}

func parseTimestampField(raw json.RawMessage) *time.Time {
	var value FlexString
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	ts, ok := parseTimestamp(string(value))
	if !ok {
		return nil
	}
	return &ts
}

func parseTimestamp(s string) (time.Time, bool) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, true
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}
