// Package commenter talks to the AI comment generation and comment posting
// endpoints.
package commenter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	gobreaker "github.com/sony/gobreaker/v2"

	"content_aggregator/internal/domain"
	"content_aggregator/internal/metrics"
	"content_aggregator/internal/retry"
)

var (
	ErrNotCommentable    = domain.ErrNotCommentable
	ErrAttemptsExhausted = errors.New("attempts exhausted")
	ErrCircuitOpen       = errors.New("comment api circuit open")
)

const notCommentableMarker = "not available for commenting"

const maxBodySize = 1 << 20

type Config struct {
	GenerateURL string
	PostURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	RetryPause  time.Duration
	Breaker     BreakerConfig
}

type Client struct {
	httpClient  *http.Client
	generateURL string
	postURL     string
	apiKey      string
	maxAttempts int
	retryPause  time.Duration
	breaker     *gobreaker.CircuitBreaker[any]
	onRetry     backoff.Notify
	logger      *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	logger = logger.With("client", "commenter")

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		generateURL: cfg.GenerateURL,
		postURL:     cfg.PostURL,
		apiKey:      cfg.APIKey,
		maxAttempts: cfg.MaxAttempts,
		retryPause:  cfg.RetryPause,
		breaker:     newBreaker("comment-api", cfg.Breaker, logger),
		logger:      logger,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 3
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate asks the AI endpoint for a comment on content. It makes at most
// MaxAttempts requests and returns the first 2xx response.
func (c *Client) Generate(ctx context.Context, content *domain.Content) (*domain.GeneratedComment, error) {
	payload := generateRequest{
		ContentID:      content.UniqueID,
		Title:          content.Title,
		URL:            content.URL,
		AuthorUsername: content.AuthorUsername,
	}

	return castResult[domain.GeneratedComment](c.execute(func() (any, error) {
		return c.generate(ctx, payload)
	}))
}

func (c *Client) generate(ctx context.Context, payload generateRequest) (*domain.GeneratedComment, error) {
	attempts := 0

	generated, err := withRetry(ctx, c, "ai_comment", payload.ContentID, func() (*domain.GeneratedComment, error) {
		attempts++

		status, body, err := c.post(ctx, c.generateURL, payload)
		switch {
		case err != nil:
			metrics.UpstreamRequestsTotal.WithLabelValues("ai_comment", "error").Inc()
			c.logger.Error("comment generation request failed",
				"content_id", payload.ContentID,
				"attempt", attempts,
				"error", err,
			)
			return nil, err
		case status >= 200 && status < 300:
			generated, err := decodeGenerated(body)
			if err == nil {
				metrics.UpstreamRequestsTotal.WithLabelValues("ai_comment", "ok").Inc()
				c.logger.Info("ai comment generated", "content_id", payload.ContentID)
				return generated, nil
			}
			metrics.UpstreamRequestsTotal.WithLabelValues("ai_comment", "failed").Inc()
			c.logger.Warn("undecodable ai comment response",
				"content_id", payload.ContentID,
				"attempt", attempts,
				"error", err,
			)
			return nil, err
		default:
			metrics.UpstreamRequestsTotal.WithLabelValues("ai_comment", "failed").Inc()
			c.logger.Warn("failed to generate ai comment",
				"content_id", payload.ContentID,
				"attempt", attempts,
				"status", status,
				"body", truncate(body),
			)
			return nil, fmt.Errorf("unexpected status %d", status)
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("generate comment: %w", err)
		}
		c.logger.Error("failed to generate ai comment after retries", "content_id", payload.ContentID)
		return nil, fmt.Errorf("generate comment: %w after %d attempts: %w", ErrAttemptsExhausted, attempts, err)
	}

	return generated, nil
}

// Post publishes a generated comment. 201 is success; a 400 whose error
// says the content is not available for commenting returns ErrNotCommentable
// without further attempts.
func (c *Client) Post(ctx context.Context, content *domain.Content, generated *domain.GeneratedComment) (*domain.PostedComment, error) {
	payload := postRequest{
		ContentID:   content.UniqueID,
		CommentText: generated.CommentText,
	}

	return castResult[domain.PostedComment](c.execute(func() (any, error) {
		return c.postComment(ctx, payload)
	}))
}

func (c *Client) postComment(ctx context.Context, payload postRequest) (*domain.PostedComment, error) {
	attempts := 0

	posted, err := withRetry(ctx, c, "comment", payload.ContentID, func() (*domain.PostedComment, error) {
		attempts++

		status, body, err := c.post(ctx, c.postURL, payload)
		switch {
		case err != nil:
			metrics.UpstreamRequestsTotal.WithLabelValues("comment", "error").Inc()
			c.logger.Error("comment post request failed",
				"content_id", payload.ContentID,
				"attempt", attempts,
				"error", err,
			)
			return nil, err
		case status == http.StatusCreated:
			metrics.UpstreamRequestsTotal.WithLabelValues("comment", "ok").Inc()
			c.logger.Info("comment posted", "content_id", payload.ContentID)
			var resp postResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				c.logger.Debug("undecodable comment post response, no comment id",
					"content_id", payload.ContentID,
					"body", truncate(body),
					"error", err,
				)
			}
			return &domain.PostedComment{ID: rawID(resp.ID), Raw: body}, nil
		case status == http.StatusBadRequest && isNotCommentable(body):
			metrics.UpstreamRequestsTotal.WithLabelValues("comment", "not_commentable").Inc()
			c.logger.Warn("content is not available for commenting, skipping", "content_id", payload.ContentID)
			return nil, retry.Stop(ErrNotCommentable)
		default:
			metrics.UpstreamRequestsTotal.WithLabelValues("comment", "failed").Inc()
			c.logger.Warn("failed to post comment",
				"content_id", payload.ContentID,
				"attempt", attempts,
				"status", status,
				"body", truncate(body),
			)
			return nil, fmt.Errorf("unexpected status %d", status)
		}
	})
	switch {
	case err == nil:
		return posted, nil
	case errors.Is(err, ErrNotCommentable):
		return nil, fmt.Errorf("post comment: %w", ErrNotCommentable)
	case ctx.Err() != nil:
		return nil, fmt.Errorf("post comment: %w", err)
	default:
		c.logger.Error("failed to post comment after retries", "content_id", payload.ContentID)
		return nil, fmt.Errorf("post comment: %w after %d attempts: %w", ErrAttemptsExhausted, attempts, err)
	}
}

// withRetry runs op at most MaxAttempts times with RetryPause between
// attempts.
func withRetry[T any](ctx context.Context, c *Client, operation, contentID string, op backoff.Operation[*T]) (*T, error) {
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying comment api call",
			"operation", operation,
			"content_id", contentID,
			"wait", wait,
			"error", err,
		)
		if c.onRetry != nil {
			c.onRetry(err, wait)
		}
	}

	return retry.Do(ctx, retry.Attempts(c.maxAttempts), backoff.NewConstantBackOff(c.retryPause), notify, op)
}

func (c *Client) post(ctx context.Context, url string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func decodeGenerated(body []byte) (*domain.GeneratedComment, error) {
	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &domain.GeneratedComment{
		ID:          rawID(resp.ID),
		CommentText: resp.CommentText,
		Raw:         body,
	}, nil
}

func isNotCommentable(body []byte) bool {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(resp.Error), notCommentableMarker)
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
