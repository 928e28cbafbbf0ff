// Package client talks to the SocialChef REST backend: the scheduler listing and the
// bulk engagement endpoint.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultChunkSize   = 100
	DefaultConcurrency = 4

	// maxErrorBody bounds how much of a failed response is kept in an error.
	maxErrorBody = 512
)

// APIError is a response whose envelope reported success: false.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 && e.StatusCode != http.StatusOK {
		return fmt.Sprintf("api error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return "api error: " + e.Message
}

// Options configures a Client. Zero values take the package defaults.
type Options struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	Retry       *RetryConfig
	ChunkSize   int
	Concurrency int
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL     string
	token       string
	http        *http.Client
	retry       RetryConfig
	chunkSize   int
	concurrency int
	logger      *zap.Logger
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}

	c := &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		token:       opts.Token,
		http:        opts.HTTPClient,
		retry:       DefaultRetryConfig(),
		chunkSize:   opts.ChunkSize,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if opts.Retry != nil {
		c.retry = *opts.Retry
	}
	if c.chunkSize <= 0 {
		c.chunkSize = DefaultChunkSize
	}
	if c.concurrency <= 0 {
		c.concurrency = DefaultConcurrency
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c, nil
}

// PostFilter narrows the scheduler listing. Empty fields are not sent.
type PostFilter struct {
	Status   string
	BrandIDs []string
}

// ScheduledPosts lists scheduled posts.
func (c *Client) ScheduledPosts(ctx context.Context, filter PostFilter) ([]ScheduledPost, error) {
	params := url.Values{}
	if filter.Status != "" {
		params.Set("status", filter.Status)
	}
	if len(filter.BrandIDs) > 0 {
		params.Set("brand_id", strings.Join(filter.BrandIDs, ","))
	}

	path := "/api/scheduler"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var data scheduledPostsData
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, fmt.Errorf("list scheduled posts: %w", err)
	}
	return data.ScheduledPosts, nil
}

// BulkEngagement fetches engagement for ids, splitting them into chunks fetched
// concurrently. Results follow the order of ids as returned per chunk.
func (c *Client) BulkEngagement(ctx context.Context, ids []string) ([]PostEngagement, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var chunks [][]string
	for start := 0; start < len(ids); start += c.chunkSize {
		end := min(start+c.chunkSize, len(ids))
		chunks = append(chunks, ids[start:end])
	}

	results := make([][]PostEngagement, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			var data bulkEngagementData
			body := bulkEngagementRequest{ScheduledPostIDs: chunk}
			if err := c.do(gctx, http.MethodPost, "/api/engagement/bulk", body, &data); err != nil {
				return fmt.Errorf("fetch engagement chunk %d/%d: %w", i+1, len(chunks), err)
			}
			results[i] = data.Posts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []PostEngagement
	for _, r := range results {
		all = append(all, r...)
	}
	c.logger.Debug("fetched engagement", zap.Int("posts", len(ids)), zap.Int("chunks", len(chunks)), zap.Int("results", len(all)))
	return all, nil
}

// do sends one request with retries and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	return withRetry(ctx, c.retry, c.logger, method+" "+path, func(attempt int) (int, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return 0, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, fmt.Errorf("read response: %w", err)
		}

		return resp.StatusCode, decodeEnvelope(resp.StatusCode, raw, out)
	})
}

// decodeEnvelope unwraps a response body. A non-2xx body that is not an envelope becomes
// "HTTP <code>: <body>".
func decodeEnvelope(statusCode int, raw []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if statusCode < 200 || statusCode >= 300 {
			text := strings.TrimSpace(string(raw))
			if text == "" {
				text = http.StatusText(statusCode)
			}
			if len(text) > maxErrorBody {
				cut := maxErrorBody
				for cut > 0 && !utf8.RuneStart(text[cut]) {
					cut--
				}
				text = text[:cut]
			}
			return &APIError{StatusCode: statusCode, Message: fmt.Sprintf("HTTP %d: %s", statusCode, text)}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", statusCode)
		}
		return &APIError{StatusCode: statusCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
