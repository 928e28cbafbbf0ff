package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fastRetry = &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffMultiple: 2}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts.BaseURL = srv.URL
	if opts.Retry == nil {
		opts.Retry = fastRetry
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(c.http.CloseIdleConnections)
	return c
}

func TestNew(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{BaseURL: "not a url"})
	assert.Error(t, err)

	c, err := New(Options{BaseURL: "https://api.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", c.baseURL)
	assert.Equal(t, DefaultChunkSize, c.chunkSize)
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
}

func TestScheduledPosts(t *testing.T) {
	var gotAuth, gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/api/scheduler", r.URL.Path)
		io.WriteString(w, `{"success":true,"data":{"scheduled_posts":[
			{"id":"1","status":"published","published_at":"2026-10-01T09:00:00Z","platforms":["instagram"],"brands":{"id":"b1"}},
			{"id":"2","status":"scheduled","scheduled_date":"2026-10-20","platforms":[]}
		]}}`)
	}, Options{Token: "secret"})

	posts, err := c.ScheduledPosts(context.Background(), PostFilter{Status: "published", BrandIDs: []string{"b1", "b2"}})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "brand_id=b1%2Cb2&status=published", gotQuery)
	assert.Equal(t, "b1", posts[0].EffectiveBrandID())
	assert.Equal(t, []string{"instagram"}, posts[0].Platforms)
}

func TestEnvelopeErrors(t *testing.T) {
	t.Run("success false", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"success":false,"error":"brand not found"}`)
		}, Options{})

		_, err := c.ScheduledPosts(context.Background(), PostFilter{})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "brand not found", apiErr.Message)
	})

	t.Run("non-json error body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, "token expired")
		}, Options{})

		_, err := c.ScheduledPosts(context.Background(), PostFilter{})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "HTTP 401: token expired", apiErr.Message)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	})

	t.Run("json error body on non-2xx", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"success":false,"message":"forbidden brand"}`)
		}, Options{})

		_, err := c.ScheduledPosts(context.Background(), PostFilter{})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "forbidden brand", apiErr.Message)
	})

	t.Run("long body is cut on a character boundary", func(t *testing.T) {
		body := "a" + strings.Repeat("é", 400)
		err := decodeEnvelope(http.StatusBadGateway, []byte(body), nil)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.True(t, utf8.ValidString(apiErr.Message))
		assert.Equal(t, "HTTP 502: "+body[:maxErrorBody-1], apiErr.Message)
	})
}

func TestRetry(t *testing.T) {
	t.Run("recovers from 503", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			io.WriteString(w, `{"success":true,"data":{"scheduled_posts":[]}}`)
		}, Options{})

		posts, err := c.ScheduledPosts(context.Background(), PostFilter{})
		require.NoError(t, err)
		assert.Empty(t, posts)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}, Options{})

		_, err := c.ScheduledPosts(context.Background(), PostFilter{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP 429")
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}, Options{})

		_, err := c.ScheduledPosts(context.Background(), PostFilter{})
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			cancel()
			w.WriteHeader(http.StatusBadGateway)
		}, Options{Retry: &RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Second, BackoffMultiple: 1}})

		_, err := c.ScheduledPosts(ctx, PostFilter{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBulkEngagement(t *testing.T) {
	var mu sync.Mutex
	var batches [][]string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req bulkEngagementRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		batches = append(batches, req.ScheduledPostIDs)
		mu.Unlock()

		var data bulkEngagementData
		for _, id := range req.ScheduledPostIDs {
			data.Posts = append(data.Posts, PostEngagement{
				ScheduledPostID: id,
				Platforms:       map[string]EngagementMetrics{"instagram": {Likes: 1, Reach: 10}},
			})
		}
		raw, _ := json.Marshal(data)
		json.NewEncoder(w).Encode(envelope{Success: true, Data: raw})
	}, Options{ChunkSize: 2, Concurrency: 2})

	ids := []string{"a", "b", "c", "d", "e"}
	got, err := c.BulkEngagement(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, id := range ids {
		assert.Equal(t, id, got[i].ScheduledPostID)
		assert.Equal(t, int64(10), got[i].Platforms["instagram"].Reach)
	}
	assert.Len(t, batches, 3)

	t.Run("no ids makes no request", func(t *testing.T) {
		got, err := c.BulkEngagement(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Len(t, batches, 3)
	})
}

func TestScheduledPostFields(t *testing.T) {
	t.Run("date falls back to scheduled date", func(t *testing.T) {
		d, ok := ScheduledPost{ScheduledDate: "2026-10-01 08:30:00"}.Date()
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC), d)

		d, ok = ScheduledPost{PublishedAt: "2026-10-01T08:30:00+02:00", ScheduledDate: "2026-01-01"}.Date()
		require.True(t, ok)
		assert.Equal(t, 6, d.UTC().Hour())

		_, ok = ScheduledPost{PublishedAt: "yesterday"}.Date()
		assert.False(t, ok)
	})

	t.Run("body", func(t *testing.T) {
		assert.Equal(t, "cap", ScheduledPost{Caption: "cap", Text: "text"}.Body())
		assert.Equal(t, "nested", ScheduledPost{Posts: &PostRef{Caption: "nested"}}.Body())
		assert.Empty(t, ScheduledPost{}.Body())
	})

	t.Run("brand", func(t *testing.T) {
		p := ScheduledPost{Posts: &PostRef{BrandID: "b3"}}
		assert.True(t, p.BelongsTo("b3"))
		assert.False(t, p.BelongsTo("b1"))
		assert.Equal(t, "b3", p.EffectiveBrandID())
	})
}
