package web

import (
	"bytes"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"socialchef-insights/internal/cache"
	"socialchef-insights/internal/db"
	"socialchef-insights/internal/report"
	"socialchef-insights/internal/stats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var syncedAt = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "insights.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	c, err := cache.NewReportCache(filepath.Join(t.TempDir(), "cache"), 5)
	require.NoError(t, err)
	return NewServer(database, ":0", report.NewBuilder(database, c), nil), database
}

func seed(t *testing.T, database *db.DB, brand string, rates ...float64) int64 {
	t.Helper()
	id, err := database.InsertSnapshot(&db.Snapshot{BrandID: brand, SyncedAt: syncedAt, WindowDays: 90})
	require.NoError(t, err)

	var posts []db.Post
	for i, rate := range rates {
		posts = append(posts, db.Post{
			PostID:      brand + "-" + string(rune('a'+i)),
			Status:      "published",
			BrandID:     brand,
			PublishedAt: syncedAt.AddDate(0, 0, -(i + 1)),
			Platforms:   []string{"instagram"},
			Text:        "caption",
			Engagement: []db.Engagement{{
				Platform:    "instagram",
				Likes:       int64(math.Round(rate * 10)),
				Reach:       1000,
				Impressions: 1200,
			}},
		})
	}
	require.NoError(t, database.InsertPosts(id, posts))
	return id
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSnapshotsEndpoints(t *testing.T) {
	s, database := newTestServer(t)
	id := seed(t, database, "brand-1", 2, 3, 4)
	seed(t, database, "brand-2", 1)
	h := s.Handler()

	t.Run("list", func(t *testing.T) {
		rec := get(t, h, "/api/snapshots?brand=brand-1")
		require.Equal(t, http.StatusOK, rec.Code)

		var got []snapshotResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, id, got[0].ID)
		assert.Equal(t, 3, got[0].PostCount)
		assert.Equal(t, "2026-10-18T12:00:00Z", got[0].SyncedAt)
	})

	t.Run("list rejects bad parameters", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/snapshots?limit=x").Code)
		assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/snapshots?since=yesterday").Code)
	})

	t.Run("list since a date", func(t *testing.T) {
		rec := get(t, h, "/api/snapshots?since=2026-10-19")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("show", func(t *testing.T) {
		rec := get(t, h, "/api/snapshots/1")
		require.Equal(t, http.StatusOK, rec.Code)
		var got snapshotResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "brand-1", got.BrandID)
		assert.Equal(t, "UTC", got.Timezone)
	})

	t.Run("show errors", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/snapshots/abc").Code)
		assert.Equal(t, http.StatusNotFound, get(t, h, "/api/snapshots/99").Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/snapshots", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Equal(t, "GET", rec.Header().Get("Allow"))
	})
}

func TestReportEndpoints(t *testing.T) {
	s, database := newTestServer(t)
	seed(t, database, "brand-1", 2, 3, 4)
	h := s.Handler()

	rec := get(t, h, "/api/snapshots/1/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var summary struct {
		TotalPostsAnalyzed int     `json:"total_posts_analyzed"`
		AvgEngagementRate  float64 `json:"avg_engagement_rate"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.TotalPostsAnalyzed)
	assert.InDelta(t, 3.0, summary.AvgEngagementRate, 1e-9)

	cached := get(t, h, "/api/snapshots/1/summary")
	assert.Equal(t, rec.Body.String(), cached.Body.String())

	byBrand := get(t, h, "/api/brands/brand-1/summary")
	require.Equal(t, http.StatusOK, byBrand.Code)
	assert.Equal(t, rec.Body.String(), byBrand.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/snapshots/1/flamegraph").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/snapshots/42/summary").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/brands/unknown/summary").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/brands/brand-1").Code)

	schedule := get(t, h, "/api/snapshots/1/schedule")
	require.Equal(t, http.StatusOK, schedule.Code)
	var ws struct {
		Slots []json.RawMessage `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(schedule.Body.Bytes(), &ws))
	assert.Len(t, ws.Slots, 7)

	del := httptest.NewRecorder()
	h.ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/api/snapshots/1", nil))
	assert.Equal(t, http.StatusNoContent, del.Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/snapshots/1").Code)

	del = httptest.NewRecorder()
	h.ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/api/snapshots/1", nil))
	assert.Equal(t, http.StatusNotFound, del.Code)
}

func TestCompareEndpoint(t *testing.T) {
	s, database := newTestServer(t)
	base := seed(t, database, "brand-1", 4, 5, 6, 5, 4, 6)
	target := seed(t, database, "brand-1", 2, 3, 2, 3, 2, 3)
	h := s.Handler()

	rec := get(t, h, "/api/compare?base=1&target=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var got report.Comparison
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, base, got.BaseID)
	assert.Equal(t, target, got.TargetID)
	assert.InDelta(t, -50.0, got.ChangePercent, 1e-9)
	assert.Len(t, got.Days, 7)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/compare?base=1").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/compare?base=1&target=9").Code)
}

func TestIntervalEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := get(t, h, "/api/stats/interval?values=2,4,4,4,5,5,7,9")
	require.Equal(t, http.StatusOK, rec.Code)

	var got SampleSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 8, got.N)
	assert.InDelta(t, 5.0, got.Mean, 1e-9)
	assert.InDelta(t, 2.138, got.StandardDeviation, 1e-3)
	assert.InDelta(t, stats.ConfidenceInterval95([]float64{2, 4, 4, 4, 5, 5, 7, 9}).Lower(), got.ConfidenceInterval.Lower(), 1e-9)
	assert.Equal(t, stats.ConfidenceMedium, got.ConfidenceLevel)

	empty := get(t, h, "/api/stats/interval")
	require.Equal(t, http.StatusOK, empty.Code)
	require.NoError(t, json.Unmarshal(empty.Body.Bytes(), &got))
	assert.Equal(t, 0, got.N)
	assert.Equal(t, stats.Interval{0, 0}, got.ConfidenceInterval)
	assert.Equal(t, stats.ConfidenceLow, got.ConfidenceLevel)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/stats/interval?values=1,two").Code)

	t.Run("non-finite tokens are rejected", func(t *testing.T) {
		for _, values := range []string{"1,NaN,3", "1,Inf", "-inf,2", "1,1e400"} {
			rec := get(t, h, "/api/stats/interval?values="+values)
			assert.Equal(t, http.StatusBadRequest, rec.Code, values)
			assert.Contains(t, rec.Body.String(), `"error"`, values)
		}
	})

	t.Run("huge finite values", func(t *testing.T) {
		rec := get(t, h, "/api/stats/interval?values=1e308,1e308")
		require.Equal(t, http.StatusOK, rec.Code)
		var got SampleSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, 1e308, got.Mean)
		assert.Equal(t, stats.Interval{1e308, 1e308}, got.ConfidenceInterval)

		overflow := get(t, h, "/api/stats/interval?values=1.7e308,-1.7e308")
		assert.Equal(t, http.StatusBadRequest, overflow.Code)
		assert.Contains(t, overflow.Body.String(), "too large")
	})
}

func TestWriteJSONEncodingFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, math.NaN())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "encode response")
}

func TestCorrelationEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stats/correlation", bytes.NewBufferString(body)))
		return rec
	}

	rec := post(`{"x":[1,2,3,4],"y":[2,4,6,8,100]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got correlationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 4, got.N)
	assert.InDelta(t, 1.0, got.R, 1e-9)

	rec = post(`{"x":[1],"y":[1]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 0.0, got.R)

	assert.Equal(t, http.StatusBadRequest, post(`{"x":`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, get(t, h, "/api/stats/correlation").Code)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestParseValues(t *testing.T) {
	values, err := ParseValues(" 1, 2.5 ,-3 ")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, -3}, values)

	values, err = ParseValues("")
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = ParseValues("1,,2")
	assert.Error(t, err)

	_, err = ParseValues("1,NaN")
	assert.ErrorIs(t, err, errNonFinite)
	_, err = ParseValues("+Inf")
	assert.ErrorIs(t, err, errNonFinite)
}
