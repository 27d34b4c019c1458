package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/wenqiu/sunoradar/internal/store"
	"github.com/wenqiu/sunoradar/pkg/crawler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubStore serves canned chart data.
type stubStore struct {
	charts []store.ChartInfo
	songs  map[string][]store.RankedSong
	status *store.CrawlStatus
}

func (s *stubStore) UpsertSongs(ctx context.Context, songs []store.Song) error { return nil }
func (s *stubStore) AddDailyStats(ctx context.Context, songs []store.Song, at time.Time) error {
	return nil
}
func (s *stubStore) ReplaceChartRankings(ctx context.Context, chartID string, bvids []string, at time.Time) error {
	return nil
}
func (s *stubStore) EnsureChart(ctx context.Context, meta store.ChartMeta) error       { return nil }
func (s *stubStore) TouchChart(ctx context.Context, chartID string, at time.Time) error { return nil }
func (s *stubStore) ListCharts(ctx context.Context) ([]store.ChartInfo, error) {
	return s.charts, nil
}
func (s *stubStore) ListChartSongs(ctx context.Context, chartID string, limit int) ([]store.RankedSong, error) {
	rows := s.songs[chartID]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
func (s *stubStore) SetCrawlStatus(ctx context.Context, status, pages, errMsg string) error {
	return nil
}
func (s *stubStore) GetCrawlStatus(ctx context.Context) (*store.CrawlStatus, error) {
	return s.status, nil
}
func (s *stubStore) Close() error { return nil }

// stubTrigger records what the crawl endpoint asked for.
type stubTrigger struct {
	chartCalls []string
	allCalls   int
	err        error
}

func (t *stubTrigger) CrawlChart(ctx context.Context, chartID string) (*crawler.Result, error) {
	t.chartCalls = append(t.chartCalls, chartID)
	if t.err != nil {
		return nil, t.err
	}
	return &crawler.Result{Chart: chartID, Songs: 3, ProcessedPages: 4, TotalPages: 4}, nil
}

func (t *stubTrigger) CrawlAll(ctx context.Context) ([]crawler.Summary, error) {
	t.allCalls++
	if t.err != nil {
		return nil, t.err
	}
	return []crawler.Summary{{Chart: "daily", Success: true, Count: 3}}, nil
}

func doRequest(t *testing.T, srv *Server, method, target string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealth(t *testing.T) {
	srv := New(&stubStore{}, nil, &stubTrigger{}, "", 0)
	w, body := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", body["status"])
}

func TestListCharts(t *testing.T) {
	st := &stubStore{charts: []store.ChartInfo{
		{ChartMeta: store.ChartMeta{ID: "daily", Name: "Daily Hot", OrderBy: "click", MaxPages: 4}},
		{ChartMeta: store.ChartMeta{ID: "top200", Name: "Top 200", OrderBy: "click", MaxPages: 10}},
	}}
	srv := New(st, nil, &stubTrigger{}, "", 0)

	w, body := doRequest(t, srv, http.MethodGet, "/api/v1/charts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["success"])
	require.EqualValues(t, 2, body["count"])
}

func TestChartSongs(t *testing.T) {
	cid := "12345"
	st := &stubStore{songs: map[string][]store.RankedSong{
		"daily": {
			{Song: store.Song{Bvid: "BVa", Cid: &cid, Title: "one", TotalView: 100}, Rank: 1, TrendingVal: 50},
			{Song: store.Song{Bvid: "BVb", Title: "two", TotalView: 90}, Rank: 2},
		},
	}}
	srv := New(st, nil, &stubTrigger{}, "", 0)

	w, body := doRequest(t, srv, http.MethodGet, "/api/v1/charts/daily/songs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "daily", body["chart"])
	require.EqualValues(t, 2, body["count"])

	songs := body["songs"].([]any)
	first := songs[0].(map[string]any)
	require.Equal(t, "BVa", first["bvid"])
	require.EqualValues(t, 1, first["rank"])
	require.EqualValues(t, 50, first["trending_val"])

	second := songs[1].(map[string]any)
	require.Nil(t, second["cid"])
}

func TestChartSongsUnknownChart(t *testing.T) {
	srv := New(&stubStore{}, nil, &stubTrigger{}, "", 0)
	w, body := doRequest(t, srv, http.MethodGet, "/api/v1/charts/bogus/songs", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, false, body["success"])
}

func TestStatusBeforeFirstCrawl(t *testing.T) {
	srv := New(&stubStore{}, nil, &stubTrigger{}, "", 0)
	w, body := doRequest(t, srv, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["success"])
	require.Nil(t, body["status"])
}

func TestCrawlRequiresSecret(t *testing.T) {
	trigger := &stubTrigger{}
	srv := New(&stubStore{}, nil, trigger, "hunter2", 0)

	w, _ := doRequest(t, srv, http.MethodPost, "/api/v1/crawl", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doRequest(t, srv, http.MethodPost, "/api/v1/crawl", map[string]string{
		"Authorization": "Bearer wrong",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Zero(t, trigger.allCalls)

	w, body := doRequest(t, srv, http.MethodPost, "/api/v1/crawl", map[string]string{
		"Authorization": "Bearer hunter2",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["success"])
	require.Equal(t, 1, trigger.allCalls)
}

func TestCrawlOpenWithoutSecret(t *testing.T) {
	trigger := &stubTrigger{}
	srv := New(&stubStore{}, nil, trigger, "", 0)

	w, _ := doRequest(t, srv, http.MethodPost, "/api/v1/crawl", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, trigger.allCalls)
}

func TestCrawlSingleChart(t *testing.T) {
	trigger := &stubTrigger{}
	srv := New(&stubStore{}, nil, trigger, "", 0)

	w, _ := doRequest(t, srv, http.MethodPost, "/api/v1/crawl?chart=daily", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"daily"}, trigger.chartCalls)
	require.Zero(t, trigger.allCalls)
}

func TestCrawlFailureSurfaces(t *testing.T) {
	trigger := &stubTrigger{err: fmt.Errorf(`unknown chart "bogus"`)}
	srv := New(&stubStore{}, nil, trigger, "", 0)

	w, body := doRequest(t, srv, http.MethodPost, "/api/v1/crawl?chart=bogus", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, false, body["success"])
	require.Contains(t, body["message"], "unknown chart")
}
