package crawler

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/wenqiu/sunoradar/internal/store"
	"github.com/wenqiu/sunoradar/pkg/bili"
)

// durationShort filters search to videos under 10 minutes; the target
// content is short AI-generated songs.
const durationShort = 1

// defaultMaxRank bounds a chart's ranking snapshot.
const defaultMaxRank = 200

// Platform is the slice of the platform client the crawler needs.
type Platform interface {
	SearchVideos(ctx context.Context, opts bili.SearchOpts) (*bili.SearchResult, error)
	ResolveStreamID(ctx context.Context, bvid string) (string, error)
}

// Crawler converts chart definitions into ranked snapshots persisted to the
// store. Every upstream call waits on the pacer first; the whole pipeline is
// sequential by design, as the platform throttles bursty callers hard.
type Crawler struct {
	store    store.Store
	platform Platform
	pacer    *rate.Limiter
	keywords []string
	maxRank  int
	now      func() time.Time
}

// New creates a crawler. A nil pacer gets the default cadence of one
// upstream call per 1.5s; empty keywords get the default shard set.
func New(s store.Store, platform Platform, pacer *rate.Limiter, keywords []string) *Crawler {
	if pacer == nil {
		pacer = rate.NewLimiter(rate.Every(1500*time.Millisecond), 1)
	}
	if len(keywords) == 0 {
		keywords = DefaultKeywords()
	}
	return &Crawler{
		store:    s,
		platform: platform,
		pacer:    pacer,
		keywords: keywords,
		maxRank:  defaultMaxRank,
		now:      time.Now,
	}
}

// Summary is the per-chart outcome of a crawl batch.
type Summary struct {
	Chart   string `json:"chart"`
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// Result reports one successful chart crawl.
type Result struct {
	Chart          string `json:"chart"`
	Songs          int    `json:"songs"`
	ProcessedPages int    `json:"processed_pages"`
	TotalPages     int    `json:"total_pages"`
}

// CrawlAll crawls every configured chart in order. One chart's failure does
// not stop the rest; the summary carries per-chart outcomes.
func (c *Crawler) CrawlAll(ctx context.Context) ([]Summary, error) {
	var summaries []Summary
	for i, cfg := range Charts() {
		if i > 0 {
			// Inter-chart spacing rides the same pacer as every other
			// upstream call.
			if err := c.pacer.Wait(ctx); err != nil {
				return summaries, err
			}
		}

		res, err := c.CrawlChart(ctx, cfg.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "chart %s failed: %v\n", cfg.ID, err)
			summaries = append(summaries, Summary{Chart: cfg.ID, Error: err.Error()})
			continue
		}
		summaries = append(summaries, Summary{Chart: cfg.ID, Success: true, Count: res.Songs})
	}
	return summaries, nil
}

// CrawlChart crawls one chart end to end: paced keyword-sharded paginated
// searches, merge, rank, cid resolution, and a transactional snapshot commit.
func (c *Crawler) CrawlChart(ctx context.Context, chartID string) (*Result, error) {
	cfg, ok := ChartByID(chartID)
	if !ok {
		return nil, fmt.Errorf("unknown chart %q", chartID)
	}

	if err := c.store.SetCrawlStatus(ctx, store.StatusRunning, fmt.Sprintf("0/%d", cfg.MaxPages), ""); err != nil {
		return nil, err
	}

	merged, processed, lastErr, err := c.collectPages(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if processed == 0 {
		if lastErr == "" {
			lastErr = "no results"
		}
		// No partial commit: only the status row records the failed run.
		_ = c.store.SetCrawlStatus(ctx, store.StatusFail, fmt.Sprintf("0/%d", cfg.MaxPages), lastErr)
		return nil, fmt.Errorf("chart %s: all %d pages failed: %s", cfg.ID, cfg.MaxPages, lastErr)
	}

	items := c.rankItems(merged, cfg)

	songs, err := c.resolveSongs(ctx, cfg.ID, items)
	if err != nil {
		return nil, err
	}

	if err := c.commit(ctx, cfg, songs); err != nil {
		_ = c.store.SetCrawlStatus(ctx, store.StatusFail, fmt.Sprintf("%d/%d", processed, cfg.MaxPages), err.Error())
		return nil, err
	}

	if err := c.store.SetCrawlStatus(ctx, store.StatusSuccess, fmt.Sprintf("%d/%d", processed, cfg.MaxPages), ""); err != nil {
		return nil, err
	}

	return &Result{
		Chart:          cfg.ID,
		Songs:          len(songs),
		ProcessedPages: processed,
		TotalPages:     cfg.MaxPages,
	}, nil
}

// collectPages walks pages sequentially, merging keyword shards per page and
// deduplicating by bvid within each page. A keyword failure skips that
// keyword; a page where every keyword failed is skipped and counted.
func (c *Crawler) collectPages(ctx context.Context, cfg ChartConfig) (merged []bili.VideoItem, processed int, lastErr string, err error) {
	for page := 1; page <= cfg.MaxPages; page++ {
		seen := make(map[string]bool)
		var pageItems []bili.VideoItem
		okKeywords := 0

		for _, kw := range c.keywords {
			if err := c.pacer.Wait(ctx); err != nil {
				return nil, 0, "", err
			}

			res, err := c.platform.SearchVideos(ctx, bili.SearchOpts{
				Keyword:  kw,
				Page:     page,
				Order:    string(cfg.Order),
				Duration: durationShort,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "  %s page %d keyword %q: %v\n", cfg.ID, page, kw, err)
				lastErr = err.Error()
				continue
			}
			okKeywords++

			for _, it := range res.Results {
				if it.Bvid == "" || seen[it.Bvid] {
					continue
				}
				seen[it.Bvid] = true
				pageItems = append(pageItems, it)
			}
		}

		if okKeywords == 0 {
			continue
		}
		processed++
		merged = append(merged, pageItems...)
	}
	return merged, processed, lastErr, nil
}

// rankItems sorts by the chart's metric, deduplicates across pages (first
// occurrence in sorted order wins), filters to the chart's publish window,
// and truncates to the rank bound.
func (c *Crawler) rankItems(merged []bili.VideoItem, cfg ChartConfig) []bili.VideoItem {
	sort.SliceStable(merged, func(i, j int) bool {
		return metric(merged[i], cfg.Order) > metric(merged[j], cfg.Order)
	})

	seen := make(map[string]bool, len(merged))
	items := merged[:0]
	for _, it := range merged {
		if seen[it.Bvid] {
			continue
		}
		seen[it.Bvid] = true
		items = append(items, it)
	}

	if cfg.TimeRangeSeconds > 0 {
		cutoff := c.now().Unix() - cfg.TimeRangeSeconds
		kept := items[:0]
		for _, it := range items {
			if it.Pubdate >= cutoff {
				kept = append(kept, it)
			}
		}
		items = kept
	}

	if len(items) > c.maxRank {
		items = items[:c.maxRank]
	}
	return items
}

// resolveSongs turns ranked items into store rows, resolving each one's cid.
// A failed resolution leaves the cid nil and never aborts the crawl.
func (c *Crawler) resolveSongs(ctx context.Context, chartID string, items []bili.VideoItem) ([]store.Song, error) {
	songs := make([]store.Song, 0, len(items))
	for _, it := range items {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		var cid *string
		if id, err := c.platform.ResolveStreamID(ctx, it.Bvid); err != nil {
			fmt.Fprintf(os.Stderr, "  %s: cid for %s: %v\n", chartID, it.Bvid, err)
		} else {
			cid = &id
		}

		songs = append(songs, store.Song{
			Bvid:      it.Bvid,
			Cid:       cid,
			Title:     bili.CleanTitle(it.Title),
			Pic:       bili.NormalizePic(it.Pic),
			OwnerName: it.Author,
			Pubdate:   it.Pubdate,
			TotalView: it.Play,
		})
	}
	return songs, nil
}

func (c *Crawler) commit(ctx context.Context, cfg ChartConfig, songs []store.Song) error {
	now := c.now()

	if err := c.store.UpsertSongs(ctx, songs); err != nil {
		return fmt.Errorf("chart %s: %w", cfg.ID, err)
	}
	if err := c.store.AddDailyStats(ctx, songs, now); err != nil {
		return fmt.Errorf("chart %s: %w", cfg.ID, err)
	}

	bvids := make([]string, len(songs))
	for i := range songs {
		bvids[i] = songs[i].Bvid
	}
	if err := c.store.ReplaceChartRankings(ctx, cfg.ID, bvids, now); err != nil {
		return fmt.Errorf("chart %s: %w", cfg.ID, err)
	}
	if err := c.store.TouchChart(ctx, cfg.ID, now); err != nil {
		return fmt.Errorf("chart %s: %w", cfg.ID, err)
	}
	return nil
}

// metric picks the sort key matching a chart order.
func metric(it bili.VideoItem, order Order) int64 {
	switch order {
	case OrderPubdate:
		return it.Pubdate
	case OrderDanmaku:
		return it.Danmaku
	case OrderFavorites:
		return it.Favorites
	default:
		return it.Play
	}
}
