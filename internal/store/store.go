package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Crawl run states recorded in crawl_metadata.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// Song is a persisted video. Cid is nil until stream-id resolution succeeds
// for it; such a song is listed but not playable yet.
type Song struct {
	Bvid      string  `db:"bvid" json:"bvid"`
	Cid       *string `db:"cid" json:"cid"`
	Title     string  `db:"title" json:"title"`
	Pic       string  `db:"pic" json:"pic"`
	OwnerName string  `db:"owner_name" json:"owner_name"`
	Pubdate   int64   `db:"pubdate" json:"pubdate"`
	TotalView int64   `db:"total_view" json:"total_view"`
}

// RankedSong is a song joined with its chart rank and the view delta between
// its two most recent daily snapshots.
type RankedSong struct {
	Song
	Rank        int   `db:"rank" json:"rank"`
	TrendingVal int64 `db:"trending_val" json:"trending_val"`
}

// ChartMeta describes one configured chart, seeded at startup.
type ChartMeta struct {
	ID               string `db:"id" json:"id"`
	Name             string `db:"name" json:"name"`
	OrderBy          string `db:"order_by" json:"order_by"`
	TimeRangeSeconds int64  `db:"time_range_seconds" json:"time_range_seconds"`
	MaxPages         int    `db:"max_pages" json:"max_pages"`
}

// ChartInfo is a chart row with its last crawl marker.
type ChartInfo struct {
	ChartMeta
	LastCrawledAt *time.Time `db:"last_crawled_at" json:"last_crawled_at"`
}

// CrawlStatus is the singleton most-recent-run row.
type CrawlStatus struct {
	ID               int        `db:"id" json:"id"`
	LastRunAt        *time.Time `db:"last_run_at" json:"last_run_at"`
	Status           string     `db:"status" json:"status"`
	ProcessedPages   string     `db:"processed_pages" json:"processed_pages"`
	LastErrorMessage *string    `db:"last_error_message" json:"last_error_message"`
}

// Store is the persistence interface.
type Store interface {
	UpsertSongs(ctx context.Context, songs []Song) error
	AddDailyStats(ctx context.Context, songs []Song, recordedAt time.Time) error
	ReplaceChartRankings(ctx context.Context, chartID string, bvids []string, crawledAt time.Time) error

	EnsureChart(ctx context.Context, meta ChartMeta) error
	TouchChart(ctx context.Context, chartID string, at time.Time) error
	ListCharts(ctx context.Context) ([]ChartInfo, error)
	ListChartSongs(ctx context.Context, chartID string, limit int) ([]RankedSong, error)

	SetCrawlStatus(ctx context.Context, status, processedPages, errMsg string) error
	GetCrawlStatus(ctx context.Context) (*CrawlStatus, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertSongs writes songs keyed on bvid. An existing row keeps its cid when
// the new one is nil, so a later successful resolution is never undone by a
// failed one.
func (s *SQLiteStore) UpsertSongs(ctx context.Context, songs []Song) error {
	for i := range songs {
		sg := &songs[i]
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO songs (bvid, cid, title, pic, owner_name, pubdate, total_view)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(bvid) DO UPDATE SET
				cid = COALESCE(excluded.cid, songs.cid),
				title = excluded.title,
				pic = excluded.pic,
				owner_name = excluded.owner_name,
				pubdate = excluded.pubdate,
				total_view = excluded.total_view
		`, sg.Bvid, sg.Cid, sg.Title, sg.Pic, sg.OwnerName, sg.Pubdate, sg.TotalView)
		if err != nil {
			return fmt.Errorf("upsert song %s: %w", sg.Bvid, err)
		}
	}
	return nil
}

// AddDailyStats appends one view-count snapshot per song. Rows are never
// updated or deleted; the trending delta reads the latest two per bvid.
func (s *SQLiteStore) AddDailyStats(ctx context.Context, songs []Song, recordedAt time.Time) error {
	for i := range songs {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO daily_stats (bvid, recorded_at, view_count)
			VALUES (?, ?, ?)
		`, songs[i].Bvid, recordedAt.UTC(), songs[i].TotalView)
		if err != nil {
			return fmt.Errorf("add daily stat %s: %w", songs[i].Bvid, err)
		}
	}
	return nil
}

// ReplaceChartRankings swaps a chart's ranking snapshot in one transaction:
// all existing rows for the chart are deleted, then the given bvids are
// inserted with dense 1-based ranks.
func (s *SQLiteStore) ReplaceChartRankings(ctx context.Context, chartID string, bvids []string, crawledAt time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ranking swap %s: %w", chartID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chart_songs WHERE chart_id = ?", chartID); err != nil {
		return fmt.Errorf("clear rankings %s: %w", chartID, err)
	}

	for i, bvid := range bvids {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chart_songs (chart_id, bvid, rank, crawled_at)
			VALUES (?, ?, ?, ?)
		`, chartID, bvid, i+1, crawledAt.UTC())
		if err != nil {
			return fmt.Errorf("insert ranking %s #%d: %w", chartID, i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ranking swap %s: %w", chartID, err)
	}
	return nil
}

// EnsureChart inserts or refreshes a chart definition row, preserving its
// last_crawled_at marker.
func (s *SQLiteStore) EnsureChart(ctx context.Context, meta ChartMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO charts (id, name, order_by, time_range_seconds, max_pages)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			order_by = excluded.order_by,
			time_range_seconds = excluded.time_range_seconds,
			max_pages = excluded.max_pages
	`, meta.ID, meta.Name, meta.OrderBy, meta.TimeRangeSeconds, meta.MaxPages)
	if err != nil {
		return fmt.Errorf("ensure chart %s: %w", meta.ID, err)
	}
	return nil
}

func (s *SQLiteStore) TouchChart(ctx context.Context, chartID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE charts SET last_crawled_at = ? WHERE id = ?", at.UTC(), chartID)
	if err != nil {
		return fmt.Errorf("touch chart %s: %w", chartID, err)
	}
	return nil
}

func (s *SQLiteStore) ListCharts(ctx context.Context) ([]ChartInfo, error) {
	var charts []ChartInfo
	err := s.db.SelectContext(ctx, &charts,
		"SELECT id, name, order_by, time_range_seconds, max_pages, last_crawled_at FROM charts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list charts: %w", err)
	}
	return charts, nil
}

// ListChartSongs returns a chart's ranked songs with metadata. trending_val
// is the spread of the two most recent daily snapshots per bvid (zero when
// only one snapshot exists).
func (s *SQLiteStore) ListChartSongs(ctx context.Context, chartID string, limit int) ([]RankedSong, error) {
	if limit <= 0 {
		limit = 200
	}

	var songs []RankedSong
	err := s.db.SelectContext(ctx, &songs, `
		SELECT s.bvid, s.cid, s.title, s.pic, s.owner_name, s.pubdate, s.total_view,
		       cs.rank,
		       COALESCE((
		           SELECT MAX(d.view_count) - MIN(d.view_count)
		           FROM (
		               SELECT view_count FROM daily_stats
		               WHERE bvid = s.bvid
		               ORDER BY recorded_at DESC LIMIT 2
		           ) d
		       ), 0) AS trending_val
		FROM chart_songs cs
		JOIN songs s ON s.bvid = cs.bvid
		WHERE cs.chart_id = ?
		ORDER BY cs.rank
		LIMIT ?
	`, chartID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chart songs %s: %w", chartID, err)
	}
	return songs, nil
}

// SetCrawlStatus overwrites the singleton run-status row.
func (s *SQLiteStore) SetCrawlStatus(ctx context.Context, status, processedPages, errMsg string) error {
	var lastErr *string
	if errMsg != "" {
		lastErr = &errMsg
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crawl_metadata (id, last_run_at, status, processed_pages, last_error_message)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			status = excluded.status,
			processed_pages = excluded.processed_pages,
			last_error_message = excluded.last_error_message
	`, time.Now().UTC(), status, processedPages, lastErr)
	if err != nil {
		return fmt.Errorf("set crawl status: %w", err)
	}
	return nil
}

// GetCrawlStatus returns the most recent run status, or nil when no crawl
// has ever run.
func (s *SQLiteStore) GetCrawlStatus(ctx context.Context) (*CrawlStatus, error) {
	var st CrawlStatus
	err := s.db.GetContext(ctx, &st, "SELECT * FROM crawl_metadata WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get crawl status: %w", err)
	}
	return &st, nil
}
