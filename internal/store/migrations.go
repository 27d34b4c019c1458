package store

const schema = `
CREATE TABLE IF NOT EXISTS songs (
    bvid       TEXT PRIMARY KEY,
    cid        TEXT,
    title      TEXT NOT NULL,
    pic        TEXT NOT NULL DEFAULT '',
    owner_name TEXT NOT NULL DEFAULT '',
    pubdate    INTEGER NOT NULL DEFAULT 0,
    total_view INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_songs_pubdate ON songs(pubdate);
CREATE INDEX IF NOT EXISTS idx_songs_total_view ON songs(total_view);

CREATE TABLE IF NOT EXISTS daily_stats (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    bvid        TEXT NOT NULL REFERENCES songs(bvid),
    recorded_at DATETIME NOT NULL,
    view_count  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_daily_stats_bvid ON daily_stats(bvid);
CREATE INDEX IF NOT EXISTS idx_daily_stats_recorded ON daily_stats(recorded_at);

CREATE TABLE IF NOT EXISTS charts (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL,
    order_by           TEXT NOT NULL,
    time_range_seconds INTEGER NOT NULL DEFAULT 0,
    max_pages          INTEGER NOT NULL DEFAULT 1,
    last_crawled_at    DATETIME
);

CREATE TABLE IF NOT EXISTS chart_songs (
    chart_id   TEXT NOT NULL REFERENCES charts(id),
    bvid       TEXT NOT NULL,
    rank       INTEGER NOT NULL,
    crawled_at DATETIME NOT NULL,
    PRIMARY KEY (chart_id, bvid)
);

CREATE INDEX IF NOT EXISTS idx_chart_songs_rank ON chart_songs(chart_id, rank);

CREATE TABLE IF NOT EXISTS crawl_metadata (
    id                 INTEGER PRIMARY KEY,
    last_run_at        DATETIME,
    status             TEXT,
    processed_pages    TEXT,
    last_error_message TEXT
);
`
