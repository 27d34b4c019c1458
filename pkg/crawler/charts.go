package crawler

// Order is a platform search sort.
type Order string

const (
	OrderClick     Order = "click"   // play count
	OrderPubdate   Order = "pubdate" // newest first
	OrderDanmaku   Order = "dm"      // comment (danmaku) count
	OrderFavorites Order = "stow"    // favorite count
)

// ChartConfig defines one chart: how its searches are ordered, how far back
// results may reach, and how many pages to crawl. Immutable.
type ChartConfig struct {
	ID               string
	Name             string
	Order            Order
	TimeRangeSeconds int64 // 0 = unbounded
	MaxPages         int
}

const (
	day   = 86400
	week  = 7 * day
	month = 30 * day
)

// charts is the fixed chart table, in crawl order.
var charts = []ChartConfig{
	{ID: "top200", Name: "Top 200", Order: OrderClick, TimeRangeSeconds: 0, MaxPages: 10},
	{ID: "daily", Name: "Daily Hot", Order: OrderClick, TimeRangeSeconds: day, MaxPages: 4},
	{ID: "weekly", Name: "Weekly Hot", Order: OrderClick, TimeRangeSeconds: week, MaxPages: 6},
	{ID: "new", Name: "New Releases", Order: OrderPubdate, TimeRangeSeconds: week, MaxPages: 4},
	{ID: "comments", Name: "Most Commented", Order: OrderDanmaku, TimeRangeSeconds: month, MaxPages: 4},
	{ID: "favorites", Name: "Most Favorited", Order: OrderFavorites, TimeRangeSeconds: month, MaxPages: 4},
}

// Charts returns all chart definitions in crawl order.
func Charts() []ChartConfig {
	out := make([]ChartConfig, len(charts))
	copy(out, charts)
	return out
}

// ChartByID looks up a chart definition.
func ChartByID(id string) (ChartConfig, bool) {
	for _, c := range charts {
		if c.ID == id {
			return c, true
		}
	}
	return ChartConfig{}, false
}

// DefaultKeywords are the search shards combined per page: a broad term and
// a version-qualified one.
func DefaultKeywords() []string {
	return []string{"suno", "SUNO V5"}
}
