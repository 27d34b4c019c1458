package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChartTable(t *testing.T) {
	all := Charts()
	require.Len(t, all, 6)

	ids := make([]string, 0, len(all))
	for _, c := range all {
		ids = append(ids, c.ID)
		require.NotEmpty(t, c.Name, c.ID)
		require.Positive(t, c.MaxPages, c.ID)
	}
	require.Equal(t, []string{"top200", "daily", "weekly", "new", "comments", "favorites"}, ids)

	top, ok := ChartByID("top200")
	require.True(t, ok)
	require.Equal(t, OrderClick, top.Order)
	require.Zero(t, top.TimeRangeSeconds)
	require.Equal(t, 10, top.MaxPages)

	daily, _ := ChartByID("daily")
	require.Equal(t, int64(86400), daily.TimeRangeSeconds)

	newest, _ := ChartByID("new")
	require.Equal(t, OrderPubdate, newest.Order)
	require.Equal(t, int64(7*86400), newest.TimeRangeSeconds)

	comments, _ := ChartByID("comments")
	require.Equal(t, OrderDanmaku, comments.Order)

	favorites, _ := ChartByID("favorites")
	require.Equal(t, OrderFavorites, favorites.Order)

	_, ok = ChartByID("bogus")
	require.False(t, ok)
}

func TestChartsReturnsCopy(t *testing.T) {
	a := Charts()
	a[0].MaxPages = 999

	b := Charts()
	require.Equal(t, 10, b[0].MaxPages)
}

func TestDefaultKeywords(t *testing.T) {
	require.Equal(t, []string{"suno", "SUNO V5"}, DefaultKeywords())
}
