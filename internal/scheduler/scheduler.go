package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wenqiu/sunoradar/pkg/alert"
	"github.com/wenqiu/sunoradar/pkg/crawler"
)

// Scheduler runs the full chart crawl on a fixed interval.
type Scheduler struct {
	crawler  *crawler.Crawler
	alertMgr *alert.Manager
	interval time.Duration
}

// New creates a new scheduler.
func New(c *crawler.Crawler, alertMgr *alert.Manager, interval time.Duration) *Scheduler {
	if interval == 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{
		crawler:  c,
		alertMgr: alertMgr,
		interval: interval,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start.
	fmt.Fprintln(os.Stderr, "scheduler: initial crawl...")
	s.crawlAll(ctx)

	fmt.Fprintf(os.Stderr, "scheduler: running (crawl every %s)\n", s.interval)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			fmt.Fprintln(os.Stderr, "scheduler: crawling...")
			s.crawlAll(ctx)
		}
	}
}

func (s *Scheduler) crawlAll(ctx context.Context) {
	summaries, err := s.crawler.CrawlAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  crawl error: %v\n", err)
		return
	}

	total := 0
	for _, sum := range summaries {
		if sum.Success {
			fmt.Fprintf(os.Stderr, "  %s: %d songs\n", sum.Chart, sum.Count)
			total += sum.Count
			continue
		}

		fmt.Fprintf(os.Stderr, "  %s: failed: %s\n", sum.Chart, sum.Error)
		if !s.alertMgr.HasNotifiers() {
			continue
		}
		n := &alert.Notification{
			Title:  fmt.Sprintf("Chart crawl failed: %s", sum.Chart),
			Chart:  sum.Chart,
			Status: "fail",
			Error:  sum.Error,
		}
		if err := s.alertMgr.Broadcast(ctx, n); err != nil {
			fmt.Fprintf(os.Stderr, "  alert error for %s: %v\n", sum.Chart, err)
		}
	}
	fmt.Fprintf(os.Stderr, "  total: %d songs across %d charts\n", total, len(summaries))
}
