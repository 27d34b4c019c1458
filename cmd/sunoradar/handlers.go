package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/time/rate"

	"github.com/wenqiu/sunoradar/internal/config"
	"github.com/wenqiu/sunoradar/internal/scheduler"
	"github.com/wenqiu/sunoradar/internal/store"
	"github.com/wenqiu/sunoradar/pkg/alert"
	"github.com/wenqiu/sunoradar/pkg/bili"
	"github.com/wenqiu/sunoradar/pkg/crawler"
	"github.com/wenqiu/sunoradar/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// Seed the chart table from the static definitions.
	ctx := context.Background()
	for _, ch := range crawler.Charts() {
		meta := store.ChartMeta{
			ID:               ch.ID,
			Name:             ch.Name,
			OrderBy:          string(ch.Order),
			TimeRangeSeconds: ch.TimeRangeSeconds,
			MaxPages:         ch.MaxPages,
		}
		if err := db.EnsureChart(ctx, meta); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func buildCrawler(cfg *config.Config, db store.Store, client *bili.Client) *crawler.Crawler {
	pacer := rate.NewLimiter(rate.Every(cfg.Crawler.ParseRequestInterval()), 1)
	return crawler.New(db, client, pacer, cfg.Crawler.Keywords)
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func runCrawl(chartID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	cr := buildCrawler(cfg, db, bili.New())
	ctx := context.Background()

	if chartID != "" {
		res, err := cr.CrawlChart(ctx, chartID)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s: %d songs (%d/%d pages)\n",
			res.Chart, res.Songs, res.ProcessedPages, res.TotalPages)
		return nil
	}

	summaries, err := cr.CrawlAll(ctx)
	if err != nil {
		return err
	}
	for _, sum := range summaries {
		if sum.Success {
			fmt.Fprintf(os.Stderr, "%s: %d songs\n", sum.Chart, sum.Count)
		} else {
			fmt.Fprintf(os.Stderr, "%s: failed: %s\n", sum.Chart, sum.Error)
		}
	}
	return nil
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	client := bili.New()
	cr := buildCrawler(cfg, db, client)

	srv := server.New(db, client, cr, cfg.Server.CrawlSecret, port)
	return srv.ListenAndServe()
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	client := bili.New()
	cr := buildCrawler(cfg, db, client)
	alertMgr := buildAlertManager(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(cr, alertMgr, cfg.Schedule.ParseCrawlInterval())

	// Start scheduler in background.
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "scheduler error: %v\n", err)
		}
	}()

	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nshutting down...")
	}()

	srv := server.New(db, client, cr, cfg.Server.CrawlSecret, port)
	return srv.ListenAndServe()
}

func runStatus(jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	st, err := db.GetCrawlStatus(ctx)
	if err != nil {
		return err
	}
	charts, err := db.ListCharts(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"status": st, "charts": charts})
	}

	if st == nil {
		fmt.Println("no crawl has run yet (try: sunoradar crawl)")
	} else {
		lastRun := "-"
		if st.LastRunAt != nil {
			lastRun = st.LastRunAt.Format(time.RFC3339)
		}
		fmt.Printf("last run: %s  status: %s  pages: %s\n", lastRun, st.Status, st.ProcessedPages)
		if st.LastErrorMessage != nil {
			fmt.Printf("last error: %s\n", *st.LastErrorMessage)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHART\tORDER\tPAGES\tLAST CRAWLED")
	for _, ch := range charts {
		crawled := "-"
		if ch.LastCrawledAt != nil {
			crawled = ch.LastCrawledAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", ch.ID, ch.OrderBy, ch.MaxPages, crawled)
	}
	return w.Flush()
}
