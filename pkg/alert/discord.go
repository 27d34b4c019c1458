package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	color := 0x2ecc71 // green
	if n.Status == "fail" {
		color = 0xe74c3c // red
	}

	fields := []map[string]any{
		{"name": "Chart", "value": n.Chart, "inline": true},
		{"name": "Status", "value": n.Status, "inline": true},
		{"name": "Songs", "value": fmt.Sprintf("%d", n.Songs), "inline": true},
	}
	if n.Error != "" {
		fields = append(fields, map[string]any{"name": "Error", "value": n.Error})
	}

	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       n.Title,
				"description": n.Body,
				"color":       color,
				"fields":      fields,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}

	return nil
}
