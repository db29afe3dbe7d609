package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Embed accent colors. Driver halts get the alert color so they stand out
// from routine resolution notices in a busy channel.
const (
	discordColorSettled = 0x57F287 // green
	discordColorAlert   = 0xED4245 // red
)

// DiscordSender delivers settlement notices to a Discord webhook as a single
// embed per notification.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL. It uses
// a default HTTP client with a 10-second timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Color       int                `json:"color"`
	Timestamp   string             `json:"timestamp"`
	Footer      discordEmbedFooter `json:"footer"`
}

type discordEmbedFooter struct {
	Text string `json:"text"`
}

// Send posts the notification to the Discord webhook as an embed. Titles
// signalling a halted driver are rendered with the alert color.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	color := discordColorSettled
	if strings.Contains(strings.ToLower(title), "halt") {
		color = discordColorAlert
	}

	payload := map[string]any{
		"username": "marketd",
		"embeds": []discordEmbed{{
			Title:       title,
			Description: message,
			Color:       color,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Footer:      discordEmbedFooter{Text: "marketd settlement daemon"},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
