package notify

import (
	"context"
	"net/http"
)

// discordMaxContent leaves room for the title and fences inside Discord's
// 2000 character content limit.
const discordMaxContent = 1800

// DiscordSender posts to a Discord webhook. Discord answers 204 on success.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender returns a DiscordSender for webhookURL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: newHTTPClient()}
}

func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, d.client, "discord", d.webhookURL, map[string]string{
		"username": "kandelwatch",
		"content":  preformatted("**", title, message, discordMaxContent),
	})
}

func (d *DiscordSender) Name() string { return "discord" }
