package notify

import (
	"context"
	"net/http"
)

// slackMaxText is kept under Slack's 40k character message limit.
const slackMaxText = 39000

// SlackSender posts to a Slack incoming webhook.
type SlackSender struct {
	webhookURL string
	client     *http.Client
}

// NewSlackSender returns a SlackSender for webhookURL.
func NewSlackSender(webhookURL string) *SlackSender {
	return &SlackSender{webhookURL: webhookURL, client: newHTTPClient()}
}

// Send posts {"text": ...} with the message preformatted.
func (s *SlackSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, s.client, "slack", s.webhookURL, map[string]string{
		"text": preformatted("*", title, message, slackMaxText),
	})
}

func (s *SlackSender) Name() string { return "slack" }
