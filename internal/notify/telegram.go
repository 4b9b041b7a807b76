package notify

import (
	"context"
	"net/http"
	"strings"
)

const (
	telegramAPI = "https://api.telegram.org"
	// telegramMaxText stays under the 4096 character sendMessage limit.
	telegramMaxText = 3900
)

// TelegramSender sends through the Bot API sendMessage method.
type TelegramSender struct {
	endpoint string
	chatID   string
	client   *http.Client
}

// NewTelegramSender returns a sender for chatID. An empty baseURL targets the
// public Bot API.
func NewTelegramSender(baseURL, token, chatID string) *TelegramSender {
	if baseURL == "" {
		baseURL = telegramAPI
	}
	return &TelegramSender{
		endpoint: strings.TrimRight(baseURL, "/") + "/bot" + token + "/sendMessage",
		chatID:   chatID,
		client:   newHTTPClient(),
	}
}

func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, t.client, "telegram", t.endpoint, map[string]string{
		"chat_id":    t.chatID,
		"parse_mode": "Markdown",
		"text":       preformatted("*", title, message, telegramMaxText),
	})
}

func (t *TelegramSender) Name() string { return "telegram" }
