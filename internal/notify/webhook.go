package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const webhookTimeout = 10 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: webhookTimeout}
}

// postJSON sends payload to target and treats any non-2xx answer as a
// failure, quoting the start of the response body. Transport errors drop the
// URL, which may carry a bot token.
func postJSON(ctx context.Context, client *http.Client, service, target string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", service, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", service, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("%s: send request: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", service, resp.StatusCode, snippet)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// preformatted renders a bold title over a fenced body, which keeps the
// report columns aligned in every chat client we post to. bold is the
// client's strong-emphasis marker.
func preformatted(bold, title, message string, max int) string {
	return bold + title + bold + "\n```\n" + truncate(message, max) + "\n```"
}

// truncate cuts s to at most max bytes on a line boundary when possible.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut + "\n... (truncated)"
}
