// Package notify delivers monitor alerts to chat webhooks (Slack, Telegram,
// Discord). A Notifier fans one alert out to every configured sender and
// filters by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
)

// Event types emitted by the monitor.
const (
	EventReport    = "report"
	EventExecution = "execution"
	EventError     = "error"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Throttle caps error alerts at Limit per Window through a shared limiter,
// so a flapping RPC does not flood the chat.
type Throttle struct {
	Limiter domain.RateLimiter
	Limit   int
	Window  time.Duration
}

// Notifier implements domain.AlertSink over a set of senders.
type Notifier struct {
	senders  []Sender
	events   map[string]bool
	throttle *Throttle
	logger   *slog.Logger
}

var _ domain.AlertSink = (*Notifier)(nil)

// NewNotifier delivers the listed event types to senders. An empty events
// list lets every type through.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	n := &Notifier{
		senders: senders,
		events:  make(map[string]bool, len(events)),
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			n.events[e] = true
		}
	}
	return n
}

// WithThrottle rate limits error events through t.
func (n *Notifier) WithThrottle(t Throttle) *Notifier {
	n.throttle = &t
	return n
}

// Senders returns the configured sender names in order.
func (n *Notifier) Senders() []string {
	names := make([]string, 0, len(n.senders))
	for _, s := range n.senders {
		names = append(names, s.Name())
	}
	return names
}

// Notify sends the alert to every sender at once. Failures of individual
// senders do not stop the others; they come back together inside an
// AlertDeliveryError.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	log := n.logger.With(slog.String("event", event))
	if len(n.events) > 0 && !n.events[event] {
		log.DebugContext(ctx, "event filtered out")
		return nil
	}
	if !n.admit(ctx, log, event) {
		log.InfoContext(ctx, "alert throttled")
		return nil
	}

	errs := make([]error, len(n.senders))
	var g errgroup.Group
	for i, s := range n.senders {
		g.Go(func() error {
			if err := s.Send(ctx, title, message); err != nil {
				log.ErrorContext(ctx, "sender failed",
					slog.String("sender", s.Name()),
					slog.String("error", err.Error()),
				)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
				return nil
			}
			log.DebugContext(ctx, "alert sent", slog.String("sender", s.Name()))
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return &domain.AlertDeliveryError{Event: event, Err: err}
	}
	return nil
}

// admit applies the error throttle. A failing limiter admits the alert.
func (n *Notifier) admit(ctx context.Context, log *slog.Logger, event string) bool {
	if event != EventError || n.throttle == nil {
		return true
	}
	ok, err := n.throttle.Limiter.Allow(ctx, "notify:"+event, n.throttle.Limit, n.throttle.Window)
	if err != nil {
		log.WarnContext(ctx, "throttle unavailable", slog.String("error", err.Error()))
		return true
	}
	return ok
}
