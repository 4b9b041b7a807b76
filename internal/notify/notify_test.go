package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type capture struct {
	mu     sync.Mutex
	path   string
	bodies []map[string]string
}

func (c *capture) server(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		c.mu.Lock()
		c.path = r.URL.Path
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
}

func TestSlackSender(t *testing.T) {
	var c capture
	srv := c.server(t, http.StatusOK)
	defer srv.Close()

	s := NewSlackSender(srv.URL + "/hook")
	require.NoError(t, s.Send(context.Background(), "Kandel Monitor Report", "line 1\nline 2"))

	require.Len(t, c.bodies, 1)
	assert.Equal(t, "/hook", c.path)
	assert.Equal(t, "*Kandel Monitor Report*\n```\nline 1\nline 2\n```", c.bodies[0]["text"])
	assert.Equal(t, "slack", s.Name())
}

func TestSlackSender_Non2xx(t *testing.T) {
	var c capture
	srv := c.server(t, http.StatusForbidden)
	defer srv.Close()

	err := NewSlackSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 403: nope")
}

func TestTelegramSender(t *testing.T) {
	var c capture
	srv := c.server(t, http.StatusOK)
	defer srv.Close()

	s := NewTelegramSender(srv.URL+"/", "TOKEN", "42")
	require.NoError(t, s.Send(context.Background(), "title", "body"))

	require.Len(t, c.bodies, 1)
	assert.Equal(t, "/botTOKEN/sendMessage", c.path)
	assert.Equal(t, "42", c.bodies[0]["chat_id"])
	assert.Equal(t, "Markdown", c.bodies[0]["parse_mode"])
	assert.True(t, strings.HasPrefix(c.bodies[0]["text"], "*title*\n"))
}

func TestDiscordSender_Truncates(t *testing.T) {
	var c capture
	srv := c.server(t, http.StatusNoContent)
	defer srv.Close()

	long := strings.Repeat("0123456789\n", 500)
	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "t", long))

	require.Len(t, c.bodies, 1)
	content := c.bodies[0]["content"]
	assert.LessOrEqual(t, len(content), 2000)
	assert.Contains(t, content, "... (truncated)")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "aaa\n... (truncated)", truncate("aaa\nbbbbbb", 6))
	assert.Equal(t, "abcde\n... (truncated)", truncate("abcdefgh", 5))
}

type fakeSender struct {
	name  string
	err   error
	mu    sync.Mutex
	count int
}

func (f *fakeSender) Send(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func TestNotifier_EventFilter(t *testing.T) {
	s := &fakeSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{EventExecution, " error "}, discard())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, EventReport, "t", "m"))
	assert.Equal(t, 0, s.sent())

	require.NoError(t, n.Notify(ctx, EventExecution, "t", "m"))
	require.NoError(t, n.Notify(ctx, EventError, "t", "m"))
	assert.Equal(t, 2, s.sent())
}

func TestNotifier_PartialFailure(t *testing.T) {
	boom := errors.New("boom")
	bad := &fakeSender{name: "bad", err: boom}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), EventReport, "t", "m")
	require.Error(t, err)

	var ade *domain.AlertDeliveryError
	require.ErrorAs(t, err, &ade)
	assert.Equal(t, EventReport, ade.Event)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, good.sent())
	assert.Equal(t, []string{"bad", "good"}, n.Senders())
}

type countingLimiter struct {
	calls int
	allow int
	err   error
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	l.calls++
	if l.err != nil {
		return false, l.err
	}
	return l.calls <= l.allow, nil
}

func TestNotifier_ThrottlesErrors(t *testing.T) {
	s := &fakeSender{name: "a"}
	lim := &countingLimiter{allow: 1}
	n := NewNotifier([]Sender{s}, nil, discard()).WithThrottle(Throttle{Limiter: lim, Limit: 1, Window: time.Hour})
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, EventError, "t", "m"))
	require.NoError(t, n.Notify(ctx, EventError, "t", "m"))
	assert.Equal(t, 1, s.sent())

	// Reports are never throttled.
	require.NoError(t, n.Notify(ctx, EventReport, "t", "m"))
	assert.Equal(t, 2, s.sent())
	assert.Equal(t, 2, lim.calls)
}

func TestNotifier_ThrottleFailureDelivers(t *testing.T) {
	s := &fakeSender{name: "a"}
	lim := &countingLimiter{err: errors.New("redis down")}
	n := NewNotifier([]Sender{s}, nil, discard()).WithThrottle(Throttle{Limiter: lim, Limit: 1, Window: time.Hour})

	require.NoError(t, n.Notify(context.Background(), EventError, "t", "m"))
	assert.Equal(t, 1, s.sent())
}

func TestTelegramSender_ErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	err := NewTelegramSender(srv.URL, "SECRET-TOKEN", "1").Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-TOKEN")
	assert.Contains(t, err.Error(), "telegram: send request")
}
