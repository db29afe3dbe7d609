package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.titles = append(f.titles, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func TestNotifier_EventFilter(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{EventResolution}, slog.Default())

	require.NoError(t, n.NotifyEvent(context.Background(), EventDriverFatal, "driver halted", "boom"))
	assert.Empty(t, s.titles)

	require.NoError(t, n.NotifyEvent(context.Background(), EventResolution, "Market 0 resolved yes", "done"))
	assert.Equal(t, []string{"Market 0 resolved yes"}, s.titles)

	// Notify bypasses the filter.
	require.NoError(t, n.Notify(context.Background(), "direct", "msg"))
	assert.Len(t, s.titles, 2)
}

func TestNotifier_SenderFailureDoesNotBlockOthers(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("webhook down")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.Default())

	err := n.Notify(context.Background(), "title", "msg")
	require.Error(t, err)
	assert.Equal(t, []string{"title"}, good.titles)
}

func captureDiscordPayload(t *testing.T, title, message string) map[string]any {
	t.Helper()
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	require.NoError(t, sender.Send(context.Background(), title, message))
	return payload
}

func TestDiscordSender_SettlementEmbed(t *testing.T) {
	payload := captureDiscordPayload(t, "Market 3 resolved yes", "pool 100 across 2 positions")

	assert.Equal(t, "marketd", payload["username"])
	embeds := payload["embeds"].([]any)
	require.Len(t, embeds, 1)
	embed := embeds[0].(map[string]any)
	assert.Equal(t, "Market 3 resolved yes", embed["title"])
	assert.Equal(t, "pool 100 across 2 positions", embed["description"])
	assert.Equal(t, float64(discordColorSettled), embed["color"])
}

func TestDiscordSender_AlertColorOnDriverHalt(t *testing.T) {
	payload := captureDiscordPayload(t, "price driver halted", "feed unreachable")

	embed := payload["embeds"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(discordColorAlert), embed["color"])
}

func TestDiscordSender_SurfacesWebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	err := sender.Send(context.Background(), "title", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
