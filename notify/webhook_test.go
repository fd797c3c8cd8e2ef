package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/stage"
)

func successEvent() Event {
	return Event{
		RunID:      "run-1",
		Outcome:    OutcomeSuccess,
		Port:       54321,
		FinalState: "DONE",
		Stages: []stage.Result{
			stage.Success(stage.Authentication, ""),
			stage.Success(stage.PortRequest, "54321"),
			stage.Skipped(stage.QBittorrent, "already 54321"),
		},
		FinishedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func failureEvent() Event {
	return Event{
		RunID:       "run-2",
		Outcome:     OutcomeFailure,
		FinalState:  "FAILED",
		FailedStage: stage.Authentication,
		Error:       "anti-bot challenge not cleared within 1m0s",
		Stages: []stage.Result{
			stage.Failed(stage.Authentication, errors.New("anti-bot challenge not cleared within 1m0s")),
		},
		Diagnostic: "img/windscribe_20260102_030405.png",
	}
}

func fastOptions(opts ...Option) []Option {
	return append([]Option{WithRetries(2), WithRetryWait(time.Millisecond, 2*time.Millisecond)}, opts...)
}

func TestWebhook_DiscordPayload(t *testing.T) {
	var got discordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	hook, err := NewWebhook(server.URL, zerolog.Nop(), fastOptions()...)
	require.NoError(t, err)

	require.NoError(t, hook.Notify(context.Background(), successEvent()))

	assert.Equal(t, "Windscribe Port Manager", got.Username)
	assert.Contains(t, got.Content, "✅")
	assert.Contains(t, got.Content, "**54321**")
	require.Len(t, got.Embeds, 1)
	embed := got.Embeds[0]
	assert.Equal(t, colorSuccess, embed.Color)
	assert.Equal(t, "2026-01-02T03:04:05Z", embed.Timestamp)
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "✅ portal login", embed.Fields[0].Name)
	assert.Equal(t, "➖ update qbittorrent port", embed.Fields[2].Name)
	assert.Equal(t, "already 54321", embed.Fields[2].Value)
}

func TestWebhook_DiscordFailure(t *testing.T) {
	var got discordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	hook, err := NewWebhook(server.URL, zerolog.Nop(), fastOptions()...)
	require.NoError(t, err)
	require.NoError(t, hook.Notify(context.Background(), failureEvent()))

	assert.Contains(t, got.Content, "❌")
	assert.Contains(t, got.Content, "portal login")
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, colorFailure, got.Embeds[0].Color)
	require.Len(t, got.Embeds[0].Fields, 2)
	assert.Equal(t, "❌ portal login", got.Embeds[0].Fields[0].Name)
	assert.Equal(t, "Diagnostics", got.Embeds[0].Fields[1].Name)
}

func TestWebhook_JSONFormat(t *testing.T) {
	var got Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	hook, err := NewWebhook(server.URL, zerolog.Nop(), fastOptions(WithFormat(FormatJSON))...)
	require.NoError(t, err)
	require.NoError(t, hook.Notify(context.Background(), failureEvent()))

	assert.Equal(t, "run-2", got.RunID)
	assert.Equal(t, OutcomeFailure, got.Outcome)
	assert.Equal(t, stage.Authentication, got.FailedStage)
	require.Len(t, got.Stages, 1)
	assert.Equal(t, stage.StatusFailed, got.Stages[0].Status)
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	hook, err := NewWebhook(server.URL, zerolog.Nop(), fastOptions()...)
	require.NoError(t, err)

	require.NoError(t, hook.Notify(context.Background(), successEvent()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhook_DeliveryError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "bad token")
	}))
	defer server.Close()

	hook, err := NewWebhook(server.URL+"/api/webhooks/1/secret-token", zerolog.Nop(), fastOptions()...)
	require.NoError(t, err)

	err = hook.Notify(context.Background(), successEvent())
	require.Error(t, err)

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	// 4xx is not retried
	assert.Equal(t, int32(1), calls.Load())
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestWebhook_TransportErrorHidesURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := server.URL + "/api/webhooks/1/secret-token"
	server.Close()

	hook, err := NewWebhook(target, zerolog.Nop(), fastOptions(WithRetries(0))...)
	require.NoError(t, err)

	err = hook.Notify(context.Background(), successEvent())
	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Zero(t, derr.StatusCode)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestNewWebhook_Validation(t *testing.T) {
	_, err := NewWebhook("", zerolog.Nop())
	assert.ErrorIs(t, err, ErrWebhookURLRequired)

	_, err = NewWebhook("http://example.invalid", zerolog.Nop(), WithFormat("xml"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Notify(context.Background(), successEvent()))
}

func TestLeveledLoggerFields(t *testing.T) {
	got := fields([]interface{}{
		"url", "https://discord.com/api/webhooks/1/secret-token",
		"request", "POST https://discord.com/api/webhooks/1/secret-token",
		"retries", 2,
		"error", &url.Error{Op: "Post", URL: "https://discord.com/api/webhooks/1/secret-token", Err: errors.New("connection refused")},
	})

	assert.Equal(t, map[string]interface{}{
		"retries": 2,
		"error":   "Post: connection refused",
	}, got)
}
