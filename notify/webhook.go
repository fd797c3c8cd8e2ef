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

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// Payload formats
const (
	FormatDiscord = "discord"
	FormatJSON    = "json"
)

const (
	colorSuccess = 0x2ecc71
	colorFailure = 0xe74c3c
)

// Notifier delivers run summaries.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Option configures a Webhook.
type Option func(*Webhook)

// WithFormat selects the payload format.
func WithFormat(format string) Option {
	return func(w *Webhook) {
		w.format = format
	}
}

// WithUsername sets the display name used by chat webhooks.
func WithUsername(username string) Option {
	return func(w *Webhook) {
		w.username = username
	}
}

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(w *Webhook) {
		w.client.HTTPClient.Timeout = timeout
	}
}

// WithRetries sets how many times a failed delivery is retried.
func WithRetries(retries int) Option {
	return func(w *Webhook) {
		w.client.RetryMax = retries
	}
}

// WithRetryWait bounds the backoff between retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(w *Webhook) {
		w.client.RetryWaitMin = minWait
		w.client.RetryWaitMax = maxWait
	}
}

// Webhook posts events to an HTTP endpoint.
type Webhook struct {
	url      string
	format   string
	username string
	client   *retryablehttp.Client
	logger   zerolog.Logger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(webhookURL string, logger zerolog.Logger, opts ...Option) (*Webhook, error) {
	if webhookURL == "" {
		return nil, ErrWebhookURLRequired
	}

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = 10 * time.Second
	client.RetryMax = 2
	client.RetryWaitMin = time.Second
	client.RetryWaitMax = 5 * time.Second
	client.Logger = leveledLogger{logger: logger}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	w := &Webhook{
		url:      webhookURL,
		format:   FormatDiscord,
		username: "Windscribe Port Manager",
		client:   client,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.format != FormatDiscord && w.format != FormatJSON {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, w.format)
	}
	return w, nil
}

// Notify delivers event. Non-2xx responses and transport errors become a
// *DeliveryError once the retry budget is spent.
func (w *Webhook) Notify(ctx context.Context, event Event) error {
	body, err := w.payload(event)
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("failed to encode payload: %w", err)}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, body)
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("failed to create request: %w", stripURL(err))}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return &DeliveryError{Err: stripURL(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DeliveryError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(msg))),
		}
	}

	w.logger.Info().Str("outcome", string(event.Outcome)).Msg("Notification sent")
	return nil
}

func (w *Webhook) payload(event Event) ([]byte, error) {
	if w.format == FormatJSON {
		return json.Marshal(event)
	}
	return json.Marshal(w.discord(event))
}

func (w *Webhook) discord(event Event) discordMessage {
	var content bytes.Buffer
	embed := discordEmbed{
		Footer: &discordFooter{Text: "run " + event.RunID},
	}
	if !event.FinishedAt.IsZero() {
		embed.Timestamp = event.FinishedAt.UTC().Format(time.RFC3339)
	}

	if event.Outcome == OutcomeSuccess {
		content.WriteString("✅ **Windscribe Port Manager**\n")
		fmt.Fprintf(&content, "Port forwarding updated successfully!\nNew port: **%d**", event.Port)
		embed.Title = "Port sync succeeded"
		embed.Color = colorSuccess
	} else {
		content.WriteString("❌ **Windscribe Port Manager**\n")
		fmt.Fprintf(&content, "Error occurred during %s:\n%s", event.FailedStage.Label(), event.Error)
		embed.Title = "Port sync failed"
		embed.Color = colorFailure
	}

	for _, r := range event.Stages {
		value := string(r.Status)
		switch {
		case r.Error != "":
			value = r.Error
		case r.Detail != "":
			value = r.Detail
		}
		embed.Fields = append(embed.Fields, discordField{
			Name:  r.Marker() + " " + r.Stage.Label(),
			Value: truncate(value, 1024),
		})
	}
	if event.Diagnostic != "" {
		embed.Fields = append(embed.Fields, discordField{Name: "Diagnostics", Value: event.Diagnostic})
	}

	return discordMessage{
		Content:  truncate(content.String(), 2000),
		Username: w.username,
		Embeds:   []discordEmbed{embed},
	}
}

// stripURL removes the request URL from transport errors.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
