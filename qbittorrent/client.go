package qbittorrent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/poll"
	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/stage"
)

// API is the subset of the qBittorrent Web API the client needs.
type API interface {
	LoginCtx(ctx context.Context) error
	GetAppPreferencesCtx(ctx context.Context) (qbittorrent.AppPreferences, error)
	SetPreferencesCtx(ctx context.Context, prefs map[string]interface{}) error
}

// Client wraps the qBittorrent API client
type Client struct {
	api    API
	logger zerolog.Logger
	opts   clientOptions
}

// NewClient creates a new qBittorrent client. No request is made until the
// first call.
func NewClient(url, username, password string, logger zerolog.Logger, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	// Create client with credentials
	api := qbittorrent.NewClient(qbittorrent.Config{
		Host:          url,
		Username:      username,
		Password:      password,
		TLSSkipVerify: !o.verifyCert,
		Timeout:       int(math.Ceil(o.timeout.Seconds())),
	})

	return &Client{
		api:    api,
		logger: logger,
		opts:   o,
	}
}

// NewClientWithAPI creates a client on top of an existing API implementation.
func NewClientWithAPI(api API, logger zerolog.Logger, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{api: api, logger: logger, opts: o}
}

// Login authenticates against the Web UI.
func (c *Client) Login(ctx context.Context) error {
	return c.call(ctx, "login", func(ctx context.Context) error {
		err := c.api.LoginCtx(ctx)
		if errors.Is(err, qbittorrent.ErrBadCredentials) || errors.Is(err, qbittorrent.ErrIPBanned) {
			return poll.Permanent(err)
		}
		return err
	})
}

// ListenPort returns the configured incoming connection port.
func (c *Client) ListenPort(ctx context.Context) (int, error) {
	var port int
	err := c.call(ctx, "get listening port", func(ctx context.Context) error {
		prefs, err := c.api.GetAppPreferencesCtx(ctx)
		if err != nil {
			return err
		}
		port = prefs.ListenPort
		return nil
	})
	return port, err
}

// SetListenPort changes the incoming connection port.
func (c *Client) SetListenPort(ctx context.Context, port int) error {
	return c.call(ctx, "set listening port", func(ctx context.Context) error {
		return c.api.SetPreferencesCtx(ctx, map[string]interface{}{
			"listen_port": port,
		})
	})
}

// Sync makes qBittorrent listen on port. It is a no-op returning a skipped
// result when the port is already set, and otherwise confirms the change by
// reading the preference back.
func (c *Client) Sync(ctx context.Context, port int) (stage.Result, error) {
	c.logger.Info().Msg("Authenticating with qBittorrent")
	if err := c.Login(ctx); err != nil {
		return stage.Failed(stage.QBittorrent, err), err
	}

	current, err := c.ListenPort(ctx)
	if err != nil {
		return stage.Failed(stage.QBittorrent, err), err
	}

	if current == port {
		c.logger.Info().Int("port", port).Msg("qBittorrent already listening on port")
		return stage.Skipped(stage.QBittorrent, fmt.Sprintf("already %d", port)), nil
	}

	c.logger.Info().Int("from", current).Int("to", port).Msg("Updating qBittorrent listening port")
	if err := c.SetListenPort(ctx, port); err != nil {
		return stage.Failed(stage.QBittorrent, err), err
	}

	confirmed, err := c.ListenPort(ctx)
	if err != nil {
		return stage.Failed(stage.QBittorrent, err), err
	}
	if confirmed != port {
		err := &APIError{Op: "confirm listening port", Err: fmt.Errorf("%w: want %d, got %d", ErrPortMismatch, port, confirmed)}
		return stage.Failed(stage.QBittorrent, err), err
	}

	c.logger.Info().Int("port", port).Msg("Successfully set qBittorrent listening port")
	return stage.Success(stage.QBittorrent, fmt.Sprintf("%d -> %d", current, port)), nil
}

// call runs fn with a per-attempt timeout and the configured retry budget.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := poll.Backoff{
		Attempts: c.opts.maxRetries,
		Delay:    c.opts.retryDelay,
		MaxDelay: 10 * time.Second,
		OnRetry: func(attempt uint, err error) {
			c.logger.Warn().Err(err).Str("op", op).Uint("attempt", attempt+1).Msg("qBittorrent request failed")
		},
	}

	err := poll.Retry(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.timeout)
		defer cancel()
		return fn(callCtx)
	})
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	return nil
}
