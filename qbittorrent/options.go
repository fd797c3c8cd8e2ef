package qbittorrent

import "time"

// Option configures a Client.
type Option func(*clientOptions)

// clientOptions holds configuration options for the Client.
type clientOptions struct {
	timeout    time.Duration
	maxRetries uint
	retryDelay time.Duration
	verifyCert bool
}

func defaultOptions() clientOptions {
	return clientOptions{
		timeout:    10 * time.Second,
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
		verifyCert: true,
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithMaxRetries sets the maximum number of attempts per request.
func WithMaxRetries(retries uint) Option {
	return func(o *clientOptions) {
		if retries > 0 {
			o.maxRetries = retries
		}
	}
}

// WithRetryDelay sets the initial delay between attempts; it doubles after
// each failure.
func WithRetryDelay(delay time.Duration) Option {
	return func(o *clientOptions) {
		o.retryDelay = delay
	}
}

// WithInsecureSkipVerify disables certificate verification.
// Use with caution and only for self-signed Web UI certificates.
func WithInsecureSkipVerify() Option {
	return func(o *clientOptions) {
		o.verifyCert = false
	}
}
