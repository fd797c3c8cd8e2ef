package notify

import (
	"errors"
	"fmt"
)

var (
	// ErrWebhookURLRequired is returned when a webhook is built without a URL.
	ErrWebhookURLRequired = errors.New("webhook URL is required")
	// ErrUnknownFormat is returned for an unsupported payload format.
	ErrUnknownFormat = errors.New("unknown notification format")
)

// DeliveryError is returned when the webhook could not be delivered. It never
// carries the webhook URL, which embeds a token.
type DeliveryError struct {
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("notification delivery failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("notification delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
