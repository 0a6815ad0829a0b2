// Package notify is the outbound notification boundary. The dispatcher only
// sees the Notifier interface; the concrete implementation talks to the
// Messenger Send API.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Notifier delivers a text message to a user.
type Notifier interface {
	Send(ctx context.Context, userID, text string) error
}

// SendError is a delivery failure with an explicit retryability verdict.
// Timeouts, rate limits and server errors are worth retrying on a later
// sweep; an invalid recipient never is.
type SendError struct {
	StatusCode int
	Retryable  bool
	Message    string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// retryableStatus lists the HTTP statuses treated as transient.
var retryableStatus = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// IsRetryable reports whether a delivery error is worth retrying. Errors
// that never reached the API (DNS, timeout, connection reset) carry no
// verdict and are treated as transient.
func IsRetryable(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return true
}
