package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotConfigured is returned when no gateway API key is set.
var ErrNotConfigured = errors.New("gateway API key is not configured")

const (
	MessageRateLimited     = "Rate limit exceeded. Please try again later."
	MessagePaymentRequired = "Payment required. Please add credits to your workspace."
	MessageUpstreamFailed  = "Failed to get response from AI"
)

// GatewayError is a non-2xx response from the completion gateway.
type GatewayError struct {
	Status  int
	Message string
	Details string // Upstream response body, truncated
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

// RateLimited reports whether the gateway asked the caller to back off.
func (e *GatewayError) RateLimited() bool { return e.Status == http.StatusTooManyRequests }

// PaymentRequired reports whether the workspace ran out of credits.
func (e *GatewayError) PaymentRequired() bool { return e.Status == http.StatusPaymentRequired }

func newGatewayError(status int, details string) *GatewayError {
	msg := MessageUpstreamFailed
	switch status {
	case http.StatusTooManyRequests:
		msg = MessageRateLimited
	case http.StatusPaymentRequired:
		msg = MessagePaymentRequired
	}
	return &GatewayError{Status: status, Message: msg, Details: details}
}
