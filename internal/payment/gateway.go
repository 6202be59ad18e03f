// Package payment creates hosted checkout sessions and parses the
// processor's signed webhook notifications.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

var ErrInvalidSignature = errors.New("payment: invalid webhook signature")

// EventCheckoutCompleted is the only event type that completes an order.
const EventCheckoutCompleted = "checkout.session.completed"

type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// ParseWebhook verifies the signature before decoding anything.
	ParseWebhook(payload []byte, header http.Header) (*Event, error)
}

type LineItem struct {
	Name            string
	Quantity        int
	UnitAmountCents int64
	Currency        string
}

type SessionRequest struct {
	// IdempotencyKey is forwarded so retried creations return the same session.
	IdempotencyKey string
	ReferenceID    string
	Email          string
	Locale         string
	SuccessURL     string
	CancelURL      string
	LineItems      []LineItem
	Metadata       map[string]string
}

type Session struct {
	ID  string
	URL string
}

// Event is a verified webhook notification.
type Event struct {
	ID        string
	Type      string
	SessionID string
	Metadata  map[string]string
	Email     string
	// Payload is the full verified body.
	Payload json.RawMessage
}
