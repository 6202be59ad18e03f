package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/wiredberlin/boxoffice/internal/domain"
	"github.com/wiredberlin/boxoffice/internal/metrics"
	"github.com/wiredberlin/boxoffice/internal/payment"
	"github.com/wiredberlin/boxoffice/internal/pretix"
	"github.com/wiredberlin/boxoffice/internal/service/orders"
)

type Orders interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.TicketOrder, error)
	Complete(ctx context.Context, id uuid.UUID, email string, metadata json.RawMessage) (bool, error)
}

// Outcome describes what a verified notification did.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeAlreadyCompleted Outcome = "already_completed"
	OutcomeUnknownOrder     Outcome = "unknown_order"
	OutcomeIgnored          Outcome = "ignored"
)

type Service struct {
	gateway  payment.Gateway
	orders   Orders
	platform pretix.Platform
	logger   *slog.Logger
}

func New(gateway payment.Gateway, orders Orders, platform pretix.Platform, logger *slog.Logger) *Service {
	return &Service{gateway: gateway, orders: orders, platform: platform, logger: logger}
}

// HandleWebhook completes the order referenced by a verified
// checkout-completed notification. Redelivery of the same notification
// results in a single transition.
//
// Parameters:
//   - ctx: request-scoped context.
//   - payload: raw request body, unparsed.
//   - header: request headers carrying the processor signature.
//
// Returns:
//   - Outcome: what the notification did; every outcome is acknowledged.
//   - error: payments.ErrInvalidSignature if verification fails.
//   - error: payments.ErrUpstream if the ticketing platform could not be
//     updated, so the processor retries.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, header http.Header) (Outcome, error) {
	const op = "service.payments.HandleWebhook"

	out, err := s.handle(ctx, payload, header)
	switch {
	case errors.Is(err, ErrInvalidSignature):
		metrics.Webhook("payment", "invalid_signature")
	case err != nil:
		metrics.Webhook("payment", "error")
	default:
		metrics.Webhook("payment", string(out))
	}

	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (s *Service) handle(ctx context.Context, payload []byte, header http.Header) (Outcome, error) {
	ev, err := s.gateway.ParseWebhook(payload, header)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}

		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if ev.Type != payment.EventCheckoutCompleted {
		return OutcomeIgnored, nil
	}

	orderID, err := uuid.Parse(ev.Metadata["orderId"])
	if err != nil {
		s.logger.Warn("payment notification without order", "event_id", ev.ID, "session_id", ev.SessionID)
		return OutcomeUnknownOrder, nil
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			s.logger.Warn("payment notification for unknown order", "order_id", orderID, "session_id", ev.SessionID)
			return OutcomeUnknownOrder, nil
		}

		return "", err
	}

	if o.Status == domain.OrderCompleted {
		return OutcomeAlreadyCompleted, nil
	}

	if code := o.UpstreamOrderCode; code != "" && o.UpstreamEvent != "" {
		if err := s.platform.MarkPaid(ctx, o.UpstreamEvent, code); err != nil {
			s.logger.Error("marking platform order paid failed",
				"order_id", o.ID,
				"upstream_order", code,
				"error", err,
			)

			return "", fmt.Errorf("%w: %w", ErrUpstream, err)
		}
	}

	email := ev.Email
	if email == "" {
		email = o.Email
	}

	changed, err := s.orders.Complete(ctx, o.ID, email, ev.Payload)
	if err != nil {
		return "", err
	}

	if !changed {
		return OutcomeAlreadyCompleted, nil
	}

	s.logger.Info("order completed", "order_id", o.ID, "event_slug", o.EventSlug, "session_id", ev.SessionID)

	return OutcomeCompleted, nil
}
