package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wiredberlin/boxoffice/internal/domain"
	"github.com/wiredberlin/boxoffice/internal/metrics"
	"github.com/wiredberlin/boxoffice/internal/repository"
	postgresrepo "github.com/wiredberlin/boxoffice/internal/repository/postgres"
	"github.com/wiredberlin/boxoffice/internal/uow"
)

const maxTxAttempts = 3

type Service struct {
	store *postgresrepo.Store
	uow   *uow.UoW
}

func New(store *postgresrepo.Store) *Service {
	return &Service{store: store, uow: uow.NewUoW(store)}
}

// CreatePending stores a new PENDING order and its item snapshot in one
// transaction. The order ID is assigned here when unset.
//
// Parameters:
//   - ctx: request-scoped context.
//   - o: order to store; CreatedAt, UpdatedAt and item IDs are filled in.
//
// Returns:
//   - error: orders.ErrEmptyOrder if the order has no items.
//   - error: orders.ErrOrderConflict if the order ID is taken.
func (s *Service) CreatePending(ctx context.Context, o *domain.TicketOrder) error {
	const op = "service.orders.CreatePending"

	if len(o.Items) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyOrder)
	}

	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.Status = domain.OrderPending

	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.uow.Do(ctx, func(
			ctx context.Context,
			tx postgresrepo.DB,
			after func(uow.AfterCommit),
		) error {
			if err := s.store.Orders().With(tx).Insert(ctx, o); err != nil {
				return err
			}

			after(func(context.Context) { metrics.OrderCreated(o.EventSlug) })

			return nil
		})
		if !postgresrepo.IsRetryable(err) {
			break
		}
	}

	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%s: %w", op, ErrOrderConflict)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Get retrieves an order with its items.
//
// Returns:
//   - error: orders.ErrOrderNotFound if the order does not exist.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.TicketOrder, error) {
	const op = "service.orders.Get"

	o, err := s.store.Orders().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return o, nil
}

func (s *Service) AttachUpstreamOrder(ctx context.Context, id uuid.UUID, code string) error {
	const op = "service.orders.AttachUpstreamOrder"

	if err := s.store.Orders().SetUpstreamOrder(ctx, id, code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Service) AttachPaymentSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	const op = "service.orders.AttachPaymentSession"

	if err := s.store.Orders().SetPaymentSession(ctx, id, sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}

		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%s: %w", op, ErrOrderConflict)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Complete transitions a PENDING order to COMPLETED. It reports false when
// the transition did not happen because the order was no longer pending.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, email string, metadata json.RawMessage) (bool, error) {
	const op = "service.orders.Complete"

	ok, err := s.store.Orders().Complete(ctx, id, email, metadata)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

// Counts reports how many orders of an event are in each status.
func (s *Service) Counts(ctx context.Context, eventSlug string) (map[domain.OrderStatus]int64, error) {
	const op = "service.orders.Counts"

	counts, err := s.store.Orders().CountByStatus(ctx, eventSlug)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return counts, nil
}
