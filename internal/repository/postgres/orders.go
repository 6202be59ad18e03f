package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wiredberlin/boxoffice/internal/domain"
	"github.com/wiredberlin/boxoffice/internal/repository"
)

type OrderRepo struct {
	pool Pool
	db   DB
}

func (r *OrderRepo) With(db DB) *OrderRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *OrderRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Insert stores a new order together with its line item snapshot.
// It must run inside a transaction.
//
// Returns:
//   - error: repository.ErrConflict if the order ID already exists.
func (r *OrderRepo) Insert(ctx context.Context, o *domain.TicketOrder) error {
	const op = "postgres.OrderRepo.Insert"

	db := r.handle()

	metadata := o.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	if err := db.QueryRow(ctx,
		`INSERT INTO ticket_orders(id, event_slug, upstream_event, locale, status, email, metadata)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		 RETURNING created_at, updated_at`,
		o.ID, o.EventSlug, o.UpstreamEvent, o.Locale, string(o.Status), o.Email, []byte(metadata),
	).Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		return wrapDBErr(op, err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID

		if err := db.QueryRow(ctx,
			`INSERT INTO ticket_order_items(order_id, product_id, name, quantity, unit_amount_cents, currency)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			o.ID, it.ProductID, it.Name, it.Quantity, it.UnitAmountCents, it.Currency,
		).Scan(&it.ID); err != nil {
			return wrapDBErr(op, err)
		}
	}

	return nil
}

// Get retrieves an order with its items.
//
// Returns:
//   - error: repository.ErrNotFound if the order does not exist.
func (r *OrderRepo) Get(ctx context.Context, id uuid.UUID) (*domain.TicketOrder, error) {
	const op = "postgres.OrderRepo.Get"

	db := r.handle()

	q := `SELECT id, event_slug, upstream_event, locale, status,
	             COALESCE(email, ''), COALESCE(payment_session_id, ''), COALESCE(upstream_order_code, ''),
	             metadata, created_at, updated_at
	      FROM ticket_orders
	      WHERE id = $1`

	var (
		o        domain.TicketOrder
		status   string
		metadata []byte
	)

	err := db.QueryRow(ctx, q, id).Scan(
		&o.ID,
		&o.EventSlug,
		&o.UpstreamEvent,
		&o.Locale,
		&status,
		&o.Email,
		&o.PaymentSessionID,
		&o.UpstreamOrderCode,
		&metadata,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	o.Status = domain.OrderStatus(status)
	o.Metadata = metadata

	items, err := r.items(ctx, db, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	o.Items = items

	return &o, nil
}

func (r *OrderRepo) items(ctx context.Context, db DB, orderID uuid.UUID) ([]domain.TicketOrderItem, error) {
	const op = "postgres.OrderRepo.items"

	rows, err := db.Query(ctx,
		`SELECT id, order_id, product_id, name, quantity, unit_amount_cents, currency
		 FROM ticket_order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := make([]domain.TicketOrderItem, 0)
	for rows.Next() {
		var it domain.TicketOrderItem

		if err := rows.Scan(
			&it.ID,
			&it.OrderID,
			&it.ProductID,
			&it.Name,
			&it.Quantity,
			&it.UnitAmountCents,
			&it.Currency,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}

		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// SetPaymentSession records the payment processor session on a pending order.
func (r *OrderRepo) SetPaymentSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	const op = "postgres.OrderRepo.SetPaymentSession"

	tag, err := r.handle().Exec(ctx,
		`UPDATE ticket_orders
		 SET payment_session_id = $2, updated_at = now()
		 WHERE id = $1`,
		id, sessionID,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

// SetUpstreamOrder records the ticketing platform order code.
func (r *OrderRepo) SetUpstreamOrder(ctx context.Context, id uuid.UUID, code string) error {
	const op = "postgres.OrderRepo.SetUpstreamOrder"

	tag, err := r.handle().Exec(ctx,
		`UPDATE ticket_orders
		 SET upstream_order_code = $2, updated_at = now()
		 WHERE id = $1`,
		id, code,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

// Complete moves a PENDING order to COMPLETED. It reports false when the
// order was not pending (already completed or missing), which callers treat
// as an idempotent no-op.
func (r *OrderRepo) Complete(
	ctx context.Context,
	id uuid.UUID,
	email string,
	metadata json.RawMessage,
) (bool, error) {
	const op = "postgres.OrderRepo.Complete"

	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	tag, err := r.handle().Exec(ctx,
		`UPDATE ticket_orders
		 SET status = 'COMPLETED',
		     email = COALESCE(NULLIF($2, ''), email),
		     metadata = $3,
		     updated_at = now()
		 WHERE id = $1 AND status = 'PENDING'`,
		id, email, []byte(metadata),
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return tag.RowsAffected() == 1, nil
}

// CountByStatus is used by the admin report.
func (r *OrderRepo) CountByStatus(ctx context.Context, eventSlug string) (map[domain.OrderStatus]int64, error) {
	const op = "postgres.OrderRepo.CountByStatus"

	rows, err := r.handle().Query(ctx,
		`SELECT status, COUNT(*)
		 FROM ticket_orders
		 WHERE event_slug = $1
		 GROUP BY status`,
		eventSlug,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (statusCount, error) {
		var sc statusCount
		err := row.Scan(&sc.status, &sc.count)
		return sc, err
	})
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out := map[domain.OrderStatus]int64{
		domain.OrderPending:   0,
		domain.OrderCompleted: 0,
	}
	for _, c := range counts {
		out[domain.OrderStatus(c.status)] = c.count
	}

	return out, nil
}

type statusCount struct {
	status string
	count  int64
}
