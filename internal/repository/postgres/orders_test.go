package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wiredberlin/boxoffice/internal/domain"
	"github.com/wiredberlin/boxoffice/internal/repository"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return mock
}

func TestOrderRepo_Insert(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	now := time.Now()
	order := &domain.TicketOrder{
		ID:        uuid.New(),
		EventSlug: "wired-002",
		Locale:    "de",
		Status:    domain.OrderPending,
		Items: []domain.TicketOrderItem{
			{ProductID: "11", Name: "Early Bird", Quantity: 2, UnitAmountCents: 1500, Currency: "EUR"},
		},
	}

	mock.ExpectQuery("INSERT INTO ticket_orders").
		WithArgs(order.ID, "wired-002", "", "de", "PENDING", "", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery("INSERT INTO ticket_order_items").
		WithArgs(order.ID, "11", "Early Bird", 2, int64(1500), "EUR").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	err := store.Orders().Insert(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, int64(7), order.Items[0].ID)
	assert.Equal(t, order.ID, order.Items[0].OrderID)
	assert.Equal(t, now, order.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_Get(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT id, event_slug").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "event_slug", "upstream_event", "locale", "status",
			"email", "payment_session_id", "upstream_order_code",
			"metadata", "created_at", "updated_at",
		}).AddRow(id, "wired-002", "wired002", "en", "PENDING", "", "cs_test_1", "ABC12", []byte(`{}`), now, now))
	mock.ExpectQuery("FROM ticket_order_items").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "order_id", "product_id", "name", "quantity", "unit_amount_cents", "currency",
		}).AddRow(int64(1), id, "11", "Regular", 1, int64(2000), "EUR"))

	o, err := store.Orders().Get(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, "cs_test_1", o.PaymentSessionID)
	assert.Equal(t, "ABC12", o.UpstreamOrderCode)
	require.Len(t, o.Items, 1)
	assert.Equal(t, int64(2000), o.TotalCents())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_Get_NotFound(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	id := uuid.New()
	mock.ExpectQuery("SELECT id, event_slug").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := store.Orders().Get(context.Background(), id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOrderRepo_Complete_OnlyFromPending(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	id := uuid.New()
	payload := json.RawMessage(`{"id":"evt_1"}`)

	mock.ExpectExec("UPDATE ticket_orders").
		WithArgs(id, "buyer@example.com", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE ticket_orders").
		WithArgs(id, "buyer@example.com", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	changed, err := store.Orders().Complete(context.Background(), id, "buyer@example.com", payload)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.Orders().Complete(context.Background(), id, "buyer@example.com", payload)
	require.NoError(t, err)
	assert.False(t, changed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_SetPaymentSession_Missing(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	id := uuid.New()
	mock.ExpectExec("UPDATE ticket_orders").
		WithArgs(id, "cs_test_9").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.Orders().SetPaymentSession(context.Background(), id, "cs_test_9")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
