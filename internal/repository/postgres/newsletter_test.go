package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wiredberlin/boxoffice/internal/domain"
)

func TestNewsletterRepo_Subscribe(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)
	sub := domain.Subscriber{Email: "rave@example.com", Locale: "de", Source: "footer"}

	mock.ExpectExec("INSERT INTO newsletter_subscribers").
		WithArgs("rave@example.com", "de", "footer").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO newsletter_subscribers").
		WithArgs("rave@example.com", "de", "footer").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	created, err := store.Newsletter().Subscribe(context.Background(), sub)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.Newsletter().Subscribe(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, created)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewsletterRepo_SubscribeError(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	mock.ExpectExec("INSERT INTO newsletter_subscribers").
		WillReturnError(errors.New("connection reset"))

	_, err := store.Newsletter().Subscribe(context.Background(), domain.Subscriber{Email: "a@b.de"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.NewsletterRepo.Subscribe")
}
