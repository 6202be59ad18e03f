package newsletter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wiredberlin/boxoffice/internal/domain"
)

type memStore map[string]domain.Subscriber

func (m memStore) Subscribe(_ context.Context, s domain.Subscriber) (bool, error) {
	if _, ok := m[s.Email]; ok {
		return false, nil
	}
	m[s.Email] = s
	return true, nil
}

func TestSubscribe(t *testing.T) {
	store := memStore{}
	svc := New(store, []string{"de", "en"}, "de")
	ctx := context.Background()

	created, err := svc.Subscribe(ctx, " Rave@Example.com ", "EN", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "en", store["rave@example.com"].Locale)
	assert.Equal(t, "website", store["rave@example.com"].Source)

	created, err = svc.Subscribe(ctx, "rave@example.com", "fr", "footer")
	require.NoError(t, err)
	assert.False(t, created)

	for _, bad := range []string{"", "nope", "Name <a@b.de>", "a@localhost"} {
		_, err := svc.Subscribe(ctx, bad, "de", "")
		assert.ErrorIs(t, err, ErrInvalidEmail, bad)
	}
}
