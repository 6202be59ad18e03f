package cms

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wiredberlin/boxoffice/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewClient(Config{BaseURL: srv.URL, Dataset: "production", APIVersion: "2024-01-01", WriteToken: "w"}, srv.Client())
}

func TestClient_EventBySlug(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2024-01-01/data/query/production", r.URL.Path)
		assert.Equal(t, `"wired-002"`, r.URL.Query().Get("$slug"))

		_, _ = w.Write([]byte(`{"result":{"id":"e1","slug":"wired-002","title":"WIRED 002","ticketSource":"pretix","upstreamEvent":"wired-002","checkInListId":7,"startsAt":"2026-11-21T23:00:00+01:00","endsAt":"2026-11-22T08:00:00+01:00"}}`))
	})

	ev, err := c.EventBySlug(context.Background(), "wired-002")
	require.NoError(t, err)
	assert.Equal(t, domain.SourcePretix, ev.TicketSource)
	assert.Equal(t, int64(7), ev.CheckInListID)
}

func TestClient_EventBySlugNullResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":null}`))
	})

	_, err := c.EventBySlug(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClient_CreateSendsSlugObject(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer w", r.Header.Get("Authorization"))

		var body struct {
			Mutations []map[string]map[string]any `json:"mutations"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Mutations, 1)

		doc := body.Mutations[0]["create"]
		assert.Equal(t, "artist", doc["_type"])
		assert.Equal(t, map[string]any{"_type": "slug", "current": "dj-x"}, doc["slug"])

		_, _ = w.Write([]byte(`{"results":[{"id":"a1","operation":"create","document":{"_id":"a1","_type":"artist","slug":{"current":"dj-x"}}}]}`))
	})

	doc, err := c.Create(context.Background(), "artist", map[string]any{"name": "DJ X", "slug": "dj-x"})
	require.NoError(t, err)
	assert.Equal(t, &Document{ID: "a1", Type: "artist", Slug: "dj-x"}, doc)
}

type failingSource struct{ err error }

func (f failingSource) EventBySlug(context.Context, string) (*domain.Event, error) {
	return nil, f.err
}

func TestFallbackSource(t *testing.T) {
	ctx := context.Background()

	fb := NewFallbackSource(failingSource{err: errors.New("timeout")}, NewMock(), slog.Default())
	ev, err := fb.EventBySlug(ctx, "wired-002")
	require.NoError(t, err)
	assert.Equal(t, "wired-002", ev.UpstreamEvent)

	fb = NewFallbackSource(failingSource{err: ErrNotFound}, NewMock(), slog.Default())
	_, err = fb.EventBySlug(ctx, "wired-002")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMock_Writes(t *testing.T) {
	ctx := context.Background()
	m := NewMock()

	doc, err := m.Create(ctx, "artist", map[string]any{"name": "DJ X", "slug": "dj-x"})
	require.NoError(t, err)
	assert.Equal(t, "dj-x", doc.Slug)

	doc, err = m.Update(ctx, doc.ID, map[string]any{"slug": "dj-y"})
	require.NoError(t, err)
	assert.Equal(t, "dj-y", doc.Slug)

	_, err = m.Delete(ctx, doc.ID)
	require.NoError(t, err)

	_, err = m.Delete(ctx, doc.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
