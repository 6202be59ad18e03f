package admin

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wiredberlin/boxoffice/internal/cms"
	"github.com/wiredberlin/boxoffice/internal/domain"
)

type revalCall struct{ docType, slug string }

func newTestService(t *testing.T, revalErr error) (*Service, *[]revalCall) {
	t.Helper()

	var calls []revalCall
	svc := New(cms.NewMock(), func(_ context.Context, docType, slug string) error {
		calls = append(calls, revalCall{docType, slug})
		return revalErr
	}, slog.Default())

	return svc, &calls
}

func TestArtistLifecycle(t *testing.T) {
	svc, calls := newTestService(t, nil)
	ctx := context.Background()

	doc, err := svc.CreateArtist(ctx, ArtistInput{Name: "Nene H", Slug: "nene-h", Links: []string{"https://ra.co/dj/neneh"}})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "artist", doc.Type)
	assert.Equal(t, "nene-h", doc.Slug)

	_, err = svc.UpdateArtist(ctx, doc.ID, ArtistInput{Bio: "Berlin based."})
	require.NoError(t, err)

	_, err = svc.DeleteArtist(ctx, doc.ID)
	require.NoError(t, err)

	_, err = svc.DeleteArtist(ctx, doc.ID)
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []revalCall{{"artist", "nene-h"}, {"artist", "nene-h"}, {"artist", "nene-h"}}, *calls)
}

func TestCreateArtistValidation(t *testing.T) {
	svc, calls := newTestService(t, nil)
	ctx := context.Background()

	for _, in := range []ArtistInput{
		{Slug: "no-name"},
		{Name: "No Slug"},
		{Name: "Bad Slug", Slug: "Bad Slug!"},
	} {
		_, err := svc.CreateArtist(ctx, in)
		assert.ErrorIs(t, err, ErrInvalidInput, in.Name)
	}

	_, err := svc.UpdateArtist(ctx, "some-id", ArtistInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, *calls)
}

func TestCreateEvent(t *testing.T) {
	svc, calls := newTestService(t, nil)
	ctx := context.Background()

	start := time.Date(2026, 12, 5, 23, 0, 0, 0, time.UTC)
	end := start.Add(8 * time.Hour)

	doc, err := svc.CreateEvent(ctx, EventInput{
		Title:         "WIRED 003",
		Slug:          "wired-003",
		StartsAt:      &start,
		EndsAt:        &end,
		TicketSource:  domain.SourcePretix,
		UpstreamEvent: "wired-003",
		CheckInListID: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, "event", doc.Type)
	assert.Equal(t, []revalCall{{"event", "wired-003"}}, *calls)

	_, err = svc.CreateEvent(ctx, EventInput{Title: "No upstream", Slug: "x", TicketSource: domain.SourcePretix})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateEvent(ctx, EventInput{Title: "Backwards", Slug: "y", StartsAt: &end, EndsAt: &start})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateEvent(ctx, EventInput{Title: "Odd", Slug: "z", TicketSource: "eventbrite"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateMissingEvent(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.UpdateEvent(context.Background(), "nope", EventInput{Title: "x"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.UpdateEvent(context.Background(), " ", EventInput{Title: "x"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

type failingWriter struct{}

func (failingWriter) Create(context.Context, string, map[string]any) (*cms.Document, error) {
	return nil, errors.New("503")
}

func (failingWriter) Update(context.Context, string, map[string]any) (*cms.Document, error) {
	return nil, errors.New("503")
}

func (failingWriter) Delete(context.Context, string) (*cms.Document, error) {
	return nil, errors.New("503")
}

func TestWriteFailureIsUpstream(t *testing.T) {
	svc := New(failingWriter{}, nil, slog.Default())

	_, err := svc.CreateArtist(context.Background(), ArtistInput{Name: "A", Slug: "a"})
	require.ErrorIs(t, err, ErrUpstream)
}

func TestRevalidationFailureKeepsWrite(t *testing.T) {
	svc, calls := newTestService(t, errors.New("redis down"))

	doc, err := svc.CreateArtist(context.Background(), ArtistInput{Name: "A", Slug: "a"})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Len(t, *calls, 1)
}
