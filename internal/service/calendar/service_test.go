package calendar

import (
	"context"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wiredberlin/boxoffice/internal/domain"
)

type staticEvents map[string]domain.Event

func (s staticEvents) Event(_ context.Context, slug string) (*domain.Event, error) {
	ev, ok := s[slug]
	if !ok {
		return nil, assert.AnError
	}
	return &ev, nil
}

func TestEventICS(t *testing.T) {
	start := time.Date(2026, 11, 21, 22, 0, 0, 0, time.UTC)

	svc := New(staticEvents{
		"wired-002": {Slug: "wired-002", Title: "WIRED 002", Venue: "Säälchen", StartsAt: start},
		"tba":       {Slug: "tba", Title: "TBA"},
	}, "https://wired.berlin")

	out, ev, err := svc.EventICS(context.Background(), "wired-002", "en")
	require.NoError(t, err)
	assert.Equal(t, "WIRED 002", ev.Title)

	cal, err := ics.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, cal.Events(), 1)

	vev := cal.Events()[0]
	assert.Equal(t, "WIRED 002", vev.GetProperty(ics.ComponentPropertySummary).Value)
	assert.Equal(t, "Säälchen", vev.GetProperty(ics.ComponentPropertyLocation).Value)

	end, err := vev.GetEndAt()
	require.NoError(t, err)
	assert.True(t, start.Add(defaultDuration).Equal(end))

	_, _, err = svc.EventICS(context.Background(), "tba", "en")
	require.ErrorIs(t, err, ErrNoSchedule)

	_, _, err = svc.EventICS(context.Background(), "missing", "en")
	require.Error(t, err)
}
