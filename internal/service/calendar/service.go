package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/wiredberlin/boxoffice/internal/domain"
)

type Events interface {
	Event(ctx context.Context, slug string) (*domain.Event, error)
}

type Service struct {
	events  Events
	siteURL string
	now     func() time.Time
}

func New(events Events, siteURL string) *Service {
	return &Service{events: events, siteURL: strings.TrimRight(siteURL, "/"), now: time.Now}
}

const defaultDuration = 6 * time.Hour

// EventICS renders a single event as an iCalendar document.
//
// Returns:
//   - error: calendar.ErrNoSchedule if the event has no start time.
func (s *Service) EventICS(ctx context.Context, slug, locale string) (string, *domain.Event, error) {
	const op = "service.calendar.EventICS"

	ev, err := s.events.Event(ctx, slug)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	if ev.StartsAt.IsZero() {
		return "", nil, fmt.Errorf("%s: %w", op, ErrNoSchedule)
	}

	end := ev.EndsAt
	if end.IsZero() || !end.After(ev.StartsAt) {
		end = ev.StartsAt.Add(defaultDuration)
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//WIRED Berlin//boxoffice//EN")

	vev := cal.AddEvent(ev.Slug + "@wired.berlin")
	vev.SetDtStampTime(s.now().UTC())
	vev.SetStartAt(ev.StartsAt.UTC())
	vev.SetEndAt(end.UTC())
	vev.SetSummary(ev.Title)

	if loc := location(ev); loc != "" {
		vev.SetLocation(loc)
	}

	if ev.Description != "" {
		vev.SetDescription(ev.Description)
	}

	if s.siteURL != "" {
		vev.SetURL(s.siteURL + "/" + locale + "/events/" + ev.Slug)
	}

	return cal.Serialize(), ev, nil
}

func location(ev *domain.Event) string {
	switch {
	case ev.Venue != "" && ev.Address != "":
		return ev.Venue + ", " + ev.Address
	case ev.Venue != "":
		return ev.Venue
	default:
		return ev.Address
	}
}
