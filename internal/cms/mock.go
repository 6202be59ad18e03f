package cms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wiredberlin/boxoffice/internal/domain"
)

// Mock holds demo content in memory and accepts writes.
type Mock struct {
	mu     sync.RWMutex
	events map[string]domain.Event
	docs   map[string]map[string]any
}

func NewMock() *Mock {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		berlin = time.UTC
	}

	m := &Mock{events: map[string]domain.Event{}, docs: map[string]map[string]any{}}

	m.events["wired-002"] = domain.Event{
		ID:            "event-wired-002",
		Slug:          "wired-002",
		Title:         "WIRED 002",
		Description:   "Club night with live sets.",
		Venue:         "Säälchen",
		Address:       "Holzmarktstraße 25, 10243 Berlin",
		StartsAt:      time.Date(2026, 11, 21, 23, 0, 0, 0, berlin),
		EndsAt:        time.Date(2026, 11, 22, 8, 0, 0, 0, berlin),
		TicketSource:  domain.SourcePretix,
		UpstreamEvent: "wired-002",
		CheckInListID: 1,
	}

	m.events["wired-open-air"] = domain.Event{
		ID:           "event-wired-open-air",
		Slug:         "wired-open-air",
		Title:        "WIRED Open Air",
		Venue:        "Rummelsburger Bucht",
		StartsAt:     time.Date(2027, 6, 19, 14, 0, 0, 0, berlin),
		EndsAt:       time.Date(2027, 6, 19, 23, 0, 0, 0, berlin),
		TicketSource: domain.SourceCMS,
		Products: []domain.ProductMirror{
			{ID: "early", Name: "Early Bird", Price: "15.00", Currency: "EUR", Active: true, MaxPerOrder: 4},
			{ID: "regular", Name: "Regular", Price: "22.50", Currency: "EUR", Active: true},
			{ID: "sold-out-tier", Name: "Tier 0", Price: "10.00", Currency: "EUR", Active: false},
			{ID: "tba", Name: "Guest list", Currency: "EUR", Active: true},
		},
	}

	return m
}

func (m *Mock) EventBySlug(_ context.Context, slug string) (*domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ev, ok := m.events[slug]
	if !ok {
		return nil, fmt.Errorf("cms.Mock.EventBySlug: %w", ErrNotFound)
	}

	return &ev, nil
}

func (m *Mock) Create(_ context.Context, docType string, fields map[string]any) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := normalizeFields(fields)
	id, _ := doc["_id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	doc["_id"] = id
	doc["_type"] = docType
	m.docs[id] = doc

	return mockDocument(doc), nil
}

func (m *Mock) Update(_ context.Context, id string, fields map[string]any) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("cms.Mock.Update: %w", ErrNotFound)
	}

	for k, v := range normalizeFields(fields) {
		doc[k] = v
	}

	return mockDocument(doc), nil
}

func (m *Mock) Delete(_ context.Context, id string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("cms.Mock.Delete: %w", ErrNotFound)
	}
	delete(m.docs, id)

	return mockDocument(doc), nil
}

func mockDocument(doc map[string]any) *Document {
	out := &Document{}
	out.ID, _ = doc["_id"].(string)
	out.Type, _ = doc["_type"].(string)
	if s, ok := doc["slug"].(map[string]any); ok {
		out.Slug, _ = s["current"].(string)
	}
	return out
}
