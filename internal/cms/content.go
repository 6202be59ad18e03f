package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wiredberlin/boxoffice/internal/domain"
	redisrepo "github.com/wiredberlin/boxoffice/internal/repository/redis"
)

// Source reads published documents.
type Source interface {
	EventBySlug(ctx context.Context, slug string) (*domain.Event, error)
}

// Writer creates, patches and deletes documents with the privileged token.
type Writer interface {
	Create(ctx context.Context, docType string, fields map[string]any) (*Document, error)
	Update(ctx context.Context, id string, fields map[string]any) (*Document, error)
	Delete(ctx context.Context, id string) (*Document, error)
}

// Document identifies a written document for cache invalidation.
type Document struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Slug string `json:"slug"`
}

const eventQuery = `*[_type == "event" && slug.current == $slug && !(_id in path("drafts.**"))][0]{
  "id": _id,
  title,
  "slug": slug.current,
  description,
  venue,
  address,
  startsAt,
  endsAt,
  "ticketSource": coalesce(ticketSource, "cms"),
  "upstreamEvent": pretixEvent,
  "checkInListId": pretixCheckInList,
  "products": products[]{"id": _key, name, price, currency, active, maxPerOrder}
}`

func (c *Client) EventBySlug(ctx context.Context, slug string) (*domain.Event, error) {
	const op = "cms.Client.EventBySlug"

	var ev domain.Event
	if err := c.Query(ctx, eventQuery, map[string]any{"slug": slug}, &ev); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &ev, nil
}

func (c *Client) Create(ctx context.Context, docType string, fields map[string]any) (*Document, error) {
	const op = "cms.Client.Create"

	doc := normalizeFields(fields)
	doc["_type"] = docType
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = uuid.NewString()
	}

	res, err := c.Mutate(ctx, Mutation{Create: doc})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return firstDocument(op, res)
}

func (c *Client) Update(ctx context.Context, id string, fields map[string]any) (*Document, error) {
	const op = "cms.Client.Update"

	res, err := c.Mutate(ctx, Mutation{Patch: &Patch{ID: id, Set: normalizeFields(fields)}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return firstDocument(op, res)
}

func (c *Client) Delete(ctx context.Context, id string) (*Document, error) {
	const op = "cms.Client.Delete"

	res, err := c.Mutate(ctx, Mutation{Delete: &DeleteByID{ID: id}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return firstDocument(op, res)
}

type rawDocument struct {
	ID   string `json:"_id"`
	Type string `json:"_type"`
	Slug struct {
		Current string `json:"current"`
	} `json:"slug"`
}

func firstDocument(op string, res []MutationResult) (*Document, error) {
	if len(res) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	out := &Document{ID: res[0].ID}
	if len(res[0].Document) == 0 {
		return out, nil
	}

	var raw rawDocument
	if err := json.Unmarshal(res[0].Document, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode document: %w", op, err)
	}

	if raw.ID != "" {
		out.ID = raw.ID
	}
	out.Type = raw.Type
	out.Slug = raw.Slug.Current

	return out, nil
}

// normalizeFields copies fields and turns a plain slug string into the
// CMS slug object.
func normalizeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}

	if s, ok := out["slug"].(string); ok {
		out["slug"] = map[string]any{"_type": "slug", "current": s}
	}

	return out
}

// CachedSource keeps resolved documents in redis for ttl. The content
// webhook drops the entries on publish.
type CachedSource struct {
	next  Source
	cache *redisrepo.Cache
	ttl   time.Duration
}

func NewCachedSource(next Source, cache *redisrepo.Cache, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, cache: cache, ttl: ttl}
}

func (s *CachedSource) EventBySlug(ctx context.Context, slug string) (*domain.Event, error) {
	return redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyContentDoc("event", slug), s.ttl,
		func(ctx context.Context) (*domain.Event, error) {
			return s.next.EventBySlug(ctx, slug)
		},
	)
}

// FallbackSource answers from fallback when primary fails for any reason
// other than a missing document. Used outside production only.
type FallbackSource struct {
	primary  Source
	fallback Source
	logger   *slog.Logger
}

func NewFallbackSource(primary, fallback Source, logger *slog.Logger) *FallbackSource {
	return &FallbackSource{primary: primary, fallback: fallback, logger: logger}
}

func (s *FallbackSource) EventBySlug(ctx context.Context, slug string) (*domain.Event, error) {
	ev, err := s.primary.EventBySlug(ctx, slug)
	if err == nil || errors.Is(err, ErrNotFound) {
		return ev, err
	}

	s.logger.Warn("cms unavailable, using mock content", "slug", slug, "error", err)

	return s.fallback.EventBySlug(ctx, slug)
}
