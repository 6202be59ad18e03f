package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wiredberlin/boxoffice/internal/cms"
	"github.com/wiredberlin/boxoffice/internal/domain"
	"github.com/wiredberlin/boxoffice/internal/metrics"
	"github.com/wiredberlin/boxoffice/internal/pretix"
	redisrepo "github.com/wiredberlin/boxoffice/internal/repository/redis"
	"github.com/wiredberlin/boxoffice/internal/signature"
)

type Config struct {
	CacheTTL      time.Duration
	Currency      string
	WebhookSecret string
}

type Service struct {
	events   cms.Source
	platform pretix.Platform
	cache    *redisrepo.Cache
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

func New(
	events cms.Source,
	platform pretix.Platform,
	cache *redisrepo.Cache,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}

	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}

	return &Service{
		events:   events,
		platform: platform,
		cache:    cache,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Catalog is an event with its sellable products.
type Catalog struct {
	Event    domain.Event     `json:"event"`
	Products []domain.Product `json:"products"`
}

// Find returns the product with id.
func (c *Catalog) Find(id string) (domain.Product, bool) {
	for _, p := range c.Products {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Product{}, false
}

// upstreamCatalog is the locale independent part kept in the cache.
type upstreamCatalog struct {
	Items  []pretix.Item  `json:"items"`
	Quotas []pretix.Quota `json:"quotas"`
}

// Event resolves the CMS event document.
//
// Returns:
//   - error: catalog.ErrEventNotFound if no published event has this slug.
//   - error: catalog.ErrUpstream if the CMS could not be reached.
func (s *Service) Event(ctx context.Context, slug string) (*domain.Event, error) {
	const op = "service.catalog.Event"

	ev, err := s.events.EventBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, cms.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
	}

	return ev, nil
}

// Products returns the catalog for display. Platform data may be up to
// CacheTTL old.
func (s *Service) Products(ctx context.Context, slug, locale string) (*Catalog, error) {
	return s.load(ctx, slug, locale, true)
}

// Resolve returns the catalog straight from the platform, for checkout.
func (s *Service) Resolve(ctx context.Context, slug, locale string) (*Catalog, error) {
	return s.load(ctx, slug, locale, false)
}

func (s *Service) load(ctx context.Context, slug, locale string, cached bool) (*Catalog, error) {
	const op = "service.catalog.load"

	ev, err := s.Event(ctx, slug)
	if err != nil {
		return nil, err
	}

	out := &Catalog{Event: *ev}
	out.Event.Products = nil

	switch ev.TicketSource {
	case domain.SourcePretix:
		if ev.UpstreamEvent == "" {
			return nil, fmt.Errorf("%s: %w", op, ErrNotTicketed)
		}

		uc, err := s.upstream(ctx, ev.UpstreamEvent, cached)
		if err != nil {
			if errors.Is(err, pretix.ErrNotFound) {
				return nil, fmt.Errorf("%s: %w", op, ErrNotTicketed)
			}

			return nil, fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
		}

		out.Products = s.fromPlatform(uc, locale)
	default:
		out.Products = s.fromMirror(ev.Products)
	}

	return out, nil
}

func (s *Service) upstream(ctx context.Context, event string, cached bool) (upstreamCatalog, error) {
	fetch := func(ctx context.Context) (upstreamCatalog, error) {
		items, err := s.platform.Items(ctx, event)
		if err != nil {
			return upstreamCatalog{}, err
		}

		quotas, err := s.platform.Quotas(ctx, event)
		if err != nil {
			return upstreamCatalog{}, err
		}

		return upstreamCatalog{Items: items, Quotas: quotas}, nil
	}

	if !cached {
		return fetch(ctx)
	}

	return redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyCatalog(string(domain.SourcePretix), event), s.cfg.CacheTTL, fetch)
}

func (s *Service) fromPlatform(uc upstreamCatalog, locale string) []domain.Product {
	out := make([]domain.Product, 0, len(uc.Items))

	for _, it := range uc.Items {
		p := domain.Product{
			ID:       strconv.FormatInt(it.ID, 10),
			Name:     it.Name.In(locale),
			Currency: s.cfg.Currency,
			Active:   it.Active,
		}

		if it.DefaultPrice != nil {
			if d, err := decimal.NewFromString(*it.DefaultPrice); err == nil {
				p.Price, p.HasPrice = d, true
			}
		}

		if it.MaxPerOrder != nil {
			p.MaxPerOrder = *it.MaxPerOrder
		}

		p.Available = availability(it.ID, uc.Quotas)

		out = append(out, p)
	}

	return out
}

// availability is the smallest remaining count over the quotas covering
// item. An item without any quota cannot be sold. Nil means unlimited.
func availability(item int64, quotas []pretix.Quota) *int {
	var (
		covered bool
		left    *int
	)

	for _, q := range quotas {
		if !containsID(q.Items, item) {
			continue
		}
		covered = true

		n := -1
		switch {
		case !q.Available:
			n = 0
		case q.AvailableNumber != nil:
			n = *q.AvailableNumber
		}

		if n >= 0 && (left == nil || n < *left) {
			v := n
			left = &v
		}
	}

	if !covered {
		zero := 0
		return &zero
	}

	return left
}

func (s *Service) fromMirror(mirror []domain.ProductMirror) []domain.Product {
	out := make([]domain.Product, 0, len(mirror))

	for _, m := range mirror {
		p := domain.Product{
			ID:          m.ID,
			Name:        m.Name,
			Currency:    m.Currency,
			Active:      m.Active,
			MaxPerOrder: m.MaxPerOrder,
		}

		if p.Currency == "" {
			p.Currency = s.cfg.Currency
		}

		if m.Price != "" {
			if d, err := decimal.NewFromString(m.Price); err == nil {
				p.Price, p.HasPrice = d, true
			}
		}

		out = append(out, p)
	}

	return out
}

// VoucherResult tells the storefront whether a code can be applied.
type VoucherResult struct {
	Valid     bool    `json:"valid"`
	ItemID    *int64  `json:"itemId,omitempty"`
	PriceMode string  `json:"priceMode,omitempty"`
	Value     *string `json:"value,omitempty"`
}

// CheckVoucher looks up a voucher code on the event's platform.
func (s *Service) CheckVoucher(ctx context.Context, slug, code string) (*VoucherResult, error) {
	const op = "service.catalog.CheckVoucher"

	if code == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidVoucher)
	}

	ev, err := s.Event(ctx, slug)
	if err != nil {
		return nil, err
	}

	if ev.TicketSource != domain.SourcePretix || ev.UpstreamEvent == "" {
		return &VoucherResult{Valid: false}, nil
	}

	v, err := s.platform.CheckVoucher(ctx, ev.UpstreamEvent, code)
	if err != nil {
		if errors.Is(err, pretix.ErrNotFound) {
			return &VoucherResult{Valid: false}, nil
		}

		return nil, fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
	}

	if !v.Usable(s.now()) {
		return &VoucherResult{Valid: false}, nil
	}

	return &VoucherResult{Valid: true, ItemID: v.Item, PriceMode: v.PriceMode, Value: v.Value}, nil
}

// PlatformNotification is the body of a ticketing platform webhook.
type PlatformNotification struct {
	NotificationID int64           `json:"notification_id"`
	Organizer      string          `json:"organizer"`
	Event          string          `json:"event"`
	Action         string          `json:"action"`
	Order          string          `json:"order,omitempty"`
	Code           string          `json:"code,omitempty"`
	CheckIn        json.RawMessage `json:"checkin,omitempty"`
}

// HandlePlatformWebhook verifies a ticketing platform notification and drops
// the cached availability of its event. Repeated deliveries are harmless.
//
// Returns:
//   - error: catalog.ErrInvalidSignature if the signature does not verify.
//   - error: catalog.ErrInvalidPayload if the body is not a notification.
func (s *Service) HandlePlatformWebhook(ctx context.Context, body []byte, sig string) (*PlatformNotification, error) {
	const op = "service.catalog.HandlePlatformWebhook"

	if err := signature.Verify(s.cfg.WebhookSecret, body, sig); err != nil {
		metrics.Webhook("pretix", "invalid_signature")
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidSignature, err)
	}

	var n PlatformNotification
	if err := json.Unmarshal(body, &n); err != nil || n.Event == "" {
		metrics.Webhook("pretix", "invalid_payload")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPayload)
	}

	metrics.Webhook("pretix", "accepted")

	if err := s.cache.InvalidateCatalog(ctx, string(domain.SourcePretix), n.Event); err != nil {
		s.logger.Warn("catalog invalidation failed", "op", op, "event", n.Event, "error", err)
	}

	return &n, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
