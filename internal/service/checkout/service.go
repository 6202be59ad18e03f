package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/wiredberlin/boxoffice/internal/domain"
	"github.com/wiredberlin/boxoffice/internal/metrics"
	"github.com/wiredberlin/boxoffice/internal/payment"
	"github.com/wiredberlin/boxoffice/internal/pretix"
	"github.com/wiredberlin/boxoffice/internal/service/catalog"
)

type Catalog interface {
	Resolve(ctx context.Context, slug, locale string) (*catalog.Catalog, error)
}

type Orders interface {
	CreatePending(ctx context.Context, o *domain.TicketOrder) error
	AttachUpstreamOrder(ctx context.Context, id uuid.UUID, code string) error
	AttachPaymentSession(ctx context.Context, id uuid.UUID, sessionID string) error
}

type Config struct {
	MaxTicketsPerOrder int
	SiteURL            string
	Locales            []string
	DefaultLocale      string
	// PaymentProvider is recorded on platform orders.
	PaymentProvider string
}

type Service struct {
	catalog  Catalog
	orders   Orders
	platform pretix.Platform
	gateway  payment.Gateway
	logger   *slog.Logger
	cfg      Config
}

func New(
	cat Catalog,
	orders Orders,
	platform pretix.Platform,
	gateway payment.Gateway,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.MaxTicketsPerOrder <= 0 {
		cfg.MaxTicketsPerOrder = 10
	}

	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "de"
	}

	if cfg.PaymentProvider == "" {
		cfg.PaymentProvider = "manual"
	}

	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")

	return &Service{
		catalog:  cat,
		orders:   orders,
		platform: platform,
		gateway:  gateway,
		logger:   logger,
		cfg:      cfg,
	}
}

type Item struct {
	ProductID string
	Quantity  int
}

type Request struct {
	EventSlug string
	Locale    string
	Email     string
	Items     []Item
}

type Result struct {
	OrderID uuid.UUID `json:"orderId"`
	URL     string    `json:"url"`
}

// Checkout validates a cart against the live catalog, records a pending
// order and opens a hosted payment session for it.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: event, locale, optional buyer email and cart lines.
//
// Returns:
//   - *Result: the local order ID and the payment page URL.
//   - error: checkout.ErrInvalidCart, ErrUnknownProduct, ErrProductInactive,
//     ErrProductUnpriced or ErrQuantityLimit if the cart is rejected.
//   - error: checkout.ErrSoldOut if availability does not cover the cart.
//   - error: checkout.ErrUpstream if the platform or processor failed.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	const op = "service.checkout.Checkout"

	res, err := s.checkout(ctx, req)

	switch {
	case err == nil:
		metrics.Checkout("created")
	case errors.Is(err, ErrSoldOut):
		metrics.Checkout("sold_out")
	case errors.Is(err, ErrUpstream):
		metrics.Checkout("upstream_error")
	default:
		metrics.Checkout("rejected")
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return res, nil
}

func (s *Service) checkout(ctx context.Context, req Request) (*Result, error) {
	lines, err := s.normalize(req.Items)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.EventSlug) == "" {
		return nil, fmt.Errorf("%w: eventSlug required", ErrInvalidCart)
	}

	locale := s.locale(req.Locale)

	cat, err := s.catalog.Resolve(ctx, req.EventSlug, locale)
	if err != nil {
		return nil, err
	}

	order := &domain.TicketOrder{
		ID:            uuid.New(),
		EventSlug:     cat.Event.Slug,
		UpstreamEvent: cat.Event.UpstreamEvent,
		Locale:        locale,
		Status:        domain.OrderPending,
		Email:         strings.TrimSpace(req.Email),
	}

	var platformPositions []pretix.OrderPosition

	for _, l := range lines {
		p, ok := cat.Find(l.ProductID)
		switch {
		case !ok:
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, l.ProductID)
		case !p.Active:
			return nil, fmt.Errorf("%w: %s", ErrProductInactive, p.ID)
		case !p.HasPrice:
			return nil, fmt.Errorf("%w: %s", ErrProductUnpriced, p.ID)
		case p.MaxPerOrder > 0 && l.Quantity > p.MaxPerOrder:
			return nil, fmt.Errorf("%w: at most %d of %s", ErrQuantityLimit, p.MaxPerOrder, p.ID)
		case p.Available != nil && *p.Available < l.Quantity:
			return nil, fmt.Errorf("%w: %s", ErrSoldOut, p.ID)
		}

		if len(order.Items) > 0 && !strings.EqualFold(order.Items[0].Currency, p.Currency) {
			return nil, fmt.Errorf("%w: mixed currencies", ErrInvalidCart)
		}

		order.Items = append(order.Items, domain.TicketOrderItem{
			ProductID:       p.ID,
			Name:            p.Name,
			Quantity:        l.Quantity,
			UnitAmountCents: p.UnitAmountCents(),
			Currency:        strings.ToUpper(p.Currency),
		})

		for i := 0; i < l.Quantity; i++ {
			if id, err := parseItemID(p.ID); err == nil {
				platformPositions = append(platformPositions, pretix.OrderPosition{Item: id, Price: p.Price.StringFixed(2)})
			}
		}
	}

	if err := s.orders.CreatePending(ctx, order); err != nil {
		return nil, err
	}

	if cat.Event.TicketSource == domain.SourcePretix {
		up, err := s.platform.CreateOrder(ctx, cat.Event.UpstreamEvent, pretix.OrderRequest{
			Email:           order.Email,
			Locale:          locale,
			SalesChannel:    "web",
			Status:          pretix.OrderStatusPending,
			PaymentProvider: s.cfg.PaymentProvider,
			Comment:         "boxoffice " + order.ID.String(),
			Positions:       platformPositions,
		})
		if err != nil {
			if errors.Is(err, pretix.ErrQuotaExceeded) {
				return nil, fmt.Errorf("%w: %v", ErrSoldOut, err)
			}

			s.logger.Error("platform order failed", "op", "service.checkout.Checkout", "order_id", order.ID, "error", err)

			return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
		}

		order.UpstreamOrderCode = up.Code

		if err := s.orders.AttachUpstreamOrder(ctx, order.ID, up.Code); err != nil {
			return nil, err
		}
	}

	sess, err := s.gateway.CreateSession(ctx, payment.SessionRequest{
		IdempotencyKey: "checkout-" + order.ID.String(),
		ReferenceID:    order.ID.String(),
		Email:          order.Email,
		Locale:         locale,
		SuccessURL:     s.cfg.SiteURL + "/" + locale + "/tickets/success?order=" + order.ID.String(),
		CancelURL:      s.cfg.SiteURL + "/" + locale + "/events/" + url.PathEscape(order.EventSlug) + "?checkout=cancelled",
		LineItems:      lineItems(order.Items),
		Metadata: map[string]string{
			"orderId":           order.ID.String(),
			"eventId":           cat.Event.ID,
			"eventSlug":         order.EventSlug,
			"upstreamOrderCode": order.UpstreamOrderCode,
		},
	})
	if err != nil {
		s.logger.Error("payment session failed", "op", "service.checkout.Checkout", "order_id", order.ID, "error", err)

		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if err := s.orders.AttachPaymentSession(ctx, order.ID, sess.ID); err != nil {
		return nil, err
	}

	return &Result{OrderID: order.ID, URL: sess.URL}, nil
}

// normalize merges repeated products and enforces the per-order cap.
func (s *Service) normalize(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrInvalidCart)
	}

	var (
		out   []Item
		total int
	)

	for _, it := range items {
		id := strings.TrimSpace(it.ProductID)
		if id == "" {
			return nil, fmt.Errorf("%w: productId required", ErrInvalidCart)
		}

		if it.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidCart)
		}

		total += it.Quantity

		idx := slices.IndexFunc(out, func(o Item) bool { return o.ProductID == id })
		if idx >= 0 {
			out[idx].Quantity += it.Quantity
			continue
		}

		out = append(out, Item{ProductID: id, Quantity: it.Quantity})
	}

	if total > s.cfg.MaxTicketsPerOrder {
		return nil, fmt.Errorf("%w: at most %d tickets per order", ErrQuantityLimit, s.cfg.MaxTicketsPerOrder)
	}

	return out, nil
}

func (s *Service) locale(l string) string {
	l = strings.ToLower(strings.TrimSpace(l))
	if l != "" && (len(s.cfg.Locales) == 0 || slices.Contains(s.cfg.Locales, l)) {
		return l
	}
	return s.cfg.DefaultLocale
}

func lineItems(items []domain.TicketOrderItem) []payment.LineItem {
	out := make([]payment.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, payment.LineItem{
			Name:            it.Name,
			Quantity:        it.Quantity,
			UnitAmountCents: it.UnitAmountCents,
			Currency:        it.Currency,
		})
	}
	return out
}

func parseItemID(id string) (int64, error) {
	return strconv.ParseInt(id, 10, 64)
}
