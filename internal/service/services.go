package service

import (
	"context"
	"log/slog"

	"github.com/wiredberlin/boxoffice/internal/cms"
	"github.com/wiredberlin/boxoffice/internal/payment"
	"github.com/wiredberlin/boxoffice/internal/pretix"
	postgres "github.com/wiredberlin/boxoffice/internal/repository/postgres"
	redis "github.com/wiredberlin/boxoffice/internal/repository/redis"
	"github.com/wiredberlin/boxoffice/internal/service/admin"
	"github.com/wiredberlin/boxoffice/internal/service/calendar"
	"github.com/wiredberlin/boxoffice/internal/service/catalog"
	"github.com/wiredberlin/boxoffice/internal/service/checkin"
	"github.com/wiredberlin/boxoffice/internal/service/checkout"
	"github.com/wiredberlin/boxoffice/internal/service/content"
	"github.com/wiredberlin/boxoffice/internal/service/newsletter"
	"github.com/wiredberlin/boxoffice/internal/service/orders"
	"github.com/wiredberlin/boxoffice/internal/service/payments"
)

type Services struct {
	Catalog    *catalog.Service
	Checkout   *checkout.Service
	Payments   *payments.Service
	CheckIn    *checkin.Service
	Content    *content.Service
	Newsletter *newsletter.Service
	Calendar   *calendar.Service
	Admin      *admin.Service
	Orders     *orders.Service
}

type Config struct {
	Catalog  catalog.Config
	Checkout checkout.Config
	CheckIn  checkin.Config
	Content  content.Config
	SiteURL  string
	Locales  []string
	// DefaultLocale is used for newsletter signups without a known locale.
	DefaultLocale string
}

// Deps are the adapters the services run against. Real clients and
// mocks are chosen by the caller.
type Deps struct {
	Store          *postgres.Store
	Cache          *redis.Cache
	PubSub         *redis.ContentPubSub
	CheckInLimiter *redis.SlidingWindowLimiter
	Events         cms.Source
	Writer         cms.Writer
	Platform       pretix.Platform
	Gateway        payment.Gateway
	Logger         *slog.Logger
}

func NewServices(d Deps, cfg Config) *Services {
	ord := orders.New(d.Store)
	cat := catalog.New(d.Events, d.Platform, d.Cache, d.Logger.With("service", "catalog"), cfg.Catalog)
	cnt := content.New(d.Cache, d.PubSub, d.Logger.With("service", "content"), cfg.Content)

	revalidate := func(ctx context.Context, docType, slug string) error {
		_, err := cnt.Revalidate(ctx, docType, slug)
		return err
	}

	return &Services{
		Catalog:    cat,
		Checkout:   checkout.New(cat, ord, d.Platform, d.Gateway, d.Logger.With("service", "checkout"), cfg.Checkout),
		Payments:   payments.New(d.Gateway, ord, d.Platform, d.Logger.With("service", "payments")),
		CheckIn:    checkin.New(cat, d.Platform, d.Store.CheckIns(), d.CheckInLimiter, d.Logger.With("service", "checkin"), cfg.CheckIn),
		Content:    cnt,
		Newsletter: newsletter.New(d.Store.Newsletter(), cfg.Locales, cfg.DefaultLocale),
		Calendar:   calendar.New(cat, cfg.SiteURL),
		Admin:      admin.New(d.Writer, revalidate, d.Logger.With("service", "admin")),
		Orders:     ord,
	}
}
