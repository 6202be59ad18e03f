package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wiredberlin/boxoffice/internal/auth"
	"github.com/wiredberlin/boxoffice/internal/cms"
	"github.com/wiredberlin/boxoffice/internal/config"
	"github.com/wiredberlin/boxoffice/internal/metrics"
	"github.com/wiredberlin/boxoffice/internal/payment"
	"github.com/wiredberlin/boxoffice/internal/postgres"
	"github.com/wiredberlin/boxoffice/internal/pretix"
	"github.com/wiredberlin/boxoffice/internal/redis"
	postgresrepo "github.com/wiredberlin/boxoffice/internal/repository/postgres"
	redisrepo "github.com/wiredberlin/boxoffice/internal/repository/redis"
	"github.com/wiredberlin/boxoffice/internal/service"
	"github.com/wiredberlin/boxoffice/internal/service/catalog"
	"github.com/wiredberlin/boxoffice/internal/service/checkin"
	"github.com/wiredberlin/boxoffice/internal/service/checkout"
	"github.com/wiredberlin/boxoffice/internal/service/content"
	httpgin "github.com/wiredberlin/boxoffice/internal/transport/http/gin"
	"github.com/wiredberlin/boxoffice/internal/upstream"
	"golang.org/x/sync/errgroup"
)

// mockWebhookSecret signs mock payment notifications when no processor
// secret is configured.
const mockWebhookSecret = "boxoffice-mock"

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	closers    []func()
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"

	ctx := context.Background()

	pgxPool, err := postgres.New(ctx, postgres.Config{DSN: cfg.Postgres.DSN()})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(ctx, pgxPool); err != nil {
			pgxPool.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Info("schema migrated")
	}

	rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewContentPubSub(rdb)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, cfg.Checkout.IdempotencyTTL)

	hc := upstream.NewClient(upstream.Config{
		Timeout:          cfg.Upstream.Timeout,
		FailureThreshold: cfg.Upstream.FailureThreshold,
		Cooldown:         cfg.Upstream.Cooldown,
		OnStateChange:    metrics.BreakerStateChanged,
	}, logger.With("component", "upstream"))

	platform := newPlatform(cfg, hc, logger)
	gateway, provider := newGateway(cfg, logger)
	events, writer := newContent(cfg, hc, cache, logger)

	svcCfg := service.Config{
		Catalog: catalog.Config{
			CacheTTL:      30 * time.Second,
			WebhookSecret: cfg.Pretix.WebhookSecret,
		},
		Checkout: checkout.Config{
			MaxTicketsPerOrder: cfg.Checkout.MaxTicketsPerOrder,
			SiteURL:            cfg.Site.URL,
			Locales:            cfg.Site.Locales,
			DefaultLocale:      cfg.Site.DefaultLocale,
			PaymentProvider:    provider,
		},
		CheckIn: checkin.Config{AllowAnonymous: cfg.Features.MockAuth},
		Content: content.Config{
			WebhookSecret: cfg.CMS.WebhookSecret,
			Locales:       cfg.Site.Locales,
		},
		SiteURL:       cfg.Site.URL,
		Locales:       cfg.Site.Locales,
		DefaultLocale: cfg.Site.DefaultLocale,
	}

	services := service.NewServices(service.Deps{
		Store:          store,
		Cache:          cache,
		PubSub:         pubsub,
		CheckInLimiter: redisrepo.NewSlidingWindowLimiter(rdb, redisrepo.KeyRateLimitPrefix("checkin"), cfg.RateLimit.CheckInLimit, cfg.RateLimit.CheckInWindow),
		Events:         events,
		Writer:         writer,
		Platform:       platform,
		Gateway:        gateway,
		Logger:         logger,
	}, svcCfg)

	var authn *auth.Authenticator
	if !cfg.Features.MockAuth {
		authn = auth.New(cfg.Auth.Secret, cfg.Auth.SessionTTL)
	}

	router := httpgin.NewRouter(services, httpgin.Options{
		Idempotency:       idempotencyStore,
		Auth:              authn,
		CheckoutLimiter:   redisrepo.NewSlidingWindowLimiter(rdb, redisrepo.KeyRateLimitPrefix("checkout"), cfg.RateLimit.CheckoutLimit, cfg.RateLimit.Window),
		NewsletterLimiter: redisrepo.NewSlidingWindowLimiter(rdb, redisrepo.KeyRateLimitPrefix("newsletter"), cfg.RateLimit.NewsletterLimit, cfg.RateLimit.Window),
		CORSOrigins:       cfg.Server.CORSOrigins,
		Breakers:          hc,
	}, logger)

	if cfg.Features.AnyMock() {
		logger.Warn("mock integrations enabled",
			"ticketing", cfg.Features.MockTicketing,
			"payments", cfg.Features.MockPayments,
			"cms", cfg.Features.MockCMS,
			"auth", cfg.Features.MockAuth,
		)
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		closers: []func(){pgxPool.Close, func() { _ = rdb.Close() }},
	}, nil
}

func newPlatform(cfg *config.Config, hc *upstream.Client, logger *slog.Logger) pretix.Platform {
	if cfg.Features.MockTicketing {
		return pretix.NewMock()
	}

	logger.Info("ticketing platform", "base_url", cfg.Pretix.BaseURL, "organizer", cfg.Pretix.Organizer)

	return pretix.NewClient(pretix.Config{
		BaseURL:   cfg.Pretix.BaseURL,
		Token:     cfg.Pretix.Token,
		Organizer: cfg.Pretix.Organizer,
	}, hc)
}

// newGateway returns the payment gateway and the provider name recorded
// on platform orders.
func newGateway(cfg *config.Config, logger *slog.Logger) (payment.Gateway, string) {
	if cfg.Features.MockPayments {
		secret := cfg.Stripe.WebhookSecret
		if secret == "" {
			secret = mockWebhookSecret
			logger.Warn("mock payments using the built-in webhook secret")
		}
		return payment.NewMock(secret), "manual"
	}

	return payment.NewStripe(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret), "stripe"
}

// newContent builds the cached event source and the document writer.
// Outside production a failing CMS falls back to the demo content.
func newContent(cfg *config.Config, hc *upstream.Client, cache *redisrepo.Cache, logger *slog.Logger) (cms.Source, cms.Writer) {
	var (
		source cms.Source
		writer cms.Writer
	)

	if cfg.Features.MockCMS {
		m := cms.NewMock()
		source, writer = m, m
	} else {
		client := cms.NewClient(cms.Config{
			ProjectID:  cfg.CMS.ProjectID,
			Dataset:    cfg.CMS.Dataset,
			APIVersion: cfg.CMS.APIVersion,
			BaseURL:    cfg.CMS.BaseURL,
			ReadToken:  cfg.CMS.ReadToken,
			WriteToken: cfg.CMS.WriteToken,
		}, hc)
		source, writer = client, client

		if !cfg.IsProduction() {
			source = cms.NewFallbackSource(client, cms.NewMock(), logger.With("component", "cms"))
		}
	}

	return cms.NewCachedSource(source, cache, 60*time.Second), writer
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		for _, c := range a.closers {
			c()
		}
	}()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
