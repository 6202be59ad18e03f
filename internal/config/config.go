package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Log       LogConfig
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Pretix    PretixConfig
	Stripe    StripeConfig
	CMS       CMSConfig
	Checkout  CheckoutConfig
	RateLimit RateLimitConfig
	Upstream  UpstreamConfig
	Features  FeatureFlags
	Site      SiteConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	Host string
	Port int
	// CORSOrigins empty allows any origin without credentials.
	CORSOrigins []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User        string
	Password    string
	Name        string
	Host        string
	Port        int
	SSLMode     string
	AutoMigrate bool
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSLMode,
	)
}

type AuthConfig struct {
	Secret     string
	SessionTTL time.Duration
}

type PretixConfig struct {
	BaseURL       string
	Token         string
	Organizer     string
	WebhookSecret string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type CMSConfig struct {
	ProjectID     string
	Dataset       string
	APIVersion    string
	BaseURL       string
	ReadToken     string
	WriteToken    string
	WebhookSecret string
}

type CheckoutConfig struct {
	MaxTicketsPerOrder int
	IdempotencyTTL     time.Duration
}

type RateLimitConfig struct {
	CheckInLimit    int
	CheckInWindow   time.Duration
	NewsletterLimit int
	CheckoutLimit   int
	Window          time.Duration
}

type UpstreamConfig struct {
	Timeout          time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

// FeatureFlags swap live integrations for in-memory mocks.
type FeatureFlags struct {
	MockTicketing          bool
	MockPayments           bool
	MockCMS                bool
	MockAuth               bool
	AllowMocksInProduction bool
}

func (f FeatureFlags) AnyMock() bool {
	return f.MockTicketing || f.MockPayments || f.MockCMS || f.MockAuth
}

type SiteConfig struct {
	URL           string
	Locales       []string
	DefaultLocale string
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	env := getenv("APP_ENV", EnvDevelopment)
	if env != EnvDevelopment && env != EnvProduction {
		return nil, fmt.Errorf("%s: invalid APP_ENV %q", op, env)
	}

	serverPort, err := getInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host:        getenv("SERVER_HOST", "localhost"),
		Port:        serverPort,
		CORSOrigins: splitList(os.Getenv("CORS_ORIGINS")),
	}

	postgresCfg, err := LoadPostgres()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     getenv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	flags, err := loadFlags()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sessionTTL, err := getDuration("AUTH_SESSION_TTL", 12*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	authCfg := AuthConfig{
		Secret:     os.Getenv("AUTH_SECRET"),
		SessionTTL: sessionTTL,
	}

	pretixCfg := PretixConfig{
		BaseURL:       strings.TrimRight(getenv("PRETIX_BASE_URL", "https://pretix.eu"), "/"),
		Token:         os.Getenv("PRETIX_TOKEN"),
		Organizer:     os.Getenv("PRETIX_ORGANIZER"),
		WebhookSecret: os.Getenv("PRETIX_WEBHOOK_SECRET"),
	}

	stripeCfg := StripeConfig{
		SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
	}

	cmsCfg := CMSConfig{
		ProjectID:     os.Getenv("CMS_PROJECT_ID"),
		Dataset:       getenv("CMS_DATASET", "production"),
		APIVersion:    getenv("CMS_API_VERSION", "2023-05-03"),
		BaseURL:       strings.TrimRight(os.Getenv("CMS_BASE_URL"), "/"),
		ReadToken:     os.Getenv("CMS_READ_TOKEN"),
		WriteToken:    os.Getenv("CMS_WRITE_TOKEN"),
		WebhookSecret: os.Getenv("CMS_WEBHOOK_SECRET"),
	}

	maxTickets, err := getInt("CHECKOUT_MAX_TICKETS_PER_ORDER", 10)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if maxTickets <= 0 {
		return nil, fmt.Errorf("%s: CHECKOUT_MAX_TICKETS_PER_ORDER must be positive", op)
	}

	idemTTL, err := getDuration("CHECKOUT_IDEMPOTENCY_TTL", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	checkoutCfg := CheckoutConfig{
		MaxTicketsPerOrder: maxTickets,
		IdempotencyTTL:     idemTTL,
	}

	rateCfg, err := loadRateLimits()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	upstreamCfg, err := loadUpstream()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	siteCfg := SiteConfig{
		URL:           strings.TrimRight(getenv("SITE_URL", "http://localhost:3000"), "/"),
		Locales:       splitList(getenv("SITE_LOCALES", "de,en")),
		DefaultLocale: getenv("SITE_DEFAULT_LOCALE", "de"),
	}

	if len(siteCfg.Locales) == 0 {
		return nil, fmt.Errorf("%s: SITE_LOCALES must list at least one locale", op)
	}

	cfg := &Config{
		Env: env,
		Log: LogConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "text"),
		},
		Server:    serverCfg,
		Postgres:  postgresCfg,
		Redis:     redisCfg,
		Auth:      authCfg,
		Pretix:    pretixCfg,
		Stripe:    stripeCfg,
		CMS:       cmsCfg,
		Checkout:  checkoutCfg,
		RateLimit: rateCfg,
		Upstream:  upstreamCfg,
		Features:  flags,
		Site:      siteCfg,
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return cfg, nil
}

// LoadPostgres reads only the database group, for tools that do not need
// the rest of the service configuration.
func LoadPostgres() (PostgresConfig, error) {
	_ = godotenv.Load()

	port, err := getInt("POSTGRES_PORT", 5432)
	if err != nil {
		return PostgresConfig{}, err
	}

	autoMigrate, err := getBool("POSTGRES_AUTO_MIGRATE", false)
	if err != nil {
		return PostgresConfig{}, err
	}

	cfg := PostgresConfig{
		User:        os.Getenv("POSTGRES_USER"),
		Password:    os.Getenv("POSTGRES_PASSWORD"),
		Name:        os.Getenv("POSTGRES_DB"),
		Host:        getenv("POSTGRES_HOST", "localhost"),
		Port:        port,
		SSLMode:     getenv("POSTGRES_SSLMODE", "disable"),
		AutoMigrate: autoMigrate,
	}

	switch {
	case cfg.User == "":
		return cfg, fmt.Errorf("missing POSTGRES_USER")
	case cfg.Password == "":
		return cfg, fmt.Errorf("missing POSTGRES_PASSWORD")
	case cfg.Name == "":
		return cfg, fmt.Errorf("missing POSTGRES_DB")
	}

	return cfg, nil
}

// validate checks that every live integration has its credentials.
func (c *Config) validate() error {
	if c.IsProduction() && c.Features.AnyMock() && !c.Features.AllowMocksInProduction {
		return fmt.Errorf("mock integrations are disabled in production")
	}

	if !c.Features.MockAuth && c.Auth.Secret == "" {
		return fmt.Errorf("missing AUTH_SECRET")
	}

	if !c.Features.MockTicketing {
		if c.Pretix.Token == "" {
			return fmt.Errorf("missing PRETIX_TOKEN")
		}
		if c.Pretix.Organizer == "" {
			return fmt.Errorf("missing PRETIX_ORGANIZER")
		}
	}

	if !c.Features.MockPayments {
		if c.Stripe.SecretKey == "" {
			return fmt.Errorf("missing STRIPE_SECRET_KEY")
		}
		if c.Stripe.WebhookSecret == "" {
			return fmt.Errorf("missing STRIPE_WEBHOOK_SECRET")
		}
	}

	if !c.Features.MockCMS && c.CMS.ProjectID == "" && c.CMS.BaseURL == "" {
		return fmt.Errorf("missing CMS_PROJECT_ID")
	}

	if c.IsProduction() {
		if c.CMS.WebhookSecret == "" {
			return fmt.Errorf("missing CMS_WEBHOOK_SECRET")
		}
		if c.Pretix.WebhookSecret == "" {
			return fmt.Errorf("missing PRETIX_WEBHOOK_SECRET")
		}
	}

	return nil
}

func loadFlags() (FeatureFlags, error) {
	var (
		f   FeatureFlags
		err error
	)

	if f.MockTicketing, err = getBool("MOCK_TICKETING", false); err != nil {
		return f, err
	}
	if f.MockPayments, err = getBool("MOCK_PAYMENTS", false); err != nil {
		return f, err
	}
	if f.MockCMS, err = getBool("MOCK_CMS", false); err != nil {
		return f, err
	}
	if f.MockAuth, err = getBool("MOCK_AUTH", false); err != nil {
		return f, err
	}
	if f.AllowMocksInProduction, err = getBool("ALLOW_MOCKS_IN_PRODUCTION", false); err != nil {
		return f, err
	}

	return f, nil
}

func loadRateLimits() (RateLimitConfig, error) {
	var (
		r   RateLimitConfig
		err error
	)

	if r.CheckInLimit, err = getInt("RATE_LIMIT_CHECKIN", 30); err != nil {
		return r, err
	}
	if r.CheckInWindow, err = getDuration("RATE_LIMIT_CHECKIN_WINDOW", time.Minute); err != nil {
		return r, err
	}
	if r.NewsletterLimit, err = getInt("RATE_LIMIT_NEWSLETTER", 5); err != nil {
		return r, err
	}
	if r.CheckoutLimit, err = getInt("RATE_LIMIT_CHECKOUT", 10); err != nil {
		return r, err
	}
	if r.Window, err = getDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return r, err
	}

	return r, nil
}

func loadUpstream() (UpstreamConfig, error) {
	var (
		u   UpstreamConfig
		err error
	)

	if u.Timeout, err = getDuration("UPSTREAM_TIMEOUT", 5*time.Second); err != nil {
		return u, err
	}
	if u.FailureThreshold, err = getInt("UPSTREAM_FAILURE_THRESHOLD", 5); err != nil {
		return u, err
	}
	if u.Cooldown, err = getDuration("UPSTREAM_COOLDOWN", 30*time.Second); err != nil {
		return u, err
	}

	return u, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	s := getenv(key, "")
	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func getBool(key string, def bool) (bool, error) {
	s := getenv(key, "")
	if s == "" {
		return def, nil
	}

	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	s := getenv(key, "")
	if s == "" {
		return def, nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
