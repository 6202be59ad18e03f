package checkin

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wiredberlin/boxoffice/internal/auth"
	"github.com/wiredberlin/boxoffice/internal/cms"
	"github.com/wiredberlin/boxoffice/internal/domain"
	"github.com/wiredberlin/boxoffice/internal/pretix"
	"github.com/wiredberlin/boxoffice/internal/service/catalog"
)

type memLog struct {
	rows []domain.CheckInLog
	err  error
}

func (m *memLog) Append(_ context.Context, e *domain.CheckInLog) error {
	if m.err != nil {
		return m.err
	}
	e.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *e)
	return nil
}

func (m *memLog) Recent(_ context.Context, slug string, limit int) ([]domain.CheckInLog, error) {
	var out []domain.CheckInLog
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if m.rows[i].EventSlug == slug {
			out = append(out, m.rows[i])
		}
	}
	return out, nil
}

type countingLimiter struct {
	limit int
	seen  map[string]int
	err   error
}

func (l *countingLimiter) Allow(_ context.Context, key string) (bool, int64, time.Duration, error) {
	if l.err != nil {
		return false, 0, 0, l.err
	}
	l.seen[key]++
	n := l.seen[key]
	if n > l.limit {
		return false, int64(n - 1), 42 * time.Second, nil
	}
	return true, int64(n), 0, nil
}

type downPlatform struct{ pretix.Platform }

func (downPlatform) Redeem(context.Context, string, int64) (*pretix.RedeemResult, error) {
	return nil, errors.New("dial tcp: i/o timeout")
}

type explainingPlatform struct{ pretix.Platform }

func (explainingPlatform) Redeem(context.Context, string, int64) (*pretix.RedeemResult, error) {
	msg := "Only valid on Saturday"
	return &pretix.RedeemResult{Status: pretix.RedeemError, Reason: pretix.ReasonRules, ReasonExplanation: &msg}, nil
}

var staff = &auth.Identity{Subject: "door-1", Email: "door@wired.berlin", Role: auth.RoleStaff}

type fixture struct {
	svc      *Service
	log      *memLog
	limiter  *countingLimiter
	platform *pretix.Mock
}

func newFixture(platform pretix.Platform, cfg Config) fixture {
	mock := pretix.NewMock()
	if platform == nil {
		platform = mock
	}

	events := catalog.New(cms.NewMock(), mock, nil, slog.Default(), catalog.Config{})
	log := &memLog{}
	lim := &countingLimiter{limit: 30, seen: map[string]int{}}

	return fixture{
		svc:      New(events, platform, log, lim, slog.Default(), cfg),
		log:      log,
		limiter:  lim,
		platform: mock,
	}
}

func TestValidate_AlreadyRedeemedIsUsed(t *testing.T) {
	f := newFixture(nil, Config{})
	ctx := context.Background()

	_, err := f.platform.Redeem(ctx, "ABC123", 1)
	require.NoError(t, err)

	res, err := f.svc.Validate(ctx, Request{Code: "ABC123", EventSlug: "wired-002", Caller: staff})
	require.NoError(t, err)
	assert.Equal(t, &Result{Status: "used", Message: "Ticket already redeemed."}, res)

	require.Len(t, f.log.rows, 1)
	assert.Equal(t, domain.CheckInUsed, f.log.rows[0].Status)
	assert.Equal(t, "ABC123", f.log.rows[0].Code)
	assert.Equal(t, "door@wired.berlin", f.log.rows[0].ScannedBy)
	assert.NotEmpty(t, f.log.rows[0].RawResponse)
}

func TestValidate_OutcomesAreLogged(t *testing.T) {
	cases := []struct {
		code   string
		slug   string
		status string
		logged domain.CheckInStatus
	}{
		{code: "FRESH-1", slug: "wired-002", status: "valid", logged: domain.CheckInValid},
		{code: "https://wired.berlin/check?secret=FRESH-2", slug: "wired-002", status: "valid", logged: domain.CheckInValid},
		{code: "UNPAID-1", slug: "wired-002", status: "invalid", logged: domain.CheckInInvalid},
		{code: "BLOCKED-1", slug: "wired-002", status: "invalid", logged: domain.CheckInInvalid},
		{code: "EXPIRED-1", slug: "wired-002", status: "invalid", logged: domain.CheckInInvalid},
		{code: "UNKNOWN-1", slug: "wired-002", status: "invalid", logged: domain.CheckInInvalid},
		{code: "X", slug: "no-such-event", status: "invalid", logged: domain.CheckInInvalid},
		{code: "X", slug: "wired-open-air", status: "error", logged: domain.CheckInError},
	}

	for _, tc := range cases {
		t.Run(tc.code+"@"+tc.slug, func(t *testing.T) {
			f := newFixture(nil, Config{})

			res, err := f.svc.Validate(context.Background(), Request{Code: tc.code, EventSlug: tc.slug, Caller: staff})
			require.NoError(t, err)
			assert.Equal(t, tc.status, res.Status)
			assert.NotEmpty(t, res.Message)

			require.Len(t, f.log.rows, 1)
			assert.Equal(t, tc.logged, f.log.rows[0].Status)
			assert.Equal(t, res.Message, f.log.rows[0].Message)
		})
	}
}

func TestValidate_PlatformDownIsLoggedError(t *testing.T) {
	f := newFixture(downPlatform{}, Config{})

	res, err := f.svc.Validate(context.Background(), Request{Code: "ABC", EventSlug: "wired-002", Caller: staff})
	require.NoError(t, err)
	assert.Equal(t, "error", res.Status)
	assert.NotContains(t, res.Message, "dial tcp")

	require.Len(t, f.log.rows, 1)
	assert.Equal(t, domain.CheckInError, f.log.rows[0].Status)
}

func TestValidate_PlatformExplanationWins(t *testing.T) {
	f := newFixture(explainingPlatform{}, Config{})

	res, err := f.svc.Validate(context.Background(), Request{Code: "ABC", EventSlug: "wired-002", Caller: staff})
	require.NoError(t, err)
	assert.Equal(t, "invalid", res.Status)
	assert.Equal(t, "Only valid on Saturday", res.Message)
}

func TestValidate_Authorization(t *testing.T) {
	f := newFixture(nil, Config{})
	ctx := context.Background()

	_, err := f.svc.Validate(ctx, Request{Code: "A", EventSlug: "wired-002"})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.Validate(ctx, Request{Code: "A", EventSlug: "wired-002", Caller: &auth.Identity{Subject: "u", Role: auth.RoleUser}})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Validate(ctx, Request{Code: "A", EventSlug: "wired-002", Caller: &auth.Identity{Subject: "a", Role: auth.RoleAdmin}})
	require.NoError(t, err)

	assert.Len(t, f.log.rows, 1)

	demo := newFixture(nil, Config{AllowAnonymous: true})
	res, err := demo.svc.Validate(ctx, Request{Code: "A", EventSlug: "wired-002", ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "valid", res.Status)
	assert.Equal(t, "anonymous", demo.log.rows[0].ScannedBy)
}

func TestValidate_RateLimited(t *testing.T) {
	f := newFixture(nil, Config{})
	f.limiter.limit = 2
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Validate(ctx, Request{Code: "UNKNOWN-x", EventSlug: "wired-002", Caller: staff})
		require.NoError(t, err)
	}

	_, err := f.svc.Validate(ctx, Request{Code: "UNKNOWN-x", EventSlug: "wired-002", Caller: staff})
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 42*time.Second, rl.RetryAfter)
	assert.Len(t, f.log.rows, 2)

	other := &auth.Identity{Subject: "door-2", Role: auth.RoleStaff}
	_, err = f.svc.Validate(ctx, Request{Code: "UNKNOWN-x", EventSlug: "wired-002", Caller: other})
	require.NoError(t, err)
}

func TestValidate_LimiterDownFailsOpen(t *testing.T) {
	f := newFixture(nil, Config{})
	f.limiter.err = errors.New("redis down")

	res, err := f.svc.Validate(context.Background(), Request{Code: "A", EventSlug: "wired-002", Caller: staff})
	require.NoError(t, err)
	assert.Equal(t, "valid", res.Status)
}

func TestValidate_LogFailureIsError(t *testing.T) {
	f := newFixture(nil, Config{})
	f.log.err = errors.New("db down")

	_, err := f.svc.Validate(context.Background(), Request{Code: "A", EventSlug: "wired-002", Caller: staff})
	require.Error(t, err)
}

func TestRecent(t *testing.T) {
	f := newFixture(nil, Config{})
	ctx := context.Background()

	for _, code := range []string{"A", "B", "A"} {
		_, err := f.svc.Validate(ctx, Request{Code: code, EventSlug: "wired-002", Caller: staff})
		require.NoError(t, err)
	}

	logs, err := f.svc.Recent(ctx, staff, "wired-002", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.CheckInUsed, logs[0].Status)
	assert.Equal(t, "B", logs[1].Code)
}
