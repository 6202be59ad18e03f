package checkin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wiredberlin/boxoffice/internal/auth"
	"github.com/wiredberlin/boxoffice/internal/domain"
	"github.com/wiredberlin/boxoffice/internal/metrics"
	"github.com/wiredberlin/boxoffice/internal/pretix"
	"github.com/wiredberlin/boxoffice/internal/service/catalog"
)

type Events interface {
	Event(ctx context.Context, slug string) (*domain.Event, error)
}

type Log interface {
	Append(ctx context.Context, entry *domain.CheckInLog) error
	Recent(ctx context.Context, eventSlug string, limit int) ([]domain.CheckInLog, error)
}

// Limiter is satisfied by the redis sliding-window limiter.
type Limiter interface {
	Allow(ctx context.Context, suffix string) (bool, int64, time.Duration, error)
}

type Config struct {
	// AllowAnonymous skips the role check, for demo mode.
	AllowAnonymous bool
}

type Service struct {
	events   Events
	platform pretix.Platform
	log      Log
	limiter  Limiter
	logger   *slog.Logger
	cfg      Config
}

func New(events Events, platform pretix.Platform, log Log, limiter Limiter, logger *slog.Logger, cfg Config) *Service {
	return &Service{
		events:   events,
		platform: platform,
		log:      log,
		limiter:  limiter,
		logger:   logger,
		cfg:      cfg,
	}
}

type Request struct {
	Code      string
	EventSlug string
	// Caller is nil when the request carries no session.
	Caller   *auth.Identity
	ClientIP string
}

type Result struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Attendee string `json:"attendee,omitempty"`
}

const (
	msgValid      = "Ticket valid. Welcome!"
	msgUsed       = "Ticket already redeemed."
	msgNotFound   = "Ticket not found."
	msgUnknownEv  = "Unknown event."
	msgNoList     = "Check-in is not configured for this event."
	msgVerifyFail = "Verification failed. Please try again."
)

var reasonMessages = map[string]string{
	pretix.ReasonUnpaid:      "Order is not paid.",
	pretix.ReasonInvalidTime: "Ticket is not valid at this time.",
	pretix.ReasonBlocked:     "Ticket is blocked.",
	pretix.ReasonCanceled:    "Ticket was canceled.",
	pretix.ReasonRevoked:     "Ticket was revoked.",
	pretix.ReasonProduct:     "Ticket is not valid for this entrance.",
	pretix.ReasonRules:       "Entry rules do not allow this ticket.",
	pretix.ReasonAmbiguous:   "Code matches several tickets.",
	pretix.ReasonInvalid:     msgNotFound,
}

// Validate redeems a scanned code at the door. Every attempt that passes
// authorization and rate limiting is written to the check-in log before
// the result is returned.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: raw scanner payload, event slug and caller.
//
// Returns:
//   - *Result: valid, used, invalid or error with a message for the door.
//   - error: checkin.ErrUnauthorized or ErrForbidden if the caller may not scan.
//   - error: *checkin.RateLimitedError if the caller scans too fast.
//   - error: if the attempt could not be logged.
func (s *Service) Validate(ctx context.Context, req Request) (*Result, error) {
	const op = "service.checkin.Validate"

	if !s.cfg.AllowAnonymous {
		if req.Caller == nil {
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		if !req.Caller.Has(auth.RoleStaff) {
			return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
		}
	}

	if err := s.allow(ctx, callerKey(req)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	secret := ExtractSecret(req.Code)
	slug := strings.TrimSpace(req.EventSlug)
	if secret == "" || slug == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRequest)
	}

	entry := &domain.CheckInLog{
		Code:      secret,
		EventSlug: slug,
		ScannedBy: scannedBy(req.Caller),
	}

	res := s.redeem(ctx, slug, secret, entry)

	if err := s.log.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.CheckIn(slug, res.Status)

	return res, nil
}

// redeem fills entry and returns the door result.
func (s *Service) redeem(ctx context.Context, slug, secret string, entry *domain.CheckInLog) *Result {
	const op = "service.checkin.redeem"

	ev, err := s.events.Event(ctx, slug)
	if err != nil {
		if errors.Is(err, catalog.ErrEventNotFound) {
			return finish(entry, domain.CheckInInvalid, msgUnknownEv, nil)
		}

		s.logger.Error("check-in event lookup failed", "op", op, "event_slug", slug, "error", err)

		return finish(entry, domain.CheckInError, msgVerifyFail, errorRaw(err))
	}

	if ev.TicketSource != domain.SourcePretix || ev.CheckInListID == 0 {
		return finish(entry, domain.CheckInError, msgNoList, nil)
	}

	rr, err := s.platform.Redeem(ctx, secret, ev.CheckInListID)
	if err != nil {
		s.logger.Error("redeem failed", "op", op, "event_slug", slug, "list", ev.CheckInListID, "error", err)

		return finish(entry, domain.CheckInError, msgVerifyFail, errorRaw(err))
	}

	status, msg := mapRedeem(rr)

	out := finish(entry, status, msg, rr.Raw)
	if status == domain.CheckInValid && rr.Position != nil {
		out.Attendee = rr.Position.AttendeeName
	}

	return out
}

func mapRedeem(rr *pretix.RedeemResult) (domain.CheckInStatus, string) {
	explain := ""
	if rr.ReasonExplanation != nil {
		explain = strings.TrimSpace(*rr.ReasonExplanation)
	}

	pick := func(def string) string {
		if explain != "" {
			return explain
		}
		return def
	}

	switch rr.Status {
	case pretix.RedeemOK:
		return domain.CheckInValid, pick(msgValid)
	case pretix.RedeemIncomplete:
		return domain.CheckInInvalid, pick("Check-in requires additional information.")
	case pretix.RedeemError:
	default:
		return domain.CheckInError, pick(msgVerifyFail)
	}

	if rr.Reason == pretix.ReasonAlreadyRedeemed {
		return domain.CheckInUsed, pick(msgUsed)
	}

	if m, ok := reasonMessages[rr.Reason]; ok {
		return domain.CheckInInvalid, pick(m)
	}

	return domain.CheckInInvalid, pick(msgNotFound)
}

func finish(entry *domain.CheckInLog, status domain.CheckInStatus, msg string, raw json.RawMessage) *Result {
	entry.Status = status
	entry.Message = msg
	entry.RawResponse = raw

	return &Result{Status: strings.ToLower(string(status)), Message: msg}
}

func (s *Service) allow(ctx context.Context, key string) error {
	if s.limiter == nil {
		return nil
	}

	ok, _, retry, err := s.limiter.Allow(ctx, key)
	if err != nil {
		// Door scanning keeps working when redis is down.
		s.logger.Warn("check-in rate limiter unavailable", "error", err)
		return nil
	}

	if !ok {
		return &RateLimitedError{RetryAfter: retry}
	}

	return nil
}

// Recent lists the latest scans of an event for the door dashboard.
func (s *Service) Recent(ctx context.Context, caller *auth.Identity, eventSlug string, limit int) ([]domain.CheckInLog, error) {
	const op = "service.checkin.Recent"

	if !s.cfg.AllowAnonymous {
		if caller == nil {
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		if !caller.Has(auth.RoleStaff) {
			return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
		}
	}

	if strings.TrimSpace(eventSlug) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRequest)
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	logs, err := s.log.Recent(ctx, eventSlug, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return logs, nil
}

func callerKey(req Request) string {
	if req.Caller != nil && req.Caller.Subject != "" {
		return "user:" + req.Caller.Subject
	}
	return "ip:" + req.ClientIP
}

func scannedBy(caller *auth.Identity) string {
	if caller == nil {
		return "anonymous"
	}
	if caller.Email != "" {
		return caller.Email
	}
	return caller.Subject
}

func errorRaw(err error) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return b
}
