// Package upstream wraps outbound HTTP calls to SaaS dependencies with a
// bounded timeout and a per-host circuit breaker, so a failing upstream is
// given a cooldown instead of being hammered by every request.
package upstream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned when the upstream is down, timing out or
// cooling down after repeated failures.
var ErrUnavailable = errors.New("upstream unavailable")

// StatusError is a 5xx answer from an upstream.
type StatusError struct {
	Host       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s answered %d: %s", e.Host, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUnavailable }

type Config struct {
	Timeout          time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	// OnStateChange is called when a host's breaker changes state.
	OnStateChange func(host string, from, to gobreaker.State)
}

// Client is an http client that tracks failures per host.
type Client struct {
	hc     *http.Client
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}

	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		hc:       &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *Client) breaker(host string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}

	threshold := uint32(c.cfg.FailureThreshold)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     c.cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("upstream breaker state changed", "host", name, "from", from.String(), "to", to.String())
			if c.cfg.OnStateChange != nil {
				c.cfg.OnStateChange(name, from, to)
			}
		},
	})
	c.breakers[host] = cb

	return cb
}

// Do sends req. Transport errors and 5xx responses count as failures
// and come back wrapping ErrUnavailable; any other response is returned
// to the caller, who owns closing its body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	host := req.URL.Host
	cb := c.breaker(host)

	res, err := cb.Execute(func() (interface{}, error) {
		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, host, err)
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			defer resp.Body.Close()
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, &StatusError{Host: host, StatusCode: resp.StatusCode, Body: string(b)}
		}

		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s cooling down", ErrUnavailable, host)
		}
		return nil, err
	}

	return res.(*http.Response), nil
}

// States reports the breaker state of every host called so far.
func (c *Client) States() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string, len(c.breakers))
	for host, cb := range c.breakers {
		out[host] = cb.State().String()
	}

	return out
}
