package pretix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type Config struct {
	BaseURL   string
	Token     string
	Organizer string
}

// Doer is satisfied by *upstream.Client and *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the pretix REST API with a bearer token.
type Client struct {
	baseURL   string
	token     string
	organizer string
	hc        Doer
}

func NewClient(cfg Config, hc Doer) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		organizer: cfg.Organizer,
		hc:        hc,
	}
}

func (c *Client) orgURL(parts ...string) string {
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}

	u := fmt.Sprintf("%s/api/v1/organizers/%s/", c.baseURL, url.PathEscape(c.organizer))
	if len(escaped) > 0 {
		u += strings.Join(escaped, "/") + "/"
	}
	return u
}

func (c *Client) eventURL(event string, parts ...string) string {
	return c.orgURL(append([]string{"events", event}, parts...)...)
}

func (c *Client) newRequest(ctx context.Context, method, u string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// do sends the request and returns status and body. Only transport
// failures and 5xx answers are errors here.
func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}

	return resp.StatusCode, b, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	status, body, err := c.do(req)
	if err != nil {
		return err
	}

	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status != http.StatusOK:
		return &APIError{StatusCode: status, Body: string(body)}
	}

	return json.Unmarshal(body, out)
}

type page[T any] struct {
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

func listAll[T any](ctx context.Context, c *Client, u string) ([]T, error) {
	var out []T

	for u != "" {
		var p page[T]
		if err := c.getJSON(ctx, u, &p); err != nil {
			return nil, err
		}

		out = append(out, p.Results...)

		u = ""
		if p.Next != nil {
			u = *p.Next
		}
	}

	return out, nil
}

func (c *Client) Items(ctx context.Context, event string) ([]Item, error) {
	const op = "pretix.Client.Items"

	items, err := listAll[Item](ctx, c, c.eventURL(event, "items"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return items, nil
}

func (c *Client) Quotas(ctx context.Context, event string) ([]Quota, error) {
	const op = "pretix.Client.Quotas"

	quotas, err := listAll[Quota](ctx, c, c.eventURL(event, "quotas")+"?with_availability=true")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return quotas, nil
}

// CreateOrder creates an order in the given state.
//
// Returns:
//   - error: pretix.ErrQuotaExceeded if a quota cannot cover the positions.
func (c *Client) CreateOrder(ctx context.Context, event string, r OrderRequest) (*Order, error) {
	const op = "pretix.Client.CreateOrder"

	req, err := c.newRequest(ctx, http.MethodPost, c.eventURL(event, "orders"), r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	status, body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case status == http.StatusCreated || status == http.StatusOK:
	case status == http.StatusConflict || (status == http.StatusBadRequest && isQuotaError(body)):
		return nil, fmt.Errorf("%s: %w", op, ErrQuotaExceeded)
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	default:
		return nil, fmt.Errorf("%s: %w", op, &APIError{StatusCode: status, Body: string(body)})
	}

	var o Order
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &o, nil
}

func isQuotaError(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "quota") || strings.Contains(s, "not enough")
}

// MarkPaid marks a pending order as paid. An order that is already paid is
// not an error.
func (c *Client) MarkPaid(ctx context.Context, event, code string) error {
	const op = "pretix.Client.MarkPaid"

	req, err := c.newRequest(ctx, http.MethodPost, c.eventURL(event, "orders", code, "mark_paid"), nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	status, body, err := c.do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case http.StatusBadRequest:
		var o Order
		if err := c.getJSON(ctx, c.eventURL(event, "orders", code), &o); err == nil && o.Status == OrderStatusPaid {
			return nil
		}
	}

	return fmt.Errorf("%s: %w", op, &APIError{StatusCode: status, Body: string(body)})
}

// CheckVoucher looks a voucher up by code.
//
// Returns:
//   - error: pretix.ErrNotFound if no voucher has this code.
func (c *Client) CheckVoucher(ctx context.Context, event, code string) (*Voucher, error) {
	const op = "pretix.Client.CheckVoucher"

	u := c.eventURL(event, "vouchers") + "?code=" + url.QueryEscape(code)

	var p page[Voucher]
	if err := c.getJSON(ctx, u, &p); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, v := range p.Results {
		if strings.EqualFold(v.Code, code) {
			return &v, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
}

type redeemRequest struct {
	Secret     string  `json:"secret"`
	Lists      []int64 `json:"lists"`
	Type       string  `json:"type"`
	SourceType string  `json:"source_type"`
}

// Redeem asks pretix to check a ticket secret in on a check-in list. Both
// successful and rejected redemptions come back as a result; the error is
// reserved for calls whose outcome is unknown.
func (c *Client) Redeem(ctx context.Context, secret string, listID int64) (*RedeemResult, error) {
	const op = "pretix.Client.Redeem"

	req, err := c.newRequest(ctx, http.MethodPost, c.orgURL("checkinrpc", "redeem"), redeemRequest{
		Secret:     secret,
		Lists:      []int64{listID},
		Type:       "entry",
		SourceType: "barcode",
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	status, body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusBadRequest, http.StatusNotFound:
	default:
		return nil, fmt.Errorf("%s: %w", op, &APIError{StatusCode: status, Body: string(body)})
	}

	var res RedeemResult
	if err := json.Unmarshal(body, &res); err != nil {
		if status == http.StatusNotFound {
			res = RedeemResult{Status: RedeemError, Reason: ReasonInvalid}
		} else {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}
	}

	if res.Status == "" {
		return nil, fmt.Errorf("%s: %w", op, errors.New("empty redemption status"))
	}

	res.Raw = rawJSON(body)

	return &res, nil
}

// rawJSON keeps body as-is when it is JSON. Anything else, such as a proxy's
// HTML error page, is wrapped as {"body": "..."}.
func rawJSON(body []byte) json.RawMessage {
	if json.Valid(body) {
		return json.RawMessage(body)
	}

	wrapped, _ := json.Marshal(map[string]string{"body": string(body)})
	return wrapped
}
