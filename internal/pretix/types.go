package pretix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("pretix: not found")
	ErrQuotaExceeded = errors.New("pretix: not enough quota left")
)

// APIError is a 4xx answer that does not map to a sentinel.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pretix: status %d: %s", e.StatusCode, e.Body)
}

// Platform is the subset of the pretix REST API this service uses.
type Platform interface {
	Items(ctx context.Context, event string) ([]Item, error)
	Quotas(ctx context.Context, event string) ([]Quota, error)
	CreateOrder(ctx context.Context, event string, req OrderRequest) (*Order, error)
	MarkPaid(ctx context.Context, event, code string) error
	CheckVoucher(ctx context.Context, event, code string) (*Voucher, error)
	Redeem(ctx context.Context, secret string, listID int64) (*RedeemResult, error)
}

// LocalizedString is pretix's i18n field: language code to text.
type LocalizedString map[string]string

// In returns the text for the first locale present, then English, then
// any value.
func (l LocalizedString) In(locales ...string) string {
	for _, loc := range append(locales, "en") {
		if v, ok := l[loc]; ok && v != "" {
			return v
		}
	}
	for _, v := range l {
		if v != "" {
			return v
		}
	}
	return ""
}

type Item struct {
	ID           int64           `json:"id"`
	Name         LocalizedString `json:"name"`
	DefaultPrice *string         `json:"default_price"`
	Active       bool            `json:"active"`
	Admission    bool            `json:"admission"`
	MinPerOrder  *int            `json:"min_per_order"`
	MaxPerOrder  *int            `json:"max_per_order"`
}

type Quota struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Size            *int    `json:"size"`
	Items           []int64 `json:"items"`
	Available       bool    `json:"available"`
	AvailableNumber *int    `json:"available_number"`
}

type OrderRequest struct {
	Email           string          `json:"email,omitempty"`
	Locale          string          `json:"locale"`
	SalesChannel    string          `json:"sales_channel"`
	Status          string          `json:"status"`
	PaymentProvider string          `json:"payment_provider"`
	SendEmail       bool            `json:"send_email"`
	Comment         string          `json:"comment,omitempty"`
	Positions       []OrderPosition `json:"positions"`
}

type OrderPosition struct {
	Item  int64  `json:"item"`
	Price string `json:"price,omitempty"`
}

type Order struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Secret string `json:"secret"`
	Email  string `json:"email"`
	Total  string `json:"total"`
}

// Order status codes.
const (
	OrderStatusPending = "n"
	OrderStatusPaid    = "p"
)

type Voucher struct {
	ID         int64      `json:"id"`
	Code       string     `json:"code"`
	MaxUsages  int        `json:"max_usages"`
	Redeemed   int        `json:"redeemed"`
	ValidUntil *time.Time `json:"valid_until"`
	Block      bool       `json:"block_quota"`
	PriceMode  string     `json:"price_mode"`
	Value      *string    `json:"value"`
	Item       *int64     `json:"item"`
}

// Usable reports whether the voucher can still be redeemed at now.
func (v Voucher) Usable(now time.Time) bool {
	if v.Redeemed >= v.MaxUsages {
		return false
	}
	if v.ValidUntil != nil && now.After(*v.ValidUntil) {
		return false
	}
	return true
}

// Redemption statuses and reasons as returned by the check-in RPC.
const (
	RedeemOK         = "ok"
	RedeemError      = "error"
	RedeemIncomplete = "incomplete"

	ReasonAlreadyRedeemed = "already_redeemed"
	ReasonUnpaid          = "unpaid"
	ReasonInvalidTime     = "invalid_time"
	ReasonBlocked         = "blocked"
	ReasonInvalid         = "invalid"
	ReasonCanceled        = "canceled"
	ReasonRevoked         = "revoked"
	ReasonProduct         = "product"
	ReasonRules           = "rules"
	ReasonAmbiguous       = "ambiguous"
)

type RedeemResult struct {
	Status            string    `json:"status"`
	Reason            string    `json:"reason,omitempty"`
	ReasonExplanation *string   `json:"reason_explanation,omitempty"`
	Position          *Position `json:"position,omitempty"`
	// Raw is the unmodified response body.
	Raw json.RawMessage `json:"-"`
}

type Position struct {
	ID           int64  `json:"id"`
	Order        string `json:"order"`
	Item         int64  `json:"item"`
	AttendeeName string `json:"attendee_name"`
	Secret       string `json:"secret"`
}
