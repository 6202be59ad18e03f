package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
)

type CheckInStatus string

const (
	CheckInValid   CheckInStatus = "VALID"
	CheckInUsed    CheckInStatus = "USED"
	CheckInInvalid CheckInStatus = "INVALID"
	CheckInError   CheckInStatus = "ERROR"
)

// TicketSource tells where an event's products live.
type TicketSource string

const (
	SourcePretix TicketSource = "pretix"
	SourceCMS    TicketSource = "cms"
)

// Event is the CMS view of an event, including the references needed to
// sell and scan tickets for it.
type Event struct {
	ID            string          `json:"id"`
	Slug          string          `json:"slug"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Venue         string          `json:"venue,omitempty"`
	Address       string          `json:"address,omitempty"`
	StartsAt      time.Time       `json:"startsAt"`
	EndsAt        time.Time       `json:"endsAt"`
	TicketSource  TicketSource    `json:"ticketSource"`
	UpstreamEvent string          `json:"upstreamEvent,omitempty"`
	CheckInListID int64           `json:"checkInListId,omitempty"`
	Products      []ProductMirror `json:"products,omitempty"`
}

// ProductMirror is a product configured directly in the CMS for events that
// are not sold through the ticketing platform.
type ProductMirror struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	Active      bool   `json:"active"`
	MaxPerOrder int    `json:"maxPerOrder,omitempty"`
}

// Product is a resolved, sellable product. Available is nil when the
// upstream reports no quota limit.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	HasPrice    bool            `json:"hasPrice"`
	Currency    string          `json:"currency"`
	Active      bool            `json:"active"`
	MaxPerOrder int             `json:"maxPerOrder,omitempty"`
	Available   *int            `json:"available,omitempty"`
}

// UnitAmountCents converts the price to minor units.
func (p Product) UnitAmountCents() int64 {
	return p.Price.Shift(2).Round(0).IntPart()
}

type TicketOrder struct {
	ID                uuid.UUID         `json:"id"`
	EventSlug         string            `json:"eventSlug"`
	UpstreamEvent     string            `json:"upstreamEvent,omitempty"`
	Locale            string            `json:"locale"`
	Status            OrderStatus       `json:"status"`
	Email             string            `json:"email,omitempty"`
	PaymentSessionID  string            `json:"paymentSessionId,omitempty"`
	UpstreamOrderCode string            `json:"upstreamOrderCode,omitempty"`
	Metadata          json.RawMessage   `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	Items             []TicketOrderItem `json:"items"`
}

// TotalCents sums the snapshot line items.
func (o TicketOrder) TotalCents() int64 {
	var total int64
	for _, it := range o.Items {
		total += it.UnitAmountCents * int64(it.Quantity)
	}
	return total
}

// TicketOrderItem is an immutable snapshot of one purchased product.
type TicketOrderItem struct {
	ID              int64     `json:"id"`
	OrderID         uuid.UUID `json:"orderId"`
	ProductID       string    `json:"productId"`
	Name            string    `json:"name"`
	Quantity        int       `json:"quantity"`
	UnitAmountCents int64     `json:"unitAmountCents"`
	Currency        string    `json:"currency"`
}

type CheckInLog struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	EventSlug   string          `json:"eventSlug"`
	Status      CheckInStatus   `json:"status"`
	Message     string          `json:"message"`
	RawResponse json.RawMessage `json:"rawResponse,omitempty"`
	ScannedBy   string          `json:"scannedBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type Subscriber struct {
	Email     string    `json:"email"`
	Locale    string    `json:"locale"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

type Artist struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Slug  string   `json:"slug"`
	Bio   string   `json:"bio,omitempty"`
	Links []string `json:"links,omitempty"`
}
