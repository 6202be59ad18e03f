package httpgin

import (
	"github.com/wiredberlin/boxoffice/internal/domain"
	"github.com/wiredberlin/boxoffice/internal/service/checkout"
)

type CheckoutItem struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

type CheckoutRequest struct {
	EventSlug string         `json:"eventSlug" binding:"required"`
	Locale    string         `json:"locale"`
	Email     string         `json:"email"`
	Items     []CheckoutItem `json:"items" binding:"required,min=1,dive"`
}

func (r CheckoutRequest) toService() checkout.Request {
	items := make([]checkout.Item, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, checkout.Item{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	return checkout.Request{
		EventSlug: r.EventSlug,
		Locale:    r.Locale,
		Email:     r.Email,
		Items:     items,
	}
}

type CheckoutResponse struct {
	OrderID string `json:"orderId"`
	URL     string `json:"url"`
}

type OrderItemResponse struct {
	ProductID       string `json:"productId"`
	Name            string `json:"name"`
	Quantity        int    `json:"quantity"`
	UnitAmountCents int64  `json:"unitAmountCents"`
	Currency        string `json:"currency"`
}

// OrderResponse is the public view of an order. It carries no buyer data.
type OrderResponse struct {
	OrderID    string              `json:"orderId"`
	Status     domain.OrderStatus  `json:"status"`
	EventSlug  string              `json:"eventSlug"`
	TotalCents int64               `json:"totalCents"`
	Items      []OrderItemResponse `json:"items"`
}

func orderResponse(o *domain.TicketOrder) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ProductID:       it.ProductID,
			Name:            it.Name,
			Quantity:        it.Quantity,
			UnitAmountCents: it.UnitAmountCents,
			Currency:        it.Currency,
		})
	}

	return OrderResponse{
		OrderID:    o.ID.String(),
		Status:     o.Status,
		EventSlug:  o.EventSlug,
		TotalCents: o.TotalCents(),
		Items:      items,
	}
}

// ValidateRequest fields are checked by the check-in service so that a
// missing code still counts against the caller's rate limit.
type ValidateRequest struct {
	Code      string `json:"code"`
	EventSlug string `json:"eventSlug"`
}

type VoucherRequest struct {
	EventSlug string `json:"eventSlug" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

type NewsletterRequest struct {
	Email  string `json:"email" binding:"required"`
	Locale string `json:"locale"`
	Source string `json:"source"`
}

type NewsletterResponse struct {
	Subscribed bool `json:"subscribed"`
	Created    bool `json:"created"`
}

type WebhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
