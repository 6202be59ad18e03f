package pretix

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Mock is an in-memory Platform for local development and tests.
//
// Ticket secrets starting with UNPAID-, BLOCKED- or EXPIRED- are rejected
// with the matching reason. Secrets starting with UNKNOWN- are invalid.
// Any other secret checks in once and reports already_redeemed afterwards.
type Mock struct {
	mu       sync.Mutex
	items    map[string][]Item
	quotas   map[string][]Quota
	vouchers map[string][]Voucher
	orders   map[string]*Order
	redeemed map[string]bool
	seq      int
}

func NewMock() *Mock {
	price := func(s string) *string { return &s }
	intp := func(n int) *int { return &n }

	return &Mock{
		items: map[string][]Item{
			"wired-002": {
				{ID: 101, Name: LocalizedString{"de": "Abendkasse", "en": "Regular"}, DefaultPrice: price("18.00"), Active: true, Admission: true, MaxPerOrder: intp(6)},
				{ID: 102, Name: LocalizedString{"de": "Ermäßigt", "en": "Reduced"}, DefaultPrice: price("12.00"), Active: true, Admission: true, MaxPerOrder: intp(2)},
				{ID: 103, Name: LocalizedString{"de": "Soli", "en": "Solidarity"}, DefaultPrice: price("25.00"), Active: false, Admission: true},
			},
		},
		quotas: map[string][]Quota{
			"wired-002": {
				{ID: 1, Name: "Main", Size: intp(200), Items: []int64{101, 102}, Available: true, AvailableNumber: intp(120)},
				{ID: 2, Name: "Reduced", Size: intp(20), Items: []int64{102}, Available: true, AvailableNumber: intp(4)},
			},
		},
		vouchers: map[string][]Voucher{
			"wired-002": {
				{ID: 1, Code: "CREW", MaxUsages: 10, Redeemed: 2, PriceMode: "set", Value: price("0.00")},
				{ID: 2, Code: "USEDUP", MaxUsages: 1, Redeemed: 1},
			},
		},
		orders:   map[string]*Order{},
		redeemed: map[string]bool{},
	}
}

func (m *Mock) Items(_ context.Context, event string) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items, ok := m.items[event]
	if !ok {
		return nil, fmt.Errorf("pretix.Mock.Items: %w", ErrNotFound)
	}
	return append([]Item(nil), items...), nil
}

func (m *Mock) Quotas(_ context.Context, event string) ([]Quota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[event]; !ok {
		return nil, fmt.Errorf("pretix.Mock.Quotas: %w", ErrNotFound)
	}
	return append([]Quota(nil), m.quotas[event]...), nil
}

func (m *Mock) CreateOrder(_ context.Context, event string, req OrderRequest) (*Order, error) {
	const op = "pretix.Mock.CreateOrder"

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[event]; !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	wanted := map[int64]int{}
	for _, p := range req.Positions {
		wanted[p.Item]++
	}

	qs := m.quotas[event]
	for id, n := range wanted {
		for _, q := range qs {
			if !containsID(q.Items, id) || q.AvailableNumber == nil {
				continue
			}
			if *q.AvailableNumber < n {
				return nil, fmt.Errorf("%s: %w", op, ErrQuotaExceeded)
			}
		}
	}

	for id, n := range wanted {
		for i := range qs {
			if containsID(qs[i].Items, id) && qs[i].AvailableNumber != nil {
				left := *qs[i].AvailableNumber - n
				qs[i].AvailableNumber = &left
				qs[i].Available = left > 0
			}
		}
	}

	m.seq++
	o := &Order{
		Code:   fmt.Sprintf("MOCK%04d", m.seq),
		Status: req.Status,
		Secret: fmt.Sprintf("mock-secret-%d", m.seq),
		Email:  req.Email,
	}
	if o.Status == "" {
		o.Status = OrderStatusPending
	}
	m.orders[event+"/"+o.Code] = o

	cp := *o
	return &cp, nil
}

func (m *Mock) MarkPaid(_ context.Context, event, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[event+"/"+code]
	if !ok {
		return fmt.Errorf("pretix.Mock.MarkPaid: %w", ErrNotFound)
	}
	o.Status = OrderStatusPaid
	return nil
}

func (m *Mock) CheckVoucher(_ context.Context, event, code string) (*Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range m.vouchers[event] {
		if strings.EqualFold(v.Code, code) {
			cp := v
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("pretix.Mock.CheckVoucher: %w", ErrNotFound)
}

// OrderStatus returns the status of a mock order, or "" if it does not exist.
func (m *Mock) OrderStatus(event, code string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o, ok := m.orders[event+"/"+code]; ok {
		return o.Status
	}
	return ""
}

func (m *Mock) Redeem(_ context.Context, secret string, listID int64) (*RedeemResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := &RedeemResult{Status: RedeemError}

	switch {
	case strings.HasPrefix(secret, "UNPAID-"):
		res.Reason = ReasonUnpaid
	case strings.HasPrefix(secret, "BLOCKED-"):
		res.Reason = ReasonBlocked
	case strings.HasPrefix(secret, "EXPIRED-"):
		res.Reason = ReasonInvalidTime
	case strings.HasPrefix(secret, "UNKNOWN-"):
		res.Reason = ReasonInvalid
	default:
		key := fmt.Sprintf("%d/%s", listID, secret)
		if m.redeemed[key] {
			res.Reason = ReasonAlreadyRedeemed
		} else {
			m.redeemed[key] = true
			res.Status = RedeemOK
		}
		res.Position = &Position{ID: int64(len(m.redeemed)), Order: "MOCK", Secret: secret}
	}

	raw, _ := json.Marshal(struct {
		*RedeemResult
		At time.Time `json:"at"`
	}{res, time.Now().UTC()})
	res.Raw = raw

	return res, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
