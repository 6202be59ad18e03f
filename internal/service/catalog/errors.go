package catalog

import "errors"

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrNotTicketed      = errors.New("event has no ticket shop")
	ErrUpstream         = errors.New("catalog upstream unavailable")
	ErrInvalidVoucher   = errors.New("voucher code required")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)
