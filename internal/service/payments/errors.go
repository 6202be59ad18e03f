package payments

import "errors"

var (
	ErrInvalidSignature = errors.New("invalid payment webhook signature")
	ErrInvalidPayload   = errors.New("invalid payment webhook payload")
	ErrUpstream         = errors.New("ticketing platform unavailable")
)
