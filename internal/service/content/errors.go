package content

import "errors"

var (
	ErrInvalidSignature = errors.New("invalid content webhook signature")
	ErrInvalidPayload   = errors.New("invalid content webhook payload")
)
