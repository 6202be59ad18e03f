package checkout

import "errors"

var (
	ErrInvalidCart     = errors.New("invalid cart")
	ErrUnknownProduct  = errors.New("unknown product")
	ErrProductInactive = errors.New("product is not on sale")
	ErrProductUnpriced = errors.New("product has no price")
	ErrQuantityLimit   = errors.New("quantity limit exceeded")
	ErrSoldOut         = errors.New("not enough tickets left")
	ErrUpstream        = errors.New("checkout upstream unavailable")
)
