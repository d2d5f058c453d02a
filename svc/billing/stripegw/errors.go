package stripegw

import "errors"

var (
	ErrMissingSecretKey   = errors.New("stripe secret key is required")
	ErrMissingSignature   = errors.New("missing stripe signature header")
	ErrInvalidSignature   = errors.New("stripe signature verification failed")
	ErrMalformedEvent     = errors.New("malformed stripe event payload")
	ErrEmptyCheckoutURL   = errors.New("stripe returned a checkout session without url")
	ErrSubscriptionNoItem = errors.New("stripe subscription has no items")
)
