package redis

import "errors"

var (
	ErrEmptyConnectionURL   = errors.New("redis: connection url is empty")
	ErrInvalidConnectionURL = errors.New("redis: invalid connection url")
	ErrNotReady             = errors.New("redis: server not ready before retries ran out")
	ErrHealthcheckFailed    = errors.New("redis: ping failed")
)
