// Package redis opens go-redis clients with start-up retries and exposes a
// readiness probe for them.
package redis
