package billing

import (
	"log/slog"
	"time"
)

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithCatalog replaces the store-backed season lookup used by checkout.
func WithCatalog(c SeasonCatalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithGatewayTimeout bounds every payment processor call.
func WithGatewayTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.gatewayTimeout = d
		}
	}
}

// WithRedirectURLs sets the default checkout success and cancel URLs.
func WithRedirectURLs(success, cancel string) Option {
	return func(s *Service) {
		s.successURL = success
		s.cancelURL = cancel
	}
}
