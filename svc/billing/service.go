package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/leaguebilling/pkg/logger"
)

const defaultGatewayTimeout = 30 * time.Second

// Service is the billing core: checkout orchestration, webhook
// reconciliation and team limit changes over one Store and one Gateway.
type Service struct {
	store          Store
	gateway        Gateway
	catalog        SeasonCatalog
	webhookSecret  string
	clock          Clock
	log            *slog.Logger
	metrics        *Metrics
	gatewayTimeout time.Duration
	successURL     string
	cancelURL      string
}

// NewService panics on a nil store or gateway.
func NewService(store Store, gateway Gateway, webhookSecret string, opts ...Option) *Service {
	if store == nil {
		panic("billing: Store is required")
	}
	if gateway == nil {
		panic("billing: Gateway is required")
	}

	s := &Service{
		store:          store,
		gateway:        gateway,
		catalog:        NewStoreCatalog(store),
		webhookSecret:  webhookSecret,
		clock:          SystemClock,
		log:            logger.Discard(),
		metrics:        NewMetrics(nil),
		gatewayTimeout: defaultGatewayTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("billing"))
	return s
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// callGateway bounds fn by the gateway timeout.
func (s *Service) callGateway(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *Service) remoteSubscription(ctx context.Context, ref string) (*RemoteSubscription, error) {
	var remote *RemoteSubscription
	err := s.callGateway(ctx, func(ctx context.Context) error {
		var err error
		remote, err = s.gateway.GetSubscription(ctx, ref)
		return err
	})
	if err != nil {
		return nil, errors.Join(ErrGateway, err)
	}
	return remote, nil
}

// productFor treats a missing product as per-seat.
func productFor(ctx context.Context, q Queries, seasonID int64) (*SeasonProduct, error) {
	p, err := q.GetSeasonProduct(ctx, seasonID)
	if errors.Is(err, ErrSeasonProductMissing) {
		return nil, nil
	}
	return p, err
}
