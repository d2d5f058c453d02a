package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrymomot/leaguebilling/pkg/logger"
)

// Metadata keys written into checkout sessions and remote subscriptions.
const (
	MetadataUserID    = "user_id"
	MetadataSeasonID  = "league_season_id"
	MetadataTeamLimit = "team_limit"
)

type CheckoutInput struct {
	UserID         int64
	LeagueSeasonID int64
	TeamLimit      int64
	SuccessURL     string // optional, overrides the service default
	CancelURL      string // optional, overrides the service default
}

type CheckoutResult struct {
	SessionID string
	URL       string
}

// CreateCheckout validates an enrollment request and opens a hosted checkout
// session. It never writes a subscription; the row appears when the
// processor reports a completed checkout.
func (s *Service) CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	res, err := s.createCheckout(ctx, in)
	switch {
	case err == nil:
		s.metrics.checkouts.WithLabelValues(outcomeCreated).Inc()
	case errors.Is(err, ErrGateway):
		s.metrics.checkouts.WithLabelValues(outcomeFailed).Inc()
	default:
		s.metrics.checkouts.WithLabelValues(outcomeRejected).Inc()
	}
	return res, err
}

func (s *Service) createCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if in.UserID <= 0 || in.LeagueSeasonID <= 0 {
		return nil, ErrInvalidInput
	}
	if in.TeamLimit < 1 {
		return nil, ErrInvalidTeamLimit
	}

	user, err := s.store.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	season, product, err := s.catalog.Season(ctx, in.LeagueSeasonID)
	if err != nil {
		return nil, err
	}

	if !season.EnrollmentOpen(s.now()) {
		return nil, ErrEnrollmentClosed
	}

	existing, err := s.store.FindSubscription(ctx, user.ID, season.ID)
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
	case err != nil:
		return nil, err
	case existing.RemoteRef != "":
		return nil, ErrSubscriptionExists
	}

	quantity := in.TeamLimit
	if !product.PerSeat() {
		quantity = 1
	}

	params := CheckoutParams{
		PriceRef:          product.PriceRef,
		Quantity:          quantity,
		CustomerEmail:     user.Email,
		ClientReferenceID: strconv.FormatInt(user.ID, 10),
		Metadata:          checkoutMetadata{UserID: user.ID, SeasonID: season.ID, TeamLimit: in.TeamLimit}.encode(),
		SuccessURL:        firstNonEmpty(in.SuccessURL, s.successURL),
		CancelURL:         firstNonEmpty(in.CancelURL, s.cancelURL),
	}

	var session *CheckoutSession
	err = s.callGateway(ctx, func(ctx context.Context) error {
		var err error
		session, err = s.gateway.CreateCheckout(ctx, params)
		return err
	})
	if err != nil {
		s.log.ErrorContext(ctx, "checkout session creation failed",
			logger.UserID(user.ID), logger.SeasonID(season.ID), logger.Error(err))
		return nil, errors.Join(ErrGateway, err)
	}

	s.log.InfoContext(ctx, "checkout session created",
		logger.UserID(user.ID), logger.SeasonID(season.ID),
		"session_id", session.ID, "team_limit", in.TeamLimit)

	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

type checkoutMetadata struct {
	UserID    int64
	SeasonID  int64
	TeamLimit int64 // zero when absent
}

func (m checkoutMetadata) encode() map[string]string {
	return map[string]string{
		MetadataUserID:    strconv.FormatInt(m.UserID, 10),
		MetadataSeasonID:  strconv.FormatInt(m.SeasonID, 10),
		MetadataTeamLimit: strconv.FormatInt(m.TeamLimit, 10),
	}
}

// parseCheckoutMetadata falls back to the client reference for the user id.
func parseCheckoutMetadata(md map[string]string, clientRef string) (checkoutMetadata, error) {
	var m checkoutMetadata

	userRaw := strings.TrimSpace(md[MetadataUserID])
	if userRaw == "" {
		userRaw = strings.TrimSpace(clientRef)
	}
	userID, err := positiveID(MetadataUserID, userRaw)
	if err != nil {
		return m, err
	}
	seasonID, err := positiveID(MetadataSeasonID, strings.TrimSpace(md[MetadataSeasonID]))
	if err != nil {
		return m, err
	}
	m.UserID, m.SeasonID = userID, seasonID

	if raw := strings.TrimSpace(md[MetadataTeamLimit]); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			m.TeamLimit = n
		}
	}
	return m, nil
}

func positiveID(key, raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("metadata %s is missing", key)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("metadata %s=%q is not a valid id", key, raw)
	}
	return n, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
