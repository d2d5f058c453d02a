package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/leaguebilling/pkg/logger"
	"github.com/dmitrymomot/leaguebilling/svc/billing"
)

const (
	// ActorHeader names who requested a team limit change.
	ActorHeader = "X-Actor"
	// SignatureHeader carries the webhook signature.
	SignatureHeader = "Stripe-Signature"

	webhookBodyLimit = 1 << 20
	requestBodyLimit = 64 << 10
)

// Service is the part of billing.Service the API exposes.
type Service interface {
	CreateCheckout(ctx context.Context, in billing.CheckoutInput) (*billing.CheckoutResult, error)
	GetSubscription(ctx context.Context, id int64) (*billing.SubscriptionView, error)
	ListSubscriptions(ctx context.Context, filter billing.SubscriptionFilter) ([]billing.SubscriptionView, error)
	ListTeamChanges(ctx context.Context, subscriptionID int64) ([]billing.TeamChange, error)
	ChangeTeamLimit(ctx context.Context, req billing.TeamLimitChange) (*billing.Subscription, error)
	IncreaseTeamLimitNow(ctx context.Context, req billing.TeamLimitChange) (*billing.ImmediateIncreaseResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

var _ Service = (*billing.Service)(nil)

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{svc: svc, log: log.With(logger.Component("httpapi"))}
}

// Routes mounts the billing API and the webhook endpoint.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1/billing", func(r chi.Router) {
		r.Post("/checkout-sessions", h.createCheckout)
		r.Get("/subscriptions", h.listSubscriptions)
		r.Get("/subscriptions/{id}", h.getSubscription)
		r.Patch("/subscriptions/{id}", h.changeTeamLimit)
		r.Get("/subscriptions/{id}/team-changes", h.listTeamChanges)
		r.Post("/subscriptions/{id}/immediate-increase", h.increaseTeamLimitNow)
	})
	r.Post("/api/v1/stripe/webhook", h.webhook)
}

func (h *Handler) createCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if errs := req.validate(); errs != nil {
		validationError(w, errs)
		return
	}

	res, err := h.svc.CreateCheckout(r.Context(), billing.CheckoutInput{
		UserID:         req.UserID,
		LeagueSeasonID: req.LeagueSeasonID,
		TeamLimit:      req.TeamLimit,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusCreated, checkoutResponse{SessionID: res.SessionID, URL: res.URL}, nil)
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		filter billing.SubscriptionFilter
		err    error
	)
	if filter.UserID, err = optionalID(q.Get("user_id")); err != nil {
		validationError(w, map[string][]string{"user_id": {"must be a positive integer"}})
		return
	}
	if filter.LeagueSeasonID, err = optionalID(q.Get("league_season_id")); err != nil {
		validationError(w, map[string][]string{"league_season_id": {"must be a positive integer"}})
		return
	}
	filter.UserEmail = strings.TrimSpace(q.Get("user_email"))

	views, err := h.svc.ListSubscriptions(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	out := make([]subscriptionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, newViewResponse(v))
	}
	writeData(w, http.StatusOK, out, map[string]any{"count": len(out)})
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := h.svc.GetSubscription(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, newViewResponse(*view), nil)
}

func (h *Handler) listTeamChanges(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	changes, err := h.svc.ListTeamChanges(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	out := make([]teamChangeResponse, 0, len(changes))
	for _, c := range changes {
		out = append(out, teamChangeResponse{
			ID:        c.ID,
			OldLimit:  c.OldLimit,
			NewLimit:  c.NewLimit,
			Actor:     c.Actor,
			Reason:    c.Reason,
			Mode:      string(c.Mode),
			CreatedAt: c.CreatedAt,
		})
	}
	writeData(w, http.StatusOK, out, map[string]any{"count": len(out)})
}

func (h *Handler) changeTeamLimit(w http.ResponseWriter, r *http.Request) {
	change, ok := h.teamLimitChange(w, r)
	if !ok {
		return
	}
	sub, err := h.svc.ChangeTeamLimit(r.Context(), change)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, newSubscriptionResponse(*sub), nil)
}

func (h *Handler) increaseTeamLimitNow(w http.ResponseWriter, r *http.Request) {
	change, ok := h.teamLimitChange(w, r)
	if !ok {
		return
	}
	res, err := h.svc.IncreaseTeamLimitNow(r.Context(), change)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	out := immediateIncreaseResponse{Subscription: newSubscriptionResponse(*res.Subscription)}
	if inv := res.Invoice; inv != nil {
		out.Invoice = &invoiceResponse{ID: inv.Ref, Status: inv.Status, AmountDue: inv.AmountDue, Currency: inv.Currency}
	}
	writeData(w, http.StatusOK, out, nil)
}

func (h *Handler) teamLimitChange(w http.ResponseWriter, r *http.Request) (billing.TeamLimitChange, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return billing.TeamLimitChange{}, false
	}
	var req teamLimitRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return billing.TeamLimitChange{}, false
	}
	if errs := req.validate(); errs != nil {
		validationError(w, errs)
		return billing.TeamLimitChange{}, false
	}
	return billing.TeamLimitChange{
		SubscriptionID: id,
		TeamLimit:      *req.TeamLimit,
		Actor:          strings.TrimSpace(r.Header.Get(ActorHeader)),
		Reason:         strings.TrimSpace(req.Reason),
	}, true
}

type webhookReceived struct {
	Received bool `json:"received"`
}

// webhook answers 400 for deliveries that can never succeed and 500 for
// failures the processor should retry.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, h.log, errors.Join(billing.ErrInvalidWebhook, err))
		return
	}

	sig := r.Header.Get(SignatureHeader)
	if strings.TrimSpace(sig) == "" {
		writeError(w, r, h.log, errors.Join(billing.ErrInvalidWebhook, errors.New("missing signature header")))
		return
	}

	if err := h.svc.HandleWebhook(r.Context(), payload, sig); err != nil {
		if errors.Is(err, billing.ErrInvalidWebhook) {
			writeError(w, r, h.log, err)
			return
		}
		h.log.ErrorContext(r.Context(), "webhook processing failed", logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, JSONResponse{Error: &ErrorDetail{
			Code:    "processing_failed",
			Message: "webhook processing failed",
		}})
		return
	}
	writeJSON(w, http.StatusOK, webhookReceived{Received: true})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, requestBodyLimit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(billing.ErrInvalidInput, err)
	}
	return nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		validationError(w, map[string][]string{"id": {"must be a positive integer"}})
		return 0, false
	}
	return id, true
}

func optionalID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, billing.ErrInvalidInput
	}
	return id, nil
}
