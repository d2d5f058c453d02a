package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/leaguebilling/pkg/httpserver"
	"github.com/dmitrymomot/leaguebilling/pkg/requestid"
	"github.com/dmitrymomot/leaguebilling/svc/billing"
	"github.com/dmitrymomot/leaguebilling/svc/billing/httpapi"
)

type envelope struct {
	Data  json.RawMessage      `json:"data"`
	Meta  map[string]any       `json:"meta"`
	Error *httpapi.ErrorDetail `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func router(svc httpapi.Service) http.Handler {
	return httpapi.NewRouter(svc, httpapi.WithGatherer(prometheus.NewRegistry()))
}

func TestCreateCheckout(t *testing.T) {
	t.Parallel()

	t.Run("created", func(t *testing.T) {
		t.Parallel()
		svc := new(MockService)
		svc.On("CreateCheckout", mock.Anything, billing.CheckoutInput{UserID: 7, LeagueSeasonID: 3, TeamLimit: 5}).
			Return(&billing.CheckoutResult{SessionID: "cs_1", URL: "https://checkout.test/cs_1"}, nil)

		rec, env := do(t, router(svc), http.MethodPost, "/api/v1/billing/checkout-sessions",
			`{"user_id": 7, "league_season_id": 3, "team_limit": 5}`, nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"session_id": "cs_1", "url": "https://checkout.test/cs_1"}`, string(env.Data))
		assert.NotEmpty(t, rec.Header().Get(requestid.Header))
		svc.AssertExpectations(t)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		svc := new(MockService)

		rec, env := do(t, router(svc), http.MethodPost, "/api/v1/billing/checkout-sessions",
			`{"user_id": 7, "team_limit": 0}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "validation_error", env.Error.Code)
		assert.Contains(t, env.Error.Details, "team_limit")
		assert.Contains(t, env.Error.Details, "league_season_id")
		svc.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything)
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()
		rec, env := do(t, router(new(MockService)), http.MethodPost, "/api/v1/billing/checkout-sessions", `{"user_id":`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_request", env.Error.Code)
	})

	errCases := []struct {
		err    error
		status int
		code   string
	}{
		{billing.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
		{billing.ErrSeasonNotFound, http.StatusNotFound, "season_not_found"},
		{billing.ErrSubscriptionExists, http.StatusConflict, "subscription_exists"},
		{billing.ErrEnrollmentClosed, http.StatusUnprocessableEntity, "enrollment_closed"},
		{billing.ErrSeasonProductMissing, http.StatusInternalServerError, "product_missing"},
		{errors.Join(billing.ErrGateway, errors.New("timeout")), http.StatusBadGateway, "payment_gateway_error"},
		{errors.New("db down"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range errCases {
		t.Run(tc.code, func(t *testing.T) {
			t.Parallel()
			svc := new(MockService)
			svc.On("CreateCheckout", mock.Anything, mock.Anything).Return(nil, tc.err)

			rec, env := do(t, router(svc), http.MethodPost, "/api/v1/billing/checkout-sessions",
				`{"user_id": 7, "league_season_id": 3, "team_limit": 5}`, nil)
			assert.Equal(t, tc.status, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
			assert.NotContains(t, rec.Body.String(), "db down")
		})
	}
}

func TestSubscriptionQueries(t *testing.T) {
	t.Parallel()

	view := billing.SubscriptionView{
		Subscription: billing.Subscription{ID: 11, UserID: 7, LeagueSeasonID: 3, Status: billing.StatusActive, TeamLimit: 5},
		LeagueID:     1,
		LeagueName:   "Sunday Five-a-side",
		SeasonName:   "Spring",
	}

	t.Run("list with filters", func(t *testing.T) {
		t.Parallel()
		svc := new(MockService)
		svc.On("ListSubscriptions", mock.Anything, billing.SubscriptionFilter{UserID: 7, LeagueSeasonID: 3, UserEmail: "coach@example.com"}).
			Return([]billing.SubscriptionView{view}, nil)

		rec, env := do(t, router(svc), http.MethodGet,
			"/api/v1/billing/subscriptions?user_id=7&league_season_id=3&user_email=coach@example.com", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 1, env.Meta["count"])

		var subs []map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &subs))
		require.Len(t, subs, 1)
		assert.Equal(t, "ACTIVE", subs[0]["status"])
		assert.Equal(t, "Spring", subs[0]["season_name"])
	})

	t.Run("list rejects bad ids", func(t *testing.T) {
		t.Parallel()
		rec, _ := do(t, router(new(MockService)), http.MethodGet, "/api/v1/billing/subscriptions?user_id=abc", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get", func(t *testing.T) {
		t.Parallel()
		svc := new(MockService)
		svc.On("GetSubscription", mock.Anything, int64(11)).Return(&view, nil)
		svc.On("GetSubscription", mock.Anything, int64(12)).Return(nil, billing.ErrSubscriptionNotFound)

		rec, env := do(t, router(svc), http.MethodGet, "/api/v1/billing/subscriptions/11", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		var sub map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &sub))
		assert.EqualValues(t, 11, sub["id"])
		assert.Equal(t, "Sunday Five-a-side", sub["league_name"])

		rec, env = do(t, router(svc), http.MethodGet, "/api/v1/billing/subscriptions/12", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "subscription_not_found", env.Error.Code)

		rec, _ = do(t, router(svc), http.MethodGet, "/api/v1/billing/subscriptions/zero", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("team changes", func(t *testing.T) {
		t.Parallel()
		svc := new(MockService)
		svc.On("ListTeamChanges", mock.Anything, int64(11)).Return([]billing.TeamChange{
			{ID: 1, SubscriptionID: 11, OldLimit: 5, NewLimit: 3, Actor: "admin", Mode: billing.ChangeDeferred},
		}, nil)

		rec, env := do(t, router(svc), http.MethodGet, "/api/v1/billing/subscriptions/11/team-changes", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		var changes []map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &changes))
		require.Len(t, changes, 1)
		assert.Equal(t, "deferred", changes[0]["mode"])
		assert.Equal(t, "admin", changes[0]["actor"])
	})
}

func TestTeamLimitChanges(t *testing.T) {
	t.Parallel()

	t.Run("deferred change carries actor and reason", func(t *testing.T) {
		t.Parallel()
		svc := new(MockService)
		svc.On("ChangeTeamLimit", mock.Anything, billing.TeamLimitChange{
			SubscriptionID: 11, TeamLimit: 3, Actor: "admin", Reason: "withdrawn",
		}).Return(&billing.Subscription{ID: 11, TeamLimit: 3, Status: billing.StatusActive}, nil)

		rec, env := do(t, router(svc), http.MethodPatch, "/api/v1/billing/subscriptions/11",
			`{"team_limit": 3, "reason": "withdrawn"}`, map[string]string{httpapi.ActorHeader: "admin"})
		assert.Equal(t, http.StatusOK, rec.Code)
		var sub map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &sub))
		assert.EqualValues(t, 3, sub["team_limit"])
		svc.AssertExpectations(t)
	})

	t.Run("missing team limit", func(t *testing.T) {
		t.Parallel()
		rec, env := do(t, router(new(MockService)), http.MethodPatch, "/api/v1/billing/subscriptions/11", `{}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, env.Error.Details, "team_limit")
	})

	errCases := []struct {
		name   string
		err    error
		status int
	}{
		{"deadline", billing.ErrChangeDeadlinePassed, http.StatusUnprocessableEntity},
		{"inactive", billing.ErrSubscriptionInactive, http.StatusConflict},
		{"not found", billing.ErrSubscriptionNotFound, http.StatusNotFound},
		{"remote sync", errors.Join(billing.ErrRemoteSyncFailed, billing.ErrGateway), http.StatusBadGateway},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := new(MockService)
			svc.On("ChangeTeamLimit", mock.Anything, mock.Anything).Return(nil, tc.err)

			rec, _ := do(t, router(svc), http.MethodPatch, "/api/v1/billing/subscriptions/11", `{"team_limit": 4}`, nil)
			assert.Equal(t, tc.status, rec.Code)
		})
	}

	t.Run("immediate increase", func(t *testing.T) {
		t.Parallel()
		svc := new(MockService)
		svc.On("IncreaseTeamLimitNow", mock.Anything, billing.TeamLimitChange{SubscriptionID: 11, TeamLimit: 8}).
			Return(&billing.ImmediateIncreaseResult{
				Subscription: &billing.Subscription{ID: 11, TeamLimit: 8, Status: billing.StatusActive},
				Invoice:      &billing.Invoice{Ref: "in_1", Status: "paid", AmountDue: 1500, Currency: "usd"},
			}, nil)

		rec, env := do(t, router(svc), http.MethodPost, "/api/v1/billing/subscriptions/11/immediate-increase", `{"team_limit": 8}`, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		var out struct {
			Subscription map[string]any `json:"subscription"`
			Invoice      map[string]any `json:"invoice"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &out))
		assert.EqualValues(t, 8, out.Subscription["team_limit"])
		assert.Equal(t, "in_1", out.Invoice["id"])
	})

	t.Run("immediate decrease", func(t *testing.T) {
		t.Parallel()
		svc := new(MockService)
		svc.On("IncreaseTeamLimitNow", mock.Anything, mock.Anything).Return(nil, billing.ErrImmediateDecrease)

		rec, env := do(t, router(svc), http.MethodPost, "/api/v1/billing/subscriptions/11/immediate-increase", `{"team_limit": 2}`, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "immediate_decrease", env.Error.Code)
	})
}

func TestWebhook(t *testing.T) {
	t.Parallel()

	const path = "/api/v1/stripe/webhook"
	payload := `{"id": "evt_1", "type": "customer.subscription.updated"}`

	t.Run("acknowledged", func(t *testing.T) {
		t.Parallel()
		svc := new(MockService)
		svc.On("HandleWebhook", mock.Anything, []byte(payload), "t=1,v1=abc").Return(nil)

		rec, _ := do(t, router(svc), http.MethodPost, path, payload, map[string]string{httpapi.SignatureHeader: "t=1,v1=abc"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received": true}`, rec.Body.String())
	})

	t.Run("missing signature", func(t *testing.T) {
		t.Parallel()
		svc := new(MockService)

		rec, env := do(t, router(svc), http.MethodPost, path, payload, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_webhook", env.Error.Code)
		svc.AssertNotCalled(t, "HandleWebhook", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()
		svc := new(MockService)
		svc.On("HandleWebhook", mock.Anything, mock.Anything, mock.Anything).
			Return(errors.Join(billing.ErrInvalidWebhook, errors.New("no valid signature")))

		rec, _ := do(t, router(svc), http.MethodPost, path, payload, map[string]string{httpapi.SignatureHeader: "t=1,v1=bad"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("processing failure asks for redelivery", func(t *testing.T) {
		t.Parallel()
		svc := new(MockService)
		svc.On("HandleWebhook", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("deadlock detected"))

		rec, env := do(t, router(svc), http.MethodPost, path, payload, map[string]string{httpapi.SignatureHeader: "t=1,v1=abc"})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "processing_failed", env.Error.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		t.Parallel()
		svc := new(MockService)
		big := bytes.Repeat([]byte("x"), 1<<20+1)

		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(big))
		req.Header.Set(httpapi.SignatureHeader, "t=1,v1=abc")
		rec := httptest.NewRecorder()
		router(svc).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "HandleWebhook", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	billing.NewMetrics(reg)
	h := httpapi.NewRouter(new(MockService), httpapi.WithGatherer(reg))

	rec, _ := do(t, h, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "leaguebilling_drift_repairs_total")

	down := httpapi.NewRouter(new(MockService),
		httpapi.WithGatherer(prometheus.NewRegistry()),
		httpapi.WithReadinessChecks(time.Second, httpserver.Check{
			Name: "postgres",
			Fn:   func(context.Context) error { return errors.New("connection refused") },
		}),
	)
	rec, _ = do(t, down, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
