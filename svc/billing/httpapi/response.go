package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/leaguebilling/pkg/logger"
	"github.com/dmitrymomot/leaguebilling/pkg/requestid"
	"github.com/dmitrymomot/leaguebilling/svc/billing"
)

// JSONResponse is the envelope of every API response.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any, meta map[string]any) {
	writeJSON(w, status, JSONResponse{Data: data, Meta: meta})
}

// errorMapping is checked in order; joined errors match their first entry.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{billing.ErrRemoteSyncFailed, http.StatusBadGateway, "remote_sync_failed"},
	{billing.ErrGateway, http.StatusBadGateway, "payment_gateway_error"},
	{billing.ErrInvalidWebhook, http.StatusBadRequest, "invalid_webhook"},
	{billing.ErrInvalidTeamLimit, http.StatusBadRequest, "invalid_team_limit"},
	{billing.ErrInvalidInput, http.StatusBadRequest, "invalid_request"},
	{billing.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{billing.ErrSeasonNotFound, http.StatusNotFound, "season_not_found"},
	{billing.ErrSubscriptionNotFound, http.StatusNotFound, "subscription_not_found"},
	{billing.ErrSubscriptionExists, http.StatusConflict, "subscription_exists"},
	{billing.ErrSubscriptionInactive, http.StatusConflict, "subscription_inactive"},
	{billing.ErrEnrollmentClosed, http.StatusUnprocessableEntity, "enrollment_closed"},
	{billing.ErrChangeDeadlinePassed, http.StatusUnprocessableEntity, "change_deadline_passed"},
	{billing.ErrImmediateDecrease, http.StatusUnprocessableEntity, "immediate_decrease"},
	{billing.ErrNoIncrease, http.StatusUnprocessableEntity, "no_increase"},
	{billing.ErrFlatPricing, http.StatusUnprocessableEntity, "flat_pricing"},
	{billing.ErrSeasonProductMissing, http.StatusInternalServerError, "product_missing"},
}

// errorStatus classifies err. Unknown errors are internal and their text is
// not exposed.
func errorStatus(err error) (int, *ErrorDetail) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, &ErrorDetail{Code: m.code, Message: m.err.Error()}
		}
	}
	return http.StatusInternalServerError, &ErrorDetail{
		Code:    "internal_error",
		Message: http.StatusText(http.StatusInternalServerError),
	}
}

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, detail := errorStatus(err)

	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	log.Log(r.Context(), level, "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		logger.Error(err),
	)

	meta := map[string]any(nil)
	if id := requestid.FromContext(r.Context()); id != "" {
		meta = map[string]any{"request_id": id}
	}
	writeJSON(w, status, JSONResponse{Error: detail, Meta: meta})
}

// validationError answers 400 with per-field messages.
func validationError(w http.ResponseWriter, details map[string][]string) {
	writeJSON(w, http.StatusBadRequest, JSONResponse{Error: &ErrorDetail{
		Code:    "validation_error",
		Message: billing.ErrInvalidInput.Error(),
		Details: details,
	}})
}
