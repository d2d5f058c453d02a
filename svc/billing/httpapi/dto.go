package httpapi

import (
	"time"

	"github.com/dmitrymomot/leaguebilling/svc/billing"
)

type checkoutRequest struct {
	UserID         int64  `json:"user_id"`
	LeagueSeasonID int64  `json:"league_season_id"`
	TeamLimit      int64  `json:"team_limit"`
	SuccessURL     string `json:"success_url,omitempty"`
	CancelURL      string `json:"cancel_url,omitempty"`
}

func (r checkoutRequest) validate() map[string][]string {
	errs := map[string][]string{}
	if r.UserID <= 0 {
		errs["user_id"] = append(errs["user_id"], "is required")
	}
	if r.LeagueSeasonID <= 0 {
		errs["league_season_id"] = append(errs["league_season_id"], "is required")
	}
	if r.TeamLimit < 1 {
		errs["team_limit"] = append(errs["team_limit"], "must be at least 1")
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

type checkoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type teamLimitRequest struct {
	TeamLimit *int64 `json:"team_limit"`
	Reason    string `json:"reason,omitempty"`
}

func (r teamLimitRequest) validate() map[string][]string {
	switch {
	case r.TeamLimit == nil:
		return map[string][]string{"team_limit": {"is required"}}
	case *r.TeamLimit < 1:
		return map[string][]string{"team_limit": {"must be at least 1"}}
	}
	return nil
}

type subscriptionResponse struct {
	ID                int64      `json:"id"`
	UserID            int64      `json:"user_id"`
	LeagueSeasonID    int64      `json:"league_season_id"`
	LeagueID          int64      `json:"league_id,omitempty"`
	LeagueName        string     `json:"league_name,omitempty"`
	SeasonName        string     `json:"season_name,omitempty"`
	Status            string     `json:"status"`
	TeamLimit         int64      `json:"team_limit"`
	BilledTeamCount   *int64     `json:"billed_team_count"`
	CustomerRef       string     `json:"customer_ref,omitempty"`
	RemoteRef         string     `json:"remote_ref,omitempty"`
	BillingStartAt    *time.Time `json:"billing_start_at"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end"`
	RemoteSyncPending bool       `json:"remote_sync_pending"`
	RemoteSyncMode    string     `json:"remote_sync_mode,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func newSubscriptionResponse(s billing.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                s.ID,
		UserID:            s.UserID,
		LeagueSeasonID:    s.LeagueSeasonID,
		Status:            string(s.Status),
		TeamLimit:         s.TeamLimit,
		BilledTeamCount:   s.BilledTeamCount,
		CustomerRef:       s.CustomerRef,
		RemoteRef:         s.RemoteRef,
		BillingStartAt:    s.BillingStartAt,
		CurrentPeriodEnd:  s.CurrentPeriodEnd,
		RemoteSyncPending: s.RemoteSyncPending,
		RemoteSyncMode:    string(s.RemoteSyncMode),
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func newViewResponse(v billing.SubscriptionView) subscriptionResponse {
	resp := newSubscriptionResponse(v.Subscription)
	resp.LeagueID = v.LeagueID
	resp.LeagueName = v.LeagueName
	resp.SeasonName = v.SeasonName
	return resp
}

type teamChangeResponse struct {
	ID        int64     `json:"id"`
	OldLimit  int64     `json:"old_limit"`
	NewLimit  int64     `json:"new_limit"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason,omitempty"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
}

type invoiceResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	AmountDue int64  `json:"amount_due"`
	Currency  string `json:"currency"`
}

type immediateIncreaseResponse struct {
	Subscription subscriptionResponse `json:"subscription"`
	Invoice      *invoiceResponse     `json:"invoice,omitempty"`
}
