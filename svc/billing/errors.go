package billing

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid billing request")
	ErrInvalidTeamLimit = errors.New("team limit must be at least 1")
	ErrInvalidSeason    = errors.New("invalid league season configuration")

	ErrUserNotFound         = errors.New("user not found")
	ErrSeasonNotFound       = errors.New("league season not found")
	ErrSeasonProductMissing = errors.New("billing product not configured for league season")
	ErrEnrollmentClosed     = errors.New("enrollment window closed")
	ErrSubscriptionExists   = errors.New("subscription already exists for user and season")

	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrSubscriptionInactive  = errors.New("subscription is no longer active")
	ErrDuplicateSubscription = errors.New("subscription already recorded")

	ErrChangeDeadlinePassed = errors.New("change deadline passed")
	ErrImmediateDecrease    = errors.New("immediate team limit decrease is not allowed")
	ErrNoIncrease           = errors.New("team limit is not increased")
	ErrFlatPricing          = errors.New("prorated increase requires per-seat pricing")

	ErrGateway           = errors.New("payment gateway request failed")
	ErrRemoteItemMissing = errors.New("remote subscription has no items")
	ErrRemoteSyncFailed  = errors.New("local change applied, remote subscription not confirmed")
	ErrInvalidWebhook    = errors.New("invalid webhook payload or signature")
)
