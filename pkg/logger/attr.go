package logger

import (
	"log/slog"
	"time"
)

// Error returns an empty Attr for nil errors so it can be passed unconditionally.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

func EventType(t string) slog.Attr {
	return slog.String("event_type", t)
}

func SubscriptionID(id int64) slog.Attr {
	return slog.Int64("subscription_id", id)
}

func UserID(id int64) slog.Attr {
	return slog.Int64("user_id", id)
}

func SeasonID(id int64) slog.Attr {
	return slog.Int64("league_season_id", id)
}

// RemoteRef records the payment processor's subscription id.
func RemoteRef(ref string) slog.Attr {
	return slog.String("remote_ref", ref)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
