package stripegw

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v82"
)

// slogAdapter routes stripe-go's leveled logging through slog.
type slogAdapter struct {
	log *slog.Logger
}

var _ stripe.LeveledLoggerInterface = slogAdapter{}

func (a slogAdapter) Debugf(format string, v ...any) {
	a.log.Log(context.Background(), slog.LevelDebug, fmt.Sprintf(format, v...))
}

func (a slogAdapter) Infof(format string, v ...any) {
	a.log.Log(context.Background(), slog.LevelDebug, fmt.Sprintf(format, v...))
}

func (a slogAdapter) Warnf(format string, v ...any) {
	a.log.Log(context.Background(), slog.LevelWarn, fmt.Sprintf(format, v...))
}

func (a slogAdapter) Errorf(format string, v ...any) {
	a.log.Log(context.Background(), slog.LevelError, fmt.Sprintf(format, v...))
}
