// Package logger builds *slog.Logger instances for the billing service.
//
// New applies functional options (format, level, output, static attributes)
// and wraps the chosen slog handler with a decorator that pulls request-scoped
// values such as the request id out of context.Context on every record.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "leaguebilling"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "checkout created", logger.SubscriptionID(42))
//
// Discard returns a logger that drops everything; components use it when no
// logger is injected.
package logger
