package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/conductor/workload"
)

// Logging returns middleware that logs item start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, item *workload.Item, next Handler) error {
		logger.Info("item started",
			slog.String("item_id", item.ID.String()),
			slog.String("queue", item.QueueName),
			slog.Int("retry_count", item.RetryCount),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("item failed",
				slog.String("item_id", item.ID.String()),
				slog.String("queue", item.QueueName),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("item finished",
				slog.String("item_id", item.ID.String()),
				slog.String("queue", item.QueueName),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
