package jobs

import (
	"context"

	"leadmarket-backend/internal/logger"
)

// RetryNotifications re-drives events parked in the outbox after the
// dispatcher gave up on them.
func (jr *JobRunner) RetryNotifications() {
	_ = jr.retryNotifications()
}

func (jr *JobRunner) retryNotifications() error {
	return jr.runWithRecovery("RetryNotifications", func() error {
		if jr.services.Notifications == nil {
			logger.Debug("No notification retrier configured, skipping")
			return nil
		}
		delivered, failed, err := jr.services.Notifications.RetryFailed(context.Background(), retryBatchSize)
		if err != nil {
			return err
		}
		if delivered > 0 || failed > 0 {
			logger.Info("Retried parked notifications", "delivered", delivered, "failed", failed)
		}
		return nil
	})
}
