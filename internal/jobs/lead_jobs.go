package jobs

import (
	"context"

	"leadmarket-backend/internal/logger"
)

// ExpireLeads moves available leads past their expiry to expired.
func (jr *JobRunner) ExpireLeads() {
	_ = jr.expireLeads()
}

func (jr *JobRunner) expireLeads() error {
	return jr.runWithRecovery("ExpireLeads", func() error {
		n, err := jr.services.Leads.ExpireLeads(context.Background(), jr.now())
		if err != nil {
			return err
		}
		logger.Info("Expired stale leads", "count", n)
		return nil
	})
}
