package jobs

import (
	"context"
	"fmt"

	"leadmarket-backend/internal/logger"
)

// ReconcileLedgers replays every account's ledger. Accounts that disagree
// with their cached balance are frozen by the ledger service.
func (jr *JobRunner) ReconcileLedgers() {
	_ = jr.reconcileLedgers()
}

func (jr *JobRunner) reconcileLedgers() error {
	return jr.runWithRecovery("ReconcileLedgers", func() error {
		report, err := jr.services.Ledger.ReconcileAll(context.Background())
		if err != nil {
			return err
		}
		if len(report.Mismatched) > 0 {
			for _, m := range report.Mismatched {
				logger.LedgerAlert("Account failed nightly reconciliation", m.AccountID,
					"cached", m.Cached.String(), "replayed", m.Replayed.String(), "detail", m.Detail)
			}
			return fmt.Errorf("%d of %d accounts failed reconciliation", len(report.Mismatched), report.Checked)
		}
		return nil
	})
}
